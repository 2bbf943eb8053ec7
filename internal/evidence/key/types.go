package key

import (
	"time"
)

// Status of a signing key. The active key is whichever key the active pointer
// names; every other non-revoked key is archived.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusRevoked  Status = "revoked"
)

const AlgorithmEd25519 = "ED25519"

// SigningKey is one key's material and lifecycle state.
type SigningKey struct {
	KeyID            string     `json:"key_id"`
	Status           Status     `json:"status"`
	Algorithm        string     `json:"algorithm"`
	PublicKey        []byte     `json:"public_key"`
	PrivateKey       []byte     `json:"private_key,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
}

// Public returns a copy without private material.
func (k *SigningKey) Public() *SigningKey {
	c := *k
	c.PrivateKey = nil
	return &c
}

// ActivePointer names the single active key.
type ActivePointer struct {
	KeyID     string    `json:"key_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyCounts summarizes key state for snapshots.
type KeyCounts struct {
	Active        string `json:"active"`
	ArchivedCount int    `json:"archived_count"`
	RevokedCount  int    `json:"revoked_count"`
}

// Action of a lifecycle request.
type Action string

const (
	ActionRotate Action = "ROTATE"
	ActionRevoke Action = "REVOKE"
)

// RequestStatus of a lifecycle request. Rejected, expired and executed are terminal.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
	RequestExpired  RequestStatus = "EXPIRED"
	RequestExecuted RequestStatus = "EXECUTED"
)

// LifecycleRequest is a dual-control request to rotate or revoke.
type LifecycleRequest struct {
	ID              string        `json:"id"`
	Action          Action        `json:"action"`
	TargetKeyID     string        `json:"target_key_id,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	Status          RequestStatus `json:"status"`
	InitiatorID     string        `json:"initiator_id"`
	ApproverID      string        `json:"approver_id,omitempty"`
	ExecutorID      string        `json:"executor_id,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	ExecuteBy       *time.Time    `json:"execute_by,omitempty"`
	RejectedAt      *time.Time    `json:"rejected_at,omitempty"`
	ExpiredAt       *time.Time    `json:"expired_at,omitempty"`
	ExecutedAt      *time.Time    `json:"executed_at,omitempty"`
	ResultKeyID     string        `json:"result_key_id,omitempty"`
}

// CreateRequest starts a lifecycle request.
type CreateRequest struct {
	Action      Action
	TargetKeyID string
	Reason      string
	InitiatorID string
}

// RequestFilter narrows ListRequests. Empty Status lists all.
type RequestFilter struct {
	Status RequestStatus
}

type RequestList struct {
	Requests     []*LifecycleRequest `json:"requests"`
	PendingCount int                 `json:"pending_count"`
}
