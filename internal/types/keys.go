package types

import (
	"github.com/go-openapi/strfmt"
)

type GetKeyResponse struct {
	// Required: true
	KeyID *string `json:"key_id"`

	// Required: true
	// Enum: [active archived revoked]
	Status *string `json:"status"`

	Algorithm        string           `json:"algorithm"`
	PublicKey        strfmt.Base64    `json:"public_key"`
	CreatedAt        strfmt.DateTime  `json:"created_at"`
	ArchivedAt       *strfmt.DateTime `json:"archived_at,omitempty"`
	RevokedAt        *strfmt.DateTime `json:"revoked_at,omitempty"`
	RevocationReason string           `json:"revocation_reason,omitempty"`
}

type ListKeysResponse struct {
	Keys  []*GetKeyResponse `json:"keys"`
	Total int64             `json:"total"`
}

func (m *ListKeysResponse) Validate(_ strfmt.Registry) error {
	var res ValidationErrors
	for _, k := range m.Keys {
		if k.KeyID == nil || k.Status == nil {
			res = append(res, bodyError("keys", "key_id and status are required"))
			break
		}
	}
	return res.orNil()
}

// PostCreateLifecycleRequestPayload is the body of POST /api/v1/keys/requests.
type PostCreateLifecycleRequestPayload struct {
	// Required: true
	// Enum: [ROTATE REVOKE]
	Action *string `json:"action"`

	TargetKeyID *string `json:"target_key_id,omitempty"`

	Reason *string `json:"reason,omitempty"`
}

func (m *PostCreateLifecycleRequestPayload) Validate(_ strfmt.Registry) error {
	var res ValidationErrors
	switch {
	case m.Action == nil || *m.Action == "":
		res = append(res, bodyError("action", "action is required"))
	case *m.Action != "ROTATE" && *m.Action != "REVOKE":
		res = append(res, bodyError("action", "action must be one of [ROTATE REVOKE]"))
	case *m.Action == "REVOKE":
		if m.TargetKeyID == nil || *m.TargetKeyID == "" {
			res = append(res, bodyError("target_key_id", "target_key_id is required for REVOKE"))
		}
		if m.Reason == nil || *m.Reason == "" {
			res = append(res, bodyError("reason", "reason is required for REVOKE"))
		}
	}
	return res.orNil()
}

type PostRejectLifecycleRequestPayload struct {
	Reason *string `json:"reason,omitempty"`
}

func (m *PostRejectLifecycleRequestPayload) Validate(_ strfmt.Registry) error {
	return nil
}

type LifecycleRequestResponse struct {
	// Required: true
	ID *string `json:"id"`

	// Required: true
	Action *string `json:"action"`

	// Required: true
	Status *string `json:"status"`

	TargetKeyID     string           `json:"target_key_id,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	InitiatorID     string           `json:"initiator_id"`
	ApproverID      string           `json:"approver_id,omitempty"`
	ExecutorID      string           `json:"executor_id,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	ResultKeyID     string           `json:"result_key_id,omitempty"`
	CreatedAt       strfmt.DateTime  `json:"created_at"`
	ExpiresAt       strfmt.DateTime  `json:"expires_at"`
	ApprovedAt      *strfmt.DateTime `json:"approved_at,omitempty"`
	ExecuteBy       *strfmt.DateTime `json:"execute_by,omitempty"`
	RejectedAt      *strfmt.DateTime `json:"rejected_at,omitempty"`
	ExpiredAt       *strfmt.DateTime `json:"expired_at,omitempty"`
	ExecutedAt      *strfmt.DateTime `json:"executed_at,omitempty"`
}

func (m *LifecycleRequestResponse) Validate(_ strfmt.Registry) error {
	var res ValidationErrors
	if m.ID == nil || m.Action == nil || m.Status == nil {
		res = append(res, bodyError("request", "id, action and status are required"))
	}
	return res.orNil()
}

type ListLifecycleRequestsResponse struct {
	Requests []*LifecycleRequestResponse `json:"requests"`

	// Required: true
	PendingCount *int64 `json:"pending_count"`
}

func (m *ListLifecycleRequestsResponse) Validate(formats strfmt.Registry) error {
	var res ValidationErrors
	if m.PendingCount == nil {
		res = append(res, bodyError("pending_count", "pending_count is required"))
	}
	for _, r := range m.Requests {
		if err := r.Validate(formats); err != nil {
			res = append(res, bodyError("requests", err.Error()))
			break
		}
	}
	return res.orNil()
}
