package audit

import "time"

// AuditEvent is one key or lifecycle-request transition.
//
//nolint:revive
type AuditEvent struct {
	Timestamp time.Time
	EventType string
	UserID    string
	KeyID     string
	RequestID string
	Operation string
	Result    string
	Details   map[string]any
}

// Event types.
const (
	EventKeyCreated      = "KeyCreated"
	EventKeyRotated      = "KeyRotated"
	EventKeyArchived     = "KeyArchived"
	EventKeyRevoked      = "KeyRevoked"
	EventRequestCreated  = "LifecycleRequestCreated"
	EventRequestApproved = "LifecycleRequestApproved"
	EventRequestRejected = "LifecycleRequestRejected"
	EventRequestExpired  = "LifecycleRequestExpired"
	EventRequestExecuted = "LifecycleRequestExecuted"
	EventSnapshotCreated = "AuditSnapshotCreated"
)

const (
	ResultSuccess = "Success"
	ResultFailure = "Failure"
)

// EntryKind is the ledger kind of every audit entry.
const EntryKind = "key_lifecycle"
