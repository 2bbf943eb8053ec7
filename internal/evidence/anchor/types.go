package anchor

import (
	"time"
)

// Status of an external anchor. Confirmed and failed are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Anchor is the external commitment of one rollup root.
type Anchor struct {
	ID          string    `json:"id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Status      Status    `json:"status"`
	TxHash      *string   `json:"tx_hash,omitempty"`
	MerkleRoot  string    `json:"merkle_root,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// IssueType is the closed set of anchoring problems.
type IssueType string

const (
	IssueAnchorFailed         IssueType = "ANCHOR_FAILED"
	IssueAnchorPendingTooLong IssueType = "ANCHOR_PENDING_TOO_LONG"
	IssueReceiptMissing       IssueType = "RECEIPT_MISSING_FOR_CONFIRMED"
	IssueReceiptIntegrity     IssueType = "RECEIPT_INTEGRITY_MISMATCH"
	IssueGapInPeriods         IssueType = "GAP_IN_PERIODS"
	issueTypeCount                      = 5
)

// Severity of an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityWarn     Severity = "warn"
)

// Rank orders severities, most severe first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeverityWarn:
		return 2
	default:
		return 3
	}
}

// ParseSeverity accepts critical, major and warn.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityCritical, SeverityMajor, SeverityWarn:
		return Severity(s), true
	default:
		return "", false
	}
}

// Period is a half-open time range.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Receipt-side reasons carried in issue details.
const (
	ReasonNoTxHash             = "no_tx_hash"
	ReasonReceiptNotFound      = "receipt_not_found"
	ReasonManifestUnavailable  = "manifest_unavailable"
	ReasonManifestEntryMissing = "manifest_entry_missing"
	ReasonHashMismatch         = "hash_mismatch"
)
