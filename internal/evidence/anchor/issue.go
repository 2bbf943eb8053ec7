package anchor

import (
	"encoding/hex"
	"encoding/json"

	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/pkg/errors"
)

// Details is the type-specific payload of an Issue. Each IssueType has exactly one
// details type; the pairing is enforced by NewIssue and by UnmarshalJSON.
type Details interface {
	issueType() IssueType
}

type FailedDetails struct {
	AnchorID string `json:"anchor_id"`
}

type PendingDetails struct {
	AnchorID       string  `json:"anchor_id"`
	AgeHours       float64 `json:"age_hours"`
	ThresholdHours float64 `json:"threshold_hours"`
}

type ReceiptMissingDetails struct {
	AnchorID string `json:"anchor_id"`
	TxHash   string `json:"tx_hash,omitempty"`
	Reason   string `json:"reason"`
}

type IntegrityDetails struct {
	AnchorID     string `json:"anchor_id"`
	TxHash       string `json:"tx_hash"`
	Reason       string `json:"reason"`
	ExpectedHash string `json:"expected_hash,omitempty"`
	ActualHash   string `json:"actual_hash,omitempty"`
}

type GapDetails struct {
	PreviousAnchorID string `json:"previous_anchor_id"`
	NextAnchorID     string `json:"next_anchor_id"`
	Previous         Period `json:"previous_period"`
	Next             Period `json:"next_period"`
}

func (FailedDetails) issueType() IssueType         { return IssueAnchorFailed }
func (PendingDetails) issueType() IssueType        { return IssueAnchorPendingTooLong }
func (ReceiptMissingDetails) issueType() IssueType { return IssueReceiptMissing }
func (IntegrityDetails) issueType() IssueType      { return IssueReceiptIntegrity }
func (GapDetails) issueType() IssueType            { return IssueGapInPeriods }

// Issue is a derived anchoring finding. It is never stored as mutable state;
// Fingerprint identifies it across re-scans.
type Issue struct {
	ID          string
	Type        IssueType
	Severity    Severity
	Message     string
	Period      *Period
	Subject     string
	Details     Details
	Fingerprint string
}

// fingerprintBody is the canonical identity of an issue.
type fingerprintBody struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	Period   *Period   `json:"period"`
	Subject  string    `json:"subject"`
	Message  string    `json:"message"`
}

// ComputeFingerprint hashes the canonical {type, severity, period, subject, message}.
func ComputeFingerprint(t IssueType, sev Severity, period *Period, subject string, message string) (string, error) {
	var p *Period
	if period != nil {
		utc := Period{From: period.From.UTC(), To: period.To.UTC()}
		p = &utc
	}

	return canonical.Fingerprint(&fingerprintBody{Type: t, Severity: sev, Period: p, Subject: subject, Message: message})
}

// NewIssue builds an issue with its fingerprint and id filled in.
func NewIssue(sev Severity, message string, period *Period, subject string, details Details) (*Issue, error) {
	if details == nil {
		return nil, errors.New("issue details are required")
	}
	t := details.issueType()

	fp, err := ComputeFingerprint(t, sev, period, subject, message)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fingerprint issue")
	}

	return &Issue{
		ID:          "iss_" + fp[:16],
		Type:        t,
		Severity:    sev,
		Message:     message,
		Period:      period,
		Subject:     subject,
		Details:     details,
		Fingerprint: fp,
	}, nil
}

type issueJSON struct {
	ID          string          `json:"id"`
	Type        IssueType       `json:"type"`
	Severity    Severity        `json:"severity"`
	Message     string          `json:"message"`
	Period      *Period         `json:"period,omitempty"`
	Subject     string          `json:"subject,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	Fingerprint string          `json:"_fingerprint"`
}

// MarshalJSON emits the canonical serialization used for storage and responses.
func (i Issue) MarshalJSON() ([]byte, error) {
	var details json.RawMessage
	if i.Details != nil {
		b, err := canonical.Marshal(i.Details)
		if err != nil {
			return nil, err
		}
		details = b
	}

	return canonical.Marshal(&issueJSON{
		ID:          i.ID,
		Type:        i.Type,
		Severity:    i.Severity,
		Message:     i.Message,
		Period:      i.Period,
		Subject:     i.Subject,
		Details:     details,
		Fingerprint: i.Fingerprint,
	})
}

var ErrInvalidFingerprint = errors.New("_fingerprint must be a hex SHA-256")

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// UnmarshalJSON decodes the details payload according to the type tag. Unknown
// types and malformed fingerprints are rejected. A missing _fingerprint is recomputed.
func (i *Issue) UnmarshalJSON(b []byte) error {
	var raw issueJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var details Details
	switch raw.Type {
	case IssueAnchorFailed:
		details = &FailedDetails{}
	case IssueAnchorPendingTooLong:
		details = &PendingDetails{}
	case IssueReceiptMissing:
		details = &ReceiptMissingDetails{}
	case IssueReceiptIntegrity:
		details = &IntegrityDetails{}
	case IssueGapInPeriods:
		details = &GapDetails{}
	default:
		return errors.Errorf("unknown issue type %q", raw.Type)
	}
	if len(raw.Details) > 0 {
		if err := json.Unmarshal(raw.Details, details); err != nil {
			return errors.Wrapf(err, "invalid details for %s", raw.Type)
		}
	}

	fp := canonical.NormalizeHash(raw.Fingerprint)
	if fp != "" && !isSHA256Hex(fp) {
		return errors.Wrapf(ErrInvalidFingerprint, "%q", raw.Fingerprint)
	}
	if fp == "" {
		computed, err := ComputeFingerprint(raw.Type, raw.Severity, raw.Period, raw.Subject, raw.Message)
		if err != nil {
			return err
		}
		fp = computed
	}

	id := raw.ID
	if id == "" {
		id = "iss_" + fp[:16]
	}

	*i = Issue{
		ID:          id,
		Type:        raw.Type,
		Severity:    raw.Severity,
		Message:     raw.Message,
		Period:      raw.Period,
		Subject:     raw.Subject,
		Details:     details,
		Fingerprint: fp,
	}

	return nil
}

// Dedupe keeps the first issue per fingerprint, preserving order. Nil entries are dropped.
func Dedupe(issues []*Issue) []*Issue {
	seen := make(map[string]struct{}, len(issues))
	out := make([]*Issue, 0, len(issues))
	for _, iss := range issues {
		if iss == nil {
			continue
		}
		if _, ok := seen[iss.Fingerprint]; ok {
			continue
		}
		seen[iss.Fingerprint] = struct{}{}
		out = append(out, iss)
	}

	return out
}
