package snapshot

import (
	"encoding/json"
	"time"

	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/pkg/errors"
)

type Kind string

const (
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDaily, KindWeekly:
		return Kind(s), nil
	default:
		return "", errors.Wrapf(ErrInvalidKind, "%q", s)
	}
}

type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}

type PolicyRef struct {
	Version string `json:"version"`
	Hash    string `json:"hash"`
}

type Events struct {
	Rotations        int `json:"rotations"`
	Revocations      int `json:"revocations"`
	ApprovalRequests int `json:"approval_requests"`
}

// Snapshot summarizes key and lifecycle state for one scheduled period.
// PreviousSnapshotHash is nil only for the first snapshot of the chain.
type Snapshot struct {
	SnapshotID           string           `json:"snapshot_id"`
	Kind                 Kind             `json:"kind"`
	GeneratedAt          time.Time        `json:"generated_at"`
	Period               Period           `json:"period"`
	Policy               PolicyRef        `json:"policy"`
	Keys                 key.KeyCounts    `json:"keys"`
	Events               Events           `json:"events"`
	Operational          map[string]int64 `json:"operational,omitempty"`
	PreviousSnapshotHash *string          `json:"previous_snapshot_hash"`
	SnapshotHash         string           `json:"snapshot_hash"`
}

type Signed struct {
	Snapshot  Snapshot  `json:"snapshot"`
	Signature string    `json:"signature"`
	KeyID     string    `json:"key_id"`
	SignedAt  time.Time `json:"signed_at"`
}

// Hash is the SHA-256 of the canonical snapshot body without snapshot_hash.
func Hash(s *Snapshot) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode snapshot")
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", errors.Wrap(err, "failed to decode snapshot")
	}
	delete(body, "snapshot_hash")

	return canonical.Fingerprint(body)
}

// Finding codes reported by the verifier.
const (
	FindingHashMismatch     = "HASH_MISMATCH"
	FindingSignatureInvalid = "SIGNATURE_INVALID"
	FindingKeyNotFound      = "KEY_NOT_FOUND"
	FindingKeyRevoked       = "KEY_REVOKED"
	FindingChainBroken      = "CHAIN_BROKEN"
	FindingUnreadable       = "UNREADABLE"
	FindingKeyLookupFailed  = "KEY_LOOKUP_FAILED"
)

type Finding struct {
	Key        string `json:"key"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

type Report struct {
	Checked  int       `json:"checked"`
	Valid    int       `json:"valid"`
	Findings []Finding `json:"findings"`
}

func (r *Report) OK() bool {
	return len(r.Findings) == 0
}
