package snapshot

import (
	"context"
	"fmt"

	"github.com/kashguard/go-evidence/internal/evidence/sign"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	ModeAll    = "all"
	ModeLatest = "latest"
)

var ErrInvalidMode = errors.New("verify mode must be all or latest")

type KeyVerifier interface {
	VerifyDigest(ctx context.Context, keyID string, digest string, signature string) *sign.SignatureResult
}

// Verifier checks the snapshot chain without trusting the builder.
type Verifier struct {
	store storage.Store
	keys  KeyVerifier
}

func NewVerifier(store storage.Store, keys KeyVerifier) *Verifier {
	return &Verifier{store: store, keys: keys}
}

// Verify checks every snapshot (ModeAll) or only the newest one (ModeLatest).
// All findings are collected; one broken snapshot does not stop the rest.
func (v *Verifier) Verify(ctx context.Context, mode string) (*Report, error) {
	if mode != ModeAll && mode != ModeLatest {
		return nil, errors.Wrapf(ErrInvalidMode, "%q", mode)
	}

	chain, err := Load(ctx, v.store)
	if err != nil {
		return nil, err
	}

	start := 0
	if mode == ModeLatest && len(chain) > 0 {
		start = len(chain) - 1
	}

	report := &Report{Findings: make([]Finding, 0)}
	for i := start; i < len(chain); i++ {
		var prev *Stored
		if i > 0 {
			prev = &chain[i-1]
		}
		findings := v.check(ctx, chain[i], prev)
		report.Checked++
		if len(findings) == 0 {
			report.Valid++
		}
		report.Findings = append(report.Findings, findings...)
	}

	log.Info().Int("checked", report.Checked).Int("valid", report.Valid).Int("findings", len(report.Findings)).Msg("Verified snapshot chain")

	return report, nil
}

func (v *Verifier) check(ctx context.Context, st Stored, prev *Stored) []Finding {
	if st.Signed == nil {
		return []Finding{{Key: st.Key, Code: FindingUnreadable, Message: fmt.Sprintf("%v", st.Err)}}
	}

	s := &st.Signed.Snapshot
	finding := func(code, msg string) Finding {
		return Finding{Key: st.Key, SnapshotID: s.SnapshotID, Code: code, Message: msg}
	}

	var out []Finding

	computed, err := Hash(s)
	if err != nil || computed != s.SnapshotHash {
		out = append(out, finding(FindingHashMismatch, fmt.Sprintf("stored %s, computed %s", s.SnapshotHash, computed)))
	}

	bound := sign.BoundDigest(s.SnapshotHash, st.Signed.KeyID, st.Signed.SignedAt)
	res := v.keys.VerifyDigest(ctx, st.Signed.KeyID, bound, st.Signed.Signature)
	if !res.Valid {
		code := FindingSignatureInvalid
		switch res.Error {
		case sign.CodeKeyNotFound:
			code = FindingKeyNotFound
		case sign.CodeKeyRevoked:
			code = FindingKeyRevoked
		case sign.CodeKeyLookupFailed:
			code = FindingKeyLookupFailed
		}
		out = append(out, finding(code, fmt.Sprintf("key %s: %s", st.Signed.KeyID, res.Error)))
	}

	switch {
	case prev == nil:
		if s.PreviousSnapshotHash != nil {
			out = append(out, finding(FindingChainBroken, "first snapshot references a previous hash"))
		}
	case prev.Signed == nil:
		// link cannot be checked against an unreadable predecessor
	case s.PreviousSnapshotHash == nil:
		out = append(out, finding(FindingChainBroken, "previous_snapshot_hash is null after genesis"))
	case *s.PreviousSnapshotHash != prev.Signed.Snapshot.SnapshotHash:
		out = append(out, finding(FindingChainBroken,
			fmt.Sprintf("previous_snapshot_hash %s does not match %s", *s.PreviousSnapshotHash, prev.Signed.Snapshot.SnapshotHash)))
	}

	return out
}
