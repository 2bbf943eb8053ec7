package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/audit"
	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/evidence/policy"
	"github.com/kashguard/go-evidence/internal/evidence/sign"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrLatestUnreadable = errors.New("latest snapshot is unreadable, chain cannot be extended")

var snapshotNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:evidence:snapshot"))

// KeyState is the part of key.Service a snapshot summarizes.
type KeyState interface {
	Counts(ctx context.Context) (*key.KeyCounts, error)
	ListRequests(ctx context.Context, filter *key.RequestFilter) (*key.RequestList, error)
}

type Signer interface {
	SignBound(ctx context.Context, digest string) (*sign.Signature, error)
}

// Builder creates one signed snapshot per scheduled period and links it to the
// previous snapshot's hash.
type Builder struct {
	mu      sync.Mutex
	store   storage.Store
	keys    KeyState
	policy  policy.Engine
	signer  Signer
	counter EventCounter
	audit   audit.Logger
	cfg     config.Snapshot
	clock   time2.Clock
}

// NewBuilder returns a builder. counter may be nil.
func NewBuilder(
	store storage.Store,
	keys KeyState,
	policyEngine policy.Engine,
	signer Signer,
	counter EventCounter,
	auditLogger audit.Logger,
	cfg config.Snapshot,
	clock time2.Clock,
) *Builder {
	return &Builder{
		store:   store,
		keys:    keys,
		policy:  policyEngine,
		signer:  signer,
		counter: counter,
		audit:   auditLogger,
		cfg:     cfg,
		clock:   clock,
	}
}

type Result struct {
	Key     string  `json:"key"`
	Signed  *Signed `json:"signed"`
	Created bool    `json:"created"`
}

// ID is the deterministic snapshot id of a kind and period start.
func ID(kind Kind, from time.Time) string {
	return uuid.NewSHA1(snapshotNamespace, []byte(string(kind)+"|"+from.UTC().Format(time.RFC3339))).String()
}

func (b *Builder) schedule(kind Kind) string {
	if kind == KindWeekly {
		return b.cfg.WeeklySchedule
	}
	return b.cfg.DailySchedule
}

// Generate creates the snapshot for the last completed period of kind. An
// existing snapshot for that period is returned unchanged.
func (b *Builder) Generate(ctx context.Context, kind Kind) (*Result, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now().UTC()
	period, err := LastPeriod(b.schedule(kind), now)
	if err != nil {
		return nil, err
	}
	id := ID(kind, period.From)

	chain, err := Load(ctx, b.store)
	if err != nil {
		return nil, err
	}
	for _, st := range chain {
		if st.Signed != nil && st.Signed.Snapshot.SnapshotID == id {
			log.Debug().Str("snapshot_id", id).Msg("Snapshot for period already exists")
			return &Result{Key: st.Key, Signed: st.Signed}, nil
		}
	}

	var previous *string
	if n := len(chain); n > 0 {
		last := chain[n-1]
		if last.Signed == nil {
			return nil, errors.Wrapf(ErrLatestUnreadable, "%s: %v", last.Key, last.Err)
		}
		h := last.Signed.Snapshot.SnapshotHash
		previous = &h
	}

	s := &Snapshot{
		SnapshotID:           id,
		Kind:                 kind,
		GeneratedAt:          now,
		Period:               period,
		Policy:               PolicyRef{Version: b.policy.Policy().Version, Hash: b.policy.Hash()},
		PreviousSnapshotHash: previous,
	}

	counts, err := b.keys.Counts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count keys")
	}
	s.Keys = *counts

	if s.Events, err = b.countLifecycle(ctx, period); err != nil {
		return nil, err
	}
	if b.counter != nil {
		if s.Operational, err = b.counter.CountEvents(ctx, period); err != nil {
			return nil, errors.Wrap(err, "failed to count operational events")
		}
	}

	if s.SnapshotHash, err = Hash(s); err != nil {
		return nil, err
	}
	sig, err := b.signer.SignBound(ctx, s.SnapshotHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign snapshot")
	}

	signed := &Signed{Snapshot: *s, Signature: sig.Value, KeyID: sig.KeyID, SignedAt: sig.SignedAt}
	body, err := canonical.Marshal(signed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode snapshot")
	}

	objectKey := storage.SnapshotKey(now, id)
	if err := b.store.Put(ctx, objectKey, body); err != nil {
		return nil, errors.Wrapf(err, "failed to write snapshot %s", objectKey)
	}

	if b.audit != nil {
		if err := b.audit.LogEvent(ctx, &audit.AuditEvent{
			EventType: audit.EventSnapshotCreated,
			UserID:    "system",
			KeyID:     sig.KeyID,
			RequestID: id,
			Operation: "snapshot:" + string(kind),
			Result:    audit.ResultSuccess,
			Details:   map[string]any{"snapshot_hash": s.SnapshotHash, "key": objectKey},
		}); err != nil {
			log.Warn().Err(err).Str("snapshot_id", id).Msg("Failed to record snapshot audit event")
		}
	}

	log.Info().Str("snapshot_id", id).Str("kind", string(kind)).Str("key", objectKey).Msg("Created audit snapshot")

	return &Result{Key: objectKey, Signed: signed, Created: true}, nil
}

func (b *Builder) countLifecycle(ctx context.Context, p Period) (Events, error) {
	list, err := b.keys.ListRequests(ctx, nil)
	if err != nil {
		return Events{}, errors.Wrap(err, "failed to list lifecycle requests")
	}

	var ev Events
	for _, r := range list.Requests {
		if p.Contains(r.CreatedAt) {
			ev.ApprovalRequests++
		}
		if r.Status != key.RequestExecuted || r.ExecutedAt == nil || !p.Contains(*r.ExecutedAt) {
			continue
		}
		switch r.Action {
		case key.ActionRotate:
			ev.Rotations++
		case key.ActionRevoke:
			ev.Revocations++
		}
	}

	return ev, nil
}
