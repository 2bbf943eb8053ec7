package snapshot_test

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/evidence/policy"
	"github.com/kashguard/go-evidence/internal/evidence/sign"
	"github.com/kashguard/go-evidence/internal/evidence/snapshot"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *test.MemoryStore
	clock    *time2.MockClock
	keys     key.Service
	builder  *snapshot.Builder
	verifier *snapshot.Verifier
}

type fixedCounter map[string]int64

func (c fixedCounter) CountEvents(_ context.Context, _ snapshot.Period) (map[string]int64, error) {
	return c, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: test.NewMemoryStore(), clock: test.NewClock(t)}

	engine, err := policy.NewEngine(policy.DefaultPolicy())
	require.NoError(t, err)
	f.keys, err = key.NewService(key.NewBlobStore(f.store), engine, nil,
		config.Keys{ApprovalTTL: 24 * time.Hour, ExecutionTTL: time.Hour}, f.clock)
	require.NoError(t, err)
	_, err = f.keys.Bootstrap(context.Background(), "admin")
	require.NoError(t, err)

	signer, err := sign.NewService(f.keys, f.clock)
	require.NoError(t, err)

	f.builder = snapshot.NewBuilder(f.store, f.keys, engine, signer, fixedCounter{"inspection_cards": 7}, nil,
		config.Snapshot{DailySchedule: "0 0 * * *", WeeklySchedule: "0 0 * * 1"}, f.clock)
	f.verifier = snapshot.NewVerifier(f.store, signer)
	return f
}

func (f *fixture) generate(t *testing.T, kind snapshot.Kind) *snapshot.Result {
	t.Helper()
	res, err := f.builder.Generate(context.Background(), kind)
	require.NoError(t, err)
	return res
}

func (f *fixture) chain(t *testing.T, n int) []*snapshot.Result {
	t.Helper()
	out := make([]*snapshot.Result, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.generate(t, snapshot.KindDaily))
		f.clock.Advance(24 * time.Hour)
	}
	return out
}

func (f *fixture) rotate(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	r, err := f.keys.CreateRequest(ctx, &key.CreateRequest{Action: key.ActionRotate, InitiatorID: "alice"})
	require.NoError(t, err)
	_, err = f.keys.Approve(ctx, r.ID, "bob")
	require.NoError(t, err)
	_, err = f.keys.Execute(ctx, r.ID, "alice")
	require.NoError(t, err)
}

func TestLastPeriod(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		from, to time.Time
	}{
		{"daily", "0 0 * * *", time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)},
		{"weekly", "0 0 * * 1", time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)},
		{"hourly", "0 * * * *", time.Date(2025, 1, 10, 11, 0, 0, 0, time.UTC), time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := snapshot.LastPeriod(tt.spec, test.ReferenceTime)
			require.NoError(t, err)
			assert.Equal(t, tt.from, p.From)
			assert.Equal(t, tt.to, p.To)
		})
	}

	_, err := snapshot.LastPeriod("not a schedule", test.ReferenceTime)
	assert.ErrorIs(t, err, snapshot.ErrInvalidSchedule)
}

func TestGenerateGenesisAndIdempotence(t *testing.T) {
	f := newFixture(t)

	first := f.generate(t, snapshot.KindDaily)
	assert.True(t, first.Created)
	s := first.Signed.Snapshot
	assert.Nil(t, s.PreviousSnapshotHash)
	assert.Equal(t, snapshot.ID(snapshot.KindDaily, s.Period.From), s.SnapshotID)
	assert.Equal(t, 0, s.Keys.ArchivedCount)
	assert.NotEmpty(t, s.Keys.Active)
	assert.Equal(t, int64(7), s.Operational["inspection_cards"])
	assert.Equal(t, "1", s.Policy.Version)

	h, err := snapshot.Hash(&s)
	require.NoError(t, err)
	assert.Equal(t, h, s.SnapshotHash)

	f.clock.Advance(time.Hour)
	again := f.generate(t, snapshot.KindDaily)
	assert.False(t, again.Created)
	assert.Equal(t, first.Key, again.Key)
}

func TestGenerateLinksToPrevious(t *testing.T) {
	f := newFixture(t)
	daily := f.generate(t, snapshot.KindDaily)
	weekly := f.generate(t, snapshot.KindWeekly)

	require.NotNil(t, weekly.Signed.Snapshot.PreviousSnapshotHash)
	assert.Equal(t, daily.Signed.Snapshot.SnapshotHash, *weekly.Signed.Snapshot.PreviousSnapshotHash)

	f.clock.Advance(24 * time.Hour)
	next := f.generate(t, snapshot.KindDaily)
	require.NotNil(t, next.Signed.Snapshot.PreviousSnapshotHash)
	assert.Equal(t, weekly.Signed.Snapshot.SnapshotHash, *next.Signed.Snapshot.PreviousSnapshotHash)
}

func TestGenerateCountsLifecycleEvents(t *testing.T) {
	f := newFixture(t)
	f.rotate(t)
	f.clock.Advance(24 * time.Hour)

	res := f.generate(t, snapshot.KindDaily)
	ev := res.Signed.Snapshot.Events
	assert.Equal(t, 1, ev.Rotations)
	assert.Equal(t, 0, ev.Revocations)
	assert.Equal(t, 1, ev.ApprovalRequests)
	assert.Equal(t, 1, res.Signed.Snapshot.Keys.ArchivedCount)
}

func TestVerifyIntactChain(t *testing.T) {
	f := newFixture(t)
	f.chain(t, 4)

	report, err := f.verifier.Verify(context.Background(), snapshot.ModeAll)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report.Findings)
	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 4, report.Valid)

	report, err = f.verifier.Verify(context.Background(), snapshot.ModeLatest)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.True(t, report.OK())
}

func TestVerifyFlagsOnlyTamperedSnapshot(t *testing.T) {
	f := newFixture(t)
	chain := f.chain(t, 4)

	raw, err := f.store.Get(context.Background(), chain[1].Key)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	var body map[string]any
	require.NoError(t, json.Unmarshal(doc["snapshot"], &body))
	body["events"] = map[string]int{"rotations": 5, "revocations": 0, "approval_requests": 5}
	doc["snapshot"], err = json.Marshal(body)
	require.NoError(t, err)
	raw, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), chain[1].Key, raw))

	report, err := f.verifier.Verify(context.Background(), snapshot.ModeAll)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Valid)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, snapshot.FindingHashMismatch, report.Findings[0].Code)
	assert.Equal(t, chain[1].Key, report.Findings[0].Key)
}

func TestVerifyDetectsRemovedSnapshot(t *testing.T) {
	f := newFixture(t)
	chain := f.chain(t, 3)
	require.NoError(t, f.store.Delete(context.Background(), chain[1].Key))

	report, err := f.verifier.Verify(context.Background(), snapshot.ModeAll)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, snapshot.FindingChainBroken, report.Findings[0].Code)
	assert.Equal(t, chain[2].Key, report.Findings[0].Key)
}

func (f *fixture) revoke(t *testing.T, keyID string) {
	t.Helper()
	ctx := context.Background()
	r, err := f.keys.CreateRequest(ctx, &key.CreateRequest{Action: key.ActionRevoke, TargetKeyID: keyID, Reason: "compromised", InitiatorID: "alice"})
	require.NoError(t, err)
	_, err = f.keys.Approve(ctx, r.ID, "bob")
	require.NoError(t, err)
	_, err = f.keys.Execute(ctx, r.ID, "alice")
	require.NoError(t, err)
}

func TestVerifyAfterRotationAndRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.generate(t, snapshot.KindDaily)
	oldKey := first.Signed.KeyID

	f.clock.Advance(24 * time.Hour)
	f.rotate(t)
	second := f.generate(t, snapshot.KindDaily)
	require.NotEqual(t, oldKey, second.Signed.KeyID)

	report, err := f.verifier.Verify(ctx, snapshot.ModeAll)
	require.NoError(t, err)
	assert.True(t, report.OK(), "archived key must still verify: %+v", report.Findings)

	f.revoke(t, oldKey)

	report, err = f.verifier.Verify(ctx, snapshot.ModeAll)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Valid)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, snapshot.FindingKeyRevoked, report.Findings[0].Code)
	assert.Equal(t, first.Key, report.Findings[0].Key)
}

func TestVerifyRejectsBackdatedSnapshotFromRevokedKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.generate(t, snapshot.KindDaily)
	leaked, err := key.NewBlobStore(f.store).GetKey(ctx, first.Signed.KeyID)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	f.rotate(t)
	f.revoke(t, leaked.KeyID)
	f.clock.Advance(24 * time.Hour)

	forged := first.Signed.Snapshot
	forged.SnapshotID = "forged"
	forged.GeneratedAt = f.clock.Now().UTC()
	prev := first.Signed.Snapshot.SnapshotHash
	forged.PreviousSnapshotHash = &prev
	forged.SnapshotHash, err = snapshot.Hash(&forged)
	require.NoError(t, err)

	backdated := first.Signed.SignedAt
	sig := ed25519.Sign(ed25519.PrivateKey(leaked.PrivateKey),
		[]byte(sign.BoundDigest(forged.SnapshotHash, leaked.KeyID, backdated)))
	raw, err := json.Marshal(&snapshot.Signed{
		Snapshot:  forged,
		Signature: base64.StdEncoding.EncodeToString(sig),
		KeyID:     leaked.KeyID,
		SignedAt:  backdated,
	})
	require.NoError(t, err)
	forgedKey := storage.SnapshotKey(f.clock.Now(), forged.SnapshotID)
	require.NoError(t, f.store.Put(ctx, forgedKey, raw))

	report, err := f.verifier.Verify(ctx, snapshot.ModeLatest)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, forgedKey, report.Findings[0].Key)
	assert.Equal(t, snapshot.FindingKeyRevoked, report.Findings[0].Code)
}

func TestVerifyDetectsChangedSigningTime(t *testing.T) {
	f := newFixture(t)
	chain := f.chain(t, 3)

	raw, err := f.store.Get(context.Background(), chain[1].Key)
	require.NoError(t, err)
	var signed snapshot.Signed
	require.NoError(t, json.Unmarshal(raw, &signed))
	signed.SignedAt = signed.SignedAt.Add(-365 * 24 * time.Hour)
	raw, err = json.Marshal(&signed)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), chain[1].Key, raw))

	report, err := f.verifier.Verify(context.Background(), snapshot.ModeAll)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Valid)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, chain[1].Key, report.Findings[0].Key)
	assert.Equal(t, snapshot.FindingSignatureInvalid, report.Findings[0].Code)
}

func TestVerifyReportsUnreadableAndBlocksGeneration(t *testing.T) {
	f := newFixture(t)
	f.chain(t, 2)
	require.NoError(t, f.store.Put(context.Background(), "snapshots/99999999T000000.000000000Z_broken.json", []byte("{")))

	report, err := f.verifier.Verify(context.Background(), snapshot.ModeAll)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 2, report.Valid)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, snapshot.FindingUnreadable, report.Findings[0].Code)

	_, err = f.builder.Generate(context.Background(), snapshot.KindDaily)
	assert.ErrorIs(t, err, snapshot.ErrLatestUnreadable)
}

func TestVerifyRejectsUnknownMode(t *testing.T) {
	f := newFixture(t)
	_, err := f.verifier.Verify(context.Background(), "some")
	assert.ErrorIs(t, err, snapshot.ErrInvalidMode)

	_, err = f.builder.Generate(context.Background(), snapshot.Kind("hourly"))
	assert.ErrorIs(t, err, snapshot.ErrInvalidKind)
}
