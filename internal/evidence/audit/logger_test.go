package audit_test

import (
	"context"
	"testing"

	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/audit"
	"github.com/kashguard/go-evidence/internal/evidence/ledger"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogEventAppendsLedgerEntry(t *testing.T) {
	ctx := context.Background()
	store := test.NewMemoryStore()
	clock := test.NewClock(t)
	w := ledger.NewWriter(store, config.Ledger{}, clock)
	l := audit.NewLogger(ledger.NewRecorder(w, nil), clock)

	err := l.LogEvent(ctx, &audit.AuditEvent{
		EventType: audit.EventRequestApproved,
		UserID:    "bob",
		RequestID: "req-1",
		Operation: "approve",
		Result:    audit.ResultSuccess,
		Details:   map[string]any{"action": "ROTATE"},
	})
	require.NoError(t, err)

	keys, err := ledger.ListDay(ctx, store, storage.NamespaceLedger, test.ReferenceTime)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	e, err := ledger.Read(ctx, store, keys[0])
	require.NoError(t, err)
	assert.Equal(t, audit.EntryKind, e.Kind)
	assert.Equal(t, "bob", e.Actor)
	assert.Equal(t, "req-1", e.Subject)
	assert.Equal(t, audit.EventRequestApproved, e.Details["event_type"])
	assert.Equal(t, "ROTATE", e.Details["action"])
	assert.Equal(t, test.ReferenceTime, e.GeneratedAt)
}
