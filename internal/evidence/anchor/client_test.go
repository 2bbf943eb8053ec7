package anchor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kashguard/go-evidence/internal/evidence/anchor"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerSubmitAndRefresh(t *testing.T) {
	ctx := context.Background()
	status := "pending"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/anchors":
			var in anchor.SubmitRequest
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.MerkleRoot == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"anchor_id": "anc-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/anchors/anc-1":
			_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "tx_hash": "0xABC"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := anchor.NewClient(srv.URL, anchor.WithRetries(0, time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	store := test.NewMemoryStore()
	blobs := anchor.NewBlobStore(store)
	tracker := anchor.NewTracker(client, blobs, test.NewClock(t))

	res, err := tracker.Submit(ctx, &anchor.SubmitRequest{MerkleRoot: "root", PeriodStart: day(9), PeriodEnd: day(10)})
	require.NoError(t, err)
	assert.Equal(t, "anc-1", res.AnchorID)

	a, err := blobs.GetAnchor(ctx, storage.AnchorKey("anc-1"))
	require.NoError(t, err)
	assert.Equal(t, anchor.StatusPending, a.Status)

	rr, err := tracker.Refresh(ctx, day(1))
	require.NoError(t, err)
	assert.Equal(t, 1, rr.Checked)
	assert.Equal(t, 0, rr.Confirmed)

	status = "confirmed"
	rr, err = tracker.Refresh(ctx, day(1))
	require.NoError(t, err)
	assert.Equal(t, 1, rr.Confirmed)

	a, err = blobs.GetAnchor(ctx, storage.AnchorKey("anc-1"))
	require.NoError(t, err)
	assert.Equal(t, anchor.StatusConfirmed, a.Status)
	require.NotNil(t, a.TxHash)
	assert.Equal(t, "0xABC", *a.TxHash)
}

func TestClientReportsServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := anchor.NewClient(srv.URL, anchor.WithRetries(0, time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), &anchor.SubmitRequest{MerkleRoot: "r"})
	assert.ErrorIs(t, err, anchor.ErrAnchorService)
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	_, err := anchor.NewClient("not a url")
	assert.Error(t, err)
}
