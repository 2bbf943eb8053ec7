package anchor

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Source lists anchors created at or after since.
type Source interface {
	ListAnchors(ctx context.Context, since time.Time) ([]*Anchor, error)
}

// ReceiptStore resolves on-chain receipts and the receipts manifest.
type ReceiptStore interface {
	// Receipt returns the raw receipt for a normalized transaction hash.
	Receipt(ctx context.Context, normalizedTxHash string) ([]byte, error)
	// Manifest returns normalized tx hash -> expected receipt SHA-256.
	Manifest(ctx context.Context) (map[string]string, error)
}

// BlobStore keeps anchors, receipts and the receipts manifest in the evidence store.
type BlobStore struct {
	store storage.Store
}

func NewBlobStore(store storage.Store) *BlobStore {
	return &BlobStore{store: store}
}

// ListAnchors reads every anchor object. Unreadable objects are logged and skipped.
func (b *BlobStore) ListAnchors(ctx context.Context, since time.Time) ([]*Anchor, error) {
	objs, err := b.store.List(ctx, storage.PrefixAnchors+"/", 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list anchors")
	}

	anchors := make([]*Anchor, 0, len(objs))
	for _, o := range objs {
		a, err := b.GetAnchor(ctx, o.Key)
		if err != nil {
			log.Warn().Err(err).Str("key", o.Key).Msg("Skipping unreadable anchor")
			continue
		}
		if a.CreatedAt.Before(since) {
			continue
		}
		anchors = append(anchors, a)
	}

	sort.SliceStable(anchors, func(i, j int) bool {
		if !anchors[i].PeriodStart.Equal(anchors[j].PeriodStart) {
			return anchors[i].PeriodStart.Before(anchors[j].PeriodStart)
		}
		return anchors[i].ID < anchors[j].ID
	})

	return anchors, nil
}

// GetAnchor reads one anchor by object key.
func (b *BlobStore) GetAnchor(ctx context.Context, key string) (*Anchor, error) {
	raw, err := b.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var a Anchor
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, errors.Wrapf(err, "failed to decode anchor %s", key)
	}
	if a.ID == "" {
		return nil, errors.Errorf("anchor %s has no id", key)
	}

	return &a, nil
}

// PutAnchor writes a. A terminal anchor is never overwritten with a different status.
func (b *BlobStore) PutAnchor(ctx context.Context, a *Anchor) error {
	key := storage.AnchorKey(a.ID)

	existing, err := b.GetAnchor(ctx, key)
	switch {
	case err == nil && existing.Status.Terminal() && existing.Status != a.Status:
		return errors.Wrapf(ErrTerminalAnchor, "anchor %s is %s", a.ID, existing.Status)
	case err != nil && !storage.IsNotFound(err):
		return err
	}

	body, err := canonical.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "failed to encode anchor")
	}

	return b.store.Put(ctx, key, body)
}

func (b *BlobStore) Receipt(ctx context.Context, normalizedTxHash string) ([]byte, error) {
	return b.store.Get(ctx, storage.ReceiptKey(normalizedTxHash))
}

// Manifest accepts both {"receipts": {...}} and a flat object. Keys and values
// are normalized.
func (b *BlobStore) Manifest(ctx context.Context) (map[string]string, error) {
	raw, err := b.store.Get(ctx, storage.KeyReceiptsIndex)
	if err != nil {
		return nil, err
	}

	return ParseManifest(raw)
}

func ParseManifest(raw []byte) (map[string]string, error) {
	var wrapped struct {
		Receipts map[string]string `json:"receipts"`
	}
	entries := map[string]string{}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Receipts != nil {
		entries = wrapped.Receipts
	} else if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to decode receipts manifest")
	}

	out := make(map[string]string, len(entries))
	for k, v := range entries {
		out[canonical.NormalizeHash(k)] = canonical.NormalizeHash(v)
	}

	return out, nil
}
