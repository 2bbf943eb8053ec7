package key

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrRevocationIrreversible = errors.New("revoked keys cannot change state")

// Store persists keys, the active pointer and lifecycle requests.
type Store interface {
	GetKey(ctx context.Context, keyID string) (*SigningKey, error)
	PutKey(ctx context.Context, k *SigningKey) error
	ListKeys(ctx context.Context) ([]*SigningKey, error)
	GetActivePointer(ctx context.Context) (*ActivePointer, error)
	PutActivePointer(ctx context.Context, p *ActivePointer) error
	GetRequest(ctx context.Context, id string) (*LifecycleRequest, error)
	PutRequest(ctx context.Context, r *LifecycleRequest) error
	ListRequests(ctx context.Context) ([]*LifecycleRequest, error)
}

type blobStore struct {
	store storage.Store
}

// NewBlobStore keeps key material under keys/, the pointer at keys/active.json
// and requests under keys/requests/.
//
//nolint:ireturn
func NewBlobStore(s storage.Store) Store {
	return &blobStore{store: s}
}

func (b *blobStore) getJSON(ctx context.Context, key string, v any) error {
	raw, err := b.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", key)
	}
	return nil
}

func (b *blobStore) putJSON(ctx context.Context, key string, v any) error {
	body, err := canonical.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}
	return b.store.Put(ctx, key, body)
}

func (b *blobStore) GetKey(ctx context.Context, keyID string) (*SigningKey, error) {
	var k SigningKey
	if err := b.getJSON(ctx, storage.KeyMaterialKey(keyID), &k); err != nil {
		return nil, err
	}
	return &k, nil
}

func (b *blobStore) PutKey(ctx context.Context, k *SigningKey) error {
	existing, err := b.GetKey(ctx, k.KeyID)
	switch {
	case err == nil && existing.Status == StatusRevoked && k.Status != StatusRevoked:
		return errors.Wrapf(ErrRevocationIrreversible, "key %s", k.KeyID)
	case err != nil && !storage.IsNotFound(err):
		return err
	}

	return b.putJSON(ctx, storage.KeyMaterialKey(k.KeyID), k)
}

// ListKeys returns keys ordered by creation. Unreadable objects are skipped.
func (b *blobStore) ListKeys(ctx context.Context) ([]*SigningKey, error) {
	objs, err := b.store.List(ctx, storage.PrefixKeys+"/", 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list keys")
	}

	keys := make([]*SigningKey, 0, len(objs))
	for _, o := range objs {
		rest := strings.TrimPrefix(o.Key, storage.PrefixKeys+"/")
		if strings.Contains(rest, "/") || o.Key == storage.KeyActivePointer || !strings.HasSuffix(rest, ".json") {
			continue
		}

		var k SigningKey
		if err := b.getJSON(ctx, o.Key, &k); err != nil {
			log.Warn().Err(err).Str("key", o.Key).Msg("Skipping unreadable signing key")
			continue
		}
		keys = append(keys, &k)
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if !keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].CreatedAt.Before(keys[j].CreatedAt)
		}
		return keys[i].KeyID < keys[j].KeyID
	})

	return keys, nil
}

func (b *blobStore) GetActivePointer(ctx context.Context) (*ActivePointer, error) {
	var p ActivePointer
	if err := b.getJSON(ctx, storage.KeyActivePointer, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PutActivePointer is a single object write, which is the atomic switch of the active key.
func (b *blobStore) PutActivePointer(ctx context.Context, p *ActivePointer) error {
	return b.putJSON(ctx, storage.KeyActivePointer, p)
}

func (b *blobStore) GetRequest(ctx context.Context, id string) (*LifecycleRequest, error) {
	var r LifecycleRequest
	if err := b.getJSON(ctx, storage.KeyRequestKey(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (b *blobStore) PutRequest(ctx context.Context, r *LifecycleRequest) error {
	return b.putJSON(ctx, storage.KeyRequestKey(r.ID), r)
}

// ListRequests returns requests newest first.
func (b *blobStore) ListRequests(ctx context.Context) ([]*LifecycleRequest, error) {
	objs, err := b.store.List(ctx, storage.PrefixKeyRequest+"/", 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list lifecycle requests")
	}

	out := make([]*LifecycleRequest, 0, len(objs))
	for _, o := range objs {
		var r LifecycleRequest
		if err := b.getJSON(ctx, o.Key, &r); err != nil {
			log.Warn().Err(err).Str("key", o.Key).Msg("Skipping unreadable lifecycle request")
			continue
		}
		out = append(out, &r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}
