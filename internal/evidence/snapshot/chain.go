package snapshot

import (
	"context"
	"encoding/json"

	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/pkg/errors"
)

// Stored is one persisted snapshot. Signed is nil when the object could not
// be read or decoded, in which case Err holds the reason.
type Stored struct {
	Key    string
	Signed *Signed
	Err    error
}

// Load returns all persisted snapshots in chain order.
func Load(ctx context.Context, store storage.Store) ([]Stored, error) {
	objects, err := store.List(ctx, storage.PrefixSnapshots+"/", 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list snapshots")
	}

	out := make([]Stored, 0, len(objects))
	for _, o := range objects {
		out = append(out, read(ctx, store, o.Key))
	}

	return out, nil
}

func read(ctx context.Context, store storage.Store, key string) Stored {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return Stored{Key: key, Err: err}
	}
	var s Signed
	if err := json.Unmarshal(raw, &s); err != nil {
		return Stored{Key: key, Err: errors.Wrap(err, "failed to decode snapshot")}
	}
	return Stored{Key: key, Signed: &s}
}
