package storage

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Probe performs a put/get/delete round-trip and fails unless the bytes read
// back are identical to the bytes written.
func Probe(ctx context.Context, s Store) error {
	key := PrefixHealth + "/probe-" + uuid.New().String() + ".json"
	payload := []byte(`{"probe":"` + time.Now().UTC().Format(time.RFC3339Nano) + `"}`)

	if err := s.Put(ctx, key, payload); err != nil {
		return errors.Wrap(err, "probe put failed")
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		return errors.Wrap(err, "probe get failed")
	}

	// Cleanup is best effort; a leftover probe object is harmless.
	_ = s.Delete(ctx, key)

	if !bytes.Equal(got, payload) {
		return ErrProbeMismatch
	}

	return nil
}
