package storage

import (
	"context"
	"time"
)

// timeoutStore bounds every call with a caller supplied timeout.
type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout decorates a store so that no single operation blocks longer than d.
// A non-positive d returns the store unchanged.
//
//nolint:ireturn // returning interface is intentional for abstraction
func WithTimeout(next Store, d time.Duration) Store {
	if d <= 0 {
		return next
	}

	return &timeoutStore{next: next, timeout: d}
}

func (s *timeoutStore) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.next.Put(ctx, key, data)
}

func (s *timeoutStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.next.Get(ctx, key)
}

func (s *timeoutStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.next.Delete(ctx, key)
}

func (s *timeoutStore) List(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.next.List(ctx, prefix, maxKeys)
}

func (s *timeoutStore) DeleteMany(ctx context.Context, keys []string) (map[string]error, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return DeleteMany(ctx, s.next, keys)
}

// DeleteMany deletes keys using the backend's batch delete when available,
// otherwise one by one. Individual failures are collected, never fatal.
func DeleteMany(ctx context.Context, s Store, keys []string) (map[string]error, error) {
	if bd, ok := s.(BatchDeleter); ok {
		return bd.DeleteMany(ctx, keys)
	}

	failed := make(map[string]error)
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			failed[k] = err
		}
	}

	return failed, nil
}
