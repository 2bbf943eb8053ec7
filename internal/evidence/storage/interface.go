package storage

import (
	"context"
	"time"
)

// Store is a prefix-addressed object namespace.
// All backends (local filesystem, S3 compatible object storage) must implement this interface
// and keep the key layout identical, so business logic never forks per backend.
//
// Contract:
//   - Put followed by Get returns byte-identical content.
//   - Get and Delete report ErrNotFound for absent keys.
//   - List returns keys in lexicographic order, at most maxKeys of them (0 means no limit).
//   - Errors are classified onto ErrNotFound, ErrTransient or ErrPermissionDenied where possible;
//     retry policy is the caller's decision.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error)
}

// BatchDeleter is implemented by backends with a native multi-object delete.
// The returned map holds the keys that could not be deleted.
type BatchDeleter interface {
	DeleteMany(ctx context.Context, keys []string) (map[string]error, error)
}

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}
