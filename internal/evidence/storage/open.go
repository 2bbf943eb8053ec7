package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kashguard/go-evidence/internal/config"
)

// Open selects the backend named in cfg. The backend is chosen once per process.
//
//nolint:ireturn // returning interface is intentional for abstraction
func Open(ctx context.Context, cfg config.Storage) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case "localfs":
		store, err = NewLocalFSStore(filepath.Join(cfg.LocalRoot, cfg.Bucket))
	case "s3":
		store, err = NewS3Store(ctx, S3Options{
			Bucket:       cfg.Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return WithTimeout(store, cfg.OperationTimeout), nil
}
