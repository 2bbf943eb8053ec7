package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// localFSStore maps keys onto files below a root directory.
// Writes go through a temp file + rename so a reader never observes a partial object.
type localFSStore struct {
	root string
}

// NewLocalFSStore creates a filesystem-backed store rooted at root (created if needed).
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewLocalFSStore(root string) (Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, classifyFSError(err, "create root")
	}

	return &localFSStore{root: root}, nil
}

func (s *localFSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(ErrTransient, "put %s: %v", key, err)
	}

	target := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return classifyFSError(err, "put "+key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return classifyFSError(err, "put "+key)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return classifyFSError(err, "put "+key)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return classifyFSError(err, "put "+key)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return classifyFSError(err, "put "+key)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return classifyFSError(err, "put "+key)
	}

	return nil
}

func (s *localFSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(ErrTransient, "get %s: %v", key, err)
	}

	b, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		return nil, classifyFSError(err, "get "+key)
	}

	return b, nil
}

func (s *localFSStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(ErrTransient, "delete %s: %v", key, err)
	}

	if err := os.Remove(s.pathFor(key)); err != nil {
		return classifyFSError(err, "delete "+key)
	}

	return nil
}

func (s *localFSStore) List(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error) {
	// Walk from the deepest directory fully named by the prefix.
	dir := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i]
	}
	if strings.Contains("/"+dir+"/", "/../") {
		return nil, errors.Wrapf(ErrInvalidKey, "prefix %q", prefix)
	}

	start := filepath.Join(s.root, filepath.FromSlash(dir))
	out := make([]ObjectInfo, 0)

	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})

		return nil
	})
	if err != nil {
		return nil, classifyFSError(err, "list "+prefix)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if maxKeys > 0 && len(out) > maxKeys {
		out = out[:maxKeys]
	}

	return out, nil
}

func (s *localFSStore) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func classifyFSError(err error, op string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errors.Wrapf(ErrNotFound, "%s: %v", op, err)
	case errors.Is(err, fs.ErrPermission):
		return errors.Wrapf(ErrPermissionDenied, "%s: %v", op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errors.Wrapf(ErrTransient, "%s: %v", op, err)
	default:
		return errors.Wrap(err, op)
	}
}
