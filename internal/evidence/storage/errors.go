package storage

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("storage: object not found")
	ErrTransient        = errors.New("storage: transient failure")
	ErrPermissionDenied = errors.New("storage: permission denied")
	ErrInvalidKey       = errors.New("storage: invalid key")
	ErrProbeMismatch    = errors.New("storage: probe round-trip mismatch")
)

func IsNotFound(err error) bool         { return errors.Is(err, ErrNotFound) }
func IsTransient(err error) bool        { return errors.Is(err, ErrTransient) }
func IsPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }

// ValidateKey rejects empty keys, absolute keys and keys escaping the namespace.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return errors.Wrapf(ErrInvalidKey, "%q", key)
		}
	}

	return nil
}
