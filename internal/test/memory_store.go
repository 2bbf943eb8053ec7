package test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/pkg/errors"
)

// MemoryStore is an in-memory storage.Store with per-key failure injection.
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	failures map[string]error
	putFails map[string]error
	now      func() time.Time

	Puts    []string
	Deletes []string
}

var _ storage.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
		failures: make(map[string]error),
		putFails: make(map[string]error),
		now:      time.Now,
	}
}

// FailOn makes every operation on key (or on keys sharing the prefix when key
// ends with "*") return err.
func (m *MemoryStore) FailOn(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = err
}

// FailPutOn makes only writes to key fail; reads keep working.
func (m *MemoryStore) FailPutOn(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putFails[key] = err
}

// ClearFailures removes all injected failures.
func (m *MemoryStore) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]error)
	m.putFails = make(map[string]error)
}

// SetModified overrides the LastModified reported by List.
func (m *MemoryStore) SetModified(key string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modified[key] = t
}

// Keys returns all stored keys in order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Raw returns the stored bytes without failure injection.
func (m *MemoryStore) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

func (m *MemoryStore) failure(key string) error {
	if err, ok := m.failures[key]; ok {
		return err
	}
	for k, err := range m.failures {
		if strings.HasSuffix(k, "*") && strings.HasPrefix(key, strings.TrimSuffix(k, "*")) {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(key); err != nil {
		return err
	}
	if err, ok := m.putFails[key]; ok {
		return err
	}
	m.objects[key] = append([]byte(nil), data...)
	m.modified[key] = m.now()
	m.Puts = append(m.Puts, key)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(key); err != nil {
		return nil, err
	}
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.Wrap(storage.ErrNotFound, key)
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(key); err != nil {
		return err
	}
	if _, ok := m.objects[key]; !ok {
		return errors.Wrap(storage.ErrNotFound, key)
	}
	delete(m.objects, key)
	delete(m.modified, key)
	m.Deletes = append(m.Deletes, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string, maxKeys int) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(prefix); err != nil {
		return nil, err
	}
	out := make([]storage.ObjectInfo, 0)
	for k, b := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(b)), LastModified: m.modified[k]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if maxKeys > 0 && len(out) > maxKeys {
		out = out[:maxKeys]
	}
	return out, nil
}
