package test

import (
	"testing"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/router"
	"github.com/kashguard/go-evidence/internal/config"
)

// WithTestServer runs closure against a fully wired server backed by a fresh
// MemoryStore and a mock clock.
func WithTestServer(t *testing.T, closure func(s *api.Server, store *MemoryStore)) {
	t.Helper()

	WithTestServerConfigurable(t, config.DefaultServiceConfigFromEnv(), closure)
}

func WithTestServerConfigurable(t *testing.T, cfg config.Server, closure func(s *api.Server, store *MemoryStore)) {
	t.Helper()

	cfg.DeadLetter.Dir = t.TempDir()
	cfg.Keys.PolicyFile = ""
	cfg.Echo.EnableLoggerMiddleware = false

	store := NewMemoryStore()
	s, err := api.InitNewServerWithStore(cfg, store, t)
	if err != nil {
		t.Fatalf("failed to init server: %v", err)
	}

	router.Init(s)

	closure(s, store)
}

// MockClock returns the server clock as a mock clock.
func MockClock(t *testing.T, s *api.Server) *time2.MockClock {
	t.Helper()

	clock, ok := s.Clock.(*time2.MockClock)
	if !ok {
		t.Fatalf("server clock is %T, not a mock clock", s.Clock)
	}

	return clock
}
