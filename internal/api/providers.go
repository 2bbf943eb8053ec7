package api

import (
	"context"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/anchor"
	"github.com/kashguard/go-evidence/internal/evidence/audit"
	"github.com/kashguard/go-evidence/internal/evidence/deadletter"
	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/evidence/ledger"
	"github.com/kashguard/go-evidence/internal/evidence/policy"
	"github.com/kashguard/go-evidence/internal/evidence/sign"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/rs/zerolog/log"
)

// PROVIDERS - define here only providers that for various reasons (e.g. cyclic dependency) can't live in their corresponding packages
// or for wrapping providers that only accept sub-configs to prevent the requirements for defining providers for sub-configs.
// https://github.com/google/wire/blob/main/docs/guide.md#defining-providers

func NewClock(t ...*testing.T) time2.Clock {
	var clock time2.Clock

	useMock := len(t) > 0 && t[0] != nil

	if useMock {
		clock = time2.NewMockClock(time.Now())
	} else {
		clock = time2.DefaultClock
	}

	return clock
}

func NoTest() []*testing.T {
	return nil
}

// NewStore opens the configured blob backend.
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewStore(cfg config.Server) (storage.Store, error) {
	return storage.Open(context.Background(), cfg.Storage)
}

func NewDeadLetterQueue(cfg config.Server, clock time2.Clock) (*deadletter.Queue, error) {
	return deadletter.NewQueue(cfg.DeadLetter, clock)
}

func NewLedgerWriter(cfg config.Server, store storage.Store, clock time2.Clock) *ledger.Writer {
	return ledger.NewWriter(store, cfg.Ledger, clock)
}

// NewPolicyEngine loads the policy file when one is configured and falls
// back to the allow-all default otherwise.
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewPolicyEngine(cfg config.Server) (policy.Engine, error) {
	p := policy.DefaultPolicy()
	if cfg.Keys.PolicyFile != "" {
		loaded, err := policy.LoadFile(cfg.Keys.PolicyFile)
		if err != nil {
			return nil, err
		}
		p = loaded
	} else {
		log.Warn().Msg("No key lifecycle policy file configured, using allow-all policy")
	}

	return policy.NewEngine(p)
}

// NewAuditLogger records lifecycle events into the ledger.
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewAuditLogger(recorder *ledger.Recorder, clock time2.Clock) audit.Logger {
	return audit.NewLogger(recorder, clock)
}

//nolint:ireturn // returning interface is intentional for abstraction
func NewKeyService(
	cfg config.Server,
	store storage.Store,
	policyEngine policy.Engine,
	auditLogger audit.Logger,
	clock time2.Clock,
) (key.Service, error) {
	return key.NewService(key.NewBlobStore(store), policyEngine, auditLogger, cfg.Keys, clock)
}

//nolint:ireturn // returning interface is intentional for abstraction
func NewSignService(keyService key.Service, clock time2.Clock) (sign.Service, error) {
	return sign.NewService(keyService, clock)
}

func NewDetector(cfg config.Server, store storage.Store, clock time2.Clock) (*anchor.Detector, error) {
	anchors := anchor.NewBlobStore(store)
	return anchor.NewDetector(anchors, anchors, cfg.Anchoring, clock)
}
