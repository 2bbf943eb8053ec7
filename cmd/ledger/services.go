package main

import (
	"fmt"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/audit"
	"github.com/kashguard/go-evidence/internal/evidence/deadletter"
	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/evidence/ledger"
	"github.com/kashguard/go-evidence/internal/evidence/policy"
	"github.com/kashguard/go-evidence/internal/evidence/sign"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
)

// services is the ledger and key stack shared by the one-shot commands.
// It is built from the same providers the API server is wired with.
type services struct {
	queue    *deadletter.Queue
	recorder *ledger.Recorder
	policy   policy.Engine
	audit    audit.Logger
	keys     key.Service
	signer   sign.Service
}

func newServices(cfg config.Server, store storage.Store) (*services, error) {
	queue, err := api.NewDeadLetterQueue(cfg, clock)
	if err != nil {
		return nil, fmt.Errorf("unable to open dead-letter queue: %w", err)
	}
	recorder := ledger.NewRecorder(api.NewLedgerWriter(cfg, store, clock), queue)

	engine, err := api.NewPolicyEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to load key lifecycle policy: %w", err)
	}

	auditLogger := api.NewAuditLogger(recorder, clock)
	keys, err := api.NewKeyService(cfg, store, engine, auditLogger, clock)
	if err != nil {
		return nil, err
	}
	signer, err := api.NewSignService(keys, clock)
	if err != nil {
		return nil, err
	}

	return &services{queue: queue, recorder: recorder, policy: engine, audit: auditLogger, keys: keys, signer: signer}, nil
}
