//go:build wireinject

package api

import (
	"testing"

	"github.com/google/wire"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/ledger"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/metrics"
)

// INJECTORS - https://github.com/google/wire/blob/main/docs/guide.md#injectors

// serviceSet groups the default set of providers that are required for initing a server
var serviceSet = wire.NewSet(
	newServerWithComponents,
	metrics.New,
	NewClock,
	ledgerServiceSet,
	keyServiceSet,
	NewDetector,
)

var ledgerServiceSet = wire.NewSet(
	NewDeadLetterQueue,
	NewLedgerWriter,
	ledger.NewRecorder,
)

var keyServiceSet = wire.NewSet(
	NewPolicyEngine,
	NewAuditLogger,
	NewKeyService,
	NewSignService,
)

// InitNewServer returns a new Server instance.
func InitNewServer(
	_ config.Server,
) (*Server, error) {
	wire.Build(serviceSet, NewStore, NoTest)
	return new(Server), nil
}

// InitNewServerWithStore returns a new Server instance with the given blob store.
// All the other components are initialized via go wire according to the configuration.
func InitNewServerWithStore(
	_ config.Server,
	_ storage.Store,
	t ...*testing.T,
) (*Server, error) {
	wire.Build(serviceSet)
	return new(Server), nil
}
