package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "evidence"

var (
	LedgerWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_writes_total",
		Help:      "Ledger entry writes by namespace and outcome (ok, dead_lettered, failed).",
	}, []string{"namespace", "outcome"})

	RollupEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rollup_entries",
		Help:      "Entries included in the latest rollup by namespace.",
	}, []string{"namespace"})

	AnchoringIssues = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "anchoring_issues",
		Help:      "Anchoring issues found by the latest scan by type and severity.",
	}, []string{"type", "severity"})

	EnrichedEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enriched_entries_total",
		Help:      "Ledger enrichment outcomes (enriched, skipped, failed).",
	}, []string{"outcome"})

	GCDeletedObjects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gc_objects_total",
		Help:      "Pending-object GC results (deleted, failed).",
	}, []string{"outcome"})

	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Evidence verifications by result (ok, content_invalid, signature_invalid, key_not_found, key_revoked).",
	}, []string{"result"})

	KeyLifecycleTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "key_lifecycle_transitions_total",
		Help:      "Key and lifecycle request transitions by action and resulting status.",
	}, []string{"action", "status"})
)

// Service owns the registry exposed on the management endpoint.
type Service struct {
	Registry *prometheus.Registry
}

// New registers all collectors on a fresh registry.
func New() (*Service, error) {
	reg := prometheus.NewRegistry()

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		LedgerWrites,
		RollupEntries,
		AnchoringIssues,
		EnrichedEntries,
		GCDeletedObjects,
		Verifications,
		KeyLifecycleTransitions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &Service{Registry: reg}, nil
}
