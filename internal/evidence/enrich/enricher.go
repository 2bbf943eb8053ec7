package enrich

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/kashguard/go-evidence/internal/evidence/ledger"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxRangeDays = 366

var ErrInvalidRange = errors.New("invalid date range")

// Skip reasons reported per entry.
const (
	SkipAlreadyEnriched = "already_enriched"
	SkipNoPack          = "no_pack"
	SkipPackMissing     = "pack_missing"
	SkipPackMismatch    = "pack_hash_mismatch"
	SkipNoIssuesFile    = "no_issues_file"
	SkipInvalidPack     = "invalid_pack"
	SkipInvalidEntry    = "invalid_entry"
)

type Options struct {
	From  time.Time
	To    time.Time
	Force bool
	// Namespaces defaults to every ledger namespace.
	Namespaces []string
}

type Result struct {
	Scanned  int            `json:"scanned"`
	Enriched int            `json:"enriched"`
	Skipped  map[string]int `json:"skipped"`
	Failed   int            `json:"failed"`
	Keys     []string       `json:"enriched_keys"`
}

// Enricher copies ledger entries into ledger-enriched with an anchoring summary
// taken from their evidence pack. Originals are never modified.
type Enricher struct {
	ledger storage.Store
	packs  storage.Store
	cfg    config.Ledger
	clock  time2.Clock
}

// NewEnricher reads entries from ledgerStore and archives from packsStore; both
// may be the same store.
func NewEnricher(ledgerStore storage.Store, packsStore storage.Store, cfg config.Ledger, clock time2.Clock) *Enricher {
	return &Enricher{ledger: ledgerStore, packs: packsStore, cfg: cfg, clock: clock}
}

func (e *Enricher) Run(ctx context.Context, opts Options) (*Result, error) {
	from, to, err := e.normalizeRange(opts)
	if err != nil {
		return nil, err
	}

	namespaces := opts.Namespaces
	if len(namespaces) == 0 {
		namespaces = storage.LedgerNamespaces
	}
	for _, ns := range namespaces {
		if !storage.IsLedgerNamespace(ns) {
			return nil, errors.Wrapf(ledger.ErrUnknownNamespace, "%q", ns)
		}
	}

	res := &Result{Skipped: map[string]int{}, Keys: make([]string, 0)}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, ns := range namespaces {
			keys, err := ledger.ListDay(ctx, e.ledger, ns, day)
			if err != nil {
				return res, errors.Wrapf(err, "failed to list %s", storage.DayPrefix(ns, day))
			}
			for _, key := range keys {
				res.Scanned++
				outcome, err := e.enrichOne(ctx, key, opts.Force)
				switch {
				case err != nil:
					res.Failed++
					metrics.EnrichedEntries.WithLabelValues("failed").Inc()
					log.Warn().Err(err).Str("key", key).Msg("Failed to enrich ledger entry")
				case outcome == "":
					res.Enriched++
					res.Keys = append(res.Keys, storage.EnrichedKey(key))
					metrics.EnrichedEntries.WithLabelValues("enriched").Inc()
				default:
					res.Skipped[outcome]++
					metrics.EnrichedEntries.WithLabelValues("skipped").Inc()
					log.Debug().Str("key", key).Str("reason", outcome).Msg("Skipped ledger entry")
				}
			}
		}
	}

	return res, nil
}

func (e *Enricher) normalizeRange(opts Options) (time.Time, time.Time, error) {
	truncate := func(t time.Time) time.Time {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}

	to := opts.To
	if to.IsZero() {
		to = e.clock.Now()
	}
	from := opts.From
	if from.IsZero() {
		from = to
	}
	from, to = truncate(from), truncate(to)

	if from.After(to) {
		return from, to, errors.Wrap(ErrInvalidRange, "from is after to")
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return from, to, errors.Wrapf(ErrInvalidRange, "range longer than %d days", maxRangeDays)
	}

	return from, to, nil
}

// enrichOne returns a skip reason, or "" when the enriched copy was written.
func (e *Enricher) enrichOne(ctx context.Context, key string, force bool) (string, error) {
	target := storage.EnrichedKey(key)

	if !force {
		if _, err := e.ledger.Get(ctx, target); err == nil {
			return SkipAlreadyEnriched, nil
		} else if !storage.IsNotFound(err) {
			return "", err
		}
	}

	raw, err := e.ledger.Get(ctx, key)
	if err != nil {
		return "", err
	}

	var entry map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entry); err != nil {
		return SkipInvalidEntry, nil
	}

	var pack struct {
		SHA256 string `json:"sha256"`
	}
	if p, ok := entry["pack"]; !ok || json.Unmarshal(p, &pack) != nil || canonical.NormalizeHash(pack.SHA256) == "" {
		return SkipNoPack, nil
	}
	sha := canonical.NormalizeHash(pack.SHA256)

	archive, err := e.packs.Get(ctx, storage.PackKey(e.cfg.PacksNamespace, sha))
	if err != nil {
		if storage.IsNotFound(err) {
			return SkipPackMissing, nil
		}
		return "", err
	}
	if canonical.SHA256Hex(archive) != sha {
		return SkipPackMismatch, nil
	}

	issues, err := ExtractIssues(archive)
	if err != nil {
		if errors.Is(err, ErrNoIssuesFile) {
			return SkipNoIssuesFile, nil
		}
		log.Debug().Err(err).Str("key", key).Msg("Unreadable evidence pack")
		return SkipInvalidPack, nil
	}

	summary, err := json.Marshal(Summarize(sha, issues))
	if err != nil {
		return "", errors.Wrap(err, "failed to encode anchoring summary")
	}
	entry["anchoring"] = summary

	body, err := canonical.Marshal(entry)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode enriched entry")
	}

	if err := e.ledger.Put(ctx, target, body); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", target)
	}

	return "", nil
}
