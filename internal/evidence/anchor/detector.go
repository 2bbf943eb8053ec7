package anchor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 365
)

var (
	ErrInvalidWindow   = errors.New("window_days must be between 1 and 365")
	ErrInvalidSeverity = errors.New("invalid severity")
	ErrTerminalAnchor  = errors.New("anchor is in a terminal state")
)

// DetectOptions narrows one scan. Zero WindowDays means the configured default.
type DetectOptions struct {
	WindowDays int
	CheckGaps  *bool
}

// Report is the result of one scan.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowDays  int            `json:"window_days"`
	Scanned     int            `json:"anchors_scanned"`
	Issues      []*Issue       `json:"issues"`
	Counts      map[string]int `json:"counts"`
}

// Detector derives issues from anchors and receipts. It holds no state between
// scans; the same input always produces the same set of fingerprints.
type Detector struct {
	source   Source
	receipts ReceiptStore
	clock    time2.Clock
	cfg      config.Anchoring

	manifestMissing Severity
	hashMismatch    Severity
}

func NewDetector(source Source, receipts ReceiptStore, cfg config.Anchoring, clock time2.Clock) (*Detector, error) {
	mm, ok := ParseSeverity(cfg.ManifestMissingSeverity)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidSeverity, "manifest missing severity %q", cfg.ManifestMissingSeverity)
	}
	hm, ok := ParseSeverity(cfg.HashMismatchSeverity)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidSeverity, "hash mismatch severity %q", cfg.HashMismatchSeverity)
	}
	if cfg.PendingTooLong <= 0 {
		cfg.PendingTooLong = 72 * time.Hour
	}
	if cfg.WindowDays == 0 {
		cfg.WindowDays = DefaultWindowDays
	}

	return &Detector{
		source:          source,
		receipts:        receipts,
		clock:           clock,
		cfg:             cfg,
		manifestMissing: mm,
		hashMismatch:    hm,
	}, nil
}

// Detect scans anchors created inside the window.
func (d *Detector) Detect(ctx context.Context, opts DetectOptions) (*Report, error) {
	window := opts.WindowDays
	if window == 0 {
		window = d.cfg.WindowDays
	}
	if window < 1 || window > MaxWindowDays {
		return nil, errors.Wrapf(ErrInvalidWindow, "got %d", window)
	}
	checkGaps := d.cfg.CheckGaps
	if opts.CheckGaps != nil {
		checkGaps = *opts.CheckGaps
	}

	now := d.clock.Now().UTC()
	anchors, err := d.source.ListAnchors(ctx, now.AddDate(0, 0, -window))
	if err != nil {
		return nil, err
	}

	var manifest map[string]string
	manifestLoaded := false

	issues := make([]*Issue, 0)
	add := func(iss *Issue, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("Failed to build anchoring issue")
			return
		}
		issues = append(issues, iss)
	}

	for _, a := range anchors {
		period := &Period{From: a.PeriodStart.UTC(), To: a.PeriodEnd.UTC()}

		switch a.Status {
		case StatusFailed:
			add(NewIssue(SeverityCritical,
				fmt.Sprintf("anchor %s failed", a.ID),
				period, a.ID, &FailedDetails{AnchorID: a.ID}))

		case StatusPending:
			age := now.Sub(a.CreatedAt)
			if age > d.cfg.PendingTooLong {
				add(NewIssue(SeverityMajor,
					fmt.Sprintf("anchor %s pending longer than %s", a.ID, d.cfg.PendingTooLong),
					period, a.ID, &PendingDetails{
						AnchorID:       a.ID,
						AgeHours:       age.Hours(),
						ThresholdHours: d.cfg.PendingTooLong.Hours(),
					}))
			}

		case StatusConfirmed:
			if !manifestLoaded {
				manifest = d.loadManifest(ctx)
				manifestLoaded = true
			}
			if iss := d.checkReceipt(ctx, a, period, manifest); iss != nil {
				issues = append(issues, iss)
			}
		}
	}

	if checkGaps {
		issues = append(issues, d.gaps(anchors)...)
	}

	issues = Dedupe(issues)
	sortIssues(issues)

	counts := make(map[string]int, issueTypeCount)
	for _, iss := range issues {
		counts[string(iss.Type)]++
	}
	publishMetrics(issues)

	return &Report{
		GeneratedAt: now,
		WindowDays:  window,
		Scanned:     len(anchors),
		Issues:      issues,
		Counts:      counts,
	}, nil
}

// loadManifest returns nil when the manifest cannot be read.
func (d *Detector) loadManifest(ctx context.Context) map[string]string {
	m, err := d.receipts.Manifest(ctx)
	if err != nil {
		if !storage.IsNotFound(err) {
			log.Warn().Err(err).Msg("Failed to load receipts manifest")
		}
		return nil
	}

	return m
}

func (d *Detector) checkReceipt(ctx context.Context, a *Anchor, period *Period, manifest map[string]string) *Issue {
	if a.TxHash == nil || canonical.NormalizeHash(*a.TxHash) == "" {
		iss, err := NewIssue(SeverityMajor,
			fmt.Sprintf("confirmed anchor %s has no transaction hash", a.ID),
			period, a.ID, &ReceiptMissingDetails{AnchorID: a.ID, Reason: ReasonNoTxHash})
		if err != nil {
			return nil
		}
		return iss
	}

	tx := canonical.NormalizeHash(*a.TxHash)
	receipt, err := d.receipts.Receipt(ctx, tx)
	if err != nil {
		if !storage.IsNotFound(err) {
			// Not a finding: the receipt may exist but the store is unreachable.
			log.Warn().Err(err).Str("anchor_id", a.ID).Msg("Skipping receipt check, receipt unreadable")
			return nil
		}
		iss, err := NewIssue(SeverityMajor,
			fmt.Sprintf("receipt missing for confirmed anchor %s", a.ID),
			period, tx, &ReceiptMissingDetails{AnchorID: a.ID, TxHash: tx, Reason: ReasonReceiptNotFound})
		if err != nil {
			return nil
		}
		return iss
	}

	actual := canonical.SHA256Hex(receipt)

	var (
		sev      Severity
		reason   string
		message  string
		expected string
	)
	switch exp, ok := manifest[tx]; {
	case manifest == nil:
		sev, reason = d.manifestMissing, ReasonManifestUnavailable
		message = fmt.Sprintf("receipts manifest unavailable for anchor %s", a.ID)
	case !ok:
		sev, reason = d.manifestMissing, ReasonManifestEntryMissing
		message = fmt.Sprintf("receipts manifest has no entry for anchor %s", a.ID)
	case exp != actual:
		sev, reason, expected = d.hashMismatch, ReasonHashMismatch, exp
		message = fmt.Sprintf("receipt hash mismatch for anchor %s", a.ID)
	default:
		return nil
	}

	iss, err := NewIssue(sev, message, period, tx, &IntegrityDetails{
		AnchorID:     a.ID,
		TxHash:       tx,
		Reason:       reason,
		ExpectedHash: expected,
		ActualHash:   actual,
	})
	if err != nil {
		return nil
	}

	return iss
}

// gaps compares consecutive anchors ordered by period start. Any end that is
// not exactly the next start, overlap included, is a gap.
func (d *Detector) gaps(anchors []*Anchor) []*Issue {
	sorted := make([]*Anchor, len(anchors))
	copy(sorted, anchors)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].PeriodStart.Equal(sorted[j].PeriodStart) {
			return sorted[i].PeriodStart.Before(sorted[j].PeriodStart)
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]*Issue, 0)
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		if prev.PeriodEnd.Equal(next.PeriodStart) {
			continue
		}

		prevPeriod := Period{From: prev.PeriodStart.UTC(), To: prev.PeriodEnd.UTC()}
		nextPeriod := Period{From: next.PeriodStart.UTC(), To: next.PeriodEnd.UTC()}
		iss, err := NewIssue(SeverityMajor,
			fmt.Sprintf("gap between %s (%s..%s) and %s (%s..%s)",
				prev.ID, prevPeriod.From.Format(time.RFC3339), prevPeriod.To.Format(time.RFC3339),
				next.ID, nextPeriod.From.Format(time.RFC3339), nextPeriod.To.Format(time.RFC3339)),
			&Period{From: prevPeriod.To, To: nextPeriod.From},
			prev.ID+".."+next.ID,
			&GapDetails{
				PreviousAnchorID: prev.ID,
				NextAnchorID:     next.ID,
				Previous:         prevPeriod,
				Next:             nextPeriod,
			})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to build gap issue")
			continue
		}
		out = append(out, iss)
	}

	return out
}

func sortIssues(issues []*Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Fingerprint < b.Fingerprint
	})
}

func publishMetrics(issues []*Issue) {
	metrics.AnchoringIssues.Reset()
	for _, iss := range issues {
		metrics.AnchoringIssues.WithLabelValues(string(iss.Type), string(iss.Severity)).Inc()
	}
}
