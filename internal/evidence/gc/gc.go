package gc

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ConfirmToken must be passed as Confirm for a destructive run when confirmation is required.
const ConfirmToken = "DELETE"

var (
	ErrInvalidOlderThan     = errors.New("older_than_hours must be greater than zero")
	ErrInvalidLimits        = errors.New("max_delete and max_bytes must be greater than zero")
	ErrInvalidPrefix        = errors.New("gc prefix must be under pending/")
	ErrConfirmationRequired = errors.New("confirmation required: pass confirm=DELETE")
)

// Truncation reasons.
const (
	TruncatedByMaxDelete = "max_delete"
	TruncatedByMaxBytes  = "max_bytes"
)

type Options struct {
	Prefix         string
	OlderThanHours float64
	MaxDelete      int
	MaxBytes       int64
	DryRun         bool
	Confirm        string
}

type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

type Result struct {
	DryRun        bool              `json:"dry_run"`
	Cutoff        time.Time         `json:"cutoff"`
	Candidates    int               `json:"candidates"`
	Selected      []Object          `json:"selected"`
	SelectedBytes int64             `json:"selected_bytes"`
	TruncatedBy   string            `json:"truncated_by,omitempty"`
	Deleted       int               `json:"deleted"`
	Failed        map[string]string `json:"failed,omitempty"`
}

// Collector deletes stale pending objects within hard caps.
type Collector struct {
	store storage.Store
	cfg   config.GC
	clock time2.Clock
}

func NewCollector(store storage.Store, cfg config.GC, clock time2.Clock) *Collector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Prefix == "" {
		cfg.Prefix = storage.PrefixPending + "/"
	}
	return &Collector{store: store, cfg: cfg, clock: clock}
}

func (c *Collector) validate(opts *Options) error {
	if opts.Prefix == "" {
		opts.Prefix = c.cfg.Prefix
	}
	if !strings.HasPrefix(opts.Prefix, storage.PrefixPending+"/") {
		return errors.Wrapf(ErrInvalidPrefix, "%q", opts.Prefix)
	}
	if opts.OlderThanHours <= 0 {
		return ErrInvalidOlderThan
	}
	if opts.MaxDelete == 0 {
		opts.MaxDelete = c.cfg.MaxDelete
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = c.cfg.MaxBytes
	}
	if opts.MaxDelete <= 0 || opts.MaxBytes <= 0 {
		return ErrInvalidLimits
	}
	if !opts.DryRun && c.cfg.RequireConfirm && opts.Confirm != ConfirmToken {
		return ErrConfirmationRequired
	}

	return nil
}

// Run selects objects older than the cutoff, oldest first, stopping at the
// first cap hit. A dry run only reports the selection.
func (c *Collector) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := c.validate(&opts); err != nil {
		return nil, err
	}

	cutoff := c.clock.Now().UTC().Add(-time.Duration(opts.OlderThanHours * float64(time.Hour)))
	res := &Result{DryRun: opts.DryRun, Cutoff: cutoff, Selected: make([]Object, 0)}

	objs, err := c.store.List(ctx, opts.Prefix, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", opts.Prefix)
	}

	candidates := make([]storage.ObjectInfo, 0, len(objs))
	for _, o := range objs {
		if o.LastModified.Before(cutoff) {
			candidates = append(candidates, o)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].LastModified.Equal(candidates[j].LastModified) {
			return candidates[i].LastModified.Before(candidates[j].LastModified)
		}
		return candidates[i].Key < candidates[j].Key
	})
	res.Candidates = len(candidates)

	for _, o := range candidates {
		if len(res.Selected) >= opts.MaxDelete {
			res.TruncatedBy = TruncatedByMaxDelete
			break
		}
		if res.SelectedBytes+o.Size > opts.MaxBytes {
			res.TruncatedBy = TruncatedByMaxBytes
			break
		}
		res.Selected = append(res.Selected, Object{Key: o.Key, Size: o.Size, LastModified: o.LastModified})
		res.SelectedBytes += o.Size
	}

	if opts.DryRun || len(res.Selected) == 0 {
		return res, nil
	}

	res.Failed = map[string]string{}
	for start := 0; start < len(res.Selected); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(res.Selected) {
			end = len(res.Selected)
		}

		keys := make([]string, 0, end-start)
		for _, o := range res.Selected[start:end] {
			keys = append(keys, o.Key)
		}

		failed, err := storage.DeleteMany(ctx, c.store, keys)
		if err != nil {
			for _, k := range keys {
				res.Failed[k] = err.Error()
			}
			log.Warn().Err(err).Int("batch_size", len(keys)).Msg("GC delete batch failed")
			continue
		}
		for k, kErr := range failed {
			res.Failed[k] = kErr.Error()
		}
		res.Deleted += len(keys) - len(failed)
	}

	metrics.GCDeletedObjects.WithLabelValues("deleted").Add(float64(res.Deleted))
	metrics.GCDeletedObjects.WithLabelValues("failed").Add(float64(len(res.Failed)))
	log.Info().Int("deleted", res.Deleted).Int("failed", len(res.Failed)).Str("prefix", opts.Prefix).Msg("GC finished")

	return res, nil
}
