package rollup

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/anchor"
	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/kashguard/go-evidence/internal/evidence/ledger"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	rollupVersion     = 1
	anchorCallTimeout = 30 * time.Second
)

var (
	ErrEntryCapExceeded     = errors.New("rollup entry cap exceeded")
	ErrInvalidAnchorMode    = errors.New("invalid anchor mode")
	ErrAnchorClientRequired = errors.New("anchor mode requires an anchor service URL")
	ErrEntryNotInRollup     = errors.New("entry is not part of the rollup")
	ErrPartialOverwrite     = errors.New("refusing to replace an existing rollup with one that skipped entries")
)

// Builder computes and persists daily rollups.
type Builder struct {
	store     storage.Store
	cfg       config.Rollup
	clock     time2.Clock
	submitter anchor.Submitter
}

// NewBuilder returns a builder. submitter may be nil when anchoring calls are not used.
func NewBuilder(store storage.Store, cfg config.Rollup, clock time2.Clock, submitter anchor.Submitter) *Builder {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 5000
	}
	if cfg.AnchorMode == "" {
		cfg.AnchorMode = AnchorModeNone
	}
	return &Builder{store: store, cfg: cfg, clock: clock, submitter: submitter}
}

func validAnchorMode(m string) bool {
	switch m {
	case AnchorModeNone, AnchorModeRequest, AnchorModeCall, AnchorModeBoth:
		return true
	default:
		return false
	}
}

// Build rolls up one UTC day. A day with no entries is reported as Empty and
// nothing is written.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*Result, error) {
	mode := b.cfg.AnchorMode
	if opts.AnchorMode != "" {
		mode = opts.AnchorMode
	}
	if !validAnchorMode(mode) {
		return nil, errors.Wrapf(ErrInvalidAnchorMode, "%q", mode)
	}
	if (mode == AnchorModeCall || mode == AnchorModeBoth) && b.submitter == nil {
		return nil, ErrAnchorClientRequired
	}

	day := opts.Day
	if day.IsZero() {
		day = b.clock.Now().UTC().AddDate(0, 0, -1)
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	date := day.Format("2006-01-02")

	res := &Result{Date: date, DryRun: opts.DryRun}

	keys, err := b.collectKeys(ctx, day)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		res.Empty = true
		log.Info().Str("date", date).Msg("No ledger entries for day, nothing to roll up")
		return res, nil
	}

	manifest := &Manifest{Date: date, Entries: make([]ManifestEntry, 0, len(keys))}
	counts := make(map[string]int, len(storage.LedgerNamespaces))
	for _, ns := range storage.LedgerNamespaces {
		counts[ns] = 0
	}

	for _, k := range keys {
		me, err := b.readLeaf(ctx, k)
		if err != nil {
			log.Warn().Err(err).Str("key", k.key).Msg("Skipping unreadable ledger entry in rollup")
			manifest.SkippedKeys = append(manifest.SkippedKeys, k.key)
			continue
		}
		manifest.Entries = append(manifest.Entries, *me)
		counts[k.namespace]++
	}
	res.SkippedKeys = manifest.SkippedKeys

	if len(manifest.Entries) == 0 {
		return nil, errors.Errorf("no readable ledger entries for %s (%d skipped)", date, len(manifest.SkippedKeys))
	}
	if len(manifest.SkippedKeys) > 0 {
		if err := b.ensureNoRollup(ctx, day); err != nil {
			return nil, err
		}
	}

	leaves := make([]string, len(manifest.Entries))
	for i, e := range manifest.Entries {
		leaves[i] = e.Leaf
	}
	root, err := Root(leaves)
	if err != nil {
		return nil, err
	}

	manifestBody, err := canonical.Marshal(manifest)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode rollup manifest")
	}

	r := &Rollup{
		Version:        rollupVersion,
		Date:           date,
		PeriodStart:    day,
		PeriodEnd:      day.AddDate(0, 0, 1),
		Algorithm:      Algorithm,
		MerkleRoot:     root,
		LeafCount:      len(leaves),
		Namespaces:     counts,
		ManifestSHA256: canonical.SHA256Hex(manifestBody),
		SkippedCount:   len(manifest.SkippedKeys),
	}
	rollupBody, err := canonical.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode rollup")
	}

	res.Rollup = r
	res.RollupKey, res.ManifestKey = storage.RollupKeys(day)

	if opts.DryRun {
		return res, nil
	}

	if err := b.store.Put(ctx, res.ManifestKey, manifestBody); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", res.ManifestKey)
	}
	if err := b.store.Put(ctx, res.RollupKey, rollupBody); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", res.RollupKey)
	}
	for ns, n := range counts {
		metrics.RollupEntries.WithLabelValues(ns).Set(float64(n))
	}

	log.Info().Str("date", date).Str("merkle_root", root).Int("leaf_count", r.LeafCount).Msg("Rollup written")

	b.anchor(ctx, mode, res)

	return res, nil
}

// ensureNoRollup fails unless the day has no rollup yet. A read error other than
// not-found also fails, since the existing state cannot be confirmed.
func (b *Builder) ensureNoRollup(ctx context.Context, day time.Time) error {
	rollupKey, _ := storage.RollupKeys(day)
	_, err := b.store.Get(ctx, rollupKey)
	switch {
	case err == nil:
		return errors.Wrapf(ErrPartialOverwrite, "%s", rollupKey)
	case storage.IsNotFound(err):
		return nil
	default:
		return errors.Wrapf(err, "failed to check for existing rollup %s", rollupKey)
	}
}

// anchor never fails the build. Confirmation is observed later by the tracker.
func (b *Builder) anchor(ctx context.Context, mode string, res *Result) {
	r := res.Rollup

	if mode == AnchorModeRequest || mode == AnchorModeBoth {
		req := &AnchorRequest{
			Date:           r.Date,
			MerkleRoot:     r.MerkleRoot,
			PeriodStart:    r.PeriodStart,
			PeriodEnd:      r.PeriodEnd,
			RollupKey:      res.RollupKey,
			ManifestSHA256: r.ManifestSHA256,
			Algorithm:      r.Algorithm,
		}
		key := storage.AnchorRequestKey(r.PeriodStart)
		body, err := canonical.Marshal(req)
		if err == nil {
			err = b.store.Put(ctx, key, body)
		}
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to write anchor request")
			res.AnchorError = err.Error()
		} else {
			res.AnchorRequestKey = key
		}
	}

	if mode == AnchorModeCall || mode == AnchorModeBoth {
		callCtx, cancel := context.WithTimeout(ctx, anchorCallTimeout)
		defer cancel()

		out, err := b.submitter.Submit(callCtx, &anchor.SubmitRequest{
			MerkleRoot:  r.MerkleRoot,
			PeriodStart: r.PeriodStart,
			PeriodEnd:   r.PeriodEnd,
			RollupKey:   res.RollupKey,
		})
		if err != nil {
			log.Warn().Err(err).Str("date", r.Date).Msg("Anchor submission failed")
			res.AnchorError = err.Error()
			return
		}
		res.AnchorID = out.AnchorID
	}
}

type dayKey struct {
	namespace string
	key       string
}

// collectKeys lists every namespace for the day and enforces the cap before
// any entry is read.
func (b *Builder) collectKeys(ctx context.Context, day time.Time) ([]dayKey, error) {
	out := make([]dayKey, 0)
	for _, ns := range storage.LedgerNamespaces {
		keys, err := ledger.ListDay(ctx, b.store, ns, day)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list %s", storage.DayPrefix(ns, day))
		}
		for _, k := range keys {
			out = append(out, dayKey{namespace: ns, key: k})
		}
		if len(out) > b.cfg.MaxEntries {
			return nil, errors.Wrapf(ErrEntryCapExceeded, "more than %d entries on %s", b.cfg.MaxEntries, day.Format("2006-01-02"))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })

	return out, nil
}

type leafFields struct {
	Fingerprint string `json:"fingerprint_sha256"`
	ChangeHash  string `json:"change_hash"`
	Signature   *struct {
		KeyID string `json:"key_id"`
	} `json:"signature"`
}

// readLeaf picks the leaf value of one entry: its fingerprint, else its
// change_hash, else the SHA-256 of its canonical encoding.
func (b *Builder) readLeaf(ctx context.Context, k dayKey) (*ManifestEntry, error) {
	raw, err := b.store.Get(ctx, k.key)
	if err != nil {
		return nil, err
	}

	var f leafFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "invalid entry JSON")
	}

	me := &ManifestEntry{Key: k.key, Namespace: k.namespace}
	if f.Signature != nil {
		me.Signer = f.Signature.KeyID
	}

	switch {
	case canonical.NormalizeHash(f.Fingerprint) != "":
		me.Leaf, me.LeafSource = canonical.NormalizeHash(f.Fingerprint), LeafFromFingerprint
	case canonical.NormalizeHash(f.ChangeHash) != "":
		me.Leaf, me.LeafSource = canonical.NormalizeHash(f.ChangeHash), LeafFromChangeHash
	default:
		c, err := canonical.Canonicalize(raw)
		if err != nil {
			return nil, err
		}
		me.Leaf, me.LeafSource = canonical.SHA256Hex(c), LeafFromContent
	}

	return me, nil
}

// Load reads the stored rollup and manifest of one day.
func Load(ctx context.Context, store storage.Store, day time.Time) (*Rollup, *Manifest, error) {
	rk, mk := storage.RollupKeys(day)

	var r Rollup
	raw, err := store.Get(ctx, rk)
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to decode %s", rk)
	}

	var m Manifest
	raw, err = store.Get(ctx, mk)
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to decode %s", mk)
	}

	return &r, &m, nil
}

// Prove returns the inclusion proof of entryKey in the stored rollup of day.
func Prove(ctx context.Context, store storage.Store, day time.Time, entryKey string) (*Proof, error) {
	r, m, err := Load(ctx, store, day)
	if err != nil {
		return nil, err
	}

	leaves := make([]string, len(m.Entries))
	index := -1
	for i, e := range m.Entries {
		leaves[i] = e.Leaf
		if e.Key == entryKey {
			index = i
		}
	}
	if index < 0 {
		return nil, errors.Wrapf(ErrEntryNotInRollup, "%s", entryKey)
	}

	p, err := BuildProof(leaves, index)
	if err != nil {
		return nil, err
	}
	if p.Root != r.MerkleRoot {
		return nil, errors.Errorf("manifest of %s does not reproduce the stored root", r.Date)
	}

	return p, nil
}
