package deadletter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	activeFileName = "queue.jsonl"
	archivePrefix  = "queue-"
	replayPrefix   = "replay-"
	archiveSuffix  = ".jsonl"
	archiveLayout  = "20060102T150405Z"
	packsDirName   = "packs"
	packSuffix     = ".zip"
)

var (
	ErrInvalidRetention = errors.New("retention days must be positive")
	ErrArchiveMissing   = errors.New("dead-lettered archive is missing")
	ErrArchiveCorrupt   = errors.New("dead-lettered archive does not match its hash")
)

// Republisher re-sends one dead-lettered entry to the primary store.
type Republisher interface {
	Republish(ctx context.Context, item *Item) error
}

// Queue is a local append-only fallback for failed ledger writes.
type Queue struct {
	dir   string
	cfg   config.DeadLetter
	clock time2.Clock
	mu    sync.Mutex
	// replayMu serializes Replay runs; mu only guards file mutations.
	replayMu sync.Mutex
}

// NewQueue opens (creating if needed) the queue directory.
func NewQueue(cfg config.DeadLetter, clock time2.Clock) (*Queue, error) {
	if cfg.Dir == "" {
		return nil, errors.New("dead-letter directory is required")
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, packsDirName), 0o750); err != nil {
		return nil, errors.Wrap(err, "failed to create dead-letter directory")
	}

	return &Queue{dir: cfg.Dir, cfg: cfg, clock: clock}, nil
}

func (q *Queue) activePath() string {
	return filepath.Join(q.dir, activeFileName)
}

func (q *Queue) packPath(sha256Hex string) string {
	return filepath.Join(q.dir, packsDirName, sha256Hex+packSuffix)
}

// Append writes one item as a single line.
func (q *Queue) Append(item *Item) error {
	line, err := q.encode(item)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return q.appendLine(line)
}

// AppendWithArchive keeps the pack bytes next to the queue, content-addressed by
// SHA-256, and appends item referencing them. The pack is durable before the line is.
func (q *Queue) AppendWithArchive(item *Item, name string, data []byte) error {
	if len(data) == 0 {
		return q.Append(item)
	}

	sum := canonical.SHA256Hex(data)
	item.Archive = &ArchiveRef{Name: name, SHA256: sum, Size: int64(len(data))}
	line, err := q.encode(item)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.writePack(sum, data); err != nil {
		return err
	}

	return q.appendLine(line)
}

// ReadArchive returns the pack bytes referenced by ref after checking their hash.
func (q *Queue) ReadArchive(ref *ArchiveRef) ([]byte, error) {
	if ref == nil || !isSHA256Hex(ref.SHA256) {
		return nil, errors.Wrap(ErrArchiveMissing, "invalid archive reference")
	}

	data, err := os.ReadFile(q.packPath(ref.SHA256))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrArchiveMissing, "%s", ref.SHA256)
		}
		return nil, errors.Wrap(err, "failed to read dead-lettered archive")
	}
	if canonical.SHA256Hex(data) != ref.SHA256 {
		return nil, errors.Wrapf(ErrArchiveCorrupt, "%s", ref.SHA256)
	}

	return data, nil
}

func (q *Queue) encode(item *Item) ([]byte, error) {
	if item.FailedAt.IsZero() {
		item.FailedAt = q.clock.Now().UTC()
	}

	line, err := json.Marshal(item)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal dead-letter item")
	}

	return line, nil
}

// appendLine requires q.mu.
func (q *Queue) appendLine(line []byte) error {
	f, err := os.OpenFile(q.activePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return errors.Wrap(err, "failed to open dead-letter queue")
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "failed to append dead-letter item")
	}

	return f.Sync()
}

// writePack requires q.mu.
func (q *Queue) writePack(sum string, data []byte) error {
	target := q.packPath(sum)
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return errors.Wrap(err, "failed to create dead-letter archive")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write dead-letter archive")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to sync dead-letter archive")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "failed to close dead-letter archive")
	}

	return errors.Wrap(os.Rename(tmp, target), "failed to store dead-letter archive")
}

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Rotate moves a non-empty active queue into a timestamped archive and leaves an empty active file.
func (q *Queue) Rotate(dryRun bool) (*RotateResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	res := &RotateResult{DryRun: dryRun}

	lines, err := countLines(q.activePath())
	if err != nil {
		return nil, err
	}
	res.Lines = lines
	if lines == 0 {
		return res, nil
	}

	archive := archivePrefix + q.clock.Now().UTC().Format(archiveLayout) + archiveSuffix
	res.Archive = archive
	res.Rotated = true

	if dryRun {
		return res, nil
	}

	target := filepath.Join(q.dir, archive)
	if _, err := os.Stat(target); err == nil {
		return nil, errors.Errorf("archive %s already exists", archive)
	}
	if err := os.Rename(q.activePath(), target); err != nil {
		return nil, errors.Wrap(err, "failed to rotate dead-letter queue")
	}
	if err := os.WriteFile(q.activePath(), nil, 0o640); err != nil {
		return nil, errors.Wrap(err, "failed to truncate dead-letter queue")
	}

	log.Info().Str("archive", archive).Int("lines", lines).Msg("Rotated dead-letter queue")

	return res, nil
}

type archiveFile struct {
	name    string
	created time.Time
	size    int64
}

func (q *Queue) archives() ([]archiveFile, error) {
	return q.listFiles(archivePrefix)
}

func (q *Queue) listFiles(prefix string) ([]archiveFile, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read dead-letter directory")
	}

	out := make([]archiveFile, 0)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), archiveSuffix)
		if i := strings.IndexByte(stamp, '-'); i >= 0 {
			stamp = stamp[:i]
		}
		created, err := time.Parse(archiveLayout, stamp)
		if err != nil {
			created = info.ModTime().UTC()
		}
		out = append(out, archiveFile{name: name, created: created, size: info.Size()})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].created.Equal(out[j].created) {
			return out[i].name < out[j].name
		}
		return out[i].created.Before(out[j].created)
	})

	return out, nil
}

// Cleanup deletes archives older than retentionDays, then the oldest remaining
// archives until the configured byte and line caps hold. Packs no longer referenced
// by any queue file are removed afterwards. Deletion errors are collected and the
// remaining archives are still processed.
func (q *Queue) Cleanup(retentionDays int, dryRun bool) (*CleanupResult, error) {
	if retentionDays <= 0 {
		return nil, ErrInvalidRetention
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	archives, err := q.archives()
	if err != nil {
		return nil, err
	}

	cutoff := q.clock.Now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	res := &CleanupResult{DryRun: dryRun, Deleted: make([]string, 0)}

	type candidate struct {
		archiveFile
		lines int
	}
	expired := make([]archiveFile, 0)
	survivors := make([]candidate, 0, len(archives))
	var totalBytes int64
	totalLines := 0
	for _, a := range archives {
		if a.created.Before(cutoff) {
			expired = append(expired, a)
			continue
		}
		lines, err := countLines(filepath.Join(q.dir, a.name))
		if err != nil {
			return nil, err
		}
		survivors = append(survivors, candidate{archiveFile: a, lines: lines})
		totalBytes += a.size
		totalLines += lines
	}

	overCap := func() bool {
		return (q.cfg.MaxArchiveBytes > 0 && totalBytes > q.cfg.MaxArchiveBytes) ||
			(q.cfg.MaxArchiveLines > 0 && totalLines > q.cfg.MaxArchiveLines)
	}
	capped := make(map[string]bool)
	for _, c := range survivors {
		if !overCap() {
			break
		}
		expired = append(expired, c.archiveFile)
		capped[c.name] = true
		totalBytes -= c.size
		totalLines -= c.lines
	}

	for _, a := range expired {
		if !dryRun {
			if err := os.Remove(filepath.Join(q.dir, a.name)); err != nil {
				log.Warn().Err(err).Str("archive", a.name).Msg("Failed to delete dead-letter archive")
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", a.name, err))
				res.Kept++
				continue
			}
		}
		res.Deleted = append(res.Deleted, a.name)
		if capped[a.name] {
			res.OverCap = append(res.OverCap, a.name)
		}
	}
	res.Kept += len(archives) - len(expired)
	res.KeptBytes = totalBytes
	res.KeptLines = totalLines

	if !dryRun {
		pruned, err := q.prunePacks()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prune dead-letter packs")
			res.Errors = append(res.Errors, err.Error())
		}
		res.PrunedPacks = pruned
	}

	log.Info().Bool("dry_run", dryRun).Int("deleted", len(res.Deleted)).Int("over_cap", len(res.OverCap)).
		Int("kept", res.Kept).Msg("Dead-letter cleanup finished")

	return res, nil
}

// prunePacks removes packs that no queue file references. Requires q.mu.
func (q *Queue) prunePacks() (int, error) {
	files := []string{activeFileName}
	for _, prefix := range []string{archivePrefix, replayPrefix} {
		list, err := q.listFiles(prefix)
		if err != nil {
			return 0, err
		}
		for _, f := range list {
			files = append(files, f.name)
		}
	}

	referenced := make(map[string]struct{})
	for _, name := range files {
		err := scanItems(filepath.Join(q.dir, name), func(_ []byte, item *Item) error {
			if item != nil && item.Archive != nil {
				referenced[item.Archive.SHA256] = struct{}{}
			}
			return nil
		})
		if err != nil && !os.IsNotExist(errors.Cause(err)) {
			return 0, err
		}
	}

	entries, err := os.ReadDir(filepath.Join(q.dir, packsDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to read dead-letter packs")
	}

	pruned := 0
	for _, e := range entries {
		sum := strings.TrimSuffix(e.Name(), packSuffix)
		if e.IsDir() || sum == e.Name() {
			continue
		}
		if _, ok := referenced[sum]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(q.dir, packsDirName, e.Name())); err != nil {
			return pruned, errors.Wrapf(err, "failed to remove pack %s", e.Name())
		}
		pruned++
	}

	return pruned, nil
}

// Status reports queue sizes and alerts.
func (q *Queue) Status() (*Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	lines, err := countLines(q.activePath())
	if err != nil {
		return nil, err
	}
	archives, err := q.archives()
	if err != nil {
		return nil, err
	}

	st := &Status{ActiveLines: lines, ArchiveCount: len(archives), Alerts: make([]Alert, 0)}
	for _, a := range archives {
		st.ArchiveBytes += a.size
	}

	if lines > q.cfg.HighVolumeLines {
		st.Alerts = append(st.Alerts, Alert{
			Type:    AlertHighVolume,
			Message: fmt.Sprintf("active dead-letter queue holds %d lines (threshold %d)", lines, q.cfg.HighVolumeLines),
		})
	}
	if lines > q.cfg.GrowingLines && len(archives) > q.cfg.GrowingArchiveCount {
		st.Alerts = append(st.Alerts, Alert{
			Type:    AlertGrowing,
			Message: fmt.Sprintf("dead-letter queue keeps growing: %d active lines and %d archives", lines, len(archives)),
		})
	}

	return st, nil
}

// Replay moves the active queue aside and re-publishes every line from it, so
// items appended meanwhile land in a fresh active file. Lines that fail again, or
// cannot be parsed, are appended back to the active queue. Replay files left by an
// interrupted run are picked up first.
func (q *Queue) Replay(ctx context.Context, publisher Republisher, dryRun bool) (*ReplayResult, error) {
	q.replayMu.Lock()
	defer q.replayMu.Unlock()

	res := &ReplayResult{DryRun: dryRun}

	if dryRun {
		q.mu.Lock()
		defer q.mu.Unlock()

		err := scanItems(q.activePath(), func(_ []byte, _ *Item) error {
			res.Attempted++
			return nil
		})
		if err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, err
		}
		res.Remaining = res.Attempted

		return res, nil
	}

	if err := q.moveActiveAside(); err != nil {
		return nil, err
	}

	pending, err := q.listFiles(replayPrefix)
	if err != nil {
		return nil, err
	}

	for _, f := range pending {
		if err := q.replayFile(ctx, filepath.Join(q.dir, f.name), publisher, res); err != nil {
			return nil, errors.Wrapf(err, "failed to replay %s", f.name)
		}
	}

	res.Remaining = res.Attempted - res.Replayed

	q.mu.Lock()
	if _, err := q.prunePacks(); err != nil {
		log.Warn().Err(err).Msg("Failed to prune dead-letter packs after replay")
	}
	q.mu.Unlock()

	return res, nil
}

// replayFile republishes every line of path and removes it. A writer in another
// process that opened the file before it was moved aside may still append to it,
// so the file is re-read until it stops growing.
func (q *Queue) replayFile(ctx context.Context, path string, publisher Republisher, res *ReplayResult) error {
	done := 0
	for {
		raw, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "failed to read replay file")
		}
		if len(raw) <= done {
			return errors.Wrap(os.Remove(path), "failed to remove replay file")
		}

		err = eachItem(raw[done:], func(line []byte, item *Item) error {
			res.Attempted++
			if item == nil {
				log.Warn().Str("file", filepath.Base(path)).Msg("Keeping unparsable dead-letter line")
				return q.requeue(line)
			}
			if err := publisher.Republish(ctx, item); err != nil {
				log.Warn().Err(err).Str("namespace", item.Namespace).Msg("Dead-letter replay failed, keeping item")
				return q.requeue(line)
			}
			res.Replayed++
			return nil
		})
		if err != nil {
			return err
		}
		done = len(raw)
	}
}

// moveActiveAside renames a non-empty active queue to a replay file.
func (q *Queue) moveActiveAside() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, err := os.Stat(q.activePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to stat dead-letter queue")
	}
	if info.Size() == 0 {
		return nil
	}

	stamp := q.clock.Now().UTC().Format(archiveLayout)
	for n := 0; ; n++ {
		target := filepath.Join(q.dir, fmt.Sprintf("%s%s-%03d%s", replayPrefix, stamp, n, archiveSuffix))
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := os.Rename(q.activePath(), target); err != nil {
			return errors.Wrap(err, "failed to move dead-letter queue aside")
		}
		return nil
	}
}

func (q *Queue) requeue(line []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.appendLine(append([]byte(nil), line...))
}

// scanItems calls fn for each non-empty line of path. item is nil when the line does not parse.
func scanItems(path string, fn func(line []byte, item *Item) error) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read dead-letter file")
	}

	return eachItem(raw, fn)
}

func eachItem(raw []byte, fn func(line []byte, item *Item) error) error {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var item Item
		var arg *Item
		if err := json.Unmarshal(line, &item); err == nil {
			arg = &item
		}
		if err := fn(line, arg); err != nil {
			return err
		}
	}

	return errors.Wrap(scanner.Err(), "failed to scan dead-letter file")
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to open dead-letter queue")
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrap(err, "failed to scan dead-letter queue")
	}

	return n, nil
}
