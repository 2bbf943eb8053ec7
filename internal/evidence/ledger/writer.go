package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownNamespace = errors.New("unknown ledger namespace")
	ErrMissingKind      = errors.New("entry kind is required")
	ErrEmptyArchive     = errors.New("archive is empty")
)

// Writer appends content-addressed entries. It never retries: a failed Publish
// is returned to the caller, which decides whether to dead-letter it.
type Writer struct {
	store storage.Store
	cfg   config.Ledger
	clock time2.Clock
}

func NewWriter(store storage.Store, cfg config.Ledger, clock time2.Clock) *Writer {
	return &Writer{store: store, cfg: cfg, clock: clock}
}

// Fingerprint computes the content address of e: SHA-256 over its canonical
// encoding with the fingerprint field itself left empty.
func Fingerprint(e *Entry) (string, error) {
	body := *e
	body.FingerprintSHA256 = ""

	return canonical.Fingerprint(&body)
}

// Prepare validates e, stamps generated_at if missing and fills the fingerprint.
// It returns the entry key and the encoded entry.
func (w *Writer) Prepare(namespace string, e *Entry) (string, []byte, error) {
	if err := validate(namespace, e); err != nil {
		return "", nil, err
	}
	if e.GeneratedAt.IsZero() {
		e.GeneratedAt = w.clock.Now()
	}
	e.GeneratedAt = e.GeneratedAt.UTC()

	fp, err := Fingerprint(e)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to fingerprint entry")
	}
	e.FingerprintSHA256 = fp

	b, err := canonical.Marshal(e)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to encode entry")
	}

	return storage.EntryKey(namespace, e.GeneratedAt, fp), b, nil
}

func validate(namespace string, e *Entry) error {
	if !storage.IsLedgerNamespace(namespace) {
		return errors.Wrapf(ErrUnknownNamespace, "%q", namespace)
	}
	if e == nil || e.Kind == "" {
		return ErrMissingKind
	}

	return nil
}

// Publish uploads the optional archive, writes the entry and appends the advisory index line.
func (w *Writer) Publish(ctx context.Context, namespace string, e *Entry, archive *Archive) (*PublishResult, error) {
	if err := validate(namespace, e); err != nil {
		return nil, err
	}

	res := &PublishResult{Namespace: namespace}

	if archive != nil {
		packKey, err := w.uploadArchive(ctx, e, archive)
		if err != nil {
			return nil, err
		}
		res.PackKey = packKey
	}

	key, body, err := w.Prepare(namespace, e)
	if err != nil {
		return nil, err
	}
	res.Key = key
	res.Fingerprint = e.FingerprintSHA256

	if err := w.store.Put(ctx, key, body); err != nil {
		return res, errors.Wrapf(err, "failed to write ledger entry %s", key)
	}

	if w.cfg.WriteDailyIndex {
		if err := w.appendIndex(ctx, namespace, key, e); err != nil {
			// The index is advisory; the entry itself is durable.
			log.Warn().Err(err).Str("key", key).Msg("Failed to update daily ledger index")
		} else {
			res.IndexUpdated = true
		}
	}

	return res, nil
}

func (w *Writer) uploadArchive(ctx context.Context, e *Entry, archive *Archive) (string, error) {
	if len(archive.Data) == 0 {
		return "", ErrEmptyArchive
	}

	sum := canonical.SHA256Hex(archive.Data)
	key := storage.PackKey(w.cfg.PacksNamespace, sum)

	if err := w.store.Put(ctx, key, archive.Data); err != nil {
		return "", errors.Wrapf(err, "failed to upload archive %s", key)
	}

	size := int64(len(archive.Data))
	if e.Pack == nil {
		e.Pack = &Pack{}
	}
	e.Pack.SHA256 = sum
	e.Pack.Size = size
	if archive.Name != "" {
		e.Pack.Name = archive.Name
	}
	e.PackObject = &PackObject{Key: key, SHA256: sum, Size: size}

	return key, nil
}

// appendIndex is a read-modify-write of the day's index; concurrent writers may
// lose lines (last writer wins), which is acceptable for an advisory index.
func (w *Writer) appendIndex(ctx context.Context, namespace string, key string, e *Entry) error {
	indexKey := storage.DailyIndexKey(namespace, e.GeneratedAt)

	existing, err := w.store.Get(ctx, indexKey)
	if err != nil && !storage.IsNotFound(err) {
		return err
	}

	line, err := json.Marshal(&IndexLine{
		Key:         key,
		Fingerprint: e.FingerprintSHA256,
		Kind:        e.Kind,
		GeneratedAt: e.GeneratedAt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode index line")
	}

	buf := make([]byte, 0, len(existing)+len(line)+1)
	buf = append(buf, existing...)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	return w.store.Put(ctx, indexKey, buf)
}

// Read loads one entry by key.
func Read(ctx context.Context, store storage.Store, key string) (*Entry, error) {
	b, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrapf(err, "failed to decode ledger entry %s", key)
	}

	return &e, nil
}

// ListDay returns the entry keys of one UTC day in one namespace.
func ListDay(ctx context.Context, store storage.Store, namespace string, day time.Time) ([]string, error) {
	objs, err := store.List(ctx, storage.DayPrefix(namespace, day), 0)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		if storage.IsEntryKey(o.Key) {
			keys = append(keys, o.Key)
		}
	}

	return keys, nil
}
