package ledger

import (
	"context"
	"encoding/json"

	"github.com/kashguard/go-evidence/internal/evidence/deadletter"
	"github.com/kashguard/go-evidence/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Recorder publishes entries and routes failed writes to the dead-letter queue.
type Recorder struct {
	writer *Writer
	queue  *deadletter.Queue
}

func NewRecorder(writer *Writer, queue *deadletter.Queue) *Recorder {
	return &Recorder{writer: writer, queue: queue}
}

// Record publishes e. On a storage failure the entry is dead-lettered and the
// result reports DeadLettered; only a failure to dead-letter is returned as an error.
// Input errors (unknown namespace, missing kind) are returned without side effects.
func (r *Recorder) Record(ctx context.Context, namespace string, e *Entry, archive *Archive) (*PublishResult, error) {
	res, err := r.writer.Publish(ctx, namespace, e, archive)
	if err == nil {
		metrics.LedgerWrites.WithLabelValues(namespace, "ok").Inc()
		return res, nil
	}
	if isInputError(err) {
		return nil, err
	}

	if r.queue == nil {
		metrics.LedgerWrites.WithLabelValues(namespace, "failed").Inc()
		return nil, err
	}

	raw, mErr := json.Marshal(e)
	if mErr != nil {
		return nil, errors.Wrap(mErr, "failed to encode entry for dead-letter queue")
	}

	item := &deadletter.Item{Namespace: namespace, Entry: raw, Error: err.Error()}
	if res != nil {
		item.Key = res.Key
	}
	var qErr error
	if archive != nil {
		qErr = r.queue.AppendWithArchive(item, archive.Name, archive.Data)
	} else {
		qErr = r.queue.Append(item)
	}
	if qErr != nil {
		metrics.LedgerWrites.WithLabelValues(namespace, "failed").Inc()
		return nil, errors.Wrapf(qErr, "failed to dead-letter entry after write error: %v", err)
	}

	log.Warn().Err(err).Str("namespace", namespace).Msg("Ledger write failed, entry dead-lettered")
	metrics.LedgerWrites.WithLabelValues(namespace, "dead_lettered").Inc()

	if res == nil {
		res = &PublishResult{Namespace: namespace}
	}
	res.DeadLettered = true

	return res, nil
}

// Republish implements deadletter.Republisher. The stored entry keeps its
// original generated_at, so it lands under its original key. An item carrying an
// archive is only republished together with its pack bytes.
func (r *Recorder) Republish(ctx context.Context, item *deadletter.Item) error {
	var e Entry
	if err := json.Unmarshal(item.Entry, &e); err != nil {
		return errors.Wrap(err, "failed to decode dead-lettered entry")
	}

	var archive *Archive
	if item.Archive != nil {
		if r.queue == nil {
			return errors.Wrap(deadletter.ErrArchiveMissing, "no dead-letter queue to read the archive from")
		}
		data, err := r.queue.ReadArchive(item.Archive)
		if err != nil {
			return err
		}
		archive = &Archive{Name: item.Archive.Name, Data: data}
	}

	if _, err := r.writer.Publish(ctx, item.Namespace, &e, archive); err != nil {
		return err
	}
	metrics.LedgerWrites.WithLabelValues(item.Namespace, "ok").Inc()

	return nil
}

func isInputError(err error) bool {
	return errors.Is(err, ErrUnknownNamespace) || errors.Is(err, ErrMissingKind) || errors.Is(err, ErrEmptyArchive)
}
