package audit

import (
	"context"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/evidence/ledger"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/pkg/errors"
)

// Logger appends audit events.
type Logger interface {
	LogEvent(ctx context.Context, event *AuditEvent) error
}

// EntryRecorder is satisfied by *ledger.Recorder.
type EntryRecorder interface {
	Record(ctx context.Context, namespace string, e *ledger.Entry, archive *ledger.Archive) (*ledger.PublishResult, error)
}

type logger struct {
	recorder EntryRecorder
	clock    time2.Clock
}

// NewLogger writes every event as an entry of the main ledger namespace.
//
//nolint:ireturn
func NewLogger(recorder EntryRecorder, clock time2.Clock) Logger {
	return &logger{recorder: recorder, clock: clock}
}

func (l *logger) LogEvent(ctx context.Context, event *AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock.Now()
	}

	details := map[string]any{
		"event_type": event.EventType,
		"operation":  event.Operation,
	}
	if event.KeyID != "" {
		details["key_id"] = event.KeyID
	}
	if event.RequestID != "" {
		details["request_id"] = event.RequestID
	}
	for k, v := range event.Details {
		details[k] = v
	}

	subject := event.KeyID
	if event.RequestID != "" {
		subject = event.RequestID
	}

	_, err := l.recorder.Record(ctx, storage.NamespaceLedger, &ledger.Entry{
		GeneratedAt: event.Timestamp.UTC(),
		Kind:        EntryKind,
		Result:      event.Result,
		Actor:       event.UserID,
		Subject:     subject,
		Details:     details,
	}, nil)
	if err != nil {
		return errors.Wrap(err, "failed to record audit event")
	}

	return nil
}
