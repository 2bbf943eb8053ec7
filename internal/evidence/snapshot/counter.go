package snapshot

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	// Import postgres driver for database/sql package
	_ "github.com/lib/pq"
)

// EventCounter supplies aggregate counts from systems outside the ledger.
type EventCounter interface {
	CountEvents(ctx context.Context, p Period) (map[string]int64, error)
}

// DefaultCountQueries count operational records created within the period.
// Each query takes the period bounds as $1 (inclusive) and $2 (exclusive).
var DefaultCountQueries = map[string]string{
	"inspection_cards": `SELECT count(*) FROM inspection_cards WHERE created_at >= $1 AND created_at < $2`,
	"work_orders":      `SELECT count(*) FROM work_orders WHERE created_at >= $1 AND created_at < $2`,
	"mail_sent":        `SELECT count(*) FROM mail_log WHERE sent_at >= $1 AND sent_at < $2`,
}

// PostgresCounter reads aggregate counts from the operational relational store.
type PostgresCounter struct {
	db      *sql.DB
	queries map[string]string
}

func NewPostgresCounter(db *sql.DB, queries map[string]string) *PostgresCounter {
	if len(queries) == 0 {
		queries = DefaultCountQueries
	}
	return &PostgresCounter{db: db, queries: queries}
}

// OpenPostgresCounter connects to dsn and verifies the connection.
func OpenPostgresCounter(ctx context.Context, dsn string) (*PostgresCounter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open events database")
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping events database")
	}

	return NewPostgresCounter(db, nil), nil
}

func (c *PostgresCounter) CountEvents(ctx context.Context, p Period) (map[string]int64, error) {
	names := make([]string, 0, len(c.queries))
	for name := range c.queries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]int64, len(names))
	for _, name := range names {
		var n int64
		if err := c.db.QueryRowContext(ctx, c.queries[name], p.From, p.To).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "failed to count %s", name)
		}
		out[name] = n
	}

	log.Debug().Interface("counts", out).Time("from", p.From).Time("to", p.To).Msg("Counted operational events")

	return out, nil
}

func (c *PostgresCounter) Close() error {
	return c.db.Close()
}
