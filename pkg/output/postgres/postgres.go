// Package postgres persists sample batches to a PostgreSQL table, one
// transaction per poll. Transient write failures are retried with bounded
// exponential backoff; when the budget is exhausted the batch is dropped and
// a PersistenceError returned, so the polling loop keeps running.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/garygsw/sensor-reader/pkg/config"
	"github.com/garygsw/sensor-reader/pkg/sensor"
)

const (
	defaultTable      = "samples"
	defaultMaxRetries = 5
	defaultTimeout    = 5 * time.Second
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PersistenceError reports a batch dropped after the retry budget ran out.
type PersistenceError struct {
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist batch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type PostgresOutput struct {
	db            *sql.DB
	table         string
	maxRetries    uint64
	timeout       time.Duration
	retryInterval time.Duration
	newBatchID    func() string
}

// Open connects to PostgreSQL with the pgx driver, verifies the connection
// and makes sure the sample table exists.
func Open(cfg config.PostgresConfig) (*PostgresOutput, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	p, err := New(db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := p.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// New wraps an existing database handle. Used by Open and by tests.
func New(db *sql.DB, cfg config.PostgresConfig) (*PostgresOutput, error) {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !identifierRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	maxRetries := uint64(defaultMaxRetries)
	if cfg.MaxRetries > 0 {
		maxRetries = uint64(cfg.MaxRetries)
	}
	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return &PostgresOutput{
		db:            db,
		table:         table,
		maxRetries:    maxRetries,
		timeout:       timeout,
		retryInterval: 500 * time.Millisecond,
		newBatchID:    uuid.NewString,
	}, nil
}

func (p *PostgresOutput) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id BIGSERIAL PRIMARY KEY,
    batch_id UUID NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    channel TEXT NOT NULL,
    raw_value DOUBLE PRECISION NOT NULL,
    physical_value DOUBLE PRECISION NOT NULL,
    clock_adjusted BOOLEAN NOT NULL DEFAULT FALSE
)`, p.table)
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Publish writes the batch inside a single transaction. A batch that fails
// transiently and then succeeds within the retry budget is persisted exactly
// once: the failed transaction rolls back and leaves no rows behind.
func (p *PostgresOutput) Publish(samples []sensor.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	batchID := p.newBatchID()
	attempts := 0
	op := func() error {
		attempts++
		return p.insertBatch(batchID, samples)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.retryInterval
	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, p.maxRetries)); err != nil {
		return &PersistenceError{Attempts: attempts, Err: err}
	}
	return nil
}

func (p *PostgresOutput) insertBatch(batchID string, samples []sensor.Sample) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := fmt.Sprintf(`INSERT INTO %s (batch_id, ts, channel, raw_value, physical_value, clock_adjusted) VALUES ($1, $2, $3, $4, $5, $6)`, p.table)
	for _, s := range samples {
		if _, err := tx.ExecContext(ctx, stmt,
			batchID,
			s.Timestamp.UTC(),
			s.Channel,
			s.Raw,
			s.Value,
			s.ClockAdjusted,
		); err != nil {
			return fmt.Errorf("insert %s: %w", s.Channel, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *PostgresOutput) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
