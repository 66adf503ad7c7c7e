// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package audit keeps a queryable trail of delivery attempts in DuckDB.
// The trail is observability, not state: the order state machine remains the
// only durable side effect of a delivery, and losing trail rows loses nothing
// but operator hindsight.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/pixelbridge/pixelbridge/internal/config"
	"github.com/pixelbridge/pixelbridge/internal/delivery"
	"github.com/pixelbridge/pixelbridge/internal/logging"
	"github.com/pixelbridge/pixelbridge/internal/tracking"
)

// recordBuffer bounds the write queue. When the writer falls behind, new
// records are dropped rather than blocking the delivery path.
const recordBuffer = 1024

// Attempt is one recorded delivery attempt.
type Attempt struct {
	AttemptedAt   time.Time `json:"attempted_at"`
	EventKind     string    `json:"event_kind"`
	CorrelationID string    `json:"correlation_id"`
	OrderKey      string    `json:"order_key,omitempty"`
	StatusCode    int       `json:"status_code"`
	Success       bool      `json:"success"`
	ErrorDetail   string    `json:"error_detail,omitempty"`
}

// Trail is the DuckDB-backed audit trail.
type Trail struct {
	conn    *sql.DB
	cfg     config.AuditConfig
	records chan Attempt
}

// Open opens (or creates) the trail database and its schema. An empty path
// opens an in-memory database.
func Open(cfg config.AuditConfig) (*Trail, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	} else {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create audit directory %s: %w", dir, err)
			}
		}
	}

	conn, err := sql.Open("duckdb", dsn+"?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	trail := &Trail{
		conn:    conn,
		cfg:     cfg,
		records: make(chan Attempt, recordBuffer),
	}
	if err := trail.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return trail, nil
}

func (t *Trail) initSchema() error {
	_, err := t.conn.Exec(`
		CREATE SEQUENCE IF NOT EXISTS delivery_attempts_seq;
		CREATE TABLE IF NOT EXISTS delivery_attempts (
			id             BIGINT PRIMARY KEY DEFAULT nextval('delivery_attempts_seq'),
			attempted_at   TIMESTAMP NOT NULL,
			event_kind     VARCHAR NOT NULL,
			correlation_id VARCHAR NOT NULL,
			order_key      VARCHAR,
			status_code    INTEGER NOT NULL,
			success        BOOLEAN NOT NULL,
			error_detail   VARCHAR
		);
	`)
	if err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Listener returns the delivery notifier subscription feeding the trail.
// It never blocks: records are queued for the background writer and dropped
// with a log line when the queue is full.
func (t *Trail) Listener() delivery.Listener {
	return func(_ context.Context, event *tracking.Event, args delivery.Args, outcome delivery.Outcome) {
		attempt := Attempt{
			AttemptedAt:   time.Now().UTC(),
			EventKind:     string(event.Kind),
			CorrelationID: event.CorrelationID,
			OrderKey:      args[delivery.ArgOrderKey],
			StatusCode:    outcome.StatusCode,
			Success:       outcome.Success,
			ErrorDetail:   outcome.ErrorDetail,
		}
		select {
		case t.records <- attempt:
		default:
			logging.Warn().Str("correlation_id", attempt.CorrelationID).Msg("audit queue full, dropping record")
		}
	}
}

// Run drains the record queue until the context is canceled, then flushes
// whatever is still buffered.
func (t *Trail) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			t.flush()
			return ctx.Err()
		case attempt := <-t.records:
			t.insert(attempt)
		}
	}
}

func (t *Trail) flush() {
	for {
		select {
		case attempt := <-t.records:
			t.insert(attempt)
		default:
			return
		}
	}
}

func (t *Trail) insert(a Attempt) {
	_, err := t.conn.Exec(
		`INSERT INTO delivery_attempts (attempted_at, event_kind, correlation_id, order_key, status_code, success, error_detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.AttemptedAt, a.EventKind, a.CorrelationID, nullable(a.OrderKey), a.StatusCode, a.Success, nullable(a.ErrorDetail),
	)
	if err != nil {
		logging.Error().Err(err).Msg("audit insert failed")
	}
}

// Record writes one attempt synchronously. Used by tests and backfills; the
// hot path goes through Listener and Run.
func (t *Trail) Record(a Attempt) {
	t.insert(a)
}

// RecentAttempts returns the newest attempts, most recent first.
func (t *Trail) RecentAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := t.conn.QueryContext(ctx,
		`SELECT attempted_at, event_kind, correlation_id, COALESCE(order_key, ''), status_code, success, COALESCE(error_detail, '')
		 FROM delivery_attempts ORDER BY attempted_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	return scanAttempts(rows)
}

// AttemptsForOrder returns every recorded attempt for one order.
func (t *Trail) AttemptsForOrder(ctx context.Context, orderKey string) ([]Attempt, error) {
	rows, err := t.conn.QueryContext(ctx,
		`SELECT attempted_at, event_kind, correlation_id, COALESCE(order_key, ''), status_code, success, COALESCE(error_detail, '')
		 FROM delivery_attempts WHERE order_key = ? ORDER BY attempted_at ASC, id ASC`, orderKey)
	if err != nil {
		return nil, fmt.Errorf("query attempts for order: %w", err)
	}
	return scanAttempts(rows)
}

// KindFailures is the failed-attempt count for one event kind.
type KindFailures struct {
	EventKind string `json:"event_kind"`
	Failures  int64  `json:"failures"`
}

// FailureCounts aggregates failed attempts by event kind, worst first.
func (t *Trail) FailureCounts(ctx context.Context) ([]KindFailures, error) {
	rows, err := t.conn.QueryContext(ctx,
		`SELECT event_kind, COUNT(*) FROM delivery_attempts
		 WHERE NOT success GROUP BY event_kind ORDER BY COUNT(*) DESC, event_kind ASC`)
	if err != nil {
		return nil, fmt.Errorf("query failure counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []KindFailures
	for rows.Next() {
		var kf KindFailures
		if err := rows.Scan(&kf.EventKind, &kf.Failures); err != nil {
			return nil, fmt.Errorf("scan failure count: %w", err)
		}
		out = append(out, kf)
	}
	return out, rows.Err()
}

// Prune drops attempts older than the retention window. Returns the number
// of rows removed.
func (t *Trail) Prune(ctx context.Context) (int64, error) {
	if t.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -t.cfg.RetentionDays)
	res, err := t.conn.ExecContext(ctx, `DELETE FROM delivery_attempts WHERE attempted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (t *Trail) Close() error {
	return t.conn.Close()
}

func scanAttempts(rows *sql.Rows) ([]Attempt, error) {
	defer func() { _ = rows.Close() }()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.AttemptedAt, &a.EventKind, &a.CorrelationID, &a.OrderKey, &a.StatusCode, &a.Success, &a.ErrorDetail); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
