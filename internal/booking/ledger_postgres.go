package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists booking confirmations in PostgreSQL, surviving
// process restarts.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(ctx context.Context, databaseURL string) (*PostgresLedger, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresLedger{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS booking_ledger (
			idempotency_token TEXT PRIMARY KEY,
			confirmed BOOLEAN NOT NULL,
			appointment_id TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_booking_ledger_created ON booking_ledger (created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, token string) (Result, bool, error) {
	var res Result
	var reason string
	err := l.pool.QueryRow(ctx,
		`SELECT confirmed, appointment_id, failure_reason FROM booking_ledger WHERE idempotency_token = $1`,
		token,
	).Scan(&res.Confirmed, &res.AppointmentID, &reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("ledger lookup: %w", err)
	}
	res.Reason = FailureReason(reason)
	return res, true, nil
}

func (l *PostgresLedger) Put(ctx context.Context, token string, res Result) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO booking_ledger (idempotency_token, confirmed, appointment_id, failure_reason)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (idempotency_token) DO NOTHING`,
		token, res.Confirmed, res.AppointmentID, string(res.Reason),
	)
	if err != nil {
		return fmt.Errorf("ledger insert: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Close() {
	l.pool.Close()
}
