package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finsense/feed-engine/internal/model"
)

// PostgresArchive implements Archive on PostgreSQL. Monetary amounts are
// stored as NUMERIC for exact decimal precision; records are append-only.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive creates a PostgreSQL-backed archive.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// EnsureSchema creates the audit tables if they do not exist.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payment_audit (
			id          TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			amount      NUMERIC NOT NULL,
			recipient   TEXT NOT NULL,
			ts          TIMESTAMPTZ NOT NULL,
			ratio       DOUBLE PRECISION NOT NULL,
			zscore      DOUBLE PRECISION,
			is_anomaly  BOOLEAN NOT NULL,
			severity    TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS alert_audit (
			id      TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			kind    TEXT NOT NULL,
			payload JSONB NOT NULL,
			ts      TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (a *PostgresArchive) ArchivePayment(ctx context.Context, ev *model.PaymentEvent) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO payment_audit (id, customer_id, amount, recipient, ts, ratio, zscore, is_anomaly, severity)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.CustomerID, ev.Amount.String(), ev.Recipient, ev.Timestamp,
		ev.Ratio, ev.ZScore, ev.IsAnomaly, string(ev.Severity),
	)
	if err != nil {
		return fmt.Errorf("archive payment %s: %w", ev.ID, err)
	}
	return nil
}

func (a *PostgresArchive) ArchiveAlert(ctx context.Context, channel model.Channel, kind string, payload []byte) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO alert_audit (id, channel, kind, payload)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), string(channel), kind, payload,
	)
	if err != nil {
		return fmt.Errorf("archive alert %s/%s: %w", channel, kind, err)
	}
	return nil
}
