package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"dormantwatch/internal/model"
)

// Store provides Postgres persistence for the alert audit trail. Writes are
// idempotent on the event identity key, so at-least-once dispatch never
// duplicates audit rows.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutDelivery upserts one delivery record keyed on (tx_hash, log_index).
func (s *Store) PutDelivery(ctx context.Context, record model.DeliveryRecord) error {
	payload, err := json.Marshal(record.Alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO alert_deliveries (
			tx_hash, log_index, kind, block_number, outcome, attempts, last_error, alert, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (tx_hash, log_index)
		DO UPDATE SET
			outcome = EXCLUDED.outcome,
			attempts = alert_deliveries.attempts + EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			updated_at = now()
	`,
		record.Alert.TxHash,
		int64(record.Alert.LogIndex),
		string(record.Alert.Kind),
		int64(record.Alert.BlockNumber),
		string(record.Outcome),
		record.Attempts,
		record.LastError,
		payload,
	)
	return err
}
