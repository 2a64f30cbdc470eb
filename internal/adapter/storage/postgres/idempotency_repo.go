package postgres

import (
	"context"
	"errors"
	"fmt"

	"qrpay-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyStore.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Get fetches an idempotency record by key.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	return getIdempotency(ctx, r.pool, key)
}

func getIdempotency(ctx context.Context, q querier, key string) (*domain.IdempotencyRecord, error) {
	query := `SELECT key, ledger_entry_id, response_json, created_at FROM idempotency_records WHERE key = $1`

	rec := &domain.IdempotencyRecord{}
	err := q.QueryRow(ctx, query, key).Scan(&rec.Key, &rec.LedgerEntryID, &rec.Response, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}

// insertIdempotency inserts a record inside an atomic unit.
func insertIdempotency(ctx context.Context, q querier, rec *domain.IdempotencyRecord) error {
	query := `INSERT INTO idempotency_records (key, ledger_entry_id, response_json, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := q.Exec(ctx, query, rec.Key, rec.LedgerEntryID, rec.Response, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}
