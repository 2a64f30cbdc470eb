package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qrpay-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const orderColumnsSQL = `id, merchant_id, merchant_name, amount, kind, status, payer_id, failure_reason,
	version, created_at, completed_at, failed_at`

// OrderRepo implements ports.OrderStore.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Get fetches an order by id.
func (r *OrderRepo) Get(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, r.pool, id)
}

// ListPendingBefore returns the oldest PENDING orders created before the cutoff.
func (r *OrderRepo) ListPendingBefore(ctx context.Context, cutoffUnixMilli int64, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumnsSQL + ` FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at LIMIT $3`

	rows, err := r.pool.Query(ctx, query, domain.OrderStatusPending, time.UnixMilli(cutoffUnixMilli).UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row, o *domain.Order) error {
	return row.Scan(
		&o.ID, &o.MerchantID, &o.MerchantName, &o.Amount, &o.Kind, &o.Status,
		&o.PayerID, &o.FailureReason, &o.Version, &o.CreatedAt, &o.CompletedAt, &o.FailedAt,
	)
}

func getOrder(ctx context.Context, q querier, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumnsSQL + ` FROM orders WHERE id = $1`

	o := &domain.Order{}
	if err := scanOrder(q.QueryRow(ctx, query, id), o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func lockOrderVersion(ctx context.Context, q querier, id string) (int64, error) {
	var v int64
	err := q.QueryRow(ctx, `SELECT version FROM orders WHERE id = $1 FOR SHARE`, id).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("lock order %s: %w", id, err)
	}
	return v, nil
}

// updateOrder writes the mutable order fields if the version is unchanged.
func updateOrder(ctx context.Context, q querier, o *domain.Order) (bool, error) {
	query := `UPDATE orders
		SET status = $1, payer_id = $2, failure_reason = $3, completed_at = $4, failed_at = $5,
			version = version + 1
		WHERE id = $6 AND version = $7`

	tag, err := q.Exec(ctx, query,
		o.Status, o.PayerID, o.FailureReason, o.CompletedAt, o.FailedAt, o.ID, o.Version,
	)
	if err != nil {
		return false, fmt.Errorf("update order %s: %w", o.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func insertOrder(ctx context.Context, q querier, o *domain.Order) error {
	query := `INSERT INTO orders (id, merchant_id, merchant_name, amount, kind, status, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)`

	_, err := q.Exec(ctx, query, o.ID, o.MerchantID, o.MerchantName, o.Amount, o.Kind, o.Status, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}
