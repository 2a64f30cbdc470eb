package postgres

import (
	"context"
	"fmt"

	"qrpay-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const ledgerColumnsSQL = `id, order_id, from_wallet, to_wallet, amount, kind, message, created_at`

// LedgerRepo implements ports.LedgerStore. Entries are only ever inserted.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// ListByWallet returns entries where ownerID is payer or payee, newest first.
func (r *LedgerRepo) ListByWallet(ctx context.Context, ownerID string, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE from_wallet = $1 OR to_wallet = $1`, ownerID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	query := `SELECT ` + ledgerColumnsSQL + ` FROM ledger_entries
		WHERE from_wallet = $1 OR to_wallet = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger by wallet: %w", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListByOrder returns the entries recorded against orderID in commit order.
func (r *LedgerRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumnsSQL + ` FROM ledger_entries
		WHERE order_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list ledger by order: %w", err)
	}
	return collectEntries(rows)
}

// SystemNet returns money issued by SYSTEM minus money returned to it.
func (r *LedgerRepo) SystemNet(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(SUM(CASE
			WHEN from_wallet = $1 AND to_wallet <> $1 THEN amount
			WHEN to_wallet = $1 AND from_wallet <> $1 THEN -amount
			ELSE 0 END), 0)::BIGINT
		FROM ledger_entries`

	var net int64
	if err := r.pool.QueryRow(ctx, query, domain.SystemAccount).Scan(&net); err != nil {
		return 0, fmt.Errorf("sum system net: %w", err)
	}
	return net, nil
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.FromWallet, &e.ToWallet,
			&e.Amount, &e.Kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

func insertLedgerEntry(ctx context.Context, q querier, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + ledgerColumnsSQL + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := q.Exec(ctx, query,
		e.ID, e.OrderID, e.FromWallet, e.ToWallet, e.Amount, e.Kind, e.Message, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry %s: %w", e.ID, err)
	}
	return nil
}
