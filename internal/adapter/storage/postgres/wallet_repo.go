package postgres

import (
	"context"
	"errors"
	"fmt"

	"qrpay-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const walletColumnsSQL = `owner_id, display_name, bank_name, account_number, balance, loyalty_points,
	currency, version, created_at, updated_at`

// WalletRepo implements ports.WalletStore.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Get fetches a wallet by owner id.
func (r *WalletRepo) Get(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	return getWallet(ctx, r.pool, ownerID)
}

// GetByAccountNumber fetches a wallet by its account number.
func (r *WalletRepo) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Wallet, error) {
	return getWalletByAccountNumber(ctx, r.pool, accountNumber)
}

// AccountNumberExists reports whether any wallet holds accountNumber.
func (r *WalletRepo) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM wallets WHERE account_number = $1)`, accountNumber,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account number: %w", err)
	}
	return exists, nil
}

// List returns a page of wallets, newest first, and the total count.
func (r *WalletRepo) List(ctx context.Context, limit, offset int) ([]domain.Wallet, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count wallets: %w", err)
	}

	query := `SELECT ` + walletColumnsSQL + ` FROM wallets
		ORDER BY created_at DESC, owner_id LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	wallets := make([]domain.Wallet, 0, limit)
	for rows.Next() {
		var w domain.Wallet
		if err := scanWallet(rows, &w); err != nil {
			return nil, 0, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate wallets: %w", err)
	}
	return wallets, total, nil
}

// SumBalances returns the total balance held across all wallets.
func (r *WalletRepo) SumBalances(ctx context.Context) (int64, error) {
	var sum int64
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0)::BIGINT FROM wallets`).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return sum, nil
}

func scanWallet(row pgx.Row, w *domain.Wallet) error {
	return row.Scan(
		&w.OwnerID, &w.DisplayName, &w.BankName, &w.AccountNumber, &w.Balance,
		&w.LoyaltyPoints, &w.Currency, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
}

func getWallet(ctx context.Context, q querier, ownerID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnsSQL + ` FROM wallets WHERE owner_id = $1`

	w := &domain.Wallet{}
	if err := scanWallet(q.QueryRow(ctx, query, ownerID), w); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

func getWalletByAccountNumber(ctx context.Context, q querier, accountNumber string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnsSQL + ` FROM wallets WHERE account_number = $1`

	w := &domain.Wallet{}
	if err := scanWallet(q.QueryRow(ctx, query, accountNumber), w); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by account number: %w", err)
	}
	return w, nil
}

// lockWalletVersion takes a share lock on the row and returns its version, 0 if absent.
func lockWalletVersion(ctx context.Context, q querier, ownerID string) (int64, error) {
	var v int64
	err := q.QueryRow(ctx, `SELECT version FROM wallets WHERE owner_id = $1 FOR SHARE`, ownerID).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("lock wallet %s: %w", ownerID, err)
	}
	return v, nil
}

// updateWallet writes w if the stored version still equals w.Version.
// It reports false when the row moved on.
func updateWallet(ctx context.Context, q querier, w *domain.Wallet) (bool, error) {
	query := `UPDATE wallets
		SET display_name = $1, bank_name = $2, balance = $3, loyalty_points = $4,
			version = version + 1, updated_at = NOW()
		WHERE owner_id = $5 AND version = $6`

	tag, err := q.Exec(ctx, query,
		w.DisplayName, w.BankName, w.Balance, w.LoyaltyPoints, w.OwnerID, w.Version,
	)
	if err != nil {
		return false, fmt.Errorf("update wallet %s: %w", w.OwnerID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func insertWallet(ctx context.Context, q querier, w *domain.Wallet) error {
	query := `INSERT INTO wallets (owner_id, display_name, bank_name, account_number, balance,
			loyalty_points, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9)`

	_, err := q.Exec(ctx, query,
		w.OwnerID, w.DisplayName, w.BankName, w.AccountNumber, w.Balance,
		w.LoyaltyPoints, w.Currency, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet %s: %w", w.OwnerID, err)
	}
	return nil
}
