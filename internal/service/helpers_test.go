package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"qrpay-gateway/internal/adapter/storage/memory"
	"qrpay-gateway/internal/adapter/storage/occ"
	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testPolicy = occ.Policy{
	MaxAttempts: 50,
	BaseBackoff: 50 * time.Microsecond,
	MaxBackoff:  2 * time.Millisecond,
}

func newMemoryStore() *memory.Store {
	return memory.New(testPolicy, zerolog.Nop())
}

// seedWallet inserts a wallet together with the SYSTEM entry that issued its
// balance, so reconciliation holds from the start.
func seedWallet(t *testing.T, s *memory.Store, owner, account string, balance int64) {
	t.Helper()
	err := s.RunAtomic(context.Background(), func(ctx context.Context, tx ports.Txn) error {
		now := time.Now().UTC()
		tx.InsertWallet(&domain.Wallet{
			OwnerID:       owner,
			DisplayName:   "Name of " + owner,
			BankName:      "QR Bank",
			AccountNumber: account,
			Balance:       balance,
			Currency:      domain.DefaultCurrency,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if balance > 0 {
			tx.AppendLedger(&domain.LedgerEntry{
				ID:         uuid.New(),
				OrderID:    domain.OpeningReference(owner),
				FromWallet: domain.SystemAccount,
				ToWallet:   owner,
				Amount:     balance,
				Kind:       domain.LedgerKindOpeningBalance,
				CreatedAt:  now,
			})
		}
		return nil
	})
	require.NoError(t, err)
}

func seedOrder(t *testing.T, s *memory.Store, id, merchant string, amount int64, kind domain.OrderKind, createdAt time.Time) {
	t.Helper()
	err := s.RunAtomic(context.Background(), func(ctx context.Context, tx ports.Txn) error {
		tx.InsertOrder(&domain.Order{
			ID:           id,
			MerchantID:   merchant,
			MerchantName: "Name of " + merchant,
			Amount:       amount,
			Kind:         kind,
			Status:       domain.OrderStatusPending,
			CreatedAt:    createdAt,
		})
		return nil
	})
	require.NoError(t, err)
}

func balanceOf(t *testing.T, s *memory.Store, owner string) int64 {
	t.Helper()
	w, err := s.Wallets().Get(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, w, "wallet %s", owner)
	return w.Balance
}

func walletOf(t *testing.T, s *memory.Store, owner string) *domain.Wallet {
	t.Helper()
	w, err := s.Wallets().Get(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, w, "wallet %s", owner)
	return w
}

func requireBalanced(t *testing.T, s *memory.Store) {
	t.Helper()
	svc := NewLedgerService(s.Ledger(), s.Wallets(), s.Orders(), s.Idempotency(), zerolog.Nop())
	rec, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.True(t, rec.Balanced, "wallet total %d != system net %d", rec.WalletTotal, rec.SystemNet)
}

var errInjected = errors.New("injected commit failure")

// failingTransactor runs fn fully, then aborts instead of committing.
type failingTransactor struct{ inner ports.Transactor }

func (f failingTransactor) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx ports.Txn) error) error {
	return f.inner.RunAtomic(ctx, func(ctx context.Context, tx ports.Txn) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errInjected
	})
}

// interferingTransactor runs interfere once, after fn's first attempt has
// read its records but before it commits.
type interferingTransactor struct {
	inner     ports.Transactor
	interfere func()
	attempts  int
}

func (i *interferingTransactor) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx ports.Txn) error) error {
	return i.inner.RunAtomic(ctx, func(ctx context.Context, tx ports.Txn) error {
		i.attempts++
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if i.attempts == 1 && i.interfere != nil {
			i.interfere()
		}
		return nil
	})
}

// racingTransactor runs between once, on the first attempt, right after fn
// reads its first order and before any later read.
type racingTransactor struct {
	inner   ports.Transactor
	between func()
	fired   bool
}

func (r *racingTransactor) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx ports.Txn) error) error {
	return r.inner.RunAtomic(ctx, func(ctx context.Context, tx ports.Txn) error {
		return fn(ctx, &racingTxn{Txn: tx, r: r})
	})
}

type racingTxn struct {
	ports.Txn
	r *racingTransactor
}

func (t *racingTxn) Order(ctx context.Context, id string) (*domain.Order, error) {
	o, err := t.Txn.Order(ctx, id)
	if err == nil && !t.r.fired {
		t.r.fired = true
		t.r.between()
	}
	return o, err
}
