package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"qrpay-gateway/internal/adapter/storage/occ"
	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = occ.Policy{MaxAttempts: 2, BaseBackoff: time.Microsecond, MaxBackoff: time.Microsecond}

func debitUnit(amount int64) func(ctx context.Context, tx ports.Txn) error {
	return func(ctx context.Context, tx ports.Txn) error {
		w, err := tx.Wallet(ctx, "user-001")
		if err != nil {
			return err
		}
		w.Balance -= amount
		tx.PutWallet(w)
		tx.AppendLedger(&domain.LedgerEntry{
			ID: uuid.New(), OrderID: "admin-1", FromWallet: "user-001", ToWallet: domain.SystemAccount,
			Amount: amount, Kind: domain.LedgerKindAdminAdjustment, CreatedAt: time.Now().UTC(),
		})
		return nil
	}
}

func TestTransactor_Commit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := newTestWallet("user-001")
	tr := NewTransactor(mock, testPolicy, zerolog.Nop())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs("user-001").
		WillReturnRows(walletRow(w))
	mock.ExpectExec("UPDATE wallets").
		WithArgs(w.DisplayName, w.BankName, w.Balance-100, w.LoyaltyPoints, w.OwnerID, w.Version).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(pgxmock.AnyArg(), "admin-1", "user-001", domain.SystemAccount, int64(100),
			domain.LedgerKindAdminAdjustment, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, tr.RunAtomic(context.Background(), debitUnit(100)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_VersionConflictRetries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stale := newTestWallet("user-001")
	fresh := newTestWallet("user-001")
	fresh.Version = stale.Version + 1
	fresh.Balance = stale.Balance - 50
	tr := NewTransactor(mock, testPolicy, zerolog.Nop())

	// First attempt loses the race.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs("user-001").
		WillReturnRows(walletRow(stale))
	mock.ExpectExec("UPDATE wallets").
		WithArgs(stale.DisplayName, stale.BankName, stale.Balance-100, stale.LoyaltyPoints, stale.OwnerID, stale.Version).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	// Second attempt sees the fresh row.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs("user-001").
		WillReturnRows(walletRow(fresh))
	mock.ExpectExec("UPDATE wallets").
		WithArgs(fresh.DisplayName, fresh.BankName, fresh.Balance-100, fresh.LoyaltyPoints, fresh.OwnerID, fresh.Version).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(pgxmock.AnyArg(), "admin-1", "user-001", domain.SystemAccount, int64(100),
			domain.LedgerKindAdminAdjustment, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, tr.RunAtomic(context.Background(), debitUnit(100)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_ConflictExhausted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := newTestWallet("user-001")
	tr := NewTransactor(mock, testPolicy, zerolog.Nop())

	for i := 0; i < testPolicy.MaxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
			WithArgs("user-001").
			WillReturnRows(walletRow(w))
		mock.ExpectExec("UPDATE wallets").
			WithArgs(w.DisplayName, w.BankName, w.Balance-100, w.LoyaltyPoints, w.OwnerID, w.Version).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()
	}

	err = tr.RunAtomic(context.Background(), debitUnit(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_FnErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tr := NewTransactor(mock, testPolicy, zerolog.Nop())
	boom := errors.New("insufficient funds")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = tr.RunAtomic(context.Background(), func(ctx context.Context, tx ports.Txn) error {
		tx.PutWallet(newTestWallet("user-001"))
		return boom
	})
	assert.Same(t, boom, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_FnErrorFromStaleReadRetries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stale := newTestWallet("user-001")
	stale.Balance = 0
	fresh := newTestWallet("user-001")
	fresh.Version = stale.Version + 1
	fresh.Balance = 40
	tr := NewTransactor(mock, testPolicy, zerolog.Nop())
	errBroke := errors.New("insufficient funds")

	// The row moved after it was read, so the error is not trusted.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs("user-001").
		WillReturnRows(walletRow(stale))
	mock.ExpectQuery("SELECT version FROM wallets WHERE owner_id .+ FOR SHARE").
		WithArgs("user-001").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(fresh.Version))
	mock.ExpectRollback()

	// The retry reads the current row and the error stands.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs("user-001").
		WillReturnRows(walletRow(fresh))
	mock.ExpectQuery("SELECT version FROM wallets WHERE owner_id .+ FOR SHARE").
		WithArgs("user-001").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(fresh.Version))
	mock.ExpectRollback()

	attempts := 0
	err = tr.RunAtomic(context.Background(), func(ctx context.Context, tx ports.Txn) error {
		attempts++
		w, err := tx.Wallet(ctx, "user-001")
		if err != nil {
			return err
		}
		if w.Balance < 100 {
			return errBroke
		}
		return nil
	})
	assert.Same(t, errBroke, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_ReadOnlyRowChanged(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	payer := newTestWallet("user-001")
	merchant := newTestWallet("merchant-001")
	tr := NewTransactor(mock, occ.Policy{MaxAttempts: 1}, zerolog.Nop())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs("merchant-001").
		WillReturnRows(walletRow(merchant))
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs("user-001").
		WillReturnRows(walletRow(payer))
	mock.ExpectQuery("SELECT version FROM wallets WHERE owner_id .+ FOR SHARE").
		WithArgs("merchant-001").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(merchant.Version + 1))
	mock.ExpectRollback()

	err = tr.RunAtomic(context.Background(), func(ctx context.Context, tx ports.Txn) error {
		if _, err := tx.Wallet(ctx, "merchant-001"); err != nil {
			return err
		}
		p, err := tx.Wallet(ctx, "user-001")
		if err != nil {
			return err
		}
		tx.PutWallet(p)
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrConflict))
}

func TestTransactor_AccountNumberTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := newTestWallet("user-002")
	tr := NewTransactor(mock, testPolicy, zerolog.Nop())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(w.OwnerID, w.DisplayName, w.BankName, w.AccountNumber, w.Balance,
			w.LoyaltyPoints, w.Currency, w.CreatedAt, w.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintAccountNumber})
	mock.ExpectRollback()

	err = tr.RunAtomic(context.Background(), func(ctx context.Context, tx ports.Txn) error {
		tx.InsertWallet(w)
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrAccountNumberTaken))
	assert.False(t, errors.Is(err, ports.ErrConflict))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"serialization failure", &pgconn.PgError{Code: pgSerializationFailure}, ports.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: pgDeadlockDetected}, ports.ErrConflict},
		{"duplicate primary key", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "wallets_pkey"}, ports.ErrConflict},
		{"duplicate account number", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintAccountNumber}, ports.ErrAccountNumberTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(classify(tt.err), tt.sentinel))
		})
	}

	plain := errors.New("connection reset")
	assert.Same(t, plain, classify(plain))
}
