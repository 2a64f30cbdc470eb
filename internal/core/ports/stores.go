package ports

import (
	"context"
	"errors"

	"qrpay-gateway/internal/core/domain"
)

// Sentinel errors returned by store implementations.
var (
	// ErrConflict means a record read inside an atomic unit changed before commit.
	ErrConflict = errors.New("optimistic concurrency conflict")
	// ErrAccountNumberTaken means another wallet claimed the account number first.
	ErrAccountNumberTaken = errors.New("account number already taken")
)

// WalletStore defines non-transactional wallet reads.
// Lookups return (nil, nil) when the wallet does not exist.
type WalletStore interface {
	Get(ctx context.Context, ownerID string) (*domain.Wallet, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Wallet, error)
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)
	// List returns wallets ordered by creation time, newest first.
	List(ctx context.Context, limit, offset int) ([]domain.Wallet, int64, error)
	SumBalances(ctx context.Context) (int64, error)
}

// OrderStore defines non-transactional order reads.
type OrderStore interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	// ListPendingBefore returns up to limit PENDING orders created before cutoff (unix millis).
	ListPendingBefore(ctx context.Context, cutoffUnixMilli int64, limit int) ([]domain.Order, error)
}

// LedgerStore defines audit queries over the append-only ledger.
// Entries have no update or delete path.
type LedgerStore interface {
	ListByWallet(ctx context.Context, ownerID string, limit, offset int) ([]domain.LedgerEntry, int64, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.LedgerEntry, error)
	// SystemNet returns credits out of SYSTEM minus debits into SYSTEM.
	SystemNet(ctx context.Context) (int64, error)
}

// IdempotencyStore reads committed idempotency records outside an atomic unit.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
}

// Txn is the view of the store inside one atomic unit.
//
// Reads return private copies and record the version observed; they return
// (nil, nil) when the record does not exist. Writes are buffered and only
// become visible when the unit commits.
type Txn interface {
	Wallet(ctx context.Context, ownerID string) (*domain.Wallet, error)
	WalletByAccountNumber(ctx context.Context, accountNumber string) (*domain.Wallet, error)
	Order(ctx context.Context, id string) (*domain.Order, error)
	Idempotency(ctx context.Context, key string) (*domain.IdempotencyRecord, error)

	PutWallet(w *domain.Wallet)
	PutOrder(o *domain.Order)
	InsertWallet(w *domain.Wallet)
	InsertOrder(o *domain.Order)
	AppendLedger(e *domain.LedgerEntry)
	PutIdempotency(r *domain.IdempotencyRecord)
}

// Transactor runs read-compute-write units atomically.
//
// RunAtomic calls fn, then commits every buffered write together only if no
// record fn read has changed meanwhile. On conflict the whole unit is retried
// with backoff; once attempts are exhausted ErrConflict is returned (wrapped).
// An error from fn aborts the unit without writing anything and is returned
// unchanged.
type Transactor interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Txn) error) error
}
