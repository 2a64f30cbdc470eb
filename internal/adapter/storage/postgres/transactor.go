package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"qrpay-gateway/internal/adapter/storage/occ"
	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Transactor implements ports.Transactor with optimistic version checks
// inside a READ COMMITTED pgx transaction.
//
// Reads inside fn are plain SELECTs. At commit every written row is updated
// with "WHERE version = <observed>", every row that was only read is locked
// FOR SHARE and its version compared, all in key order. Any mismatch rolls
// the attempt back as ports.ErrConflict and occ.Retry runs fn again.
type Transactor struct {
	pool   Pool
	policy occ.Policy
	log    zerolog.Logger
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool, policy occ.Policy, log zerolog.Logger) *Transactor {
	return &Transactor{pool: pool, policy: policy, log: log}
}

// RunAtomic implements ports.Transactor.
func (t *Transactor) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx ports.Txn) error) error {
	return occ.Retry(ctx, t.policy, t.log, func(ctx context.Context) error {
		return t.attempt(ctx, fn)
	})
}

func (t *Transactor) attempt(ctx context.Context, fn func(ctx context.Context, tx ports.Txn) error) error {
	dbTx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	u := newUnit(dbTx)
	if err := fn(ctx, u); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return err
		}
		// The error is only final if everything fn read is still current.
		if cerr := u.checkReads(ctx); cerr != nil {
			return classify(cerr)
		}
		return err
	}

	if err := u.flush(ctx); err != nil {
		return classify(err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// classify maps PostgreSQL errors onto the store sentinels.
func classify(err error) error {
	code, constraint := pgErrorCode(err)
	switch code {
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %w", ports.ErrConflict, err)
	case pgUniqueViolation:
		if constraint == constraintAccountNumber {
			return fmt.Errorf("%w: %w", ports.ErrAccountNumberTaken, err)
		}
		return fmt.Errorf("%w: %w", ports.ErrConflict, err)
	}
	return err
}

// unit is the ports.Txn for one attempt.
type unit struct {
	tx pgx.Tx

	readWallets map[string]int64
	readOrders  map[string]int64

	putWallets map[string]*domain.Wallet
	insWallets []*domain.Wallet
	putOrders  map[string]*domain.Order
	insOrders  []*domain.Order
	ledger     []*domain.LedgerEntry
	idem       []*domain.IdempotencyRecord
}

func newUnit(tx pgx.Tx) *unit {
	return &unit{
		tx:          tx,
		readWallets: make(map[string]int64),
		readOrders:  make(map[string]int64),
		putWallets:  make(map[string]*domain.Wallet),
		putOrders:   make(map[string]*domain.Order),
	}
}

func (u *unit) Wallet(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	w, err := getWallet(ctx, u.tx, ownerID)
	if err != nil {
		return nil, err
	}
	u.observeWallet(ownerID, w)
	return w, nil
}

func (u *unit) WalletByAccountNumber(ctx context.Context, accountNumber string) (*domain.Wallet, error) {
	w, err := getWalletByAccountNumber(ctx, u.tx, accountNumber)
	if err != nil || w == nil {
		return nil, err
	}
	u.observeWallet(w.OwnerID, w)
	return w, nil
}

func (u *unit) observeWallet(ownerID string, w *domain.Wallet) {
	if _, seen := u.readWallets[ownerID]; seen {
		return
	}
	var v int64
	if w != nil {
		v = w.Version
	}
	u.readWallets[ownerID] = v
}

func (u *unit) Order(ctx context.Context, id string) (*domain.Order, error) {
	o, err := getOrder(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	if _, seen := u.readOrders[id]; !seen {
		var v int64
		if o != nil {
			v = o.Version
		}
		u.readOrders[id] = v
	}
	return o, nil
}

// Idempotency records are immutable once written; a concurrent insert of the
// same key surfaces as a unique violation at flush.
func (u *unit) Idempotency(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	return getIdempotency(ctx, u.tx, key)
}

func (u *unit) PutWallet(w *domain.Wallet)    { u.putWallets[w.OwnerID] = w.Clone() }
func (u *unit) PutOrder(o *domain.Order)      { u.putOrders[o.ID] = o.Clone() }
func (u *unit) InsertWallet(w *domain.Wallet) { u.insWallets = append(u.insWallets, w.Clone()) }
func (u *unit) InsertOrder(o *domain.Order)   { u.insOrders = append(u.insOrders, o.Clone()) }

func (u *unit) AppendLedger(e *domain.LedgerEntry) {
	c := *e
	u.ledger = append(u.ledger, &c)
}

func (u *unit) PutIdempotency(r *domain.IdempotencyRecord) {
	c := *r
	u.idem = append(u.idem, &c)
}

// checkReads locks every row fn read FOR SHARE and compares its version.
func (u *unit) checkReads(ctx context.Context) error {
	for _, id := range unionKeys[int64, struct{}](u.readWallets, nil) {
		v, err := lockWalletVersion(ctx, u.tx, id)
		if err != nil {
			return err
		}
		if v != u.readWallets[id] {
			return fmt.Errorf("wallet %s changed: %w", id, ports.ErrConflict)
		}
	}
	for _, id := range unionKeys[int64, struct{}](u.readOrders, nil) {
		v, err := lockOrderVersion(ctx, u.tx, id)
		if err != nil {
			return err
		}
		if v != u.readOrders[id] {
			return fmt.Errorf("order %s changed: %w", id, ports.ErrConflict)
		}
	}
	return nil
}

// flush validates observed versions and applies buffered writes in key order.
func (u *unit) flush(ctx context.Context) error {
	for _, id := range unionKeys(u.readWallets, u.putWallets) {
		if w, ok := u.putWallets[id]; ok {
			if w.Balance < 0 {
				return fmt.Errorf("wallet %s: balance would become negative (%d)", id, w.Balance)
			}
			updated, err := updateWallet(ctx, u.tx, w)
			if err != nil {
				return err
			}
			if !updated {
				return fmt.Errorf("wallet %s write: %w", id, ports.ErrConflict)
			}
			continue
		}
		v, err := lockWalletVersion(ctx, u.tx, id)
		if err != nil {
			return err
		}
		if v != u.readWallets[id] {
			return fmt.Errorf("wallet %s changed: %w", id, ports.ErrConflict)
		}
	}

	for _, id := range unionKeys(u.readOrders, u.putOrders) {
		if o, ok := u.putOrders[id]; ok {
			updated, err := updateOrder(ctx, u.tx, o)
			if err != nil {
				return err
			}
			if !updated {
				return fmt.Errorf("order %s write: %w", id, ports.ErrConflict)
			}
			continue
		}
		v, err := lockOrderVersion(ctx, u.tx, id)
		if err != nil {
			return err
		}
		if v != u.readOrders[id] {
			return fmt.Errorf("order %s changed: %w", id, ports.ErrConflict)
		}
	}

	for _, w := range u.insWallets {
		if err := insertWallet(ctx, u.tx, w); err != nil {
			return err
		}
	}
	for _, o := range u.insOrders {
		if err := insertOrder(ctx, u.tx, o); err != nil {
			return err
		}
	}
	for _, e := range u.ledger {
		if err := insertLedgerEntry(ctx, u.tx, e); err != nil {
			return err
		}
	}
	for _, r := range u.idem {
		if err := insertIdempotency(ctx, u.tx, r); err != nil {
			return err
		}
	}
	return nil
}

func unionKeys[A, B any](a map[string]A, b map[string]B) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
