// Package memory is an in-process store with optimistic atomic units.
// It backs store.driver=memory and the service tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"qrpay-gateway/internal/adapter/storage/occ"
	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// Store keeps versioned wallets, orders, ledger entries and idempotency
// records in maps guarded by one RWMutex.
type Store struct {
	mu       sync.RWMutex
	wallets  map[string]*domain.Wallet
	accounts map[string]string // account number -> owner id
	orders   map[string]*domain.Order
	ledger   []domain.LedgerEntry
	idem     map[string]*domain.IdempotencyRecord

	policy occ.Policy
	log    zerolog.Logger
}

// New creates an empty store.
func New(policy occ.Policy, log zerolog.Logger) *Store {
	return &Store{
		wallets:  make(map[string]*domain.Wallet),
		accounts: make(map[string]string),
		orders:   make(map[string]*domain.Order),
		idem:     make(map[string]*domain.IdempotencyRecord),
		policy:   policy,
		log:      log,
	}
}

// Wallets returns the wallet read view.
func (s *Store) Wallets() ports.WalletStore { return walletView{s} }

// Orders returns the order read view.
func (s *Store) Orders() ports.OrderStore { return orderView{s} }

// Ledger returns the ledger audit view.
func (s *Store) Ledger() ports.LedgerStore { return ledgerView{s} }

// Idempotency returns the committed idempotency record view.
func (s *Store) Idempotency() ports.IdempotencyStore { return idemView{s} }

// RunAtomic implements ports.Transactor.
func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx ports.Txn) error) error {
	return occ.Retry(ctx, s.policy, s.log, func(ctx context.Context) error {
		t := newTxn(s)
		if err := fn(ctx, t); err != nil {
			if errors.Is(err, ports.ErrConflict) {
				return err
			}
			// The error is only final if everything fn read is still current.
			if stale := s.checkReads(t); stale != nil {
				return stale
			}
			return err
		}
		return s.commit(t)
	})
}

// commit validates every observed version and applies the buffered writes.
// Either all writes land or none do.
func (s *Store) commit(t *txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(t); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, id := range sortedKeys(t.putWallets) {
		w := t.putWallets[id].Clone()
		w.Version++
		w.UpdatedAt = now
		s.wallets[id] = w
	}
	for _, w := range t.insWallets {
		c := w.Clone()
		c.Version = 1
		s.wallets[c.OwnerID] = c
		s.accounts[c.AccountNumber] = c.OwnerID
	}
	for _, id := range sortedKeys(t.putOrders) {
		o := t.putOrders[id].Clone()
		o.Version++
		s.orders[id] = o
	}
	for _, o := range t.insOrders {
		c := o.Clone()
		c.Version = 1
		s.orders[c.ID] = c
	}
	for _, e := range t.ledger {
		s.ledger = append(s.ledger, *e)
	}
	for _, r := range t.idem {
		c := *r
		s.idem[c.Key] = &c
	}
	return nil
}

// checkReads reports ErrConflict when any record t observed has moved on.
func (s *Store) checkReads(t *txn) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validateReads(t)
}

func (s *Store) validate(t *txn) error {
	if err := s.validateReads(t); err != nil {
		return err
	}
	return s.validateWrites(t)
}

func (s *Store) validateReads(t *txn) error {
	for id, v := range t.readWallets {
		if cur := s.wallets[id]; version(cur) != v {
			return fmt.Errorf("wallet %s changed: %w", id, ports.ErrConflict)
		}
	}
	for acct, owner := range t.readAccounts {
		if s.accounts[acct] != owner {
			return fmt.Errorf("account %s changed: %w", acct, ports.ErrConflict)
		}
	}
	for id, v := range t.readOrders {
		if cur := s.orders[id]; orderVersion(cur) != v {
			return fmt.Errorf("order %s changed: %w", id, ports.ErrConflict)
		}
	}
	for key, existed := range t.readIdem {
		if _, ok := s.idem[key]; ok != existed {
			return fmt.Errorf("idempotency record %s changed: %w", key, ports.ErrConflict)
		}
	}
	return nil
}

func (s *Store) validateWrites(t *txn) error {
	for id, w := range t.putWallets {
		cur := s.wallets[id]
		if cur == nil || cur.Version != w.Version {
			return fmt.Errorf("wallet %s write: %w", id, ports.ErrConflict)
		}
		if w.Balance < 0 {
			return fmt.Errorf("wallet %s: balance would become negative (%d)", id, w.Balance)
		}
	}
	seenAccounts := make(map[string]bool, len(t.insWallets))
	for _, w := range t.insWallets {
		if _, ok := s.wallets[w.OwnerID]; ok {
			return fmt.Errorf("wallet %s insert: %w", w.OwnerID, ports.ErrConflict)
		}
		if _, ok := s.accounts[w.AccountNumber]; ok || seenAccounts[w.AccountNumber] {
			return fmt.Errorf("wallet %s: %w", w.OwnerID, ports.ErrAccountNumberTaken)
		}
		if w.Balance < 0 {
			return fmt.Errorf("wallet %s: negative opening balance", w.OwnerID)
		}
		seenAccounts[w.AccountNumber] = true
	}
	for id, o := range t.putOrders {
		cur := s.orders[id]
		if cur == nil || cur.Version != o.Version {
			return fmt.Errorf("order %s write: %w", id, ports.ErrConflict)
		}
	}
	for _, o := range t.insOrders {
		if _, ok := s.orders[o.ID]; ok {
			return fmt.Errorf("order %s insert: %w", o.ID, ports.ErrConflict)
		}
	}
	for _, r := range t.idem {
		if _, ok := s.idem[r.Key]; ok {
			return fmt.Errorf("idempotency record %s insert: %w", r.Key, ports.ErrConflict)
		}
	}
	return nil
}

func version(w *domain.Wallet) int64 {
	if w == nil {
		return 0
	}
	return w.Version
}

func orderVersion(o *domain.Order) int64 {
	if o == nil {
		return 0
	}
	return o.Version
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// txn buffers one attempt of an atomic unit.
type txn struct {
	s *Store

	readWallets  map[string]int64
	readAccounts map[string]string
	readOrders   map[string]int64
	readIdem     map[string]bool

	putWallets map[string]*domain.Wallet
	insWallets []*domain.Wallet
	putOrders  map[string]*domain.Order
	insOrders  []*domain.Order
	ledger     []*domain.LedgerEntry
	idem       []*domain.IdempotencyRecord
}

func newTxn(s *Store) *txn {
	return &txn{
		s:            s,
		readWallets:  make(map[string]int64),
		readAccounts: make(map[string]string),
		readOrders:   make(map[string]int64),
		readIdem:     make(map[string]bool),
		putWallets:   make(map[string]*domain.Wallet),
		putOrders:    make(map[string]*domain.Order),
	}
}

func (t *txn) Wallet(_ context.Context, ownerID string) (*domain.Wallet, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	w := t.s.wallets[ownerID]
	t.observeWallet(ownerID, w)
	return w.Clone(), nil
}

func (t *txn) WalletByAccountNumber(_ context.Context, accountNumber string) (*domain.Wallet, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	owner := t.s.accounts[accountNumber]
	if _, seen := t.readAccounts[accountNumber]; !seen {
		t.readAccounts[accountNumber] = owner
	}
	if owner == "" {
		return nil, nil
	}
	w := t.s.wallets[owner]
	t.observeWallet(owner, w)
	return w.Clone(), nil
}

// observeWallet keeps the first version seen so a later re-read cannot mask a change.
func (t *txn) observeWallet(ownerID string, w *domain.Wallet) {
	if _, seen := t.readWallets[ownerID]; !seen {
		t.readWallets[ownerID] = version(w)
	}
}

func (t *txn) Order(_ context.Context, id string) (*domain.Order, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	o := t.s.orders[id]
	if _, seen := t.readOrders[id]; !seen {
		t.readOrders[id] = orderVersion(o)
	}
	return o.Clone(), nil
}

func (t *txn) Idempotency(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	r, ok := t.s.idem[key]
	if _, seen := t.readIdem[key]; !seen {
		t.readIdem[key] = ok
	}
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (t *txn) PutWallet(w *domain.Wallet)    { t.putWallets[w.OwnerID] = w.Clone() }
func (t *txn) PutOrder(o *domain.Order)      { t.putOrders[o.ID] = o.Clone() }
func (t *txn) InsertWallet(w *domain.Wallet) { t.insWallets = append(t.insWallets, w.Clone()) }
func (t *txn) InsertOrder(o *domain.Order)   { t.insOrders = append(t.insOrders, o.Clone()) }

func (t *txn) AppendLedger(e *domain.LedgerEntry) {
	c := *e
	t.ledger = append(t.ledger, &c)
}

func (t *txn) PutIdempotency(r *domain.IdempotencyRecord) {
	c := *r
	t.idem = append(t.idem, &c)
}
