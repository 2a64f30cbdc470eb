package memory

import (
	"context"
	"sort"

	"qrpay-gateway/internal/core/domain"
)

type walletView struct{ s *Store }

func (v walletView) Get(_ context.Context, ownerID string) (*domain.Wallet, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.wallets[ownerID].Clone(), nil
}

func (v walletView) GetByAccountNumber(_ context.Context, accountNumber string) (*domain.Wallet, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	owner, ok := v.s.accounts[accountNumber]
	if !ok {
		return nil, nil
	}
	return v.s.wallets[owner].Clone(), nil
}

func (v walletView) AccountNumberExists(_ context.Context, accountNumber string) (bool, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	_, ok := v.s.accounts[accountNumber]
	return ok, nil
}

func (v walletView) List(_ context.Context, limit, offset int) ([]domain.Wallet, int64, error) {
	v.s.mu.RLock()
	all := make([]domain.Wallet, 0, len(v.s.wallets))
	for _, w := range v.s.wallets {
		all = append(all, *w)
	}
	v.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].OwnerID < all[j].OwnerID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return page(all, limit, offset), int64(len(all)), nil
}

func (v walletView) SumBalances(_ context.Context) (int64, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var sum int64
	for _, w := range v.s.wallets {
		sum += w.Balance
	}
	return sum, nil
}

type orderView struct{ s *Store }

func (v orderView) Get(_ context.Context, id string) (*domain.Order, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.orders[id].Clone(), nil
}

func (v orderView) ListPendingBefore(_ context.Context, cutoffUnixMilli int64, limit int) ([]domain.Order, error) {
	v.s.mu.RLock()
	var out []domain.Order
	for _, o := range v.s.orders {
		if o.Status == domain.OrderStatusPending && o.CreatedAt.UnixMilli() < cutoffUnixMilli {
			out = append(out, *o.Clone())
		}
	}
	v.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type ledgerView struct{ s *Store }

func (v ledgerView) ListByWallet(_ context.Context, ownerID string, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	v.s.mu.RLock()
	var matched []domain.LedgerEntry
	for i := len(v.s.ledger) - 1; i >= 0; i-- {
		if v.s.ledger[i].Involves(ownerID) {
			matched = append(matched, v.s.ledger[i])
		}
	}
	v.s.mu.RUnlock()

	return page(matched, limit, offset), int64(len(matched)), nil
}

func (v ledgerView) ListByOrder(_ context.Context, orderID string) ([]domain.LedgerEntry, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var out []domain.LedgerEntry
	for _, e := range v.s.ledger {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v ledgerView) SystemNet(_ context.Context) (int64, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	var net int64
	for i := range v.s.ledger {
		net += v.s.ledger[i].SystemNet()
	}
	return net, nil
}

type idemView struct{ s *Store }

func (v idemView) Get(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	r, ok := v.s.idem[key]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
