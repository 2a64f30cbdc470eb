package service

import (
	"context"
	"fmt"
	"time"

	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	ledger  ports.LedgerStore
	wallets ports.WalletStore
	orders  ports.OrderStore
	idem    ports.IdempotencyStore
	log     zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(ledger ports.LedgerStore, wallets ports.WalletStore, orders ports.OrderStore, idem ports.IdempotencyStore, log zerolog.Logger) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		ledger:  ledger,
		wallets: wallets,
		orders:  orders,
		idem:    idem,
		log:     log,
	}
}

// WalletHistory returns entries touching ownerID, newest first.
func (s *LedgerServiceImpl) WalletHistory(ctx context.Context, ownerID string, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	wallet, err := s.wallets.Get(ctx, ownerID)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, 0, apperror.ErrWalletNotFound()
	}

	limit, offset = clampPage(limit, offset)
	entries, total, err := s.ledger.ListByWallet(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list wallet ledger: %w", err))
	}
	return entries, total, nil
}

// OrderHistory returns the entries recorded against orderID.
func (s *LedgerServiceImpl) OrderHistory(ctx context.Context, orderID string) ([]domain.LedgerEntry, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound()
	}

	entries, err := s.ledger.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list order ledger: %w", err))
	}
	return entries, nil
}

// Reconcile checks that wallets hold exactly what SYSTEM has issued.
// The two sums are read separately, so a movement committing in between can
// produce a transient mismatch.
func (s *LedgerServiceImpl) Reconcile(ctx context.Context) (*ports.Reconciliation, error) {
	total, err := s.wallets.SumBalances(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum balances: %w", err))
	}
	net, err := s.ledger.SystemNet(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("system net: %w", err))
	}

	rec := &ports.Reconciliation{
		WalletTotal: total,
		SystemNet:   net,
		Balanced:    total == net,
		CheckedAt:   time.Now().UTC(),
	}
	if !rec.Balanced {
		s.log.Error().Int64("wallet_total", total).Int64("system_net", net).Msg("ledger out of balance")
	}
	return rec, nil
}

// StoredResult returns what a keyed transfer or adjustment committed, as a
// replay of the same key would see it.
func (s *LedgerServiceImpl) StoredResult(ctx context.Context, scope, caller, clientKey string) (*domain.IdempotencyRecord, error) {
	switch scope {
	case domain.IdempotencyScopeTransfer, domain.IdempotencyScopeAdjustment:
	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown idempotency scope %q", scope))
	}
	if caller == "" || clientKey == "" {
		return nil, apperror.Validation("caller and key are required")
	}

	rec, err := s.idem.Get(ctx, domain.BuildIdempotencyKey(scope, caller, clientKey))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get idempotency record: %w", err))
	}
	if rec == nil {
		return nil, apperror.ErrReplayNotFound()
	}
	return rec, nil
}
