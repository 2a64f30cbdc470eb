package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/metrics"
	"qrpay-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AdjustmentEngine implements ports.AdjustmentEngine.
type AdjustmentEngine struct {
	transactor ports.Transactor
	replay     replayCache
	log        zerolog.Logger
}

// NewAdjustmentEngine creates an AdjustmentEngine. cache may be nil.
func NewAdjustmentEngine(
	transactor ports.Transactor,
	cache ports.IdempotencyCache,
	idempotencyTTL time.Duration,
	log zerolog.Logger,
) *AdjustmentEngine {
	return &AdjustmentEngine{
		transactor: transactor,
		replay:     replayCache{cache: cache, ttl: idempotencyTTL, log: log},
		log:        log,
	}
}

// AdjustBalance credits or debits a wallet against SYSTEM.
func (e *AdjustmentEngine) AdjustBalance(ctx context.Context, req ports.AdjustmentRequest) (_ *ports.AdjustmentResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(opAdjustment, outcomeOf(err), start) }()

	if req.Delta == 0 || req.Delta == math.MinInt64 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.TargetID == "" {
		return nil, apperror.Validation("target_id is required")
	}

	var idemKey string
	if req.IdempotencyKey != "" {
		idemKey = domain.BuildIdempotencyKey(domain.IdempotencyScopeAdjustment, req.AdminID, req.IdempotencyKey)

		var cached ports.AdjustmentResult
		if e.replay.lookup(ctx, idemKey, &cached) {
			return &cached, nil
		}
	}

	var (
		result   *ports.AdjustmentResult
		resp     []byte
		isReplay bool
	)
	err = e.transactor.RunAtomic(ctx, func(ctx context.Context, tx ports.Txn) error {
		result, resp, isReplay = nil, nil, false

		var prior ports.AdjustmentResult
		stored, err := replayed(ctx, tx, idemKey, &prior)
		if err != nil {
			return fmt.Errorf("idempotency check: %w", err)
		}
		if stored != nil {
			result, resp, isReplay = &prior, stored, true
			return nil
		}

		wallet, err := tx.Wallet(ctx, req.TargetID)
		if err != nil {
			return fmt.Errorf("read wallet: %w", err)
		}
		if wallet == nil {
			return apperror.ErrWalletNotFound()
		}

		previous := wallet.Balance
		if req.Delta > 0 && previous > math.MaxInt64-req.Delta {
			return apperror.ErrInvalidAmount()
		}
		newBalance := previous + req.Delta
		if newBalance < 0 {
			return apperror.ErrInsufficientBalance(previous, req.Delta)
		}

		now := time.Now().UTC()
		wallet.Balance = newBalance

		from, to, amount := domain.SystemAccount, wallet.OwnerID, req.Delta
		if req.Delta < 0 {
			from, to, amount = wallet.OwnerID, domain.SystemAccount, -req.Delta
		}
		message := req.Reason
		if message == "" {
			message = adjustmentMessage(req.Delta)
		}

		entry := &domain.LedgerEntry{
			ID:         uuid.New(),
			OrderID:    domain.AdminReference(now),
			FromWallet: from,
			ToWallet:   to,
			Amount:     amount,
			Kind:       domain.LedgerKindAdminAdjustment,
			Message:    message,
			CreatedAt:  now,
		}

		tx.PutWallet(wallet)
		tx.AppendLedger(entry)

		result = &ports.AdjustmentResult{
			NewBalance:      newBalance,
			PreviousBalance: previous,
			LedgerEntryID:   entry.ID,
		}
		resp, err = recordResult(tx, idemKey, entry.ID, result, now)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, atomicError(opAdjustment, err)
	}

	e.replay.remember(ctx, idemKey, resp)

	if isReplay {
		e.log.Info().Str("idempotency_key", idemKey).Msg("adjustment replayed")
		return result, nil
	}

	e.log.Info().
		Str("admin_id", req.AdminID).
		Str("target_id", req.TargetID).
		Int64("delta", req.Delta).
		Int64("new_balance", result.NewBalance).
		Str("ledger_entry_id", result.LedgerEntryID.String()).
		Msg("balance adjusted")

	return result, nil
}

// SetPoints overrides a wallet's loyalty points. No ledger entry is written.
func (e *AdjustmentEngine) SetPoints(ctx context.Context, ownerID string, points int64) (_ *domain.Wallet, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(opSetPoints, outcomeOf(err), start) }()

	if ownerID == "" {
		return nil, apperror.Validation("owner_id is required")
	}
	if points < 0 {
		return nil, apperror.Validation("points must not be negative")
	}

	var updated *domain.Wallet
	err = e.transactor.RunAtomic(ctx, func(ctx context.Context, tx ports.Txn) error {
		wallet, err := tx.Wallet(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("read wallet: %w", err)
		}
		if wallet == nil {
			return apperror.ErrWalletNotFound()
		}
		wallet.LoyaltyPoints = points
		tx.PutWallet(wallet)
		updated = wallet
		return nil
	})
	if err != nil {
		return nil, atomicError(opSetPoints, err)
	}

	e.log.Info().Str("owner_id", ownerID).Int64("points", points).Msg("loyalty points overridden")
	return updated, nil
}

func adjustmentMessage(delta int64) string {
	if delta > 0 {
		return fmt.Sprintf("Admin balance adjustment: +₫%d", delta)
	}
	return fmt.Sprintf("Admin balance adjustment: ₫%d", delta)
}
