package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/metrics"
	"qrpay-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransactionEngine implements ports.TransactionEngine. Each movement is one
// RunAtomic unit: every read and every write of the movement commits together
// or not at all.
type TransactionEngine struct {
	transactor ports.Transactor
	replay     replayCache
	log        zerolog.Logger
}

// NewTransactionEngine creates a TransactionEngine. cache may be nil.
func NewTransactionEngine(
	transactor ports.Transactor,
	cache ports.IdempotencyCache,
	idempotencyTTL time.Duration,
	log zerolog.Logger,
) *TransactionEngine {
	return &TransactionEngine{
		transactor: transactor,
		replay:     replayCache{cache: cache, ttl: idempotencyTTL, log: log},
		log:        log,
	}
}

// ExecutePayment settles a PENDING order from the payer's wallet.
func (e *TransactionEngine) ExecutePayment(ctx context.Context, req ports.PaymentRequest) (_ *ports.PaymentResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(opPayment, outcomeOf(err), start) }()

	if req.OrderID == "" || req.PayerID == "" {
		return nil, apperror.Validation("order_id and payer_id are required")
	}

	var result *ports.PaymentResult
	err = e.transactor.RunAtomic(ctx, func(ctx context.Context, tx ports.Txn) error {
		result = nil

		order, err := tx.Order(ctx, req.OrderID)
		if err != nil {
			return fmt.Errorf("read order: %w", err)
		}
		if order == nil {
			return apperror.ErrOrderNotFound()
		}
		if !order.CanTransitionTo(domain.OrderStatusCompleted) {
			return apperror.ErrOrderAlreadyProcessed(strings.ToLower(string(order.Status)))
		}
		if order.MerchantID == req.PayerID {
			return apperror.ErrSelfTransferForbidden()
		}

		payer, err := tx.Wallet(ctx, req.PayerID)
		if err != nil {
			return fmt.Errorf("read payer wallet: %w", err)
		}
		if payer == nil {
			return apperror.ErrPayerWalletNotFound()
		}

		merchant, err := tx.Wallet(ctx, order.MerchantID)
		if err != nil {
			return fmt.Errorf("read merchant wallet: %w", err)
		}
		if merchant == nil {
			return apperror.ErrMerchantWalletNotFound()
		}

		// Business rule: sufficient funds
		if !payer.CanDebit(order.Amount) {
			return apperror.ErrInsufficientFunds(payer.Balance, order.Amount)
		}
		if merchant.Balance > math.MaxInt64-order.Amount {
			return apperror.ErrInvalidAmount()
		}

		now := time.Now().UTC()
		points := domain.PointsFor(order.Amount)

		// Balance and points land in a single payer write.
		payer.Balance -= order.Amount
		payer.LoyaltyPoints += points
		merchant.Balance += order.Amount
		order.Complete(payer.OwnerID, now)

		entry := &domain.LedgerEntry{
			ID:         uuid.New(),
			OrderID:    order.ID,
			FromWallet: payer.OwnerID,
			ToWallet:   merchant.OwnerID,
			Amount:     order.Amount,
			Kind:       domain.LedgerKind(order.Kind),
			CreatedAt:  now,
		}

		tx.PutWallet(payer)
		tx.PutWallet(merchant)
		tx.PutOrder(order)
		tx.AppendLedger(entry)

		result = &ports.PaymentResult{
			OrderID:       order.ID,
			NewBalance:    payer.Balance,
			PointsEarned:  points,
			LedgerEntryID: entry.ID,
		}
		return nil
	})
	if err != nil {
		return nil, atomicError(opPayment, err)
	}

	e.log.Info().
		Str("order_id", result.OrderID).
		Str("payer_id", req.PayerID).
		Int64("points_earned", result.PointsEarned).
		Str("ledger_entry_id", result.LedgerEntryID.String()).
		Msg("payment executed")

	return result, nil
}

// ExecuteTransfer moves money from the sender to the wallet holding
// ReceiverAccountNumber. The receiver is resolved inside the atomic unit.
func (e *TransactionEngine) ExecuteTransfer(ctx context.Context, req ports.TransferRequest) (_ *ports.TransferResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(opTransfer, outcomeOf(err), start) }()

	if req.SenderID == "" || req.ReceiverAccountNumber == "" {
		return nil, apperror.Validation("sender_id and receiver_account_number are required")
	}

	var idemKey string
	if req.IdempotencyKey != "" {
		idemKey = domain.BuildIdempotencyKey(domain.IdempotencyScopeTransfer, req.SenderID, req.IdempotencyKey)

		// Layer 1: Redis idempotency check
		var cached ports.TransferResult
		if e.replay.lookup(ctx, idemKey, &cached) {
			return &cached, nil
		}
	}

	var (
		result   *ports.TransferResult
		resp     []byte
		isReplay bool
	)
	err = e.transactor.RunAtomic(ctx, func(ctx context.Context, tx ports.Txn) error {
		result, resp, isReplay = nil, nil, false

		// Layer 2: committed idempotency record, read in the same unit
		var prior ports.TransferResult
		stored, err := replayed(ctx, tx, idemKey, &prior)
		if err != nil {
			return fmt.Errorf("idempotency check: %w", err)
		}
		if stored != nil {
			result, resp, isReplay = &prior, stored, true
			return nil
		}

		receiver, err := tx.WalletByAccountNumber(ctx, req.ReceiverAccountNumber)
		if err != nil {
			return fmt.Errorf("resolve receiver: %w", err)
		}
		if receiver == nil {
			return apperror.ErrReceiverNotFound()
		}
		if receiver.OwnerID == req.SenderID {
			return apperror.ErrSelfTransferForbidden()
		}
		if req.Amount <= 0 {
			return apperror.ErrInvalidAmount()
		}

		sender, err := tx.Wallet(ctx, req.SenderID)
		if err != nil {
			return fmt.Errorf("read sender wallet: %w", err)
		}
		if sender == nil {
			return apperror.ErrSenderNotFound()
		}
		if !sender.CanDebit(req.Amount) {
			return apperror.ErrInsufficientFunds(sender.Balance, req.Amount)
		}
		if receiver.Balance > math.MaxInt64-req.Amount {
			return apperror.ErrInvalidAmount()
		}

		now := time.Now().UTC()
		sender.Balance -= req.Amount
		receiver.Balance += req.Amount

		entryID := uuid.New()
		entry := &domain.LedgerEntry{
			ID:         entryID,
			OrderID:    domain.P2PReference(entryID),
			FromWallet: sender.OwnerID,
			ToWallet:   receiver.OwnerID,
			Amount:     req.Amount,
			Kind:       domain.LedgerKindP2P,
			Message:    req.Message,
			CreatedAt:  now,
		}

		tx.PutWallet(sender)
		tx.PutWallet(receiver)
		tx.AppendLedger(entry)

		result = &ports.TransferResult{
			NewBalance:    sender.Balance,
			ReceiverName:  receiver.DisplayName,
			ReceiverID:    receiver.OwnerID,
			LedgerEntryID: entry.ID,
		}
		resp, err = recordResult(tx, idemKey, entry.ID, result, now)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, atomicError(opTransfer, err)
	}

	// Post-process: cache in Redis (best-effort)
	e.replay.remember(ctx, idemKey, resp)

	if isReplay {
		e.log.Info().Str("idempotency_key", idemKey).Msg("transfer replayed")
		return result, nil
	}

	e.log.Info().
		Str("sender_id", req.SenderID).
		Str("receiver_id", result.ReceiverID).
		Int64("amount", req.Amount).
		Str("ledger_entry_id", result.LedgerEntryID.String()).
		Msg("transfer executed")

	return result, nil
}
