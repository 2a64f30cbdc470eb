package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/metrics"
	"qrpay-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExpiredReason is the failure reason written by ExpireStale.
const ExpiredReason = "expired"

// OrderServiceImpl implements ports.OrderService.
type OrderServiceImpl struct {
	orders     ports.OrderStore
	transactor ports.Transactor
	log        zerolog.Logger
}

// NewOrderService creates a new OrderServiceImpl.
func NewOrderService(orders ports.OrderStore, transactor ports.Transactor, log zerolog.Logger) *OrderServiceImpl {
	return &OrderServiceImpl{
		orders:     orders,
		transactor: transactor,
		log:        log,
	}
}

// CreateOrder opens a PENDING order against an existing merchant wallet.
func (s *OrderServiceImpl) CreateOrder(ctx context.Context, req ports.CreateOrderRequest) (_ *domain.Order, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(opCreateOrd, outcomeOf(err), start) }()

	if req.MerchantID == "" {
		return nil, apperror.Validation("merchant_id is required")
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Kind == "" {
		req.Kind = domain.OrderKindPayment
	}
	if !req.Kind.IsValid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown order kind %q", req.Kind))
	}

	var order *domain.Order
	err = s.transactor.RunAtomic(ctx, func(ctx context.Context, tx ports.Txn) error {
		merchant, err := tx.Wallet(ctx, req.MerchantID)
		if err != nil {
			return fmt.Errorf("read merchant wallet: %w", err)
		}
		if merchant == nil {
			return apperror.ErrMerchantWalletNotFound()
		}

		order = &domain.Order{
			ID:           uuid.NewString(),
			MerchantID:   merchant.OwnerID,
			MerchantName: merchant.DisplayName,
			Amount:       req.Amount,
			Kind:         req.Kind,
			Status:       domain.OrderStatusPending,
			CreatedAt:    time.Now().UTC(),
			Version:      1,
		}
		tx.InsertOrder(order)
		return nil
	})
	if err != nil {
		return nil, atomicError(opCreateOrd, err)
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("merchant_id", order.MerchantID).
		Int64("amount", order.Amount).
		Str("kind", string(order.Kind)).
		Msg("order created")

	return order, nil
}

// GetOrder returns the order or ORDER_NOT_FOUND.
func (s *OrderServiceImpl) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound()
	}
	return order, nil
}

// FailOrder moves a PENDING order to FAILED. Terminal orders are rejected
// with ORDER_ALREADY_PROCESSED.
func (s *OrderServiceImpl) FailOrder(ctx context.Context, id, reason string) (_ *domain.Order, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(opFailOrder, outcomeOf(err), start) }()

	if id == "" {
		return nil, apperror.Validation("order id is required")
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "cancelled"
	}

	var order *domain.Order
	err = s.transactor.RunAtomic(ctx, func(ctx context.Context, tx ports.Txn) error {
		current, err := tx.Order(ctx, id)
		if err != nil {
			return fmt.Errorf("read order: %w", err)
		}
		if current == nil {
			return apperror.ErrOrderNotFound()
		}
		if !current.CanTransitionTo(domain.OrderStatusFailed) {
			return apperror.ErrOrderAlreadyProcessed(strings.ToLower(string(current.Status)))
		}
		current.Fail(reason, time.Now().UTC())
		tx.PutOrder(current)
		order = current
		return nil
	})
	if err != nil {
		return nil, atomicError(opFailOrder, err)
	}

	s.log.Info().Str("order_id", id).Str("reason", reason).Msg("order failed")
	return order, nil
}

// ExpireStale fails up to limit PENDING orders created more than olderThan
// ago. Orders settled concurrently are skipped. Returns how many were failed.
func (s *OrderServiceImpl) ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	stale, err := s.orders.ListPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("list stale orders: %w", err))
	}

	expired := 0
	for _, o := range stale {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.FailOrder(ctx, o.ID, ExpiredReason); err != nil {
			if apperror.Is(err, apperror.CodeOrderAlreadyProcessed) {
				continue
			}
			s.log.Error().Err(err).Str("order_id", o.ID).Msg("failed to expire order")
			continue
		}
		expired++
	}

	if expired > 0 {
		metrics.OrdersExpired.Add(float64(expired))
	}
	return expired, nil
}
