package service

import (
	"errors"
	"fmt"

	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/metrics"
	"qrpay-gateway/pkg/apperror"
)

// Operation names used for metrics labels and log fields.
const (
	opPayment    = "payment"
	opTransfer   = "transfer"
	opAdjustment = "adjustment"
	opSetPoints  = "set_points"
	opRegister   = "register"
	opCreateOrd  = "create_order"
	opFailOrder  = "fail_order"
)

// atomicError maps what RunAtomic returned onto the application error set.
// Business errors raised inside the unit pass through untouched.
func atomicError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, ports.ErrConflict) {
		return apperror.ErrConflict(fmt.Errorf("%s: %w", op, err))
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}

// outcomeOf classifies err for the operations counter.
func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Kind != apperror.KindInternal && appErr.Kind != apperror.KindConflict {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}
