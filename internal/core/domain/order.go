package domain

import (
	"time"
)

// OrderKind distinguishes what a merchant order is for.
type OrderKind string

const (
	OrderKindPayment OrderKind = "payment"
	OrderKindReward  OrderKind = "reward"
)

// IsValid reports whether k is a known order kind.
func (k OrderKind) IsValid() bool {
	return k == OrderKindPayment || k == OrderKindReward
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// Order is a pending invoice awaiting a single completing payment.
type Order struct {
	ID            string      `json:"id"`
	MerchantID    string      `json:"merchant_id"`
	MerchantName  string      `json:"merchant_name"`
	Amount        int64       `json:"amount"`
	Kind          OrderKind   `json:"kind"`
	Status        OrderStatus `json:"status"`
	PayerID       *string     `json:"payer_id,omitempty"`
	FailureReason *string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	FailedAt      *time.Time  `json:"failed_at,omitempty"`
	Version       int64       `json:"-"`
}

// IsTerminal returns true once the order has left PENDING.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusFailed
}

// CanTransitionTo reports whether moving to next is allowed.
// Only PENDING -> COMPLETED and PENDING -> FAILED exist.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	if o.Status != OrderStatusPending {
		return false
	}
	return next == OrderStatusCompleted || next == OrderStatusFailed
}

// Complete marks the order as paid by payerID.
func (o *Order) Complete(payerID string, at time.Time) {
	o.Status = OrderStatusCompleted
	o.PayerID = &payerID
	o.CompletedAt = &at
}

// Fail marks the order as failed with reason.
func (o *Order) Fail(reason string, at time.Time) {
	o.Status = OrderStatusFailed
	o.FailureReason = &reason
	o.FailedAt = &at
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.PayerID != nil {
		p := *o.PayerID
		c.PayerID = &p
	}
	if o.FailureReason != nil {
		r := *o.FailureReason
		c.FailureReason = &r
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	if o.FailedAt != nil {
		t := *o.FailedAt
		c.FailedAt = &t
	}
	return &c
}
