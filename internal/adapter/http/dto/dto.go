package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RegisterWalletRequest is the request body for wallet registration.
type RegisterWalletRequest struct {
	OwnerID     string `json:"owner_id" binding:"required,max=128,safe_id"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=100"`
	BankName    string `json:"bank_name" binding:"max=100"`
}

// CreateOrderRequest is the request body for opening a merchant order.
type CreateOrderRequest struct {
	MerchantID string `json:"merchant_id" binding:"required,max=128,safe_id"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	Kind       string `json:"kind" binding:"omitempty,oneof=payment reward"`
}

// CancelOrderRequest is the optional body of an order cancellation.
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=200"`
}

// PaymentRequest is the request body for paying an order by QR scan.
type PaymentRequest struct {
	OrderID string `json:"order_id" binding:"required,max=128,safe_id"`
	PayerID string `json:"payer_id" binding:"required,max=128,safe_id"`
}

// TransferRequest is the request body for a peer transfer. Amount is checked
// by the engine so rejection order stays receiver, self, amount.
type TransferRequest struct {
	SenderID              string `json:"sender_id" binding:"required,max=128,safe_id"`
	ReceiverAccountNumber string `json:"receiver_account_number" binding:"required,account_number"`
	Amount                int64  `json:"amount"`
	Message               string `json:"message" binding:"max=200"`
}

// AdjustmentRequest is the request body for an admin balance adjustment.
// Amount is signed: positive credits, negative debits.
type AdjustmentRequest struct {
	TargetID string `json:"target_id" binding:"required,max=128,safe_id"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason" binding:"max=200"`
}

// SetPointsRequest is the request body for the loyalty points override.
type SetPointsRequest struct {
	Points *int64 `json:"points" binding:"required,gte=0"`
}

// StoredResultResponse is a committed idempotency record with its result
// embedded as JSON.
type StoredResultResponse struct {
	Key           string          `json:"key"`
	LedgerEntryID uuid.UUID       `json:"ledger_entry_id"`
	Result        json.RawMessage `json:"result"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PageQuery binds limit/offset query parameters.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// IssueTokenResponse is the body returned by the admin token CLI.
type IssueTokenResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}
