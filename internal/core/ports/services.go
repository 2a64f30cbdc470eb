package ports

import (
	"context"
	"time"

	"qrpay-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// Admin roles carried in tokens.
const (
	RoleAdmin = "admin"
)

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// TransactionEngine moves money between wallets.
type TransactionEngine interface {
	ExecutePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	ExecuteTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// PaymentRequest pays one PENDING order from the payer's wallet.
type PaymentRequest struct {
	OrderID string
	PayerID string
}

// PaymentResult is returned once an order is settled.
type PaymentResult struct {
	OrderID       string    `json:"order_id"`
	NewBalance    int64     `json:"new_balance"`
	PointsEarned  int64     `json:"points_earned"`
	LedgerEntryID uuid.UUID `json:"ledger_entry_id"`
}

// TransferRequest moves amount from sender to the wallet owning ReceiverAccountNumber.
type TransferRequest struct {
	SenderID              string
	ReceiverAccountNumber string
	Amount                int64
	Message               string
	IdempotencyKey        string // optional
}

// TransferResult is returned once a peer transfer commits.
type TransferResult struct {
	NewBalance    int64     `json:"new_balance"`
	ReceiverName  string    `json:"receiver_name"`
	ReceiverID    string    `json:"receiver_id"`
	LedgerEntryID uuid.UUID `json:"ledger_entry_id"`
}

// AdjustmentEngine applies privileged balance and points corrections.
type AdjustmentEngine interface {
	AdjustBalance(ctx context.Context, req AdjustmentRequest) (*AdjustmentResult, error)
	SetPoints(ctx context.Context, ownerID string, points int64) (*domain.Wallet, error)
}

// AdjustmentRequest credits (Delta > 0) or debits (Delta < 0) a wallet against SYSTEM.
type AdjustmentRequest struct {
	TargetID       string
	Delta          int64
	Reason         string
	AdminID        string
	IdempotencyKey string // optional
}

// AdjustmentResult reports the balance before and after the adjustment.
type AdjustmentResult struct {
	NewBalance      int64     `json:"new_balance"`
	PreviousBalance int64     `json:"previous_balance"`
	LedgerEntryID   uuid.UUID `json:"ledger_entry_id"`
}

// AccountNumberAllocator draws unused account numbers.
type AccountNumberAllocator interface {
	Allocate(ctx context.Context) (string, error)
}

// WalletService registers and looks up wallets.
type WalletService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.Wallet, bool, error) // wallet, created, error
	GetWallet(ctx context.Context, ownerID string) (*domain.Wallet, error)
	ListWallets(ctx context.Context, limit, offset int) ([]domain.Wallet, int64, error)
}

// RegisterRequest holds input for wallet registration.
type RegisterRequest struct {
	OwnerID     string
	DisplayName string
	BankName    string
}

// OrderService manages merchant orders outside of payment.
type OrderService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	FailOrder(ctx context.Context, id, reason string) (*domain.Order, error)
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// CreateOrderRequest holds input for a new PENDING order.
type CreateOrderRequest struct {
	MerchantID string
	Amount     int64
	Kind       domain.OrderKind
}

// LedgerService answers audit queries over the ledger.
type LedgerService interface {
	WalletHistory(ctx context.Context, ownerID string, limit, offset int) ([]domain.LedgerEntry, int64, error)
	OrderHistory(ctx context.Context, orderID string) ([]domain.LedgerEntry, error)
	Reconcile(ctx context.Context) (*Reconciliation, error)
	StoredResult(ctx context.Context, scope, caller, clientKey string) (*domain.IdempotencyRecord, error)
}

// Reconciliation compares money held by wallets with money issued by SYSTEM.
type Reconciliation struct {
	WalletTotal int64     `json:"wallet_total"`
	SystemNet   int64     `json:"system_net"`
	Balanced    bool      `json:"balanced"`
	CheckedAt   time.Time `json:"checked_at"`
}
