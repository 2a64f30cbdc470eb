package domain

import (
	"time"
)

// DefaultCurrency is the only currency wallets are denominated in.
const DefaultCurrency = "VND"

// SystemAccount is the synthetic counterparty for money entering or leaving
// the wallet population (opening balances, admin adjustments).
const SystemAccount = "SYSTEM"

// PointsPerUnit is the amount of currency that earns one loyalty point.
const PointsPerUnit int64 = 10_000

// Wallet is a currency balance and identity record owned by one user or merchant.
type Wallet struct {
	OwnerID       string    `json:"owner_id"`
	DisplayName   string    `json:"display_name"`
	BankName      string    `json:"bank_name"`
	AccountNumber string    `json:"account_number"`
	Balance       int64     `json:"balance"` // In smallest unit (VND)
	LoyaltyPoints int64     `json:"loyalty_points"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int64     `json:"-"` // Optimistic concurrency token
}

// CanDebit reports whether the wallet holds at least amount.
func (w *Wallet) CanDebit(amount int64) bool {
	return w.Balance >= amount
}

// Clone returns a copy safe to mutate without touching the original.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	c := *w
	return &c
}

// PointsFor returns the loyalty points earned for a payment of amount,
// truncated toward zero.
func PointsFor(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return amount / PointsPerUnit
}
