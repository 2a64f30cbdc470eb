package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerKind represents the kind of money movement.
type LedgerKind string

const (
	LedgerKindPayment         LedgerKind = "payment"
	LedgerKindReward          LedgerKind = "reward"
	LedgerKindP2P             LedgerKind = "p2p"
	LedgerKindAdminAdjustment LedgerKind = "admin_adjustment"
	LedgerKindOpeningBalance  LedgerKind = "opening_balance"
)

// LedgerEntry is an immutable record of one completed money movement.
type LedgerEntry struct {
	ID         uuid.UUID  `json:"id"`
	OrderID    string     `json:"order_id"`
	FromWallet string     `json:"from_wallet"`
	ToWallet   string     `json:"to_wallet"`
	Amount     int64      `json:"amount"`
	Kind       LedgerKind `json:"kind"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Involves reports whether ownerID is on either side of the entry.
func (e *LedgerEntry) Involves(ownerID string) bool {
	return e.FromWallet == ownerID || e.ToWallet == ownerID
}

// SystemNet returns how much the entry moved out of SYSTEM into wallets.
// Negative when money flowed back to SYSTEM, zero for wallet-to-wallet moves.
func (e *LedgerEntry) SystemNet() int64 {
	switch {
	case e.FromWallet == SystemAccount && e.ToWallet != SystemAccount:
		return e.Amount
	case e.ToWallet == SystemAccount && e.FromWallet != SystemAccount:
		return -e.Amount
	}
	return 0
}

// P2PReference builds the synthetic order id of a peer transfer.
func P2PReference(entryID uuid.UUID) string {
	return "p2p-" + entryID.String()[:8]
}

// AdminReference builds the synthetic order id of an admin adjustment.
func AdminReference(at time.Time) string {
	return fmt.Sprintf("admin-%d", at.UnixMilli())
}

// OpeningReference builds the synthetic order id of a wallet's opening balance.
func OpeningReference(ownerID string) string {
	return "open-" + ownerID
}
