package domain

import (
	"time"

	"github.com/google/uuid"
)

// Idempotency scopes, one per replayable operation.
const (
	IdempotencyScopeTransfer   = "transfer"
	IdempotencyScopeAdjustment = "adjustment"
)

// IdempotencyRecord stores the result of a movement so a replayed request
// returns it instead of moving money again.
type IdempotencyRecord struct {
	Key           string    `json:"key"` // Format: "scope:caller:client_key"
	LedgerEntryID uuid.UUID `json:"ledger_entry_id"`
	Response      []byte    `json:"response"`
	CreatedAt     time.Time `json:"created_at"`
}

// BuildIdempotencyKey constructs the standard key format.
func BuildIdempotencyKey(scope, caller, clientKey string) string {
	return scope + ":" + caller + ":" + clientKey
}
