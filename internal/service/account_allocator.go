package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// AccountAllocatorConfig shapes generated account numbers.
type AccountAllocatorConfig struct {
	Prefix      string
	Digits      int
	MaxAttempts int
}

// AccountAllocator implements ports.AccountNumberAllocator.
//
// Allocate only guarantees the number was unused when checked. The unique
// index on wallet insert completes the reservation.
type AccountAllocator struct {
	wallets ports.WalletStore
	cfg     AccountAllocatorConfig
	random  io.Reader
	log     zerolog.Logger
}

// NewAccountAllocator creates an allocator. A nil random uses crypto/rand.
func NewAccountAllocator(wallets ports.WalletStore, cfg AccountAllocatorConfig, random io.Reader, log zerolog.Logger) *AccountAllocator {
	if cfg.Digits < 1 {
		cfg.Digits = 8
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 10
	}
	if random == nil {
		random = rand.Reader
	}
	return &AccountAllocator{wallets: wallets, cfg: cfg, random: random, log: log}
}

// Allocate draws candidates until one is unused or attempts run out.
func (a *AccountAllocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		candidate, err := a.draw()
		if err != nil {
			return "", apperror.InternalError(fmt.Errorf("draw account number: %w", err))
		}

		exists, err := a.wallets.AccountNumberExists(ctx, candidate)
		if err != nil {
			return "", apperror.InternalError(fmt.Errorf("check account number: %w", err))
		}
		if !exists {
			return candidate, nil
		}
		a.log.Debug().Int("attempt", attempt).Str("account_number", candidate).Msg("account number collision")
	}

	a.log.Error().Int("attempts", a.cfg.MaxAttempts).Msg("account number space exhausted")
	return "", apperror.ErrAllocationExhausted(a.cfg.MaxAttempts)
}

// draw reads one decimal digit per byte, rejecting bytes >= 250 so every
// digit is equally likely.
func (a *AccountAllocator) draw() (string, error) {
	var sb strings.Builder
	sb.Grow(len(a.cfg.Prefix) + a.cfg.Digits)
	sb.WriteString(a.cfg.Prefix)

	buf := make([]byte, a.cfg.Digits)
	for remaining := a.cfg.Digits; remaining > 0; {
		if _, err := io.ReadFull(a.random, buf[:remaining]); err != nil {
			return "", err
		}
		for _, b := range buf[:remaining] {
			if b >= 250 {
				continue
			}
			sb.WriteByte('0' + b%10)
			remaining--
		}
	}
	return sb.String(), nil
}
