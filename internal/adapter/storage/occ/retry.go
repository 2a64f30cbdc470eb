// Package occ holds the conflict-retry loop shared by the optimistic stores.
package occ

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/metrics"

	"github.com/rs/zerolog"
)

// Policy bounds how an atomic unit is retried after a commit conflict.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultPolicy is used when no ledger config is supplied.
var DefaultPolicy = Policy{
	MaxAttempts: 5,
	BaseBackoff: 5 * time.Millisecond,
	MaxBackoff:  200 * time.Millisecond,
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultPolicy.BaseBackoff
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	return p
}

// Backoff returns the sleep before retry number attempt (1-based):
// base * 2^(attempt-1) capped at max, with full jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	d := p.BaseBackoff
	for i := 1; i < attempt && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d/2 + rand.N(d/2+1)
}

// Retry runs attempt until it succeeds, returns a non-conflict error, the
// context ends, or MaxAttempts conflicts have been seen.
func Retry(ctx context.Context, p Policy, log zerolog.Logger, attempt func(ctx context.Context) error) error {
	p = p.normalized()

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("atomic unit cancelled: %w", err)
		}

		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ports.ErrConflict) {
			return err
		}

		metrics.CommitConflicts.Inc()
		if n >= p.MaxAttempts {
			metrics.CommitsExhausted.Inc()
			log.Warn().Int("attempts", n).Msg("atomic unit gave up after repeated conflicts")
			return fmt.Errorf("after %d attempts: %w", n, err)
		}

		wait := p.Backoff(n)
		log.Debug().Int("attempt", n).Dur("backoff", wait).Msg("commit conflict, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("atomic unit cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
