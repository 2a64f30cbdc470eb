package service

import (
	"context"
	"encoding/json"
	"time"

	"qrpay-gateway/internal/core/domain"
	"qrpay-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// replayCache is the Redis fast path in front of the idempotency records
// written inside each atomic unit. A nil cache disables the fast path.
type replayCache struct {
	cache ports.IdempotencyCache
	ttl   time.Duration
	log   zerolog.Logger
}

// lookup decodes a cached response into out. Cache failures fall through to the store.
func (c replayCache) lookup(ctx context.Context, key string, out any) bool {
	if c.cache == nil || key == "" {
		return false
	}
	cached, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to store")
		return false
	}
	if cached == nil {
		return false
	}
	if err := json.Unmarshal(cached, out); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("discarding unreadable cached response")
		return false
	}
	return true
}

// remember caches resp after commit (best-effort).
func (c replayCache) remember(ctx context.Context, key string, resp []byte) {
	if c.cache == nil || key == "" || resp == nil {
		return
	}
	if err := c.cache.Set(ctx, key, resp, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
	}
}

// replayed loads a committed record inside the unit. It returns the stored
// response when key was already used, nil otherwise.
func replayed(ctx context.Context, tx ports.Txn, key string, out any) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := tx.Idempotency(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if err := json.Unmarshal(rec.Response, out); err != nil {
		return nil, err
	}
	return rec.Response, nil
}

// recordResult buffers the idempotency record for result in the same unit as the movement.
func recordResult(tx ports.Txn, key string, entryID uuid.UUID, result any, at time.Time) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	resp, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	tx.PutIdempotency(&domain.IdempotencyRecord{
		Key:           key,
		LedgerEntryID: entryID,
		Response:      resp,
		CreatedAt:     at,
	})
	return resp, nil
}
