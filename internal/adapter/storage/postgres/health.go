package postgres

import (
	"context"
	"time"

	"qrpay-gateway/config"
)

// healthTimeout keeps /health from hanging on an exhausted pool.
const healthTimeout = 2 * time.Second

// HealthCheck reports whether the postgres ledger store answers queries.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping runs a trivial query through the same pool the transactor uses.
func (h *HealthCheck) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	_, err := h.pool.Exec(ctx, "SELECT 1")
	return err
}

// Name matches the store driver name.
func (h *HealthCheck) Name() string {
	return config.DriverPostgres
}
