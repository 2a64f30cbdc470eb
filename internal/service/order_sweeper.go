package service

import (
	"context"
	"sync"
	"time"

	"qrpay-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// OrderSweeper periodically fails PENDING orders older than TTL.
type OrderSweeper struct {
	orders   ports.OrderService
	ttl      time.Duration
	interval time.Duration
	batch    int
	log      zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOrderSweeper creates a sweeper. A non-positive ttl disables it.
func NewOrderSweeper(orders ports.OrderService, ttl, interval time.Duration, batch int, log zerolog.Logger) *OrderSweeper {
	if batch <= 0 {
		batch = 100
	}
	return &OrderSweeper{
		orders:   orders,
		ttl:      ttl,
		interval: interval,
		batch:    batch,
		log:      log,
	}
}

// Start begins sweeping in the background.
func (s *OrderSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl <= 0 || s.interval <= 0 {
		s.log.Info().Msg("order sweeper disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.log.Info().Dur("ttl", s.ttl).Dur("interval", s.interval).Msg("order sweeper started")
}

// Stop halts the sweeper and waits for an in-flight sweep to finish.
func (s *OrderSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info().Msg("order sweeper stopped")
}

func (s *OrderSweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-stop:
			return
		}
	}
}

// SweepOnce runs a single expiry pass and returns how many orders were failed.
func (s *OrderSweeper) SweepOnce(ctx context.Context) int {
	expired, err := s.orders.ExpireStale(ctx, s.ttl, s.batch)
	if err != nil {
		s.log.Error().Err(err).Msg("order sweep failed")
		return 0
	}
	if expired > 0 {
		s.log.Info().Int("expired", expired).Msg("stale orders expired")
	}
	return expired
}
