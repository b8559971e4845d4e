package monitor

import (
	"context"
	"log/slog"
	"time"

	"trademgr/internal/domain"
)

const (
	// DefaultPollInterval is how often the polling scheduler fetches quotes.
	DefaultPollInterval = 1 * time.Second

	// DefaultPollMinGap is the minimum gap between evaluations of the same
	// order under polling.
	DefaultPollMinGap = 500 * time.Millisecond
)

// PollingScheduler drives the manager from periodic REST quote snapshots. One
// fetch per interval covers all tracked symbols; a failed fetch skips the
// cycle and the next tick retries.
type PollingScheduler struct {
	manager *Manager
	quotes  domain.QuoteFetcher
	cache   domain.PriceCache // optional
	logger  *slog.Logger

	interval time.Duration
	gate     *evalGate

	cancel context.CancelFunc
	done   chan struct{}
}

// PollingConfig tunes a PollingScheduler. Zero values fall back to defaults.
type PollingConfig struct {
	Interval time.Duration
	MinGap   time.Duration
}

// NewPollingScheduler creates a polling scheduler over the given quote source.
func NewPollingScheduler(m *Manager, quotes domain.QuoteFetcher, cfg PollingConfig, logger *slog.Logger) *PollingScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = DefaultPollMinGap
	}
	return &PollingScheduler{
		manager:  m,
		quotes:   quotes,
		logger:   logger.With(slog.String("component", "polling_scheduler")),
		interval: cfg.Interval,
		gate:     newEvalGate(cfg.MinGap),
	}
}

// SetPriceCache attaches a cache that mirrors each fetched price.
func (s *PollingScheduler) SetPriceCache(c domain.PriceCache) { s.cache = c }

// Run polls until ctx is cancelled. It blocks; callers run it in a goroutine
// or an errgroup.
func (s *PollingScheduler) Run(ctx context.Context) error {
	s.logger.Info("polling started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("polling stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Start launches Run in a background goroutine. Pair with Stop.
func (s *PollingScheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		_ = s.Run(runCtx)
	}()
}

// Stop cancels a Start-ed scheduler and waits for the loop to exit, bounded
// by ctx.
func (s *PollingScheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *PollingScheduler) tick(ctx context.Context) {
	symbols := s.manager.Symbols()
	if len(symbols) == 0 {
		return
	}

	prices, err := s.quotes.GetQuotes(ctx, symbols)
	if err != nil {
		s.logger.WarnContext(ctx, "quote fetch failed, retrying next cycle",
			slog.Int("symbols", len(symbols)),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.cache != nil {
		now := time.Now().UTC()
		for sym, price := range prices {
			if err := s.cache.SetPrice(ctx, sym, price, now); err != nil {
				s.logger.DebugContext(ctx, "price cache write failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	for _, t := range s.manager.Tracked() {
		price, ok := prices[t.Symbol]
		if !ok {
			continue
		}
		if !s.gate.allow(t.OrderID) {
			continue
		}
		s.manager.Process(ctx, t.OrderID, price)
	}
}
