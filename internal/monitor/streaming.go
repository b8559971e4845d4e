package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trademgr/internal/domain"
)

const (
	// DefaultStreamMinGap is the minimum gap between evaluations of the same
	// order under streaming. Live feeds tick far faster than polling, so the
	// gate is correspondingly tighter.
	DefaultStreamMinGap = 100 * time.Millisecond

	// subscriptionRefresh is how often the scheduler reconciles the stream's
	// subscriptions with the currently tracked symbols, picking up positions
	// registered after the stream connected.
	subscriptionRefresh = 2 * time.Second
)

// StreamingScheduler drives the manager from a live quote stream. Each tick
// is routed to every tracked order on that symbol, subject to the per-order
// evaluation gate. Reconnect handling and subscription replay live in the
// stream implementation; this scheduler only reconciles which symbols are
// subscribed as positions come and go.
type StreamingScheduler struct {
	manager *Manager
	stream  domain.QuoteStream
	cache   domain.PriceCache // optional
	logger  *slog.Logger

	gate *evalGate

	mu         sync.Mutex
	subscribed map[string]struct{}
	runCtx     context.Context
}

// StreamingConfig tunes a StreamingScheduler. Zero values fall back to
// defaults.
type StreamingConfig struct {
	MinGap time.Duration
}

// NewStreamingScheduler creates a streaming scheduler over the given stream.
func NewStreamingScheduler(m *Manager, stream domain.QuoteStream, cfg StreamingConfig, logger *slog.Logger) *StreamingScheduler {
	if cfg.MinGap <= 0 {
		cfg.MinGap = DefaultStreamMinGap
	}
	return &StreamingScheduler{
		manager:    m,
		stream:     stream,
		logger:     logger.With(slog.String("component", "streaming_scheduler")),
		gate:       newEvalGate(cfg.MinGap),
		subscribed: make(map[string]struct{}),
	}
}

// SetPriceCache attaches a cache that mirrors each streamed price.
func (s *StreamingScheduler) SetPriceCache(c domain.PriceCache) { s.cache = c }

// Run connects the stream and dispatches quotes until ctx is cancelled. It
// blocks; callers run it in a goroutine or an errgroup.
func (s *StreamingScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	// Register the handler before connecting so no early tick is lost.
	s.stream.OnQuote(s.handleQuote)

	if err := s.stream.Connect(ctx); err != nil {
		return err
	}
	defer s.stream.Close()

	s.logger.Info("streaming started")
	s.syncSubscriptions(ctx)

	ticker := time.NewTicker(subscriptionRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("streaming stopped")
			return ctx.Err()
		case <-ticker.C:
			s.syncSubscriptions(ctx)
		}
	}
}

// syncSubscriptions subscribes to tracked symbols the stream does not carry
// yet. Unsubscription is not reconciled: a stale symbol simply produces ticks
// that route to no orders.
func (s *StreamingScheduler) syncSubscriptions(ctx context.Context) {
	symbols := s.manager.Symbols()

	s.mu.Lock()
	var missing []string
	for _, sym := range symbols {
		if _, ok := s.subscribed[sym]; !ok {
			missing = append(missing, sym)
		}
	}
	s.mu.Unlock()

	if len(missing) == 0 {
		return
	}
	sort.Strings(missing)

	if err := s.stream.SubscribeQuotes(ctx, missing); err != nil {
		s.logger.WarnContext(ctx, "subscribe failed, retrying next refresh",
			slog.Int("symbols", len(missing)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	for _, sym := range missing {
		s.subscribed[sym] = struct{}{}
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "subscribed to quotes", slog.Any("symbols", missing))
}

func (s *StreamingScheduler) handleQuote(symbol string, price float64, ts time.Time) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, symbol, price, ts); err != nil {
			s.logger.DebugContext(ctx, "price cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, orderID := range s.manager.OrdersFor(symbol) {
		if !s.gate.allow(orderID) {
			continue
		}
		s.manager.Process(ctx, orderID, price)
	}
}
