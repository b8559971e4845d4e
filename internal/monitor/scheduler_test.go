package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trademgr/internal/domain"
)

// fakeQuotes serves canned prices and can be switched to fail.
type fakeQuotes struct {
	mu      sync.Mutex
	prices  map[string]float64
	err     error
	fetches int
}

func (f *fakeQuotes) GetQuotes(ctx context.Context, symbols []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func TestEvalGate(t *testing.T) {
	g := newEvalGate(500 * time.Millisecond)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	assert.True(t, g.allow("ORD-1"))
	assert.False(t, g.allow("ORD-1")) // same instant: blocked

	now = now.Add(499 * time.Millisecond)
	assert.False(t, g.allow("ORD-1"))

	now = now.Add(1 * time.Millisecond)
	assert.True(t, g.allow("ORD-1"))

	// Independent per order.
	assert.True(t, g.allow("ORD-2"))

	// forget resets the record.
	g.forget("ORD-1")
	assert.True(t, g.allow("ORD-1"))
}

func TestEvalGateZeroGapAlwaysAllows(t *testing.T) {
	g := newEvalGate(0)
	assert.True(t, g.allow("ORD-1"))
	assert.True(t, g.allow("ORD-1"))
}

func TestPollingTickRoutesPrices(t *testing.T) {
	broker := &fakeBroker{}
	m := newTestManager(broker)
	ctx := context.Background()

	require.NoError(t, m.StartBreakeven("ORD-1", buyPosition("ORD-1"), ladderConfig(t)))

	quotes := &fakeQuotes{prices: map[string]float64{"XCME:ES.Z25": 5020}}
	s := NewPollingScheduler(m, quotes, PollingConfig{Interval: time.Second, MinGap: time.Nanosecond}, testLogger())

	s.tick(ctx)
	assert.Equal(t, 1, broker.callCount()) // breakeven level 1 committed

	// A failed fetch is tolerated: no panic, no broker traffic, retried next tick.
	quotes.mu.Lock()
	quotes.err = errors.New("quote service down")
	quotes.mu.Unlock()
	s.tick(ctx)
	assert.Equal(t, 1, broker.callCount())

	quotes.mu.Lock()
	quotes.err = nil
	quotes.prices["XCME:ES.Z25"] = 5040
	quotes.mu.Unlock()
	s.tick(ctx)
	assert.Equal(t, 2, broker.callCount()) // level 2 committed
}

func TestPollingTickSkipsWhenNothingTracked(t *testing.T) {
	m := newTestManager(&fakeBroker{})
	quotes := &fakeQuotes{prices: map[string]float64{}}
	s := NewPollingScheduler(m, quotes, PollingConfig{}, testLogger())

	s.tick(context.Background())
	assert.Equal(t, 0, quotes.fetches)
}

func TestPollingSchedulerStartStop(t *testing.T) {
	m := newTestManager(&fakeBroker{})
	quotes := &fakeQuotes{prices: map[string]float64{}}
	s := NewPollingScheduler(m, quotes, PollingConfig{Interval: 10 * time.Millisecond}, testLogger())

	s.Start(context.Background())

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
}

// fakeStream is an in-memory domain.QuoteStream.
type fakeStream struct {
	mu         sync.Mutex
	state      domain.StreamState
	subscribed []string
	handlers   []domain.QuoteHandler
}

func newFakeStream() *fakeStream {
	return &fakeStream{state: domain.StreamDisconnected}
}

func (f *fakeStream) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = domain.StreamConnected
	return nil
}

func (f *fakeStream) SubscribeQuotes(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, symbols...)
	return nil
}

func (f *fakeStream) OnQuote(h domain.QuoteHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
}

func (f *fakeStream) State() domain.StreamState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = domain.StreamClosed
	return nil
}

func (f *fakeStream) emit(symbol string, price float64) {
	f.mu.Lock()
	handlers := append([]domain.QuoteHandler(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(symbol, price, time.Now())
	}
}

func TestStreamingHandlerRoutesTicks(t *testing.T) {
	broker := &fakeBroker{}
	m := newTestManager(broker)

	require.NoError(t, m.StartBreakeven("ORD-1", buyPosition("ORD-1"), ladderConfig(t)))

	stream := newFakeStream()
	s := NewStreamingScheduler(m, stream, StreamingConfig{MinGap: time.Nanosecond}, testLogger())
	s.runCtx = context.Background()
	stream.OnQuote(s.handleQuote)

	stream.emit("XCME:ES.Z25", 5020)
	assert.Equal(t, 1, broker.callCount())

	// Ticks for untracked symbols route nowhere.
	stream.emit("XCME:NQ.Z25", 18000)
	assert.Equal(t, 1, broker.callCount())
}

func TestStreamingSyncSubscriptionsIsIncremental(t *testing.T) {
	m := newTestManager(&fakeBroker{})
	stream := newFakeStream()
	require.NoError(t, stream.Connect(context.Background()))

	s := NewStreamingScheduler(m, stream, StreamingConfig{}, testLogger())
	ctx := context.Background()

	require.NoError(t, m.StartBreakeven("ORD-1", buyPosition("ORD-1"), ladderConfig(t)))
	s.syncSubscriptions(ctx)
	assert.Equal(t, []string{"XCME:ES.Z25"}, stream.subscribed)

	// Nothing new: no extra subscribe traffic.
	s.syncSubscriptions(ctx)
	assert.Equal(t, []string{"XCME:ES.Z25"}, stream.subscribed)

	// A position registered mid-stream subscribes only its own symbol.
	nq := domain.NewPositionState("ORD-2", "ACC-1", "XCME:NQ.Z25", domain.Buy, 18000, 1)
	require.NoError(t, m.StartBreakeven("ORD-2", nq, ladderConfig(t)))
	s.syncSubscriptions(ctx)
	assert.Equal(t, []string{"XCME:ES.Z25", "XCME:NQ.Z25"}, stream.subscribed)
}

func TestStreamingHandlerAppliesGate(t *testing.T) {
	broker := &fakeBroker{}
	m := newTestManager(broker)

	require.NoError(t, m.StartBreakeven("ORD-1", buyPosition("ORD-1"), ladderConfig(t)))

	stream := newFakeStream()
	s := NewStreamingScheduler(m, stream, StreamingConfig{MinGap: time.Hour}, testLogger())
	s.runCtx = context.Background()
	stream.OnQuote(s.handleQuote)

	stream.emit("XCME:ES.Z25", 5020)
	stream.emit("XCME:ES.Z25", 5040)
	stream.emit("XCME:ES.Z25", 5060)

	// The gate admits one evaluation per hour per order.
	assert.Equal(t, 1, broker.callCount())
}
