// Package monitor is the trade-management runtime: a Manager owns the tracked
// positions and the commit discipline, and two interchangeable schedulers
// (polling and streaming) feed it prices. The engines it consults are pure
// decision functions with no awareness of which scheduler drives them.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"trademgr/internal/domain"
	"trademgr/internal/engine"
	"trademgr/internal/updater"
)

// DefaultMaxPriceDeviation rejects prices more than this fraction away from
// the entry price as bad data rather than a real market move.
const DefaultMaxPriceDeviation = 0.5

// Notifier receives operator-facing notifications for committed adjustments
// and runtime failures. Implemented by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TrackedOrder is the (order, symbol) pair a scheduler needs to route prices.
type TrackedOrder struct {
	OrderID string
	Symbol  string
}

type tracked struct {
	pos   *domain.PositionState
	beCfg *domain.AutoBreakevenConfig
	tpCfg *domain.RunningTPConfig
}

// Manager tracks managed positions, runs the decision engines on every
// forwarded price, and commits proposals through the throttled updater.
// Registration and removal are safe to call concurrently with tick
// processing; presence is re-checked inside the critical section immediately
// before any commit, so no update commits for a removed position.
type Manager struct {
	upd          *updater.Throttled
	maxDeviation float64
	logger       *slog.Logger

	journal  domain.AdjustmentJournal // optional
	notifier Notifier                 // optional

	mu        sync.Mutex
	positions map[string]*tracked

	newID func() string
}

// ManagerConfig tunes a Manager. Zero values fall back to defaults.
type ManagerConfig struct {
	// MaxPriceDeviation is the fraction of the entry price beyond which a
	// tick is dropped as bad data.
	MaxPriceDeviation float64
}

// NewManager creates a Manager that commits through upd.
func NewManager(upd *updater.Throttled, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.MaxPriceDeviation <= 0 {
		cfg.MaxPriceDeviation = DefaultMaxPriceDeviation
	}
	return &Manager{
		upd:          upd,
		maxDeviation: cfg.MaxPriceDeviation,
		logger:       logger.With(slog.String("component", "trade_manager")),
		positions:    make(map[string]*tracked),
		newID:        uuid.NewString,
	}
}

// SetJournal attaches an adjustment journal. Journal failures are logged and
// never interrupt monitoring.
func (m *Manager) SetJournal(j domain.AdjustmentJournal) { m.journal = j }

// SetNotifier attaches an operator notifier.
func (m *Manager) SetNotifier(n Notifier) { m.notifier = n }

// StartBreakeven registers a position for auto-breakeven management.
// Re-registering an order_id replaces the prior state and config. A disabled
// config is accepted but registers nothing, matching the caller-facing
// contract that only construction/registration errors are surfaced.
func (m *Manager) StartBreakeven(orderID string, pos *domain.PositionState, cfg domain.AutoBreakevenConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("monitor: breakeven config for %s: %w", orderID, err)
	}
	if !cfg.Enabled {
		m.logger.Warn("auto breakeven disabled, not registering", slog.String("order_id", orderID))
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(orderID, pos)
	e.beCfg = &cfg
	m.logger.Info("auto breakeven monitoring started",
		slog.String("order_id", orderID),
		slog.String("symbol", pos.Symbol),
		slog.Int("levels", len(cfg.TriggerLevels)),
	)
	return nil
}

// StartRunningTP registers a position for running take-profit management.
// Re-registering an order_id replaces the prior state and config.
func (m *Manager) StartRunningTP(orderID string, pos *domain.PositionState, cfg domain.RunningTPConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("monitor: running tp config for %s: %w", orderID, err)
	}
	if !cfg.Enabled {
		m.logger.Warn("running tp disabled, not registering", slog.String("order_id", orderID))
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(orderID, pos)
	e.tpCfg = &cfg
	m.logger.Info("running tp monitoring started",
		slog.String("order_id", orderID),
		slog.String("symbol", pos.Symbol),
	)
	return nil
}

// entryLocked returns the tracked entry for orderID, replacing its position
// state when the caller supplies a new one. Caller must hold m.mu.
func (m *Manager) entryLocked(orderID string, pos *domain.PositionState) *tracked {
	e, ok := m.positions[orderID]
	if !ok {
		e = &tracked{}
		m.positions[orderID] = e
	}
	if e.pos != pos {
		e.pos = pos
	}
	return e
}

// Stop removes a position from management and clears its throttle records.
// It is safe to call concurrently with an in-flight evaluation for the same
// order: any evaluation that has not yet committed will observe the removal
// and drop its result.
func (m *Manager) Stop(orderID string) {
	m.mu.Lock()
	_, ok := m.positions[orderID]
	delete(m.positions, orderID)
	m.mu.Unlock()

	if ok {
		m.upd.Forget(orderID)
		m.logger.Info("monitoring stopped", slog.String("order_id", orderID))
	}
}

// Tracked returns the (order, symbol) pairs currently under management.
func (m *Manager) Tracked() []TrackedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TrackedOrder, 0, len(m.positions))
	for id, e := range m.positions {
		out = append(out, TrackedOrder{OrderID: id, Symbol: e.pos.Symbol})
	}
	return out
}

// Symbols returns the distinct symbols across all tracked positions.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{}, len(m.positions))
	out := make([]string, 0, len(m.positions))
	for _, e := range m.positions {
		if _, ok := seen[e.pos.Symbol]; ok {
			continue
		}
		seen[e.pos.Symbol] = struct{}{}
		out = append(out, e.pos.Symbol)
	}
	return out
}

// OrdersFor returns the order IDs tracked for one symbol.
func (m *Manager) OrdersFor(symbol string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, e := range m.positions {
		if e.pos.Symbol == symbol {
			out = append(out, id)
		}
	}
	return out
}

// Process evaluates one price for one tracked order and commits whatever the
// engines propose. Runtime failures are logged, never returned: a failed
// update must not stop monitoring of other positions.
func (m *Manager) Process(ctx context.Context, orderID string, price float64) {
	m.mu.Lock()
	e, ok := m.positions[orderID]
	if !ok {
		m.mu.Unlock()
		return
	}
	pos := e.pos

	if price <= 0 || math.Abs(price-pos.EntryPrice) > m.maxDeviation*pos.EntryPrice {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "invalid tick dropped",
			slog.String("order_id", orderID),
			slog.String("symbol", pos.Symbol),
			slog.Float64("price", price),
			slog.Float64("entry", pos.EntryPrice),
		)
		return
	}

	// Extremes fold in every valid tick, before any trigger check.
	pos.UpdateExtremes(price)

	var slProp *engine.StopLossProposal
	if e.beCfg != nil {
		if p, ok := engine.EvaluateBreakeven(pos, *e.beCfg, price); ok {
			slProp = &p
		}
	}
	var tpProp *engine.TakeProfitProposal
	if e.tpCfg != nil {
		if p, ok := engine.EvaluateRunningTP(pos, *e.tpCfg, price); ok {
			tpProp = &p
		}
	}
	m.mu.Unlock()

	if slProp != nil {
		m.applyStopLoss(ctx, pos, *slProp, price)
	}
	if tpProp != nil {
		m.applyTakeProfit(ctx, pos, *tpProp, price)
	}
}

func (m *Manager) applyStopLoss(ctx context.Context, pos *domain.PositionState, p engine.StopLossProposal, price float64) {
	outcome, err := m.upd.Apply(ctx, pos, domain.FieldStopLoss, p.NewStopLoss)
	if err != nil {
		m.logger.ErrorContext(ctx, "stop loss update failed",
			slog.String("order_id", pos.OrderID),
			slog.Float64("new_stop_loss", p.NewStopLoss),
			slog.String("error", err.Error()),
		)
		m.notify(ctx, "failure", "Stop loss update failed",
			fmt.Sprintf("%s %s: could not move SL to %.2f: %v", pos.Symbol, pos.OrderID, p.NewStopLoss, err))
		return
	}
	if outcome != updater.OutcomeCommitted {
		return
	}

	m.mu.Lock()
	if _, still := m.positions[pos.OrderID]; !still {
		m.mu.Unlock()
		return
	}
	old := pos.CurrentStopLoss
	v := p.NewStopLoss
	pos.CurrentStopLoss = &v
	if p.Level >= 0 {
		// The proposal's level may sit past levels the engine skipped because
		// their targets were already behind the stop; those count as done too.
		pos.BreakevenMovesCompleted = p.Level + 1
	}
	moves := pos.BreakevenMovesCompleted
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "stop loss moved",
		slog.String("order_id", pos.OrderID),
		slog.String("symbol", pos.Symbol),
		slog.Float64("stop_loss", p.NewStopLoss),
		slog.String("reason", p.Reason),
		slog.Int("moves_completed", moves),
	)
	m.record(ctx, pos, domain.FieldStopLoss, old, p.NewStopLoss, price, p.Reason)
	m.notify(ctx, "breakeven", "Stop loss moved",
		fmt.Sprintf("%s %s: SL → %.2f (%s)", pos.Symbol, pos.OrderID, p.NewStopLoss, p.Reason))
}

func (m *Manager) applyTakeProfit(ctx context.Context, pos *domain.PositionState, p engine.TakeProfitProposal, price float64) {
	outcome, err := m.upd.Apply(ctx, pos, domain.FieldTakeProfit, p.NewTakeProfit)
	if err != nil {
		m.logger.ErrorContext(ctx, "take profit update failed",
			slog.String("order_id", pos.OrderID),
			slog.Float64("new_take_profit", p.NewTakeProfit),
			slog.String("error", err.Error()),
		)
		m.notify(ctx, "failure", "Take profit update failed",
			fmt.Sprintf("%s %s: could not move TP to %.2f: %v", pos.Symbol, pos.OrderID, p.NewTakeProfit, err))
		return
	}
	if outcome != updater.OutcomeCommitted {
		return
	}

	m.mu.Lock()
	if _, still := m.positions[pos.OrderID]; !still {
		m.mu.Unlock()
		return
	}
	old := pos.CurrentTakeProfit
	v := p.NewTakeProfit
	pos.CurrentTakeProfit = &v
	pos.TPMovesCompleted++
	if p.ProfitLevel >= 0 {
		pos.MarkProfitLevelFired(p.ProfitLevel)
	}
	moves := pos.TPMovesCompleted
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "take profit moved",
		slog.String("order_id", pos.OrderID),
		slog.String("symbol", pos.Symbol),
		slog.Float64("take_profit", p.NewTakeProfit),
		slog.String("reason", p.Reason),
		slog.Int("moves_completed", moves),
	)
	m.record(ctx, pos, domain.FieldTakeProfit, old, p.NewTakeProfit, price, p.Reason)
	m.notify(ctx, "running_tp", "Take profit moved",
		fmt.Sprintf("%s %s: TP → %.2f (%s)", pos.Symbol, pos.OrderID, p.NewTakeProfit, p.Reason))
}

// record journals one committed adjustment, best-effort.
func (m *Manager) record(ctx context.Context, pos *domain.PositionState, field domain.AdjustmentField, old *float64, value, price float64, reason string) {
	if m.journal == nil {
		return
	}
	ev := domain.AdjustmentEvent{
		ID:        m.newID(),
		OrderID:   pos.OrderID,
		AccountID: pos.AccountID,
		Symbol:    pos.Symbol,
		Side:      pos.Side,
		Field:     field,
		OldValue:  old,
		NewValue:  value,
		Price:     price,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.journal.Record(ctx, ev); err != nil {
		m.logger.WarnContext(ctx, "journal record failed",
			slog.String("order_id", pos.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

// notify sends an operator notification, best-effort.
func (m *Manager) notify(ctx context.Context, event, title, message string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, event, title, message); err != nil {
		m.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
