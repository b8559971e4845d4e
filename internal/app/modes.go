package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"trademgr/internal/domain"
	"trademgr/internal/monitor"
	"trademgr/internal/platform/ironbeam"
)

// time24h converts a day count into a duration.
func time24h(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// registerPositions converts the configured bracket orders into domain state
// and registers them with the trade manager.
func (a *App) registerPositions(deps *Dependencies) error {
	for i, p := range a.cfg.Positions {
		side := domain.Buy
		if strings.ToUpper(p.Side) == "SELL" {
			side = domain.Sell
		}

		pos := domain.NewPositionState(p.OrderID, a.cfg.Broker.AccountID, p.Symbol, side, p.EntryPrice, p.Quantity)
		if p.StopLoss > 0 {
			sl := p.StopLoss
			pos.CurrentStopLoss = &sl
		}
		if p.TakeProfit > 0 {
			tp := p.TakeProfit
			pos.CurrentTakeProfit = &tp
		}

		if p.Breakeven.Enabled {
			cfg := domain.AutoBreakevenConfig{
				TriggerMode:          domain.TriggerMode(p.Breakeven.TriggerMode),
				TriggerLevels:        p.Breakeven.TriggerLevels,
				SLOffsets:            p.Breakeven.SLOffsets,
				Enabled:              true,
				TrailAfterCompletion: p.Breakeven.TrailAfterCompletion,
				TrailDistance:        p.Breakeven.TrailDistance,
			}
			if cfg.TriggerMode == "" {
				cfg.TriggerMode = domain.TriggerTicks
			}
			if err := deps.Manager.StartBreakeven(p.OrderID, pos, cfg); err != nil {
				return fmt.Errorf("app: positions[%d]: %w", i, err)
			}
		}

		if p.RunningTP.Enabled {
			cfg := domain.RunningTPConfig{
				Enabled:                 true,
				EnableTrailingExtremes:  p.RunningTP.EnableTrailingExtremes,
				EnableProfitLevels:      p.RunningTP.EnableProfitLevels,
				ProfitTriggerMode:       domain.TriggerMode(p.RunningTP.ProfitTriggerMode),
				ProfitLevelTriggers:     p.RunningTP.ProfitLevelTriggers,
				ExtendByTicks:           p.RunningTP.ExtendByTicks,
				TrailOffsetTicks:        p.RunningTP.TrailOffsetTicks,
				ResistanceSupportLevels: p.RunningTP.ResistanceSupportLevels,
				TrailingLookbackTicks:   p.RunningTP.TrailingLookbackTicks,
			}
			if cfg.ProfitTriggerMode == "" {
				cfg.ProfitTriggerMode = domain.TriggerTicks
			}
			if err := deps.Manager.StartRunningTP(p.OrderID, pos, cfg); err != nil {
				return fmt.Errorf("app: positions[%d]: %w", i, err)
			}
		}
	}

	a.logger.Info("positions registered", slog.Int("count", len(a.cfg.Positions)))
	return nil
}

// PollingMode runs the polling scheduler (plus the archiver when configured)
// until the context is cancelled.
func (a *App) PollingMode(ctx context.Context, deps *Dependencies) error {
	if err := a.registerPositions(deps); err != nil {
		return err
	}

	scheduler := monitor.NewPollingScheduler(deps.Manager, deps.Broker, monitor.PollingConfig{
		Interval: a.cfg.Monitor.PollInterval.Duration,
		MinGap:   a.cfg.Monitor.PollMinGap.Duration,
	}, a.logger)
	if deps.PriceCache != nil {
		scheduler.SetPriceCache(deps.PriceCache)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	return g.Wait()
}

// StreamingMode runs the streaming scheduler (plus the archiver when
// configured) until the context is cancelled.
func (a *App) StreamingMode(ctx context.Context, deps *Dependencies) error {
	if err := a.registerPositions(deps); err != nil {
		return err
	}

	stream := ironbeam.NewWSClient(deps.Broker)

	scheduler := monitor.NewStreamingScheduler(deps.Manager, stream, monitor.StreamingConfig{
		MinGap: a.cfg.Monitor.StreamMinGap.Duration,
	}, a.logger)
	if deps.PriceCache != nil {
		scheduler.SetPriceCache(deps.PriceCache)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	return g.Wait()
}
