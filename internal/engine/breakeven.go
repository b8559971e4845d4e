// Package engine holds the pure decision logic for the trade-management
// runtime. Evaluators are synchronous and side-effect free: they read a
// position and a price and return a provisional proposal. Committing a
// proposal (counters, stop/target values) is the monitor's job and happens
// only after the broker accepts the update.
package engine

import (
	"fmt"

	"trademgr/internal/domain"
)

// StopLossProposal is a provisional stop-loss move.
type StopLossProposal struct {
	NewStopLoss float64
	Level       int // zero-based ladder level that fired; -1 for trailing moves
	Reason      string
}

// EvaluateBreakeven decides whether the position's stop loss should move at
// the given price. At most one proposal is produced per call, even when the
// price jumps past several thresholds in a single tick; levels whose target
// would not tighten the current stop are passed over without a proposal, so
// the returned Level may sit ahead of the position's move counter. Once the
// ladder is complete the state is terminal, unless the config enables
// post-completion trailing.
func EvaluateBreakeven(pos *domain.PositionState, cfg domain.AutoBreakevenConfig, price float64) (StopLossProposal, bool) {
	if !cfg.Enabled {
		return StopLossProposal{}, false
	}

	profit := pos.Profit(price)
	if cfg.TriggerMode == domain.TriggerPercentage {
		profit = profit / pos.EntryPrice * 100
	}

	for moveIdx := pos.BreakevenMovesCompleted; moveIdx < len(cfg.TriggerLevels); moveIdx++ {
		if profit < cfg.TriggerLevels[moveIdx] {
			return StopLossProposal{}, false
		}

		newSL := pos.Side.Offset(pos.EntryPrice, cfg.SLOffsets[moveIdx])
		if pos.CurrentStopLoss != nil && !pos.Side.MoreFavorable(newSL, *pos.CurrentStopLoss) {
			// The stop never loosens. A ladder target already behind the
			// current stop is satisfied without a broker call, so the next
			// level is considered on this same tick; a position registered
			// with a tight stop does not stall the ladder.
			continue
		}

		return StopLossProposal{
			NewStopLoss: newSL,
			Level:       moveIdx,
			Reason:      fmt.Sprintf("breakeven_level_%d", moveIdx+1),
		}, true
	}

	return evaluateTrailingStop(pos, cfg)
}

// evaluateTrailingStop trails the stop behind the running extreme once all
// breakeven levels are done. The stop ratchets in the profit direction only.
func evaluateTrailingStop(pos *domain.PositionState, cfg domain.AutoBreakevenConfig) (StopLossProposal, bool) {
	if !cfg.TrailAfterCompletion {
		return StopLossProposal{}, false
	}

	var extreme *float64
	if pos.Side == domain.Buy {
		extreme = pos.HighestPrice
	} else {
		extreme = pos.LowestPrice
	}
	if extreme == nil {
		return StopLossProposal{}, false
	}

	// Stop sits TrailDistance behind the extreme, i.e. against the profit
	// direction.
	newSL := pos.Side.Offset(*extreme, -cfg.TrailDistance)
	if pos.CurrentStopLoss != nil && !pos.Side.MoreFavorable(newSL, *pos.CurrentStopLoss) {
		return StopLossProposal{}, false
	}

	return StopLossProposal{
		NewStopLoss: newSL,
		Level:       -1,
		Reason:      "breakeven_trailing",
	}, true
}
