package engine

import (
	"fmt"

	"trademgr/internal/domain"
)

// TakeProfitProposal is a provisional take-profit move. ProfitLevel carries
// the index of the profit-level trigger that fired on this tick (-1 when
// none); the monitor marks it as fired only after the update commits.
type TakeProfitProposal struct {
	NewTakeProfit float64
	ProfitLevel   int
	Reason        string
}

// EvaluateRunningTP decides whether the position's take profit should move at
// the given price. The caller must have already folded the tick into the
// position's extremes. Two trigger conditions can fire on the same tick; the
// more favorable candidate wins. The proposal applies only if it strictly
// improves the current take profit in the profit direction.
func EvaluateRunningTP(pos *domain.PositionState, cfg domain.RunningTPConfig, price float64) (TakeProfitProposal, bool) {
	if !cfg.Enabled {
		return TakeProfitProposal{}, false
	}

	proposal := TakeProfitProposal{ProfitLevel: -1}
	var candidate *float64

	if cfg.EnableTrailingExtremes {
		if c := candidateFromModes(pos, cfg, price); c != nil {
			candidate = c
			proposal.Reason = "trailing_extremes"
		}
	}

	if cfg.EnableProfitLevels {
		if level, ok := firedProfitLevel(pos, cfg, price); ok {
			proposal.ProfitLevel = level
			if c := candidateFromModes(pos, cfg, price); c != nil {
				if candidate == nil || pos.Side.MoreFavorable(*c, *candidate) {
					candidate = c
					proposal.Reason = fmt.Sprintf("profit_level_%d", level+1)
				}
			}
		}
	}

	if candidate == nil {
		return TakeProfitProposal{}, false
	}
	if pos.CurrentTakeProfit != nil && !pos.Side.MoreFavorable(*candidate, *pos.CurrentTakeProfit) {
		return TakeProfitProposal{}, false
	}

	proposal.NewTakeProfit = *candidate
	return proposal, true
}

// candidateFromModes combines the configured adjustment modes and returns the
// most favorable non-nil candidate, or nil when no mode produces one.
func candidateFromModes(pos *domain.PositionState, cfg domain.RunningTPConfig, price float64) *float64 {
	var best *float64
	consider := func(v float64) {
		if best == nil || pos.Side.MoreFavorable(v, *best) {
			c := v
			best = &c
		}
	}

	// Mode A: extend the current take profit by a fixed amount.
	if cfg.ExtendByTicks > 0 && pos.CurrentTakeProfit != nil {
		consider(pos.Side.Offset(*pos.CurrentTakeProfit, cfg.ExtendByTicks))
	}

	// Mode B: trail the current price at a fixed offset.
	if cfg.TrailOffsetTicks > 0 {
		consider(pos.Side.Offset(price, cfg.TrailOffsetTicks))
	}

	// Mode C: step to the nearest configured level strictly beyond the
	// relevant extreme, in the profit direction.
	if len(cfg.ResistanceSupportLevels) > 0 {
		var extreme *float64
		if pos.Side == domain.Buy {
			extreme = pos.HighestPrice
		} else {
			extreme = pos.LowestPrice
		}
		if extreme != nil {
			if lvl, ok := nextLevel(*extreme, cfg.ResistanceSupportLevels, pos.Side); ok {
				consider(lvl)
			}
		}
	}

	return best
}

// firedProfitLevel returns the index of the first profit-level trigger the
// current profit qualifies for that has not fired yet. Each level fires at
// most once for the lifetime of the position; once all levels have fired the
// condition is permanently exhausted.
func firedProfitLevel(pos *domain.PositionState, cfg domain.RunningTPConfig, price float64) (int, bool) {
	profit := pos.Profit(price)
	if cfg.ProfitTriggerMode == domain.TriggerPercentage {
		profit = profit / pos.EntryPrice * 100
	}

	for i, level := range cfg.ProfitLevelTriggers {
		if profit >= level && !pos.ProfitLevelFired(i) {
			return i, true
		}
	}
	return 0, false
}

// nextLevel picks the nearest level strictly beyond ref in the profit
// direction: the minimum level above ref for BUY, the maximum below for SELL.
func nextLevel(ref float64, levels []float64, side domain.OrderSide) (float64, bool) {
	var best float64
	found := false
	for _, l := range levels {
		if side == domain.Buy {
			if l > ref && (!found || l < best) {
				best = l
				found = true
			}
		} else {
			if l < ref && (!found || l > best) {
				best = l
				found = true
			}
		}
	}
	return best, found
}
