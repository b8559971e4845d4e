package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trademgr/internal/domain"
)

func trailingExtremesConfig(extendBy, trailOffset float64, levels []float64) domain.RunningTPConfig {
	return domain.RunningTPConfig{
		EnableTrailingExtremes:  true,
		ExtendByTicks:           extendBy,
		TrailOffsetTicks:        trailOffset,
		ResistanceSupportLevels: levels,
		Enabled:                 true,
	}
}

func TestEvaluateRunningTPResistanceLevels(t *testing.T) {
	pos := buyPosition()
	tp := 5050.0
	pos.CurrentTakeProfit = &tp
	cfg := trailingExtremesConfig(0, 0, []float64{5100, 5150, 5200})

	// Highest 5080: the next resistance above is 5100.
	pos.UpdateExtremes(5080)
	p, ok := EvaluateRunningTP(pos, cfg, 5080)
	require.True(t, ok)
	assert.Equal(t, 5100.0, p.NewTakeProfit)
	assert.Equal(t, -1, p.ProfitLevel)
	assert.Equal(t, "trailing_extremes", p.Reason)

	// Commit and push the extreme past 5100: next stop is 5150.
	pos.CurrentTakeProfit = &p.NewTakeProfit
	pos.UpdateExtremes(5120)
	p, ok = EvaluateRunningTP(pos, cfg, 5120)
	require.True(t, ok)
	assert.Equal(t, 5150.0, p.NewTakeProfit)

	// Extreme past the last configured level: nothing beyond it.
	last := 5250.0
	pos.CurrentTakeProfit = &last
	pos.UpdateExtremes(5260)
	_, ok = EvaluateRunningTP(pos, cfg, 5260)
	assert.False(t, ok)
}

func TestEvaluateRunningTPSupportLevelsSell(t *testing.T) {
	pos := sellPosition()
	tp := 4950.0
	pos.CurrentTakeProfit = &tp
	cfg := trailingExtremesConfig(0, 0, []float64{4900, 4850, 4800})

	// Lowest 4920: the nearest support below is 4900.
	pos.UpdateExtremes(4920)
	p, ok := EvaluateRunningTP(pos, cfg, 4920)
	require.True(t, ok)
	assert.Equal(t, 4900.0, p.NewTakeProfit)
}

func TestEvaluateRunningTPExtendByTicks(t *testing.T) {
	pos := buyPosition()
	tp := 5050.0
	pos.CurrentTakeProfit = &tp
	cfg := trailingExtremesConfig(10, 0, nil)

	pos.UpdateExtremes(5020)
	p, ok := EvaluateRunningTP(pos, cfg, 5020)
	require.True(t, ok)
	assert.Equal(t, 5060.0, p.NewTakeProfit)
}

func TestEvaluateRunningTPExtendRequiresCurrentTP(t *testing.T) {
	pos := buyPosition() // no take profit registered
	cfg := trailingExtremesConfig(10, 0, nil)

	pos.UpdateExtremes(5020)
	_, ok := EvaluateRunningTP(pos, cfg, 5020)
	assert.False(t, ok)
}

func TestEvaluateRunningTPTrailOffset(t *testing.T) {
	pos := buyPosition()
	tp := 5050.0
	pos.CurrentTakeProfit = &tp
	cfg := trailingExtremesConfig(0, 15, nil)

	// 5080 + 15 beats the current 5050 target.
	pos.UpdateExtremes(5080)
	p, ok := EvaluateRunningTP(pos, cfg, 5080)
	require.True(t, ok)
	assert.Equal(t, 5095.0, p.NewTakeProfit)

	// At a lower price the trailed target would pull the TP back: rejected.
	pos.CurrentTakeProfit = &p.NewTakeProfit
	_, ok = EvaluateRunningTP(pos, cfg, 5040)
	assert.False(t, ok)
}

func TestEvaluateRunningTPStrictImprovement(t *testing.T) {
	pos := buyPosition()
	tp := 5100.0
	pos.CurrentTakeProfit = &tp
	cfg := trailingExtremesConfig(0, 15, nil)

	// 5080 + 15 = 5095 does not beat 5100.
	pos.UpdateExtremes(5080)
	_, ok := EvaluateRunningTP(pos, cfg, 5080)
	assert.False(t, ok)
}

func TestEvaluateRunningTPProfitLevelsFireOnce(t *testing.T) {
	pos := buyPosition()
	tp := 5050.0
	pos.CurrentTakeProfit = &tp
	cfg := domain.RunningTPConfig{
		EnableProfitLevels:  true,
		ProfitLevelTriggers: []float64{30, 60},
		ProfitTriggerMode:   domain.TriggerTicks,
		ExtendByTicks:       10,
		Enabled:             true,
	}
	require.NoError(t, cfg.Validate())

	pos.UpdateExtremes(5035)
	p, ok := EvaluateRunningTP(pos, cfg, 5035)
	require.True(t, ok)
	assert.Equal(t, 0, p.ProfitLevel)
	assert.Equal(t, 5060.0, p.NewTakeProfit)
	assert.Equal(t, "profit_level_1", p.Reason)

	// Committed: the level is marked fired and never fires again, even after
	// a retrace and recovery through the same threshold.
	pos.CurrentTakeProfit = &p.NewTakeProfit
	pos.MarkProfitLevelFired(0)

	pos.UpdateExtremes(5010)
	_, ok = EvaluateRunningTP(pos, cfg, 5010)
	assert.False(t, ok)
	pos.UpdateExtremes(5040)
	_, ok = EvaluateRunningTP(pos, cfg, 5040)
	assert.False(t, ok)

	// The second level still fires at its own threshold.
	pos.UpdateExtremes(5065)
	p, ok = EvaluateRunningTP(pos, cfg, 5065)
	require.True(t, ok)
	assert.Equal(t, 1, p.ProfitLevel)
}

func TestEvaluateRunningTPMostFavorableWins(t *testing.T) {
	pos := buyPosition()
	tp := 5050.0
	pos.CurrentTakeProfit = &tp

	// Both trigger conditions enabled; both fire on the same tick and produce
	// the same candidate set, so the winning reason is the better of the two.
	cfg := domain.RunningTPConfig{
		EnableTrailingExtremes:  true,
		EnableProfitLevels:      true,
		ProfitLevelTriggers:     []float64{30},
		ProfitTriggerMode:       domain.TriggerTicks,
		ExtendByTicks:           10,
		TrailOffsetTicks:        25,
		ResistanceSupportLevels: nil,
		Enabled:                 true,
	}
	require.NoError(t, cfg.Validate())

	// At 5040: extend gives 5060, trail gives 5065. Trail wins.
	pos.UpdateExtremes(5040)
	p, ok := EvaluateRunningTP(pos, cfg, 5040)
	require.True(t, ok)
	assert.Equal(t, 5065.0, p.NewTakeProfit)
	assert.Equal(t, 0, p.ProfitLevel) // the level fired even though candidates tie
}

func TestEvaluateRunningTPDisabled(t *testing.T) {
	pos := buyPosition()
	cfg := trailingExtremesConfig(10, 0, nil)
	cfg.Enabled = false

	pos.UpdateExtremes(5100)
	_, ok := EvaluateRunningTP(pos, cfg, 5100)
	assert.False(t, ok)
}

func TestEvaluateRunningTPProfitLevelsPercentage(t *testing.T) {
	pos := buyPosition()
	tp := 5050.0
	pos.CurrentTakeProfit = &tp
	cfg := domain.RunningTPConfig{
		EnableProfitLevels:  true,
		ProfitLevelTriggers: []float64{1}, // 1% of 5000 = 50 points
		ProfitTriggerMode:   domain.TriggerPercentage,
		ExtendByTicks:       20,
		Enabled:             true,
	}
	require.NoError(t, cfg.Validate())

	pos.UpdateExtremes(5049)
	_, ok := EvaluateRunningTP(pos, cfg, 5049)
	assert.False(t, ok)

	pos.UpdateExtremes(5050)
	p, ok := EvaluateRunningTP(pos, cfg, 5050)
	require.True(t, ok)
	assert.Equal(t, 5070.0, p.NewTakeProfit)
}
