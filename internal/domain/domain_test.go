package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderSideMath(t *testing.T) {
	assert.True(t, Buy.MoreFavorable(5010, 5000))
	assert.False(t, Buy.MoreFavorable(5000, 5000)) // strict
	assert.False(t, Buy.MoreFavorable(4990, 5000))

	assert.True(t, Sell.MoreFavorable(4990, 5000))
	assert.False(t, Sell.MoreFavorable(5000, 5000))

	assert.Equal(t, 5010.0, Buy.Offset(5000, 10))
	assert.Equal(t, 4990.0, Sell.Offset(5000, 10))
}

func TestPositionProfit(t *testing.T) {
	long := NewPositionState("ORD-1", "ACC-1", "XCME:ES.Z25", Buy, 5000, 1)
	assert.Equal(t, 20.0, long.Profit(5020))
	assert.Equal(t, -20.0, long.Profit(4980))

	short := NewPositionState("ORD-2", "ACC-1", "XCME:ES.Z25", Sell, 5000, 1)
	assert.Equal(t, 20.0, short.Profit(4980))
	assert.Equal(t, -20.0, short.Profit(5020))
}

func TestPositionUpdateExtremes(t *testing.T) {
	pos := NewPositionState("ORD-1", "ACC-1", "XCME:ES.Z25", Buy, 5000, 1)
	assert.Nil(t, pos.HighestPrice)
	assert.Nil(t, pos.LowestPrice)

	pos.UpdateExtremes(5010)
	require.NotNil(t, pos.HighestPrice)
	require.NotNil(t, pos.LowestPrice)
	assert.Equal(t, 5010.0, *pos.HighestPrice)
	assert.Equal(t, 5010.0, *pos.LowestPrice)

	pos.UpdateExtremes(5030)
	assert.Equal(t, 5030.0, *pos.HighestPrice)
	assert.Equal(t, 5010.0, *pos.LowestPrice)

	pos.UpdateExtremes(4990)
	assert.Equal(t, 5030.0, *pos.HighestPrice)
	assert.Equal(t, 4990.0, *pos.LowestPrice)
}

func TestPositionProfitLevelsFired(t *testing.T) {
	pos := NewPositionState("ORD-1", "ACC-1", "XCME:ES.Z25", Buy, 5000, 1)

	assert.False(t, pos.ProfitLevelFired(0))
	pos.MarkProfitLevelFired(0)
	assert.True(t, pos.ProfitLevelFired(0))
	assert.False(t, pos.ProfitLevelFired(1))

	// A zero-value struct lazily allocates the fired set.
	var bare PositionState
	bare.MarkProfitLevelFired(2)
	assert.True(t, bare.ProfitLevelFired(2))
}

func TestBreakevenStateFor(t *testing.T) {
	pos := NewPositionState("ORD-1", "ACC-1", "XCME:ES.Z25", Buy, 5000, 1)

	assert.Equal(t, BreakevenNotStarted, pos.BreakevenStateFor(3))
	pos.BreakevenMovesCompleted = 1
	assert.Equal(t, BreakevenMove1Done, pos.BreakevenStateFor(3))
	pos.BreakevenMovesCompleted = 2
	assert.Equal(t, BreakevenMove2Done, pos.BreakevenStateFor(3))
	pos.BreakevenMovesCompleted = 3
	assert.Equal(t, BreakevenCompleted, pos.BreakevenStateFor(3))

	// A shorter ladder completes earlier.
	pos.BreakevenMovesCompleted = 2
	assert.Equal(t, BreakevenCompleted, pos.BreakevenStateFor(2))
}

func TestQuotePrice(t *testing.T) {
	// Last trade wins.
	p, ok := Quote{Last: 5021.25, Bid: 5021, Ask: 5021.5}.Price()
	require.True(t, ok)
	assert.Equal(t, 5021.25, p)

	// Off-hours: mid of bid/ask.
	p, ok = Quote{Bid: 5020, Ask: 5021}.Price()
	require.True(t, ok)
	assert.Equal(t, 5020.5, p)

	// One-sided book is not a usable price.
	_, ok = Quote{Bid: 5020}.Price()
	assert.False(t, ok)
	_, ok = Quote{}.Price()
	assert.False(t, ok)
}

func TestAutoBreakevenConfigValidate(t *testing.T) {
	cfg, err := NewAutoBreakevenConfig([]float64{20, 40, 60}, []float64{10, 30, 50})
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, TriggerTicks, cfg.TriggerMode)

	cases := map[string]AutoBreakevenConfig{
		"bad trigger mode": {
			TriggerMode:   TriggerMode("points"),
			TriggerLevels: []float64{20},
			SLOffsets:     []float64{10},
		},
		"no levels": {
			TriggerMode: TriggerTicks,
		},
		"length mismatch": {
			TriggerMode:   TriggerTicks,
			TriggerLevels: []float64{20, 40},
			SLOffsets:     []float64{10},
		},
		"too many levels": {
			TriggerMode:   TriggerTicks,
			TriggerLevels: []float64{20, 40, 60, 80},
			SLOffsets:     []float64{10, 30, 50, 70},
		},
		"non-ascending levels": {
			TriggerMode:   TriggerTicks,
			TriggerLevels: []float64{20, 20, 60},
			SLOffsets:     []float64{10, 30, 50},
		},
		"trailing without distance": {
			TriggerMode:          TriggerTicks,
			TriggerLevels:        []float64{20},
			SLOffsets:            []float64{10},
			TrailAfterCompletion: true,
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestRunningTPConfigValidate(t *testing.T) {
	cfg, err := NewRunningTPConfig(10, 0, nil)
	require.NoError(t, err)
	assert.True(t, cfg.EnableTrailingExtremes)

	cases := map[string]RunningTPConfig{
		"no trigger condition": {
			ExtendByTicks: 10,
		},
		"no adjustment mode": {
			EnableTrailingExtremes: true,
		},
		"profit levels without triggers": {
			EnableProfitLevels: true,
			ProfitTriggerMode:  TriggerTicks,
			ExtendByTicks:      10,
		},
		"profit levels bad mode": {
			EnableProfitLevels:  true,
			ProfitLevelTriggers: []float64{30},
			ProfitTriggerMode:   TriggerMode("points"),
			ExtendByTicks:       10,
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}
