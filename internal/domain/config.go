package domain

import "fmt"

// TriggerMode selects the unit profit triggers are expressed in: raw ticks or
// percent of the entry price.
type TriggerMode string

const (
	TriggerTicks      TriggerMode = "ticks"
	TriggerPercentage TriggerMode = "percentage"
)

func (m TriggerMode) valid() bool {
	return m == TriggerTicks || m == TriggerPercentage
}

// maxBreakevenLevels caps the breakeven ladder.
const maxBreakevenLevels = 3

// AutoBreakevenConfig declares the breakeven ladder for a position.
//
// Example for a BUY at 5000: TriggerLevels [20, 40, 60] with SLOffsets
// [10, 30, 50] moves the stop to 5010 at 5020, to 5030 at 5040, and to 5050
// at 5060. Configs are immutable after validation.
type AutoBreakevenConfig struct {
	TriggerMode   TriggerMode
	TriggerLevels []float64 // when to move the stop (ticks or % per TriggerMode)
	SLOffsets     []float64 // where to place it: entry ± offset per level
	Enabled       bool

	// After the ladder completes, optionally keep trailing the stop behind the
	// running extreme at TrailDistance, ratcheting in the profit direction only.
	TrailAfterCompletion bool
	TrailDistance        float64
}

// NewAutoBreakevenConfig builds and validates a breakeven config with the
// default ticks trigger mode.
func NewAutoBreakevenConfig(triggerLevels, slOffsets []float64) (AutoBreakevenConfig, error) {
	cfg := AutoBreakevenConfig{
		TriggerMode:   TriggerTicks,
		TriggerLevels: triggerLevels,
		SLOffsets:     slOffsets,
		Enabled:       true,
	}
	if err := cfg.Validate(); err != nil {
		return AutoBreakevenConfig{}, err
	}
	return cfg, nil
}

// Validate fails fast on malformed configs so they never enter the runtime.
func (c AutoBreakevenConfig) Validate() error {
	if !c.TriggerMode.valid() {
		return fmt.Errorf("%w: trigger mode %q", ErrInvalidConfig, c.TriggerMode)
	}
	if len(c.TriggerLevels) == 0 {
		return fmt.Errorf("%w: at least one trigger level required", ErrInvalidConfig)
	}
	if len(c.TriggerLevels) != len(c.SLOffsets) {
		return fmt.Errorf("%w: trigger_levels and sl_offsets must have same length", ErrInvalidConfig)
	}
	if len(c.TriggerLevels) > maxBreakevenLevels {
		return fmt.Errorf("%w: maximum %d trigger levels allowed", ErrInvalidConfig, maxBreakevenLevels)
	}
	for i := 1; i < len(c.TriggerLevels); i++ {
		if c.TriggerLevels[i] <= c.TriggerLevels[i-1] {
			return fmt.Errorf("%w: trigger levels must be ascending", ErrInvalidConfig)
		}
	}
	if c.TrailAfterCompletion && c.TrailDistance <= 0 {
		return fmt.Errorf("%w: trail distance must be positive", ErrInvalidConfig)
	}
	return nil
}

// RunningTPConfig declares how the take profit follows a favorable market.
//
// Two trigger conditions may be enabled simultaneously (trailing extremes and
// profit levels), combined with up to three adjustment modes: extend the
// current TP by a fixed amount, trail the current price at an offset, or step
// to the next configured resistance/support level. At least one adjustment
// mode is required.
type RunningTPConfig struct {
	EnableTrailingExtremes bool
	EnableProfitLevels     bool

	ProfitLevelTriggers []float64
	ProfitTriggerMode   TriggerMode

	// Adjustment modes; zero / empty disables a mode.
	ExtendByTicks           float64
	TrailOffsetTicks        float64
	ResistanceSupportLevels []float64

	// How far price must retrace before the extremes are considered meaningful.
	TrailingLookbackTicks int

	Enabled bool
}

// NewRunningTPConfig builds a trailing-extremes config with the given
// adjustment modes and validates it.
func NewRunningTPConfig(extendBy, trailOffset float64, levels []float64) (RunningTPConfig, error) {
	cfg := RunningTPConfig{
		EnableTrailingExtremes:  true,
		ProfitTriggerMode:       TriggerTicks,
		ExtendByTicks:           extendBy,
		TrailOffsetTicks:        trailOffset,
		ResistanceSupportLevels: levels,
		Enabled:                 true,
	}
	if err := cfg.Validate(); err != nil {
		return RunningTPConfig{}, err
	}
	return cfg, nil
}

// Validate fails fast on malformed configs so they never enter the runtime.
func (c RunningTPConfig) Validate() error {
	if !c.EnableTrailingExtremes && !c.EnableProfitLevels {
		return fmt.Errorf("%w: at least one trigger condition must be enabled", ErrInvalidConfig)
	}
	if c.ExtendByTicks <= 0 && c.TrailOffsetTicks <= 0 && len(c.ResistanceSupportLevels) == 0 {
		return fmt.Errorf("%w: at least one TP adjustment mode must be specified", ErrInvalidConfig)
	}
	if c.EnableProfitLevels {
		if len(c.ProfitLevelTriggers) == 0 {
			return fmt.Errorf("%w: profit level triggers required when profit levels enabled", ErrInvalidConfig)
		}
		if !c.ProfitTriggerMode.valid() {
			return fmt.Errorf("%w: profit trigger mode %q", ErrInvalidConfig, c.ProfitTriggerMode)
		}
	}
	return nil
}
