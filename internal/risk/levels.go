package risk

import (
	"time"

	"trade-risk-engine/internal/analysis"
)

// RiskLevels is the computed snapshot for a trade setup. It is created once
// per setup and treated as read-only; the per-bar update returns replacement
// ladders instead of mutating the snapshot in place.
type RiskLevels struct {
	Symbol    string    `json:"symbol"`
	Entry     float64   `json:"entry_price"`
	Direction Direction `json:"direction"`
	Timeframe string    `json:"timeframe"`

	Stops   []StopLevel   `json:"stops"`
	Targets []TargetLevel `json:"targets"`

	PositionSize    float64 `json:"position_size"`
	PositionSizePct float64 `json:"position_size_pct"`
	RiskAmount      float64 `json:"risk_amount"`

	RiskRewardRatio    float64 `json:"risk_reward_ratio"`
	MaxRiskRewardRatio float64 `json:"max_risk_reward_ratio"`
	WinProbability     float64 `json:"win_probability"`
	ExpectedValue      float64 `json:"expected_value"`

	VolatilityRegime analysis.VolatilityRegime `json:"volatility_regime"`
	ATR              float64                   `json:"atr"`
	ATRPct           float64                   `json:"atr_pct"`

	BreakevenPrice float64 `json:"breakeven_price"`
	OneRPrice      float64 `json:"one_r_price"`

	EntryBlocked bool   `json:"entry_blocked"`
	BlockReason  string `json:"block_reason,omitempty"`

	Guarding *GuardingParams `json:"guarding_line,omitempty"`

	CalculatedAt time.Time `json:"calculated_at"`
}

// PrimaryStop returns the tightest stop, which after the breakeven move
// carries the breakeven tier.
func (l *RiskLevels) PrimaryStop() (StopLevel, bool) {
	for _, s := range l.Stops {
		if s.Tier == TierPrimary || s.Tier == TierBreakeven {
			return s, true
		}
	}
	if len(l.Stops) > 0 {
		return l.Stops[0], true
	}
	return StopLevel{}, false
}

// FirstTarget returns the target nearest to entry.
func (l *RiskLevels) FirstTarget() (TargetLevel, bool) {
	if len(l.Targets) == 0 {
		return TargetLevel{}, false
	}
	return l.Targets[0], true
}

// AtBreakeven reports whether the breakeven move has already happened.
func (l *RiskLevels) AtBreakeven() bool {
	for _, s := range l.Stops {
		if s.Tier == TierBreakeven {
			return true
		}
	}
	return false
}

// WithStops returns a copy of the snapshot carrying a replacement ladder.
func (l *RiskLevels) WithStops(stops []StopLevel) *RiskLevels {
	next := *l
	next.Stops = stops
	return &next
}

// RiskUpdate is the ephemeral per-bar decision. It is recomputed on every
// call and never persisted. At most one exit reason is reported per call.
type RiskUpdate struct {
	UpdatedStops   []StopLevel   `json:"updated_stops"`
	UpdatedTargets []TargetLevel `json:"updated_targets"`

	ExitSignal     bool    `json:"exit_signal"`
	ExitReason     string  `json:"exit_reason,omitempty"`
	ExitPercentage float64 `json:"exit_percentage"`

	StopMoved      bool    `json:"stop_moved"`
	NewStopPrice   float64 `json:"new_stop_price,omitempty"`
	StopMoveReason string  `json:"stop_move_reason,omitempty"`

	BreakevenHit     bool    `json:"breakeven_hit"`
	MovedToBreakeven bool    `json:"moved_to_breakeven"`
	CurrentRMultiple float64 `json:"current_r_multiple"`

	GuardingActive bool    `json:"guarding_active"`
	GuardingBroken bool    `json:"guarding_broken"`
	GuardingLevel  float64 `json:"guarding_level,omitempty"`

	MomentumTrailingActive bool    `json:"momentum_trailing_active"`
	MomentumTrailingLevel  float64 `json:"momentum_trailing_level,omitempty"`
	MomentumSlopeStrength  float64 `json:"momentum_slope_strength,omitempty"`
	MomentumBufferPct      float64 `json:"momentum_buffer_pct,omitempty"`

	DivergenceDetected bool   `json:"divergence_detected"`
	DivergenceType     string `json:"divergence_type,omitempty"`

	StructureHealth StructureHealth `json:"structure_health"`

	Alerts []string `json:"alerts,omitempty"`
}

func (u *RiskUpdate) signalExit(reason string, pct float64) {
	if u.ExitSignal {
		return
	}
	u.ExitSignal = true
	u.ExitReason = reason
	u.ExitPercentage = pct
}

// forceExit replaces any exit already signalled this call. Only the
// guarding-line breach uses it.
func (u *RiskUpdate) forceExit(reason string, pct float64) {
	u.ExitSignal = true
	u.ExitReason = reason
	u.ExitPercentage = pct
}
