package risk

// Config holds the tunables of the risk engine. DefaultConfig matches the
// documented defaults; callers override individual fields.
type Config struct {
	// Stop-loss settings
	ATRStopMultiplier   float64 `json:"atr_stop_multiplier"`
	MaxStopPct          float64 `json:"max_stop_pct"`
	EnableMultiTier     bool    `json:"enable_multi_tier_stops"`
	StructuralATRBuffer float64 `json:"structural_atr_buffer"` // fraction of ATR below/above structure

	// Take-profit settings
	MinRRRatio        float64   `json:"min_rr_ratio"`
	PartialExitRatios []float64 `json:"partial_exit_ratios"`
	RMultipleFallback []float64 `json:"r_multiple_fallback"`

	// Position sizing
	VolatilityAdjustedSizing bool    `json:"volatility_adjusted_sizing"`
	ExtremeVolSizeReduction  float64 `json:"extreme_vol_size_reduction"`

	// Entry gate
	EnforceMinRR  bool    `json:"enforce_min_rr"`
	MinRRForEntry float64 `json:"min_rr_for_entry"`

	// Breakeven stop
	EnableBreakevenStop bool    `json:"enable_breakeven_stop"`
	BreakevenTriggerR   float64 `json:"breakeven_trigger_r"`
	BreakevenBufferPct  float64 `json:"breakeven_buffer_pct"`

	// Guarding line
	EnableGuardingLine     bool    `json:"enable_guarding_line"`
	GuardingActivationBars int     `json:"guarding_activation_bars"`
	GuardingBufferPct      float64 `json:"guarding_buffer_pct"`

	// Divergence detection
	EnableDivergence   bool `json:"enable_divergence_detection"`
	DivergenceLookback int  `json:"divergence_lookback"`
	RSIPeriod          int  `json:"rsi_period"`

	// Momentum trailing take-profit
	EnableMomentumTrailing bool `json:"enable_momentum_trailing"`

	// History requirements
	MinHistoryBars int `json:"min_history_bars"`
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		ATRStopMultiplier:   2.0,
		MaxStopPct:          5.0,
		EnableMultiTier:     true,
		StructuralATRBuffer: 0.2,

		MinRRRatio:        2.0,
		PartialExitRatios: []float64{0.33, 0.33, 0.34},
		RMultipleFallback: []float64{2.0, 3.0, 5.0},

		VolatilityAdjustedSizing: true,
		ExtremeVolSizeReduction:  0.5,

		EnforceMinRR:  true,
		MinRRForEntry: 2.0,

		EnableBreakevenStop: true,
		BreakevenTriggerR:   1.0,
		BreakevenBufferPct:  0.1,

		EnableGuardingLine:     true,
		GuardingActivationBars: 10,
		GuardingBufferPct:      0.3,

		EnableDivergence:   true,
		DivergenceLookback: 20,
		RSIPeriod:          14,

		EnableMomentumTrailing: true,

		MinHistoryBars: 50,
	}
}
