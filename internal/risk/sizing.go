package risk

import "trade-risk-engine/internal/analysis"

// PositionSizer converts a risk percentage, balance and stop distance into
// a position size, scaled for the volatility regime.
type PositionSizer struct {
	cfg Config
}

// NewPositionSizer returns a sizer with the given configuration.
func NewPositionSizer(cfg Config) *PositionSizer {
	return &PositionSizer{cfg: cfg}
}

// Sizing is the result of a position-size calculation.
type Sizing struct {
	Size       float64 // units of the base asset
	SizePct    float64 // position value as % of account
	RiskAmount float64 // account currency at risk
	EffRiskPct float64 // risk percentage after volatility scaling
	VolFactor  float64 // applied volatility factor, clamped [0.5, 2.0]
}

// Calculate sizes the position. The volatility factor normalizes against a
// ~2% ATR baseline and is clamped to [0.5, 2.0]; the extreme regime halves
// risk on top of that. A zero stop distance short-circuits to a zero size.
func (ps *PositionSizer) Calculate(
	balance, riskPct, entry, stopDistance, atrPct float64,
	regime analysis.VolatilityRegime,
) Sizing {
	effPct := riskPct
	volFactor := 1.0

	if ps.cfg.VolatilityAdjustedSizing {
		base := atrPct
		if base < 0.5 {
			base = 0.5
		}
		volFactor = 2.0 / base
		if volFactor < 0.5 {
			volFactor = 0.5
		} else if volFactor > 2.0 {
			volFactor = 2.0
		}
		effPct *= volFactor
	}

	if regime == analysis.RegimeExtreme {
		effPct *= ps.cfg.ExtremeVolSizeReduction
	}

	riskAmount := balance * effPct / 100

	size := 0.0
	if stopDistance > 0 {
		size = riskAmount / stopDistance
	}

	sizePct := 0.0
	if balance > 0 {
		sizePct = size * entry / balance * 100
	}

	return Sizing{
		Size:       size,
		SizePct:    sizePct,
		RiskAmount: riskAmount,
		EffRiskPct: effPct,
		VolFactor:  volFactor,
	}
}
