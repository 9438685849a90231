// Package analysis provides the indicator math the risk engine builds on:
// ATR and volatility-regime classification, least-squares regression,
// swing-point detection and RSI divergence.
package analysis

import "trade-risk-engine/internal/market"

// VolatilityRegime classifies current volatility against a longer baseline.
type VolatilityRegime string

const (
	RegimeLow     VolatilityRegime = "low"
	RegimeNormal  VolatilityRegime = "normal"
	RegimeHigh    VolatilityRegime = "high"
	RegimeExtreme VolatilityRegime = "extreme"
)

// VolatilityAnalyzer computes ATR and classifies the volatility regime.
type VolatilityAnalyzer struct {
	ATRPeriod        int     // short ATR window, default 14
	BaselinePeriod   int     // baseline ATR window, default 100
	LowThreshold     float64 // ratio below which regime is low
	HighThreshold    float64 // ratio above which regime is high
	ExtremeThreshold float64 // ratio above which regime is extreme
}

// NewVolatilityAnalyzer returns an analyzer with the standard thresholds.
func NewVolatilityAnalyzer() *VolatilityAnalyzer {
	return &VolatilityAnalyzer{
		ATRPeriod:        14,
		BaselinePeriod:   100,
		LowThreshold:     0.5,
		HighThreshold:    1.5,
		ExtremeThreshold: 2.5,
	}
}

// ATR returns the mean true range over the last period bars. If fewer bars
// are available it averages what there is; under two bars it returns 0.
func ATR(klines []market.Kline, period int) float64 {
	if len(klines) < 2 {
		return 0
	}

	trs := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close

		tr := high - low
		if d := abs(high - prevClose); d > tr {
			tr = d
		}
		if d := abs(low - prevClose); d > tr {
			tr = d
		}
		trs = append(trs, tr)
	}

	if period > 0 && len(trs) > period {
		trs = trs[len(trs)-period:]
	}

	sum := 0.0
	for _, tr := range trs {
		sum += tr
	}
	return sum / float64(len(trs))
}

// CurrentATR returns the short-window ATR for the series.
func (va *VolatilityAnalyzer) CurrentATR(klines []market.Kline) float64 {
	return ATR(klines, va.ATRPeriod)
}

// Regime compares the current ATR to the baseline ATR and classifies the
// volatility regime. Insufficient baseline history defaults to normal.
func (va *VolatilityAnalyzer) Regime(klines []market.Kline, currentATR float64) VolatilityRegime {
	if len(klines) < va.BaselinePeriod {
		return RegimeNormal
	}

	baseline := ATR(klines, va.BaselinePeriod)
	if baseline == 0 {
		return RegimeNormal
	}

	ratio := currentATR / baseline
	switch {
	case ratio < va.LowThreshold:
		return RegimeLow
	case ratio > va.ExtremeThreshold:
		return RegimeExtreme
	case ratio > va.HighThreshold:
		return RegimeHigh
	default:
		return RegimeNormal
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
