package analysis

import (
	"math"
	"testing"

	"trade-risk-engine/internal/market"
)

func flatKlines(n int, high, low, close float64) []market.Kline {
	out := make([]market.Kline, n)
	for i := range out {
		out[i] = market.Kline{Open: close, High: high, Low: low, Close: close}
	}
	return out
}

func TestATRFlatRange(t *testing.T) {
	// Constant 10-point range, close inside the range: TR = high-low = 10.
	klines := flatKlines(20, 105, 95, 100)

	atr := ATR(klines, 14)
	if math.Abs(atr-10) > 1e-9 {
		t.Errorf("expected ATR 10, got %f", atr)
	}
}

func TestATRUsesGapOverRange(t *testing.T) {
	// Second bar gaps up: TR = high - prevClose dominates the bar range.
	klines := []market.Kline{
		{High: 102, Low: 98, Close: 100},
		{High: 112, Low: 110, Close: 111},
	}

	atr := ATR(klines, 14)
	if math.Abs(atr-12) > 1e-9 {
		t.Errorf("expected ATR 12 from gap, got %f", atr)
	}
}

func TestATRInsufficientData(t *testing.T) {
	if atr := ATR([]market.Kline{{High: 10, Low: 9, Close: 9.5}}, 14); atr != 0 {
		t.Errorf("expected 0 ATR for a single bar, got %f", atr)
	}
	if atr := ATR(nil, 14); atr != 0 {
		t.Errorf("expected 0 ATR for empty series, got %f", atr)
	}
}

func TestRegimeClassification(t *testing.T) {
	va := NewVolatilityAnalyzer()

	// 120 calm bars, then 14 wild ones: short ATR far above baseline.
	klines := flatKlines(120, 100.5, 99.5, 100)
	klines = append(klines, flatKlines(14, 110, 90, 100)...)

	atr := va.CurrentATR(klines)
	regime := va.Regime(klines, atr)
	if regime != RegimeExtreme {
		t.Errorf("expected extreme regime, got %s", regime)
	}

	// Uniform volatility: ratio 1.0.
	uniform := flatKlines(120, 101, 99, 100)
	atr = va.CurrentATR(uniform)
	if regime := va.Regime(uniform, atr); regime != RegimeNormal {
		t.Errorf("expected normal regime, got %s", regime)
	}
}

func TestRegimeDefaultsToNormalWithoutBaseline(t *testing.T) {
	va := NewVolatilityAnalyzer()
	klines := flatKlines(30, 110, 90, 100)

	if regime := va.Regime(klines, va.CurrentATR(klines)); regime != RegimeNormal {
		t.Errorf("expected normal regime with short history, got %s", regime)
	}
}
