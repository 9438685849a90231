package analysis

import (
	"math"
	"testing"
)

func TestRSIAllGains(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104}
	if rsi := RSI(closes, 14); rsi != 100 {
		t.Errorf("expected RSI 100 for all gains, got %f", rsi)
	}
}

func TestRSIBalanced(t *testing.T) {
	closes := []float64{100, 102, 100, 102, 100, 102, 100}
	rsi := RSI(closes, 14)
	// Gains and losses nearly cancel; RSI should sit near 50.
	if math.Abs(rsi-50) > 10 {
		t.Errorf("expected RSI near 50 for balanced series, got %f", rsi)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	if rsi := RSI([]float64{100}, 14); rsi != 50 {
		t.Errorf("expected neutral RSI with no deltas, got %f", rsi)
	}
}

func TestDetectBearishDivergence(t *testing.T) {
	// Price grinds to a marginal higher high while late selling drags most
	// deltas negative, so RSI sits below 50 as price peaks.
	closes := []float64{
		100, 102, 104, 106, 108, 110, 109, 108, 107, 106,
		105, 104, 103, 102, 101, 100, 99, 98, 111, 97,
	}

	detected, divType := DetectDivergence(closes, true, 20, 14)
	if !detected {
		t.Fatal("expected bearish divergence to be detected")
	}
	if divType != DivergenceBearish {
		t.Errorf("expected bearish type, got %s", divType)
	}
}

func TestNoDivergenceOnCleanTrend(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	if detected, _ := DetectDivergence(closes, true, 20, 14); detected {
		t.Error("clean uptrend should not report divergence")
	}
}

func TestDetectBullishDivergenceForShort(t *testing.T) {
	// Price makes a lower low late while recent deltas skew positive.
	closes := []float64{
		110, 108, 106, 104, 102, 100, 101, 102, 103, 104,
		105, 106, 107, 108, 109, 110, 111, 112, 99, 113,
	}

	detected, divType := DetectDivergence(closes, false, 20, 14)
	if !detected {
		t.Fatal("expected bullish divergence to be detected")
	}
	if divType != DivergenceBullish {
		t.Errorf("expected bullish type, got %s", divType)
	}
}

func TestDivergenceInsufficientHistory(t *testing.T) {
	if detected, _ := DetectDivergence([]float64{1, 2, 3}, true, 20, 14); detected {
		t.Error("short series should never report divergence")
	}
}
