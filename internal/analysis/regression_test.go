package analysis

import (
	"math"
	"testing"
)

func TestLinearRegressionPerfectLine(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4}
	ys := []float64{10, 12, 14, 16, 18}

	fit := LinearRegression(xs, ys)
	if math.Abs(fit.Slope-2) > 1e-9 {
		t.Errorf("expected slope 2, got %f", fit.Slope)
	}
	if math.Abs(fit.Intercept-10) > 1e-9 {
		t.Errorf("expected intercept 10, got %f", fit.Intercept)
	}
	if math.Abs(fit.RSquared-1) > 1e-9 {
		t.Errorf("expected R² 1 for a perfect line, got %f", fit.RSquared)
	}
}

func TestLinearRegressionNoisyFitHasLowerR2(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5}
	ys := []float64{10, 14, 9, 15, 11, 13}

	fit := LinearRegression(xs, ys)
	if fit.RSquared < 0 || fit.RSquared > 1 {
		t.Errorf("R² out of range: %f", fit.RSquared)
	}
	if fit.RSquared > 0.9 {
		t.Errorf("noisy data should not fit tightly, got R² %f", fit.RSquared)
	}
}

func TestLinearRegressionDegenerate(t *testing.T) {
	if fit := LinearRegression([]float64{1}, []float64{2}); fit.Slope != 0 {
		t.Errorf("single point should have zero slope, got %f", fit.Slope)
	}
	// All x equal: vertical data, no defined slope.
	fit := LinearRegression([]float64{2, 2, 2}, []float64{1, 2, 3})
	if fit.Slope != 0 {
		t.Errorf("vertical data should have zero slope, got %f", fit.Slope)
	}
	if math.Abs(fit.Intercept-2) > 1e-9 {
		t.Errorf("vertical data intercept should be mean y, got %f", fit.Intercept)
	}
}

func TestFitSeries(t *testing.T) {
	fit := FitSeries([]float64{100, 101, 102, 103})
	if math.Abs(fit.Slope-1) > 1e-9 {
		t.Errorf("expected slope 1 per bar, got %f", fit.Slope)
	}
}

func TestSwingDetection(t *testing.T) {
	// Local minimum at index 3, local maximum at index 6.
	prices := []float64{105, 103, 101, 99, 101, 104, 107, 106, 104}

	lows := SwingLows(prices)
	if len(lows) != 1 || lows[0].Index != 3 || lows[0].Price != 99 {
		t.Fatalf("expected single swing low at index 3 price 99, got %+v", lows)
	}

	highs := SwingHighs(prices)
	if len(highs) != 1 || highs[0].Index != 6 || highs[0].Price != 107 {
		t.Fatalf("expected single swing high at index 6 price 107, got %+v", highs)
	}
}
