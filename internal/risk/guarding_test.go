package risk

import (
	"math"
	"testing"

	"trade-risk-engine/internal/analysis"
)

func TestGuardingLevelProgression(t *testing.T) {
	gl := NewGuardingLine(10, 0.3)

	params := GuardingParams{
		Slope:         50,
		Intercept:     94000,
		ActivationBar: 10,
		BufferPct:     0.3,
	}
	if err := params.Validate(); err != nil {
		t.Fatalf("params should validate: %v", err)
	}

	// Level at bar 15 = 94000 + 50*5.
	level := gl.CurrentLevel(params, 15)
	if math.Abs(level-94250) > 1e-9 {
		t.Errorf("expected level 94250 at bar 15, got %f", level)
	}

	broken, reason := gl.CheckBreak(94200, level, Long)
	if !broken {
		t.Fatal("price below the line must break it")
	}
	if reason == "" {
		t.Error("break should carry a reason")
	}

	if broken, _ := gl.CheckBreak(94300, level, Long); broken {
		t.Error("price above the line must not break it")
	}
}

func TestGuardingInertBeforeActivation(t *testing.T) {
	gl := NewGuardingLine(10, 0.3)
	params := GuardingParams{Slope: 50, Intercept: 94000, ActivationBar: 10}

	level := gl.CurrentLevel(params, 5)
	if math.Abs(level-94000*0.9) > 1e-9 {
		t.Errorf("pre-activation level should sit far below, got %f", level)
	}
	if broken, _ := gl.CheckBreak(93000, level, Long); broken {
		t.Error("inert line should not break on normal pullbacks")
	}
}

func TestGuardingMonotonicOnceActive(t *testing.T) {
	gl := NewGuardingLine(10, 0.3)
	params := GuardingParams{Slope: 50, Intercept: 94000, ActivationBar: 10}

	prev := gl.CurrentLevel(params, 10)
	for bar := 11; bar <= 30; bar++ {
		level := gl.CurrentLevel(params, bar)
		if level < prev {
			t.Fatalf("long guarding level retreated at bar %d: %f < %f", bar, level, prev)
		}
		prev = level
	}
}

func TestGuardingSlopeNeverFlat(t *testing.T) {
	gl := NewGuardingLine(10, 0.3)

	// Sideways lows would fit a near-zero slope; the clamp keeps a long
	// guard rising at the minimum rate.
	prices := []float64{100, 99, 100, 99, 100, 99, 100, 99, 100, 99, 100, 99}
	params := gl.CalculateInitialLine(100, Long, prices, 20)

	minSlope := 100 * gl.MinSlopePct / 100
	if params.Slope < minSlope {
		t.Errorf("slope %f below minimum %f", params.Slope, minSlope)
	}
	maxSlope := 100 * gl.MaxSlopePct / 100
	if params.Slope > maxSlope {
		t.Errorf("slope %f above maximum %f", params.Slope, maxSlope)
	}
}

func TestGuardingShortSlopeNegative(t *testing.T) {
	gl := NewGuardingLine(10, 0.3)

	prices := []float64{110, 109, 110, 108, 109, 107, 108, 106, 107, 105, 106, 104}
	params := gl.CalculateInitialLine(100, Short, prices, 20)

	if params.Slope >= 0 {
		t.Errorf("short guard slope must be negative, got %f", params.Slope)
	}
	// Intercept above the highest recent price by the buffer.
	if params.Intercept <= 110 {
		t.Errorf("short intercept should sit above recent highs, got %f", params.Intercept)
	}
}

func TestGuardingDefaultsWithThinHistory(t *testing.T) {
	gl := NewGuardingLine(10, 0.3)

	params := gl.CalculateInitialLine(100, Long, []float64{99, 98}, 20)
	if params.SlopeSource != "default" {
		t.Errorf("thin history should use defaults, got %s", params.SlopeSource)
	}
	if math.Abs(params.Intercept-97) > 1e-9 {
		t.Errorf("default long intercept at entry*0.97, got %f", params.Intercept)
	}
}

func TestGuardingUpdateSlopeOnlySteepens(t *testing.T) {
	gl := NewGuardingLine(10, 0.3)
	params := GuardingParams{Slope: 0.2, Intercept: 97, ActivationBar: 10}

	// Flat swing progression refits to the clamp minimum (0.05), below the
	// current slope: keep the existing one.
	flat := []analysis.SwingPoint{{Index: 0, Price: 97}, {Index: 5, Price: 97}, {Index: 10, Price: 97}}
	if got := gl.UpdateSlope(params, flat, Long, 100); got.Slope != params.Slope {
		t.Errorf("shallower refit should not be adopted, got %f", got.Slope)
	}

	// Steeper progression (0.4/bar, within the 0.5 clamp) is adopted.
	steep := []analysis.SwingPoint{{Index: 0, Price: 97}, {Index: 5, Price: 99}, {Index: 10, Price: 101}}
	got := gl.UpdateSlope(params, steep, Long, 100)
	if got.Slope <= params.Slope {
		t.Errorf("steeper refit should be adopted, got %f", got.Slope)
	}
	if got.SlopeSource != "dynamic_update" {
		t.Errorf("adopted slope should be marked dynamic, got %s", got.SlopeSource)
	}
}

func TestGuardingParamsValidation(t *testing.T) {
	bad := GuardingParams{Slope: 1, Intercept: 0, ActivationBar: 10}
	if err := bad.Validate(); err == nil {
		t.Error("zero intercept must fail validation")
	}

	negative := GuardingParams{Slope: 1, Intercept: 100, ActivationBar: -1}
	if err := negative.Validate(); err == nil {
		t.Error("negative activation bar must fail validation")
	}
}
