package risk

import (
	"math"
	"testing"
)

func TestStructuralTargetsNearestThree(t *testing.T) {
	tc := NewTargetCalculator(DefaultConfig())

	setup := TradeSetup{EntryPrice: 100, Direction: Long, AccountBalance: 10000, RiskPerTradePct: 1}
	structure := StructuralInput{
		Resistances: []StructuralLevel{
			{Price: 103, Confluence: 6},
			{Price: 110, Confluence: 9},
			{Price: 106, Confluence: 4},
			{Price: 99, Confluence: 8}, // wrong side, must be dropped
		},
		VolumeTargets: []StructuralLevel{{Price: 104.5}},
	}

	targets := tc.Calculate(setup, structure, 1.0)
	if len(targets) != 3 {
		t.Fatalf("expected nearest 3 targets, got %d", len(targets))
	}

	wantPrices := []float64{103, 104.5, 106}
	for i, want := range wantPrices {
		if math.Abs(targets[i].Price-want) > 1e-9 {
			t.Errorf("target %d: expected %f, got %f", i, want, targets[i].Price)
		}
	}
	if targets[1].Type != TargetVPVR {
		t.Errorf("expected volume target type, got %s", targets[1].Type)
	}

	var totalExit float64
	for _, target := range targets {
		if target.Price <= setup.EntryPrice {
			t.Errorf("long target at %f must be above entry", target.Price)
		}
		totalExit += target.ExitPercentage
	}
	if totalExit > 100+1e-9 {
		t.Errorf("exit percentages sum to %f, above 100", totalExit)
	}
}

func TestExitScheduleAssignment(t *testing.T) {
	tc := NewTargetCalculator(DefaultConfig())

	setup := TradeSetup{EntryPrice: 100, Direction: Long, AccountBalance: 10000, RiskPerTradePct: 1}
	structure := StructuralInput{
		Resistances: []StructuralLevel{{Price: 102}, {Price: 104}, {Price: 106}},
	}

	targets := tc.Calculate(setup, structure, 1.0)
	want := []float64{33, 33, 34}
	for i, target := range targets {
		if math.Abs(target.ExitPercentage-want[i]) > 1e-9 {
			t.Errorf("target %d: expected exit %f%%, got %f%%", i, want[i], target.ExitPercentage)
		}
	}
}

func TestRMultipleFallbackTargets(t *testing.T) {
	cfg := DefaultConfig()
	tc := NewTargetCalculator(cfg)

	setup := TradeSetup{EntryPrice: 100, Direction: Long, AccountBalance: 10000, RiskPerTradePct: 1}
	targets := tc.Calculate(setup, StructuralInput{}, 1.0)

	if len(targets) != 3 {
		t.Fatalf("expected 3 fallback targets, got %d", len(targets))
	}
	// Stop distance = ATR * 2.0 = 2.0, so 2R/3R/5R sit at 104/106/110.
	want := []float64{104, 106, 110}
	for i, target := range targets {
		if math.Abs(target.Price-want[i]) > 1e-9 {
			t.Errorf("fallback target %d: expected %f, got %f", i, want[i], target.Price)
		}
		if target.Type != TargetExtension {
			t.Errorf("fallback targets are extensions, got %s", target.Type)
		}
		if target.Confidence != 0.5 {
			t.Errorf("fallback confidence should be 0.5, got %f", target.Confidence)
		}
	}
}

func TestShortTargetsBelowEntry(t *testing.T) {
	tc := NewTargetCalculator(DefaultConfig())

	setup := TradeSetup{EntryPrice: 100, Direction: Short, AccountBalance: 10000, RiskPerTradePct: 1}
	structure := StructuralInput{
		Supports: []StructuralLevel{{Price: 96, Confluence: 7}, {Price: 92, Confluence: 5}},
	}

	targets := tc.Calculate(setup, structure, 1.0)
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	for _, target := range targets {
		if target.Price >= setup.EntryPrice {
			t.Errorf("short target at %f must be below entry", target.Price)
		}
	}
}
