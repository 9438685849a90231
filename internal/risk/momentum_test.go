package risk

import (
	"strings"
	"testing"

	"trade-risk-engine/internal/market"
)

func risingCandles(opens ...float64) []market.Kline {
	out := make([]market.Kline, len(opens))
	for i, o := range opens {
		out[i] = market.Kline{Open: o, High: o + 1.5, Low: o - 0.5, Close: o + 1}
	}
	return out
}

func TestMomentumActivation(t *testing.T) {
	mt := NewMomentumTrailingTP()
	closes := []float64{100, 101, 102, 103, 104}
	candles := risingCandles(102, 103, 104)

	state := &MomentumState{}
	exit, _ := mt.Update(state, 104.5, 1.2, Long, closes, candles)
	if exit {
		t.Fatal("activation bar should not exit")
	}
	if !state.Active {
		t.Fatal("clean 1%/bar slope at R=1.2 should activate trailing")
	}
	if state.ActivationR != 1.2 {
		t.Errorf("activation R = %f, want 1.2", state.ActivationR)
	}
	if state.TrailingLevel <= 0 || state.TrailingLevel >= 104.5 {
		t.Errorf("long trailing level %f should sit below price", state.TrailingLevel)
	}
	// Slope ~0.98%/bar with a perfect fit puts the buffer near the tight end.
	if state.TrailBufferPct > 0.3 {
		t.Errorf("strong slope should tighten the trail, got buffer %f", state.TrailBufferPct)
	}
}

func TestMomentumRequiresRThreshold(t *testing.T) {
	mt := NewMomentumTrailingTP()
	closes := []float64{100, 101, 102, 103, 104}

	state := &MomentumState{}
	mt.Update(state, 104.5, 0.5, Long, closes, risingCandles(102, 103, 104))
	if state.Active {
		t.Error("R=0.5 is below the activation threshold")
	}
}

func TestMomentumRequiresSlope(t *testing.T) {
	mt := NewMomentumTrailingTP()
	flat := []float64{100, 100, 100, 100, 100}

	state := &MomentumState{}
	mt.Update(state, 100, 2.0, Long, flat, nil)
	if state.Active {
		t.Error("flat closes should not arm the trail regardless of R")
	}
}

func TestMomentumTrailOnlyRatchets(t *testing.T) {
	mt := NewMomentumTrailingTP()
	closes := []float64{100, 101, 102, 103, 104}

	state := &MomentumState{}
	mt.Update(state, 104.5, 1.2, Long, closes, risingCandles(102, 103, 104))
	if !state.Active {
		t.Fatal("setup: trail should be active")
	}
	first := state.TrailingLevel

	// Higher candle bodies pull the trail up.
	closes = append(closes, 105, 106)
	exit, _ := mt.Update(state, 106.5, 1.6, Long, closes, risingCandles(104, 105, 106))
	if exit {
		t.Fatal("price above the trail should not exit")
	}
	raised := state.TrailingLevel
	if raised <= first {
		t.Errorf("trail should ratchet up with higher bodies: %f -> %f", first, raised)
	}

	// A pullback candle set must not drag the trail back down.
	exit, _ = mt.Update(state, raised+0.5, 1.5, Long, closes, risingCandles(100, 100.5, 101))
	if exit {
		t.Fatal("price still above the trail")
	}
	if state.TrailingLevel < raised {
		t.Errorf("trail retreated from %f to %f", raised, state.TrailingLevel)
	}
}

func TestMomentumExitOnAdverseCross(t *testing.T) {
	mt := NewMomentumTrailingTP()
	state := &MomentumState{
		Active:        true,
		TrailingLevel: 103,
		ActivationR:   1.0,
		PeakPrice:     105,
	}

	closes := []float64{104, 104.5, 105, 104, 102}
	exit, reason := mt.Update(state, 102, 1.5, Long, closes, risingCandles(100, 100.5, 101))
	if !exit {
		t.Fatal("price below the trailing level should exit")
	}
	if !strings.Contains(reason, "captured") {
		t.Errorf("exit reason should report the captured move, got %q", reason)
	}
}

func TestMomentumShortExit(t *testing.T) {
	mt := NewMomentumTrailingTP()
	state := &MomentumState{
		Active:        true,
		TrailingLevel: 98,
		ActivationR:   1.2,
		PeakPrice:     95,
	}

	closes := []float64{97, 96.5, 96, 97, 99}
	exit, _ := mt.Update(state, 99, 1.4, Short, closes, risingCandles(97, 98, 98.5))
	if !exit {
		t.Error("short price above the trailing level should exit")
	}
}

func TestTrailBufferBounds(t *testing.T) {
	mt := NewMomentumTrailingTP()
	if got := mt.TrailBuffer(0); got != mt.MaxBufferPct {
		t.Errorf("zero strength should use the widest buffer, got %f", got)
	}
	if got := mt.TrailBuffer(1); got != mt.MinBufferPct {
		t.Errorf("full strength should use the tightest buffer, got %f", got)
	}
}
