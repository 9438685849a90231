package risk

import (
	"errors"
	"fmt"

	"trade-risk-engine/internal/analysis"
	"trade-risk-engine/internal/market"
)

// ErrInvalidGuardingParams marks guarding-line parameter validation failures.
var ErrInvalidGuardingParams = errors.New("invalid guarding line parameters")

// GuardingParams are the fitted parameters of a guarding line. They are
// built by GuardingLine and validated at construction.
type GuardingParams struct {
	Slope         float64 `json:"slope"`          // price change per bar
	Intercept     float64 `json:"intercept"`      // level at the activation bar
	ActivationBar int     `json:"activation_bar"` // bars since entry before the line arms
	BufferPct     float64 `json:"buffer_pct"`
	SlopeSource   string  `json:"slope_source"` // swing_regression, linear_regression or default
	BaseLevel     float64 `json:"base_level"`
}

// Validate checks the parameter invariants.
func (p GuardingParams) Validate() error {
	if p.Intercept <= 0 {
		return fmt.Errorf("%w: intercept must be positive", ErrInvalidGuardingParams)
	}
	if p.ActivationBar < 0 {
		return fmt.Errorf("%w: activation bar must be non-negative", ErrInvalidGuardingParams)
	}
	return nil
}

// GuardingLine fits and tracks the regression-based trailing stop for swing
// positions. The slope follows actual swing-point progression, clamped so a
// long guard only rises and a short guard only falls, never goes flat.
type GuardingLine struct {
	ActivationBars int
	BufferPct      float64
	MinSlopePct    float64 // minimum slope as % of entry per bar
	MaxSlopePct    float64 // maximum slope as % of entry per bar
}

// NewGuardingLine returns a guarding line with the standard slope bounds.
func NewGuardingLine(activationBars int, bufferPct float64) *GuardingLine {
	return &GuardingLine{
		ActivationBars: activationBars,
		BufferPct:      bufferPct,
		MinSlopePct:    0.05,
		MaxSlopePct:    0.5,
	}
}

// CalculateInitialLine fits the line from recent swing-source prices: lows
// for a long, highs for a short. With two or more swing points the slope
// comes from a least-squares fit through them, otherwise from the raw
// series. The intercept is the extreme recent value offset by the buffer.
func (gl *GuardingLine) CalculateInitialLine(entry float64, direction Direction, prices []float64, lookback int) GuardingParams {
	if len(prices) < 5 {
		return gl.defaultParams(entry, direction)
	}

	recent := market.TailFloats(prices, lookback)

	var swings []analysis.SwingPoint
	if direction == Long {
		swings = analysis.SwingLows(recent)
	} else {
		swings = analysis.SwingHighs(recent)
	}

	var slope float64
	source := "linear_regression"
	if len(swings) >= 2 {
		slope = analysis.FitSwings(swings).Slope
		source = "swing_regression"
	} else {
		slope = analysis.FitSeries(recent).Slope
	}

	slope = gl.clampSlope(slope, entry, direction)

	var base, intercept float64
	if direction == Long {
		base = minOf(recent)
		intercept = base * (1 - gl.BufferPct/100)
	} else {
		base = maxOf(recent)
		intercept = base * (1 + gl.BufferPct/100)
	}

	return GuardingParams{
		Slope:         slope,
		Intercept:     intercept,
		ActivationBar: gl.ActivationBars,
		BufferPct:     gl.BufferPct,
		SlopeSource:   source,
		BaseLevel:     base,
	}
}

// UpdateSlope refits the slope against fresh swing points and adopts the
// new value only when it is steeper in the favorable direction.
func (gl *GuardingLine) UpdateSlope(params GuardingParams, swings []analysis.SwingPoint, direction Direction, entry float64) GuardingParams {
	if len(swings) < 2 {
		return params
	}

	newSlope := gl.clampSlope(analysis.FitSwings(swings).Slope, entry, direction)

	if direction == Long && newSlope > params.Slope {
		params.Slope = newSlope
		params.SlopeSource = "dynamic_update"
	} else if direction == Short && newSlope < params.Slope {
		params.Slope = newSlope
		params.SlopeSource = "dynamic_update"
	}
	return params
}

// CurrentLevel returns the line's level for a bar count. Before the
// activation bar it returns a level far from price so the line is inert.
func (gl *GuardingLine) CurrentLevel(params GuardingParams, barsSinceEntry int) float64 {
	if barsSinceEntry < params.ActivationBar {
		if params.Slope >= 0 {
			return params.Intercept * 0.9
		}
		return params.Intercept * 1.1
	}
	barsActive := barsSinceEntry - params.ActivationBar
	return params.Intercept + params.Slope*float64(barsActive)
}

// CheckBreak reports whether price has crossed the line against the trade.
func (gl *GuardingLine) CheckBreak(price, level float64, direction Direction) (bool, string) {
	if direction == Long && price < level {
		return true, fmt.Sprintf("Price %.2f broke below guarding at %.2f", price, level)
	}
	if direction == Short && price > level {
		return true, fmt.Sprintf("Price %.2f broke above guarding at %.2f", price, level)
	}
	return false, ""
}

func (gl *GuardingLine) clampSlope(slope, entry float64, direction Direction) float64 {
	minSlope := entry * gl.MinSlopePct / 100
	maxSlope := entry * gl.MaxSlopePct / 100

	if direction == Long {
		if slope < minSlope {
			slope = minSlope
		}
		if slope > maxSlope {
			slope = maxSlope
		}
	} else {
		if slope > -minSlope {
			slope = -minSlope
		}
		if slope < -maxSlope {
			slope = -maxSlope
		}
	}
	return slope
}

func (gl *GuardingLine) defaultParams(entry float64, direction Direction) GuardingParams {
	slope := entry * gl.MinSlopePct / 100
	intercept := entry * 0.97
	if direction == Short {
		slope = -slope
		intercept = entry * 1.03
	}
	return GuardingParams{
		Slope:         slope,
		Intercept:     intercept,
		ActivationBar: gl.ActivationBars,
		BufferPct:     gl.BufferPct,
		SlopeSource:   "default",
		BaseLevel:     intercept,
	}
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
