package risk

import (
	"fmt"

	"trade-risk-engine/internal/analysis"
	"trade-risk-engine/internal/market"
)

// MomentumState tracks one position's momentum trailing take-profit. It is
// created lazily on the first qualifying bar and mutated on every bar after
// that; the trailing level only ever ratchets in the favorable direction.
type MomentumState struct {
	Active         bool    `json:"active"`
	TrailingLevel  float64 `json:"trailing_level"`
	Slope          float64 `json:"slope"` // % per bar
	SlopeStrength  float64 `json:"slope_strength"`
	BarsInMomentum int     `json:"bars_in_momentum"`
	PeakPrice      float64 `json:"peak_price"`
	TrailBufferPct float64 `json:"trail_buffer_pct"`
	ActivationR    float64 `json:"activation_r"`
}

// MomentumTrailingTP is the slope-adaptive trailing take-profit. It arms
// once profit and slope quality clear the thresholds, then trails behind
// recent candle bodies with a buffer inversely proportional to slope
// strength: cleaner, steeper moves get a tighter trail.
type MomentumTrailingTP struct {
	MinRToActivate     float64 // minimum R-multiple before trailing starts
	MinSlopeToActivate float64 // minimum slope (% per bar)
	MinStrength        float64 // minimum slope strength to arm
	MinBufferPct       float64 // tightest trail
	MaxBufferPct       float64 // widest trail
	SlopeLookback      int     // closes used for the slope fit
	TrailWicks         bool    // trail wicks instead of bodies
	BodyBufferPct      float64 // extra buffer beyond the candle reference
}

// NewMomentumTrailingTP returns the trailing take-profit with the standard
// thresholds.
func NewMomentumTrailingTP() *MomentumTrailingTP {
	return &MomentumTrailingTP{
		MinRToActivate:     1.0,
		MinSlopeToActivate: 0.002,
		MinStrength:        0.3,
		MinBufferPct:       0.15,
		MaxBufferPct:       1.5,
		SlopeLookback:      5,
		TrailWicks:         false,
		BodyBufferPct:      0.1,
	}
}

// CalculateSlope fits recent closes and returns the slope in % per bar plus
// a 0-1 strength. Strength is the normalized slope magnitude times the R²
// of the fit, penalized when the slope opposes the trade direction.
func (mt *MomentumTrailingTP) CalculateSlope(closes []float64, direction Direction) (float64, float64) {
	if len(closes) < 3 {
		return 0, 0
	}

	recent := market.TailFloats(closes, mt.SlopeLookback)
	fit := analysis.FitSeries(recent)

	var sum float64
	for _, c := range recent {
		sum += c
	}
	avg := sum / float64(len(recent))
	if avg <= 0 {
		return 0, 0
	}
	slopePct := fit.Slope / avg * 100

	// 1% per bar counts as full magnitude.
	strength := abs(slopePct) * fit.RSquared
	if strength > 1 {
		strength = 1
	}

	if (direction == Long && fit.Slope < 0) || (direction == Short && fit.Slope > 0) {
		strength *= 0.3
	}

	return slopePct, strength
}

// TrailBuffer maps slope strength to a buffer percentage: strength 0 gets
// the widest buffer, strength 1 the tightest.
func (mt *MomentumTrailingTP) TrailBuffer(strength float64) float64 {
	buffer := mt.MaxBufferPct - strength*(mt.MaxBufferPct-mt.MinBufferPct)
	if buffer < mt.MinBufferPct {
		buffer = mt.MinBufferPct
	}
	if buffer > mt.MaxBufferPct {
		buffer = mt.MaxBufferPct
	}
	return buffer
}

// TrailLevel computes the level behind the last few candle bodies (or
// wicks), never closer to price than the minimum buffer allows.
func (mt *MomentumTrailingTP) TrailLevel(price float64, direction Direction, candles []market.Kline, bufferPct float64) float64 {
	if len(candles) == 0 {
		if direction == Long {
			return price * (1 - bufferPct/100)
		}
		return price * (1 + bufferPct/100)
	}

	recent := market.Tail(candles, 3)

	if direction == Long {
		ref := recent[0].BodyLow()
		for _, c := range recent {
			low := c.BodyLow()
			if mt.TrailWicks {
				low = c.Low
			}
			if low < ref {
				ref = low
			}
		}
		level := ref * (1 - mt.BodyBufferPct/100)
		maxTrail := price * (1 - mt.MinBufferPct/100)
		if level > maxTrail {
			level = maxTrail
		}
		return level
	}

	ref := recent[0].BodyHigh()
	for _, c := range recent {
		high := c.BodyHigh()
		if mt.TrailWicks {
			high = c.High
		}
		if high > ref {
			ref = high
		}
	}
	level := ref * (1 + mt.BodyBufferPct/100)
	minTrail := price * (1 + mt.MinBufferPct/100)
	if level < minTrail {
		level = minTrail
	}
	return level
}

// Update advances the state for one bar. Returns whether a momentum exit
// triggered and, if so, the reason. Activation requires the R threshold, a
// slope above the minimum and sufficient strength; once active the trail
// only ratchets favorably and an adverse cross exits in full.
func (mt *MomentumTrailingTP) Update(
	state *MomentumState,
	price, currentR float64,
	direction Direction,
	closes []float64,
	candles []market.Kline,
) (bool, string) {
	if !state.Active {
		if currentR < mt.MinRToActivate {
			return false, ""
		}
		slopePct, strength := mt.CalculateSlope(closes, direction)
		if abs(slopePct) < mt.MinSlopeToActivate || strength < mt.MinStrength {
			return false, ""
		}

		state.Active = true
		state.ActivationR = currentR
		state.Slope = slopePct
		state.SlopeStrength = strength
		state.PeakPrice = price
		state.BarsInMomentum = 0
		state.TrailBufferPct = mt.TrailBuffer(strength)
		state.TrailingLevel = mt.TrailLevel(price, direction, candles, state.TrailBufferPct)
		return false, ""
	}

	state.BarsInMomentum++

	slopePct, strength := mt.CalculateSlope(closes, direction)
	state.Slope = slopePct
	state.SlopeStrength = strength
	state.TrailBufferPct = mt.TrailBuffer(strength)

	if direction == Long && price > state.PeakPrice {
		state.PeakPrice = price
	} else if direction == Short && price < state.PeakPrice {
		state.PeakPrice = price
	}

	newTrail := mt.TrailLevel(price, direction, candles, state.TrailBufferPct)
	if direction == Long {
		if newTrail > state.TrailingLevel {
			state.TrailingLevel = newTrail
		}
	} else {
		if newTrail < state.TrailingLevel {
			state.TrailingLevel = newTrail
		}
	}

	crossed := (direction == Long && price < state.TrailingLevel) ||
		(direction == Short && price > state.TrailingLevel)
	if crossed {
		captured := currentR - state.ActivationR
		reason := fmt.Sprintf(
			"Momentum trail broken at %.2f (captured +%.1fR of momentum move)",
			state.TrailingLevel, captured,
		)
		return true, reason
	}

	return false, ""
}
