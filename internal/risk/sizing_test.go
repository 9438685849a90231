package risk

import (
	"math"
	"testing"

	"trade-risk-engine/internal/analysis"
)

func TestSizingBaseline(t *testing.T) {
	ps := NewPositionSizer(DefaultConfig())

	// ATR at 2% of entry: volatility factor exactly 1.0.
	s := ps.Calculate(100000, 1.0, 100, 2.0, 2.0, analysis.RegimeNormal)

	if math.Abs(s.VolFactor-1.0) > 1e-9 {
		t.Errorf("expected neutral vol factor, got %f", s.VolFactor)
	}
	if math.Abs(s.RiskAmount-1000) > 1e-9 {
		t.Errorf("expected $1000 at risk, got %f", s.RiskAmount)
	}
	if math.Abs(s.Size-500) > 1e-9 {
		t.Errorf("expected size 500 units, got %f", s.Size)
	}
	// position_size * entry / balance ≈ size_pct
	if math.Abs(s.SizePct-(s.Size*100/100000*100)) > 1e-6 {
		t.Errorf("size pct inconsistent: %f", s.SizePct)
	}
}

func TestSizingVolFactorClamped(t *testing.T) {
	ps := NewPositionSizer(DefaultConfig())

	// Very low volatility pushes the factor up; it must cap at 2.0.
	calm := ps.Calculate(100000, 1.0, 100, 1.0, 0.1, analysis.RegimeLow)
	if calm.VolFactor != 2.0 {
		t.Errorf("expected vol factor capped at 2.0, got %f", calm.VolFactor)
	}

	// Very high volatility pushes it down; floor at 0.5.
	wild := ps.Calculate(100000, 1.0, 100, 1.0, 8.0, analysis.RegimeHigh)
	if wild.VolFactor != 0.5 {
		t.Errorf("expected vol factor floored at 0.5, got %f", wild.VolFactor)
	}

	for _, s := range []Sizing{calm, wild} {
		ratio := s.EffRiskPct / 1.0
		if ratio < 0.5-1e-9 || ratio > 2.0+1e-9 {
			t.Errorf("effective risk ratio %f outside [0.5, 2.0]", ratio)
		}
	}
}

func TestSizingExtremeRegimeHalved(t *testing.T) {
	ps := NewPositionSizer(DefaultConfig())

	normal := ps.Calculate(100000, 1.0, 100, 2.0, 2.0, analysis.RegimeNormal)
	extreme := ps.Calculate(100000, 1.0, 100, 2.0, 2.0, analysis.RegimeExtreme)

	if math.Abs(extreme.RiskAmount-normal.RiskAmount/2) > 1e-9 {
		t.Errorf("extreme regime should halve risk: normal %f, extreme %f",
			normal.RiskAmount, extreme.RiskAmount)
	}
}

func TestSizingZeroStopDistance(t *testing.T) {
	ps := NewPositionSizer(DefaultConfig())

	s := ps.Calculate(100000, 1.0, 100, 0, 2.0, analysis.RegimeNormal)
	if s.Size != 0 {
		t.Errorf("zero stop distance must produce zero size, got %f", s.Size)
	}
}
