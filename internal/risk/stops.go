package risk

import "fmt"

// StopCalculator derives the tiered stop-loss ladder for a setup.
type StopCalculator struct {
	cfg Config
}

// NewStopCalculator returns a calculator with the given configuration.
func NewStopCalculator(cfg Config) *StopCalculator {
	return &StopCalculator{cfg: cfg}
}

// Calculate builds the ladder, tightest first. The primary stop sits behind
// the nearest qualifying structural level with a small ATR buffer; when no
// candidate qualifies it falls back to an ATR-multiple stop. Multi-tier
// appends the secondary and safety-net rungs.
func (sc *StopCalculator) Calculate(setup TradeSetup, structure StructuralInput, atr float64) []StopLevel {
	entry := setup.EntryPrice
	var stops []StopLevel

	if setup.Direction == Long {
		if support, ok := structure.BestSupport(entry); ok {
			price := support.Price - atr*sc.cfg.StructuralATRBuffer
			distancePct := (entry - price) / entry * 100
			if distancePct <= sc.cfg.MaxStopPct {
				stops = append(stops, StopLevel{
					Price:       price,
					Tier:        TierPrimary,
					Confidence:  clamp01(support.Confluence / 10),
					Reason:      fmt.Sprintf("Below structural support at %.2f", support.Price),
					DistancePct: distancePct,
				})
			}
		}
		if len(stops) == 0 {
			price := entry - atr*sc.cfg.ATRStopMultiplier
			stops = append(stops, StopLevel{
				Price:       price,
				Tier:        TierPrimary,
				Confidence:  0.6,
				Reason:      fmt.Sprintf("%.1fx ATR stop", sc.cfg.ATRStopMultiplier),
				DistancePct: (entry - price) / entry * 100,
			})
		}
		if sc.cfg.EnableMultiTier {
			secondary := entry - atr*sc.cfg.ATRStopMultiplier*1.5
			stops = append(stops, StopLevel{
				Price:       secondary,
				Tier:        TierSecondary,
				Confidence:  0.5,
				Reason:      "Secondary stop (wider protection)",
				DistancePct: (entry - secondary) / entry * 100,
			})
			safety := entry * (1 - sc.cfg.MaxStopPct/100)
			stops = append(stops, StopLevel{
				Price:       safety,
				Tier:        TierSafetyNet,
				Confidence:  1.0,
				Reason:      fmt.Sprintf("Maximum %.0f%% loss protection", sc.cfg.MaxStopPct),
				DistancePct: sc.cfg.MaxStopPct,
			})
		}
		return stops
	}

	// short
	if resistance, ok := structure.BestResistance(entry); ok {
		price := resistance.Price + atr*sc.cfg.StructuralATRBuffer
		distancePct := (price - entry) / entry * 100
		if distancePct <= sc.cfg.MaxStopPct {
			stops = append(stops, StopLevel{
				Price:       price,
				Tier:        TierPrimary,
				Confidence:  clamp01(resistance.Confluence / 10),
				Reason:      fmt.Sprintf("Above structural resistance at %.2f", resistance.Price),
				DistancePct: distancePct,
			})
		}
	}
	if len(stops) == 0 {
		price := entry + atr*sc.cfg.ATRStopMultiplier
		stops = append(stops, StopLevel{
			Price:       price,
			Tier:        TierPrimary,
			Confidence:  0.6,
			Reason:      fmt.Sprintf("%.1fx ATR stop", sc.cfg.ATRStopMultiplier),
			DistancePct: (price - entry) / entry * 100,
		})
	}
	if sc.cfg.EnableMultiTier {
		secondary := entry + atr*sc.cfg.ATRStopMultiplier*1.5
		stops = append(stops, StopLevel{
			Price:       secondary,
			Tier:        TierSecondary,
			Confidence:  0.5,
			Reason:      "Secondary stop (wider protection)",
			DistancePct: (secondary - entry) / entry * 100,
		})
		safety := entry * (1 + sc.cfg.MaxStopPct/100)
		stops = append(stops, StopLevel{
			Price:       safety,
			Tier:        TierSafetyNet,
			Confidence:  1.0,
			Reason:      fmt.Sprintf("Maximum %.0f%% loss protection", sc.cfg.MaxStopPct),
			DistancePct: sc.cfg.MaxStopPct,
		})
	}
	return stops
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
