package risk

import (
	"fmt"
	"sort"
)

// TargetCalculator derives the take-profit ladder for a setup.
type TargetCalculator struct {
	cfg Config
}

// NewTargetCalculator returns a calculator with the given configuration.
func NewTargetCalculator(cfg Config) *TargetCalculator {
	return &TargetCalculator{cfg: cfg}
}

type targetCandidate struct {
	price      float64
	ttype      TargetType
	confidence float64
	reason     string
}

// Calculate merges structural and volume-profile candidates on the profit
// side of entry, keeps the nearest three and assigns the configured exit
// schedule. With no qualifying candidate it falls back to R-multiple
// extension targets off the ATR stop distance.
func (tc *TargetCalculator) Calculate(setup TradeSetup, structure StructuralInput, atr float64) []TargetLevel {
	entry := setup.EntryPrice

	candidates := tc.collectCandidates(setup, structure)
	sort.Slice(candidates, func(i, j int) bool {
		return abs(candidates[i].price-entry) < abs(candidates[j].price-entry)
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	targets := make([]TargetLevel, 0, 3)
	for i, c := range candidates {
		targets = append(targets, TargetLevel{
			Price:          c.price,
			Type:           c.ttype,
			ExitPercentage: tc.exitRatio(i) * 100,
			Confidence:     c.confidence,
			Reason:         c.reason,
			DistancePct:    abs(c.price-entry) / entry * 100,
		})
	}
	if len(targets) > 0 {
		return targets
	}

	// Fallback: fixed R-multiples of the ATR stop distance.
	stopDistance := atr * tc.cfg.ATRStopMultiplier
	for i, multiple := range tc.cfg.RMultipleFallback {
		price := entry + stopDistance*multiple
		if setup.Direction == Short {
			price = entry - stopDistance*multiple
		}
		targets = append(targets, TargetLevel{
			Price:          price,
			Type:           TargetExtension,
			ExitPercentage: tc.exitRatio(i) * 100,
			Confidence:     0.5,
			Reason:         fmt.Sprintf("%.0fR target", multiple),
			DistancePct:    abs(price-entry) / entry * 100,
		})
	}
	return targets
}

func (tc *TargetCalculator) collectCandidates(setup TradeSetup, structure StructuralInput) []targetCandidate {
	entry := setup.EntryPrice
	var out []targetCandidate

	profitSide := func(price float64) bool {
		if setup.Direction == Long {
			return price > entry
		}
		return price < entry
	}

	if setup.Direction == Long {
		for _, r := range structure.Resistances {
			if profitSide(r.Price) {
				out = append(out, targetCandidate{
					price:      r.Price,
					ttype:      TargetStructural,
					confidence: clamp01(r.Confluence / 10),
					reason:     "Structural resistance",
				})
			}
		}
	} else {
		for _, s := range structure.Supports {
			if profitSide(s.Price) {
				out = append(out, targetCandidate{
					price:      s.Price,
					ttype:      TargetStructural,
					confidence: clamp01(s.Confluence / 10),
					reason:     "Structural support",
				})
			}
		}
	}

	for _, v := range structure.VolumeTargets {
		if profitSide(v.Price) {
			out = append(out, targetCandidate{
				price:      v.Price,
				ttype:      TargetVPVR,
				confidence: 0.75,
				reason:     "Volume profile level",
			})
		}
	}
	return out
}

func (tc *TargetCalculator) exitRatio(i int) float64 {
	ratios := tc.cfg.PartialExitRatios
	if len(ratios) == 0 {
		return 1.0
	}
	if i < len(ratios) {
		return ratios[i]
	}
	return ratios[len(ratios)-1]
}
