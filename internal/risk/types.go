// Package risk implements the risk computation engine: structural stop and
// target ladders, volatility-adjusted position sizing, the guarding-line
// trailing stop, the momentum trailing take-profit and the per-bar update
// that arbitrates between them.
package risk

import "strings"

// Direction is the side of a trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// ParseDirection normalizes a direction string. Unknown values return
// false rather than defaulting.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(s) {
	case "long", "buy":
		return Long, true
	case "short", "sell":
		return Short, true
	default:
		return "", false
	}
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// StopTier identifies a rung of the stop-loss ladder.
type StopTier string

const (
	TierPrimary   StopTier = "primary"    // structural or ATR stop, tightest
	TierSecondary StopTier = "secondary"  // wider backup stop
	TierSafetyNet StopTier = "safety_net" // maximum-loss protection
	TierBreakeven StopTier = "breakeven"  // primary retagged after the breakeven move
)

// TargetType identifies how a take-profit level was derived.
type TargetType string

const (
	TargetStructural TargetType = "structural" // supplied support/resistance
	TargetExtension  TargetType = "extension"  // R-multiple fallback
	TargetVPVR       TargetType = "vpvr"       // volume-profile level
	TargetDynamic    TargetType = "dynamic"    // added after entry by trailing
)

// StructureHealth grades the structure supporting a position.
type StructureHealth string

const (
	StructureStrong    StructureHealth = "strong"
	StructureWeakening StructureHealth = "weakening"
	StructureBroken    StructureHealth = "broken"
)

// StopLevel is one rung of the stop ladder, tightest first.
type StopLevel struct {
	Price       float64  `json:"price"`
	Tier        StopTier `json:"tier"`
	Confidence  float64  `json:"confidence"`
	Reason      string   `json:"reason"`
	DistancePct float64  `json:"distance_pct"`
}

// TargetLevel is one take-profit target, nearest to entry first.
type TargetLevel struct {
	Price          float64    `json:"price"`
	Type           TargetType `json:"type"`
	ExitPercentage float64    `json:"exit_percentage"`
	Confidence     float64    `json:"confidence"`
	Reason         string     `json:"reason"`
	DistancePct    float64    `json:"distance_pct"`
}

// StructuralLevel is an externally supplied support or resistance candidate.
// The engine consumes scored detector output; it runs no detection itself.
type StructuralLevel struct {
	Price      float64 `json:"price"`
	Confluence float64 `json:"confluence"` // 0-10 confluence score
}

// StructuralInput carries the external structural analysis for a setup.
type StructuralInput struct {
	Supports    []StructuralLevel `json:"supports"`
	Resistances []StructuralLevel `json:"resistances"`
	// VolumeTargets are volume-profile derived target candidates.
	VolumeTargets []StructuralLevel `json:"volume_targets"`
	// Quality is the 0-10 structure-quality score from the detector.
	Quality float64 `json:"quality"`
}

// BestSupport returns the candidate nearest below the given price.
func (s StructuralInput) BestSupport(below float64) (StructuralLevel, bool) {
	return nearest(s.Supports, below, func(p float64) bool { return p < below })
}

// BestResistance returns the candidate nearest above the given price.
func (s StructuralInput) BestResistance(above float64) (StructuralLevel, bool) {
	return nearest(s.Resistances, above, func(p float64) bool { return p > above })
}

func nearest(levels []StructuralLevel, ref float64, qualifies func(float64) bool) (StructuralLevel, bool) {
	var best StructuralLevel
	found := false
	for _, lv := range levels {
		if !qualifies(lv.Price) {
			continue
		}
		if !found || abs(lv.Price-ref) < abs(best.Price-ref) {
			best = lv
			found = true
		}
	}
	return best, found
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
