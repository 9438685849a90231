package session

// ExitReason is the closed set of reasons an exit can be recorded with.
// Unrecognized strings coerce to ExitManual rather than failing, so
// upstream callers can pass free-form reasons without breaking the journal.
type ExitReason string

const (
	ExitTargetHit        ExitReason = "target_hit"
	ExitGuardingBroken   ExitReason = "guarding_line_broken"
	ExitStructureBroken  ExitReason = "structural_support_broken"
	ExitOppositeSignal   ExitReason = "opposite_mcf_signal"
	ExitMomentumExhaust  ExitReason = "momentum_exhaustion"
	ExitVolumeClimax     ExitReason = "volume_climax"
	ExitSafetyNet        ExitReason = "safety_net_5pct"
	ExitManual           ExitReason = "manual_exit"
)

// ParseExitReason maps a reason string onto the closed set, falling back to
// manual_exit for anything it does not recognize.
func ParseExitReason(s string) ExitReason {
	switch ExitReason(s) {
	case ExitTargetHit, ExitGuardingBroken, ExitStructureBroken,
		ExitOppositeSignal, ExitMomentumExhaust, ExitVolumeClimax,
		ExitSafetyNet, ExitManual:
		return ExitReason(s)
	default:
		return ExitManual
	}
}
