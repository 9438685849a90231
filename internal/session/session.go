// Package session owns the mutable lifecycle of one live multi-entry
// position: shots taken, partial and full exits, phase transitions, and
// exit-signal precedence, built on top of the risk engine and the shot
// budget allocator.
package session

import (
	"time"

	"trade-risk-engine/internal/budget"
	"trade-risk-engine/internal/risk"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusPartial Status = "partial"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
)

// Terminal reports whether the session accepts no further activity.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusExpired
}

// AcceptsEntries reports whether a shot may be taken in this state.
func (s Status) AcceptsEntries() bool {
	return s == StatusPending || s == StatusActive || s == StatusPartial
}

// Phase splits the active life into the entry window and management.
type Phase string

const (
	PhaseEntry      Phase = "entry"
	PhaseManagement Phase = "management"
)

// ExitRecord is one realized exit slice.
type ExitRecord struct {
	ExitPrice      float64    `json:"exit_price"`
	ExitSize       float64    `json:"exit_size"`
	ExitPercentage float64    `json:"exit_percentage"`
	Reason         ExitReason `json:"reason"`
	RealizedPnl    float64    `json:"realized_pnl"`
	ExecutedAt     time.Time  `json:"executed_at"`
}

// Session is one live multi-entry position and its risk envelope.
type Session struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	Direction risk.Direction `json:"direction"`
	Timeframe string         `json:"timeframe"`

	AccountBalance    float64            `json:"account_balance"`
	StructuralSupport float64            `json:"structural_support"`
	Targets           []risk.TargetLevel `json:"targets"`

	Budget *budget.TradeBudget `json:"budget"`

	Status Status `json:"status"`
	Phase  Phase  `json:"phase"`

	RemainingSize float64 `json:"remaining_size"`
	TargetsHit    int     `json:"targets_hit"`

	RealizedPnl      float64 `json:"realized_pnl"`
	UnrealizedPnl    float64 `json:"unrealized_pnl"`
	UnrealizedPnlPct float64 `json:"unrealized_pnl_pct"`

	HighestPrice float64 `json:"highest_price"`
	LowestPrice  float64 `json:"lowest_price"`
	CurrentBar   int     `json:"current_bar"`

	Guarding      *risk.GuardingParams `json:"guarding_line,omitempty"`
	GuardingLevel float64              `json:"guarding_level,omitempty"`

	// Levels is the working risk snapshot, rebuilt on each shot and
	// replaced wholesale when the per-bar update returns a new ladder.
	Levels *risk.RiskLevels `json:"levels,omitempty"`

	Exits []ExitRecord `json:"exits"`

	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// AverageEntry is the size-weighted mean entry price of filled shots.
func (s *Session) AverageEntry() float64 {
	if s.Budget == nil {
		return 0
	}
	return s.Budget.AverageEntry()
}

// Expired reports whether the timeout has elapsed. Expiry is lazy: it is
// checked on access, never by a timer.
func (s *Session) Expired(now time.Time) bool {
	return !s.Status.Terminal() && now.After(s.ExpiresAt)
}

// Summary is the read-only report of a session's outcome so far.
type Summary struct {
	SessionID     string         `json:"session_id"`
	Symbol        string         `json:"symbol"`
	Direction     risk.Direction `json:"direction"`
	Status        Status         `json:"status"`
	Phase         Phase          `json:"phase"`
	ShotsTaken    int            `json:"shots_taken"`
	AverageEntry  float64        `json:"average_entry"`
	RemainingSize float64        `json:"remaining_size"`
	TargetsHit    int            `json:"targets_hit"`
	PartialExits  int            `json:"partial_exits"`
	RealizedPnl   float64        `json:"realized_pnl"`
	UnrealizedPnl float64        `json:"unrealized_pnl"`
	TotalPnl      float64        `json:"total_pnl"`
	CreatedAt     time.Time      `json:"created_at"`
	ClosedAt      *time.Time     `json:"closed_at,omitempty"`
}

// Summarize builds the outcome report for the session.
func (s *Session) Summarize() Summary {
	shots := 0
	if s.Budget != nil {
		shots = s.Budget.ShotsTaken()
	}
	return Summary{
		SessionID:     s.ID,
		Symbol:        s.Symbol,
		Direction:     s.Direction,
		Status:        s.Status,
		Phase:         s.Phase,
		ShotsTaken:    shots,
		AverageEntry:  s.AverageEntry(),
		RemainingSize: s.RemainingSize,
		TargetsHit:    s.TargetsHit,
		PartialExits:  len(s.Exits),
		RealizedPnl:   s.RealizedPnl,
		UnrealizedPnl: s.UnrealizedPnl,
		TotalPnl:      s.RealizedPnl + s.UnrealizedPnl,
		CreatedAt:     s.CreatedAt,
		ClosedAt:      s.ClosedAt,
	}
}
