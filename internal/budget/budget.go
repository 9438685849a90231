// Package budget allocates a shared risk cap across up to N staggered
// entries ("shots") using a fixed, monotonically decreasing fractional
// schedule. Earlier shots get the larger fractions so the position is
// front-loaded while conviction is highest.
package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-risk-engine/internal/risk"
)

var (
	ErrBudgetNotFound   = errors.New("trade budget not found")
	ErrBudgetExhausted  = errors.New("all shots in budget already taken")
	ErrInvalidBudget    = errors.New("invalid budget parameters")
	ErrZeroRiskDistance = errors.New("zero distance between entry and stop")
)

// ShotStatus tracks an individual entry through its life.
type ShotStatus string

const (
	ShotFilled  ShotStatus = "filled"
	ShotStopped ShotStatus = "stopped"
	ShotExited  ShotStatus = "exited"
)

// Shot is one sized entry taken against a budget.
type Shot struct {
	ID            string     `json:"id"`
	ShotNumber    int        `json:"shot_number"`
	EntryPrice    float64    `json:"entry_price"`
	StopPrice     float64    `json:"stop_price"`
	Size          float64    `json:"size"`
	RiskAmount    float64    `json:"risk_amount"`
	AllocationPct float64    `json:"allocation_pct"`
	Status        ShotStatus `json:"status"`
	TakenAt       time.Time  `json:"taken_at"`
}

// TradeBudget is the risk envelope for one multi-entry position. The sum of
// shot risk amounts never exceeds balance x cap; the invariant is enforced
// at allocation time, never retroactively.
type TradeBudget struct {
	ID              string         `json:"id"`
	Symbol          string         `json:"symbol"`
	Direction       risk.Direction `json:"direction"`
	TotalRiskCapPct float64        `json:"total_risk_cap_pct"`
	MaxShots        int            `json:"max_shots"`
	Shots           []Shot         `json:"shots"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ShotsTaken returns how many shots have been allocated so far.
func (b *TradeBudget) ShotsTaken() int { return len(b.Shots) }

// TotalSize sums the sizes of all filled shots.
func (b *TradeBudget) TotalSize() float64 {
	var total float64
	for _, s := range b.Shots {
		if s.Status == ShotFilled {
			total += s.Size
		}
	}
	return total
}

// AverageEntry is the size-weighted mean entry across filled shots.
func (b *TradeBudget) AverageEntry() float64 {
	var size, notional float64
	for _, s := range b.Shots {
		if s.Status == ShotFilled {
			size += s.Size
			notional += s.Size * s.EntryPrice
		}
	}
	if size == 0 {
		return 0
	}
	return notional / size
}

// TotalRiskAmount sums the allocated risk across all shots.
func (b *TradeBudget) TotalRiskAmount() float64 {
	var total float64
	for _, s := range b.Shots {
		total += s.RiskAmount
	}
	return total
}

// shotSchedules maps max_shots to a decreasing allocation schedule. Each
// row sums to 1.0.
var shotSchedules = map[int][]float64{
	1: {1.0},
	2: {0.6, 0.4},
	3: {0.5, 0.3, 0.2},
	4: {0.4, 0.3, 0.2, 0.1},
	5: {0.35, 0.25, 0.2, 0.12, 0.08},
}

// Allocator creates and tracks trade budgets. Map access is guarded; per
// budget, callers serialize shot allocation themselves.
type Allocator struct {
	logger zerolog.Logger

	mu      sync.Mutex
	budgets map[string]*TradeBudget
}

// NewAllocator returns an allocator with an empty registry.
func NewAllocator(logger zerolog.Logger) *Allocator {
	return &Allocator{
		logger:  logger.With().Str("component", "risk_budget").Logger(),
		budgets: make(map[string]*TradeBudget),
	}
}

// CreateBudget registers a fresh budget with zero shots used. maxShots must
// have a known schedule (1 through 5).
func (a *Allocator) CreateBudget(symbol string, direction risk.Direction, riskCapPct float64, maxShots int) (*TradeBudget, error) {
	if riskCapPct <= 0 {
		return nil, fmt.Errorf("%w: risk cap must be positive, got %.2f", ErrInvalidBudget, riskCapPct)
	}
	if _, ok := shotSchedules[maxShots]; !ok {
		return nil, fmt.Errorf("%w: unsupported max shots %d", ErrInvalidBudget, maxShots)
	}

	b := &TradeBudget{
		ID:              uuid.New().String(),
		Symbol:          symbol,
		Direction:       direction,
		TotalRiskCapPct: riskCapPct,
		MaxShots:        maxShots,
		CreatedAt:       time.Now().UTC(),
	}

	a.mu.Lock()
	a.budgets[b.ID] = b
	a.mu.Unlock()

	a.logger.Info().
		Str("budget_id", b.ID).
		Str("symbol", symbol).
		Float64("risk_cap_pct", riskCapPct).
		Int("max_shots", maxShots).
		Msg("trade budget created")
	return b, nil
}

// TakeShot allocates the next shot of the budget. The shot's risk amount is
// the next schedule fraction of the total cap; its size follows from the
// entry-to-stop distance.
func (a *Allocator) TakeShot(budgetID string, entryPrice, stopPrice, accountBalance float64) (*Shot, error) {
	a.mu.Lock()
	b, ok := a.budgets[budgetID]
	a.mu.Unlock()
	if !ok {
		return nil, ErrBudgetNotFound
	}

	return a.takeShot(b, entryPrice, stopPrice, accountBalance)
}

// TakeShotOn allocates against a budget the caller already holds, for
// owners (like the session manager) that embed budgets directly.
func (a *Allocator) TakeShotOn(b *TradeBudget, entryPrice, stopPrice, accountBalance float64) (*Shot, error) {
	return a.takeShot(b, entryPrice, stopPrice, accountBalance)
}

func (a *Allocator) takeShot(b *TradeBudget, entryPrice, stopPrice, accountBalance float64) (*Shot, error) {
	shotIndex := b.ShotsTaken()
	if shotIndex >= b.MaxShots {
		return nil, ErrBudgetExhausted
	}

	riskDistance := entryPrice - stopPrice
	if riskDistance < 0 {
		riskDistance = -riskDistance
	}
	if riskDistance == 0 {
		return nil, ErrZeroRiskDistance
	}

	schedule := shotSchedules[b.MaxShots]
	fraction := schedule[shotIndex]
	capAmount := accountBalance * b.TotalRiskCapPct / 100
	riskAmount := capAmount * fraction

	if b.TotalRiskAmount()+riskAmount > capAmount*1.0001 {
		return nil, ErrBudgetExhausted
	}

	shot := Shot{
		ID:            uuid.New().String(),
		ShotNumber:    shotIndex + 1,
		EntryPrice:    entryPrice,
		StopPrice:     stopPrice,
		Size:          riskAmount / riskDistance,
		RiskAmount:    riskAmount,
		AllocationPct: fraction * 100,
		Status:        ShotFilled,
		TakenAt:       time.Now().UTC(),
	}
	b.Shots = append(b.Shots, shot)

	a.logger.Info().
		Str("budget_id", b.ID).
		Str("symbol", b.Symbol).
		Int("shot", shot.ShotNumber).
		Float64("entry", entryPrice).
		Float64("size", shot.Size).
		Float64("risk_amount", riskAmount).
		Msg("shot allocated")
	return &shot, nil
}

// GetBudget looks up a budget by id.
func (a *Allocator) GetBudget(budgetID string) (*TradeBudget, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.budgets[budgetID]
	return b, ok
}

// ReleaseBudget drops a budget from the registry, after the owning session
// closes.
func (a *Allocator) ReleaseBudget(budgetID string) {
	a.mu.Lock()
	delete(a.budgets, budgetID)
	a.mu.Unlock()
}
