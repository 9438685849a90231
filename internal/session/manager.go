package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-risk-engine/internal/budget"
	"trade-risk-engine/internal/risk"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session does not accept this operation in its current state")
	ErrSessionExpired  = errors.New("session has expired")
	ErrInvalidSession  = errors.New("invalid session parameters")
)

// remainingEpsilon treats any residual size at or below this absolute
// threshold as fully exited, absorbing float drift from percentage exits.
const remainingEpsilon = 1e-9

// defaultTargetPcts is the ladder generated when a session is created
// without explicit targets: +3%, +6%, +10% from the first entry.
var defaultTargetPcts = []float64{3.0, 6.0, 10.0}

// Journal records session activity durably. Implementations must tolerate
// being called from multiple sessions; a nil journal disables recording.
type Journal interface {
	RecordSession(ctx context.Context, s *Session) error
	RecordShot(ctx context.Context, sessionID string, shot budget.Shot) error
	RecordExit(ctx context.Context, sessionID string, exit ExitRecord) error
}

// SnapshotStore keeps the latest state of open sessions for restart
// recovery. A nil store disables snapshots.
type SnapshotStore interface {
	SaveSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// CreateParams are the inputs to open a new session.
type CreateParams struct {
	Symbol            string
	Direction         risk.Direction
	Timeframe         string
	AccountBalance    float64
	StructuralSupport float64
	Targets           []risk.TargetLevel
	RiskCapPct        float64
	MaxShots          int
	TimeoutHours      float64
}

// UpdateInput is one bar of live data plus external detector verdicts.
type UpdateInput struct {
	CurrentPrice       float64
	CurrentBar         int
	RecentLows         []float64
	RecentHighs        []float64
	OpposingSignal     bool
	MomentumExhaustion bool
	VolumeClimax       bool
}

// Manager is the process-wide session registry and state machine. Map
// access is internally guarded; concurrent updates to the same session
// must be serialized by the caller.
type Manager struct {
	engine    *risk.Engine
	allocator *budget.Allocator
	logger    zerolog.Logger
	journal   Journal
	snapshots SnapshotStore

	entryPhaseBars int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager wires the state machine to its collaborators. journal and
// snapshots may be nil.
func NewManager(engine *risk.Engine, allocator *budget.Allocator, logger zerolog.Logger, journal Journal, snapshots SnapshotStore) *Manager {
	return &Manager{
		engine:         engine,
		allocator:      allocator,
		logger:         logger.With().Str("component", "session_manager").Logger(),
		journal:        journal,
		snapshots:      snapshots,
		entryPhaseBars: 10,
		sessions:       make(map[string]*Session),
	}
}

// CreateSession opens a pending session with zero shots taken.
func (m *Manager) CreateSession(ctx context.Context, p CreateParams) (*Session, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", ErrInvalidSession)
	}
	if p.AccountBalance <= 0 {
		return nil, fmt.Errorf("%w: account balance must be positive", ErrInvalidSession)
	}
	if p.StructuralSupport <= 0 {
		return nil, fmt.Errorf("%w: structural level must be positive", ErrInvalidSession)
	}
	if p.TimeoutHours <= 0 {
		p.TimeoutHours = 72
	}

	b, err := m.allocator.CreateBudget(p.Symbol, p.Direction, p.RiskCapPct, p.MaxShots)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s := &Session{
		ID:                uuid.New().String(),
		Symbol:            p.Symbol,
		Direction:         p.Direction,
		Timeframe:         p.Timeframe,
		AccountBalance:    p.AccountBalance,
		StructuralSupport: p.StructuralSupport,
		Targets:           p.Targets,
		Budget:            b,
		Status:            StatusPending,
		Phase:             PhaseEntry,
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Duration(p.TimeoutHours * float64(time.Hour))),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info().
		Str("session_id", s.ID).
		Str("symbol", s.Symbol).
		Str("direction", string(s.Direction)).
		Float64("risk_cap_pct", p.RiskCapPct).
		Int("max_shots", p.MaxShots).
		Msg("session created")

	m.record(ctx, s)
	return s, nil
}

// TakeShot allocates and applies the next entry. A zero stopOverride
// derives the stop from the structural level with a small ATR buffer. The
// first accepted shot moves the session from pending to active.
func (m *Manager) TakeShot(ctx context.Context, sessionID string, entryPrice, atr, stopOverride float64) (*budget.Shot, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if !s.Status.AcceptsEntries() || s.Phase != PhaseEntry {
		return nil, ErrSessionInactive
	}
	if entryPrice <= 0 {
		return nil, fmt.Errorf("%w: entry price must be positive", ErrInvalidSession)
	}

	stopPrice := stopOverride
	if stopPrice <= 0 {
		buffer := 0.2 * atr
		if s.Direction == risk.Long {
			stopPrice = s.StructuralSupport - buffer
		} else {
			stopPrice = s.StructuralSupport + buffer
		}
	}

	shot, err := m.allocator.TakeShotOn(s.Budget, entryPrice, stopPrice, s.AccountBalance)
	if err != nil {
		return nil, err
	}

	if s.Status == StatusPending {
		s.Status = StatusActive
	}
	s.RemainingSize += shot.Size

	if len(s.Targets) == 0 {
		s.Targets = defaultTargets(entryPrice, s.Direction)
	}
	m.rebuildLevels(s)

	m.logger.Info().
		Str("session_id", s.ID).
		Int("shot", shot.ShotNumber).
		Float64("entry", entryPrice).
		Float64("stop", stopPrice).
		Float64("size", shot.Size).
		Msg("shot taken")

	if m.journal != nil {
		if err := m.journal.RecordShot(ctx, s.ID, *shot); err != nil {
			m.logger.Error().Err(err).Str("session_id", s.ID).Msg("journal shot failed")
		}
	}
	m.record(ctx, s)
	return shot, nil
}

// UpdateSession applies one bar: refreshes tracking, advances the phase,
// and delegates exit-signal arbitration to the risk engine before layering
// the session-level checks (safety net, opposing signal, exhaustion,
// climax) on top. The returned update carries at most one exit signal; the
// caller decides whether to act on it via ExecuteExit.
func (m *Manager) UpdateSession(ctx context.Context, sessionID string, in UpdateInput) (*risk.RiskUpdate, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusActive && s.Status != StatusPartial {
		return nil, ErrSessionInactive
	}
	if s.Levels == nil {
		return nil, ErrSessionInactive
	}

	// Swing sessions arm the guarding line from the first bar that brings
	// swing-source prices. The fitted parameters then survive rebuilds and
	// only the slope may steepen.
	if s.Levels.Guarding == nil && risk.IsSwingTimeframe(s.Timeframe) {
		prices := in.RecentLows
		if s.Direction == risk.Short {
			prices = in.RecentHighs
		}
		if params := m.engine.ArmGuarding(s.Levels.Entry, s.Direction, prices); params != nil {
			s.Levels.Guarding = params
			s.Guarding = params
			m.logger.Info().
				Str("session_id", s.ID).
				Float64("slope", params.Slope).
				Str("slope_source", params.SlopeSource).
				Msg("guarding line armed")
		}
	}

	price := in.CurrentPrice
	s.CurrentBar = in.CurrentBar
	if s.HighestPrice == 0 || price > s.HighestPrice {
		s.HighestPrice = price
	}
	if s.LowestPrice == 0 || price < s.LowestPrice {
		s.LowestPrice = price
	}
	if s.Phase == PhaseEntry && in.CurrentBar >= m.entryPhaseBars {
		s.Phase = PhaseManagement
		m.logger.Debug().Str("session_id", s.ID).Int("bar", in.CurrentBar).Msg("session entered management phase")
	}

	avgEntry := s.AverageEntry()
	dir := 1.0
	if s.Direction == risk.Short {
		dir = -1.0
	}
	s.UnrealizedPnl = (price - avgEntry) * s.RemainingSize * dir
	if avgEntry > 0 {
		s.UnrealizedPnlPct = (price - avgEntry) / avgEntry * 100 * dir
	}

	upd := risk.PositionUpdate{
		CurrentPrice:      price,
		BarsSinceEntry:    in.CurrentBar,
		HighestSinceEntry: s.HighestPrice,
		LowestSinceEntry:  s.LowestPrice,
		UnrealizedPnlPct:  s.UnrealizedPnlPct,
		RecentLows:        in.RecentLows,
		RecentHighs:       in.RecentHighs,
	}

	update := m.engine.Update(s.Levels, upd, nil, s.ID)

	if update.MovedToBreakeven {
		s.Levels = s.Levels.WithStops(update.UpdatedStops)
	}
	if update.GuardingActive {
		s.GuardingLevel = update.GuardingLevel
	}
	if update.GuardingBroken {
		// The engine reports the breach as prose; the journal wants the
		// closed reason set. The detail stays in the alerts.
		update.ExitReason = string(ExitGuardingBroken)
	}

	// Session-level checks keep the engine's first-signal rule: only the
	// safety net may displace a signal already set this bar.
	if adverseExcursionPct(s.Direction, avgEntry, price) >= 5.0 {
		update.ExitSignal = true
		update.ExitReason = string(ExitSafetyNet)
		update.ExitPercentage = 100
	} else if !update.ExitSignal {
		switch {
		case in.OpposingSignal:
			update.ExitSignal = true
			update.ExitReason = string(ExitOppositeSignal)
			update.ExitPercentage = 100
		case in.MomentumExhaustion:
			update.ExitSignal = true
			update.ExitReason = string(ExitMomentumExhaust)
			update.ExitPercentage = 50
		case in.VolumeClimax:
			update.ExitSignal = true
			update.ExitReason = string(ExitVolumeClimax)
			update.ExitPercentage = 50
		}
	}

	m.record(ctx, s)
	return update, nil
}

// ExecuteExit reduces the position by the requested percentage and
// realizes PnL for that slice. A zero exit price falls back to the average
// entry. Closing the last slice terminates the session.
func (m *Manager) ExecuteExit(ctx context.Context, sessionID string, exitPrice float64, reason string, exitPercentage float64) (*ExitRecord, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() || s.RemainingSize <= 0 {
		return nil, ErrSessionInactive
	}
	if exitPercentage <= 0 || exitPercentage > 100 {
		return nil, fmt.Errorf("%w: exit percentage must be in (0, 100]", ErrInvalidSession)
	}

	avgEntry := s.AverageEntry()
	if exitPrice <= 0 {
		// Approximation when no live price is available.
		exitPrice = avgEntry
	}

	exitSize := s.RemainingSize * exitPercentage / 100
	dir := 1.0
	if s.Direction == risk.Short {
		dir = -1.0
	}
	realized := (exitPrice - avgEntry) * exitSize * dir

	record := ExitRecord{
		ExitPrice:      exitPrice,
		ExitSize:       exitSize,
		ExitPercentage: exitPercentage,
		Reason:         ParseExitReason(reason),
		RealizedPnl:    realized,
		ExecutedAt:     time.Now().UTC(),
	}

	s.RemainingSize -= exitSize
	s.RealizedPnl += realized
	s.Exits = append(s.Exits, record)
	if record.Reason == ExitTargetHit {
		s.TargetsHit++
	}

	if s.RemainingSize <= remainingEpsilon || exitPercentage == 100 {
		m.close(s)
	} else {
		s.Status = StatusPartial
	}

	m.logger.Info().
		Str("session_id", s.ID).
		Str("reason", string(record.Reason)).
		Float64("exit_price", exitPrice).
		Float64("exit_pct", exitPercentage).
		Float64("realized_pnl", realized).
		Str("status", string(s.Status)).
		Msg("exit executed")

	if m.journal != nil {
		if err := m.journal.RecordExit(ctx, s.ID, record); err != nil {
			m.logger.Error().Err(err).Str("session_id", s.ID).Msg("journal exit failed")
		}
	}
	m.record(ctx, s)
	return &record, nil
}

// CloseSession is a manual full exit at the given price.
func (m *Manager) CloseSession(ctx context.Context, sessionID string, exitPrice float64) (*ExitRecord, error) {
	return m.ExecuteExit(ctx, sessionID, exitPrice, string(ExitManual), 100)
}

// GetSession returns the session, marking it expired first when its
// timeout has lapsed. An expired session is still returned; the status
// carries the expiry.
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	s, err := m.lookup(sessionID)
	if errors.Is(err, ErrSessionExpired) {
		return s, nil
	}
	return s, err
}

// ActiveSessions lists sessions that are not terminal.
func (m *Manager) ActiveSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if !s.Status.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

// Summary reports the session outcome so far.
func (m *Manager) Summary(sessionID string) (Summary, error) {
	s, err := m.GetSession(sessionID)
	if err != nil {
		return Summary{}, err
	}
	return s.Summarize(), nil
}

func (m *Manager) lookup(sessionID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Expired(time.Now().UTC()) {
		s.Status = StatusExpired
		now := time.Now().UTC()
		s.ClosedAt = &now
		m.engine.ResetMomentumState(s.ID)
		m.logger.Warn().Str("session_id", s.ID).Msg("session expired")
		return s, ErrSessionExpired
	}
	return s, nil
}

func (m *Manager) close(s *Session) {
	s.Status = StatusClosed
	now := time.Now().UTC()
	s.ClosedAt = &now
	s.UnrealizedPnl = 0
	s.UnrealizedPnlPct = 0
	m.engine.ResetMomentumState(s.ID)
	m.allocator.ReleaseBudget(s.Budget.ID)
}

// rebuildLevels refreshes the working snapshot after a shot changes the
// average entry. Stops come from the position's worst-case shot stop plus
// the 5% safety net; the guarding parameters survive across rebuilds.
func (m *Manager) rebuildLevels(s *Session) {
	avgEntry := s.AverageEntry()
	if avgEntry <= 0 {
		return
	}

	stopPrice := worstShotStop(s)
	stops := []risk.StopLevel{{
		Price:       stopPrice,
		Tier:        risk.TierPrimary,
		Confidence:  0.8,
		Reason:      "Structural stop from shot allocation",
		DistancePct: math.Abs(avgEntry-stopPrice) / avgEntry * 100,
	}}
	if s.Direction == risk.Long {
		stops = append(stops, risk.StopLevel{
			Price:       avgEntry * 0.95,
			Tier:        risk.TierSafetyNet,
			Confidence:  1.0,
			Reason:      "Safety net (max 5.0% loss)",
			DistancePct: 5.0,
		})
	} else {
		stops = append(stops, risk.StopLevel{
			Price:       avgEntry * 1.05,
			Tier:        risk.TierSafetyNet,
			Confidence:  1.0,
			Reason:      "Safety net (max 5.0% loss)",
			DistancePct: 5.0,
		})
	}

	var guarding *risk.GuardingParams
	if s.Levels != nil {
		guarding = s.Levels.Guarding
	} else if s.Guarding != nil {
		guarding = s.Guarding
	}

	s.Levels = &risk.RiskLevels{
		Symbol:       s.Symbol,
		Entry:        avgEntry,
		Direction:    s.Direction,
		Timeframe:    s.Timeframe,
		Stops:        stops,
		Targets:      s.Targets,
		PositionSize: s.RemainingSize,
		Guarding:     guarding,
		CalculatedAt: time.Now().UTC(),
	}
	s.Guarding = guarding
}

func (m *Manager) record(ctx context.Context, s *Session) {
	if m.journal != nil {
		if err := m.journal.RecordSession(ctx, s); err != nil {
			m.logger.Error().Err(err).Str("session_id", s.ID).Msg("journal session failed")
		}
	}
	if m.snapshots == nil {
		return
	}
	if s.Status.Terminal() {
		if err := m.snapshots.DeleteSession(ctx, s.ID); err != nil {
			m.logger.Error().Err(err).Str("session_id", s.ID).Msg("snapshot delete failed")
		}
		return
	}
	if err := m.snapshots.SaveSession(ctx, s); err != nil {
		m.logger.Error().Err(err).Str("session_id", s.ID).Msg("snapshot save failed")
	}
}

func defaultTargets(entry float64, direction risk.Direction) []risk.TargetLevel {
	exits := []float64{33, 33, 34}
	targets := make([]risk.TargetLevel, 0, len(defaultTargetPcts))
	for i, pct := range defaultTargetPcts {
		price := entry * (1 + pct/100)
		if direction == risk.Short {
			price = entry * (1 - pct/100)
		}
		targets = append(targets, risk.TargetLevel{
			Price:          price,
			Type:           risk.TargetDynamic,
			ExitPercentage: exits[i],
			Confidence:     0.5,
			Reason:         fmt.Sprintf("Default target (+%.0f%%)", pct),
			DistancePct:    pct,
		})
	}
	return targets
}

// worstShotStop picks the most conservative stop across filled shots: the
// highest for long, the lowest for short.
func worstShotStop(s *Session) float64 {
	var stop float64
	for _, shot := range s.Budget.Shots {
		if shot.Status != budget.ShotFilled {
			continue
		}
		if stop == 0 {
			stop = shot.StopPrice
			continue
		}
		if s.Direction == risk.Long && shot.StopPrice > stop {
			stop = shot.StopPrice
		}
		if s.Direction == risk.Short && shot.StopPrice < stop {
			stop = shot.StopPrice
		}
	}
	return stop
}

func adverseExcursionPct(direction risk.Direction, avgEntry, price float64) float64 {
	if avgEntry <= 0 {
		return 0
	}
	if direction == risk.Long {
		return (avgEntry - price) / avgEntry * 100
	}
	return (price - avgEntry) / avgEntry * 100
}
