package risk

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trade-risk-engine/internal/analysis"
	"trade-risk-engine/internal/market"
)

// Engine orchestrates the calculators into an immutable snapshot at entry
// time and an incremental per-bar decision afterwards. All methods are
// call-and-return; data acquisition happens before the engine is invoked.
type Engine struct {
	cfg      Config
	logger   zerolog.Logger
	vol      *analysis.VolatilityAnalyzer
	stops    *StopCalculator
	targets  *TargetCalculator
	sizer    *PositionSizer
	guarding *GuardingLine
	momentum *MomentumTrailingTP

	// Momentum states are keyed by session id or symbol. Callers must
	// serialize updates per key; the mutex only protects the map itself.
	mu             sync.Mutex
	momentumStates map[string]*MomentumState
}

// NewEngine creates an engine with the given configuration.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:            cfg,
		logger:         logger.With().Str("component", "risk_engine").Logger(),
		vol:            analysis.NewVolatilityAnalyzer(),
		stops:          NewStopCalculator(cfg),
		targets:        NewTargetCalculator(cfg),
		sizer:          NewPositionSizer(cfg),
		guarding:       NewGuardingLine(cfg.GuardingActivationBars, cfg.GuardingBufferPct),
		momentum:       NewMomentumTrailingTP(),
		momentumStates: make(map[string]*MomentumState),
	}
}

// Calculate computes the full risk snapshot for a setup. Insufficient
// history yields an empty defaulted snapshot, logged but not an error; a
// setup that fails validation is an error.
func (e *Engine) Calculate(setup TradeSetup, data MarketData) (*RiskLevels, error) {
	if err := setup.Validate(); err != nil {
		return nil, err
	}

	levels := &RiskLevels{
		Symbol:           setup.Symbol,
		Entry:            setup.EntryPrice,
		Direction:        setup.Direction,
		Timeframe:        setup.Timeframe,
		VolatilityRegime: analysis.RegimeNormal,
		CalculatedAt:     time.Now().UTC(),
	}

	if len(data.Klines) < e.cfg.MinHistoryBars {
		e.logger.Warn().
			Str("symbol", setup.Symbol).
			Int("bars", len(data.Klines)).
			Int("required", e.cfg.MinHistoryBars).
			Msg("insufficient history, returning empty risk levels")
		return levels, nil
	}

	atr := e.vol.CurrentATR(data.Klines)
	levels.ATR = atr
	levels.ATRPct = atr / setup.EntryPrice * 100
	levels.VolatilityRegime = e.vol.Regime(data.Klines, atr)

	levels.Stops = e.stops.Calculate(setup, data.Structure, atr)
	levels.Targets = e.targets.Calculate(setup, data.Structure, atr)

	if e.cfg.EnableGuardingLine && IsSwingTimeframe(setup.Timeframe) {
		prices := market.Lows(data.Klines)
		if setup.Direction == Short {
			prices = market.Highs(data.Klines)
		}
		params := e.guarding.CalculateInitialLine(setup.EntryPrice, setup.Direction, prices, 20)
		levels.Guarding = &params
	}

	primary, _ := levels.PrimaryStop()
	stopDistance := abs(setup.EntryPrice - primary.Price)

	sizing := e.sizer.Calculate(
		setup.AccountBalance, setup.RiskPerTradePct,
		setup.EntryPrice, stopDistance, levels.ATRPct,
		levels.VolatilityRegime,
	)
	levels.PositionSize = sizing.Size
	levels.PositionSizePct = sizing.SizePct
	levels.RiskAmount = sizing.RiskAmount
	if levels.VolatilityRegime == analysis.RegimeExtreme {
		e.logger.Warn().Str("symbol", setup.Symbol).Msg("extreme volatility, position size reduced")
	}

	if len(levels.Stops) > 0 && len(levels.Targets) > 0 {
		levels.RiskRewardRatio = rrRatio(setup.EntryPrice, levels.Stops[0].Price, levels.Targets[0].Price)
		levels.MaxRiskRewardRatio = rrRatio(setup.EntryPrice, levels.Stops[0].Price, levels.Targets[len(levels.Targets)-1].Price)
	}

	levels.WinProbability = estimateWinProbability(levels.RiskRewardRatio, data.Structure.Quality)
	levels.ExpectedValue = levels.WinProbability*levels.RiskRewardRatio - (1 - levels.WinProbability)

	levels.BreakevenPrice = e.breakevenPrice(setup.EntryPrice, setup.Direction)
	levels.OneRPrice = oneRPrice(setup.EntryPrice, primary.Price, setup.Direction)

	if e.cfg.EnforceMinRR && levels.RiskRewardRatio < e.cfg.MinRRForEntry {
		levels.EntryBlocked = true
		levels.BlockReason = fmt.Sprintf(
			"R:R of %.2f below minimum %.1f", levels.RiskRewardRatio, e.cfg.MinRRForEntry)
		e.logger.Warn().Str("symbol", setup.Symbol).Str("reason", levels.BlockReason).Msg("entry gate")
	}

	return levels, nil
}

// Update evaluates one bar of a live position. The exit checks run in a
// fixed order: breakeven move, momentum trailing, divergence, fixed
// targets, guarding line, legacy trail, structure health. Only the
// guarding-line breach replaces a signal already set this call; everything
// else keeps the first signal. The snapshot is never mutated; replacement
// ladders come back on the update.
func (e *Engine) Update(levels *RiskLevels, upd PositionUpdate, klines []market.Kline, key string) *RiskUpdate {
	result := &RiskUpdate{
		UpdatedStops:    append([]StopLevel(nil), levels.Stops...),
		UpdatedTargets:  append([]TargetLevel(nil), levels.Targets...),
		StructureHealth: StructureStrong,
	}

	direction := levels.Direction
	entry := levels.Entry
	price := upd.CurrentPrice

	if key == "" {
		key = levels.Symbol
	}

	// 1. Current R-multiple.
	primary, hasStop := levels.PrimaryStop()
	if hasStop {
		riskDistance := abs(entry - primary.Price)
		if riskDistance > 0 {
			profit := price - entry
			if direction == Short {
				profit = entry - price
			}
			result.CurrentRMultiple = profit / riskDistance
		}
	}

	// 2. Breakeven move, once per position.
	if e.cfg.EnableBreakevenStop && result.CurrentRMultiple >= e.cfg.BreakevenTriggerR {
		result.BreakevenHit = true
		if hasStop && !levels.AtBreakeven() {
			be := levels.BreakevenPrice
			if be == 0 {
				be = e.breakevenPrice(entry, direction)
			}
			if isBetterStop(be, primary.Price, direction) {
				result.StopMoved = true
				result.MovedToBreakeven = true
				result.NewStopPrice = be
				result.StopMoveReason = fmt.Sprintf("Moved to breakeven at +%.1fR", result.CurrentRMultiple)
				result.UpdatedStops[0] = StopLevel{
					Price:       be,
					Tier:        TierBreakeven,
					Confidence:  primary.Confidence,
					Reason:      "Breakeven stop (profit protection)",
					DistancePct: abs(entry-be) / entry * 100,
				}
				result.Alerts = append(result.Alerts,
					fmt.Sprintf("Stop moved to breakeven at %.2f (+%.1fR)", be, result.CurrentRMultiple))
			}
		}
	}

	// 3. Momentum trailing take-profit.
	state := e.momentumState(key)
	if e.cfg.EnableMomentumTrailing && len(klines) >= 5 {
		wasActive := state.Active
		closes := market.TailFloats(market.Closes(klines), 10)
		candles := market.Tail(klines, 5)

		shouldExit, exitReason := e.momentum.Update(state, price, result.CurrentRMultiple, direction, closes, candles)

		if state.Active {
			result.MomentumTrailingActive = true
			result.MomentumTrailingLevel = state.TrailingLevel
			result.MomentumSlopeStrength = state.SlopeStrength
			result.MomentumBufferPct = state.TrailBufferPct

			if !wasActive {
				result.Alerts = append(result.Alerts, fmt.Sprintf(
					"Momentum trailing activated at +%.1fR (slope %.2f%%/bar, strength %.0f%%)",
					result.CurrentRMultiple, state.Slope, state.SlopeStrength*100))
			}
		}

		if shouldExit {
			result.signalExit(exitReason, 100)
			result.Alerts = append(result.Alerts, "Momentum exit: "+exitReason)
		}
	}

	// 4. Divergence against the position.
	if e.cfg.EnableDivergence && len(klines) >= e.cfg.DivergenceLookback {
		closes := market.Closes(klines)
		detected, divType := analysis.DetectDivergence(closes, direction == Long, e.cfg.DivergenceLookback, e.cfg.RSIPeriod)
		if detected {
			result.DivergenceDetected = true
			result.DivergenceType = string(divType)
			result.Alerts = append(result.Alerts,
				fmt.Sprintf("%s divergence detected", divType))

			if result.CurrentRMultiple > 0.5 && !state.Active {
				result.signalExit(fmt.Sprintf("%s divergence - momentum weakening", divType), 33)
			}
		}
	}

	// 5. Fixed targets, ladder order. Momentum trailing supersedes them.
	if !state.Active {
		for _, target := range levels.Targets {
			hit := (direction == Long && price >= target.Price) ||
				(direction == Short && price <= target.Price)
			if hit {
				result.signalExit("Target hit: "+target.Reason, target.ExitPercentage)
				result.Alerts = append(result.Alerts, fmt.Sprintf("Target hit at %.2f", target.Price))
				break
			}
		}
	}

	// 6. Guarding line. A breach forces a full exit over anything above.
	if levels.Guarding != nil && upd.BarsSinceEntry >= levels.Guarding.ActivationBar {
		result.GuardingActive = true
		result.GuardingLevel = e.guarding.CurrentLevel(*levels.Guarding, upd.BarsSinceEntry)

		broken, reason := e.guarding.CheckBreak(price, result.GuardingLevel, direction)
		if broken {
			result.GuardingBroken = true
			result.forceExit(reason, 100)
			result.Alerts = append(result.Alerts, "Guarding line broken: "+reason)
		}
	}

	// 7. Legacy trail pre-breakeven. Needs a stop to trail.
	if upd.UnrealizedPnlPct > 0 && hasStop && !result.MovedToBreakeven && !levels.AtBreakeven() {
		if newStop, ok := legacyTrail(direction, entry, price, primary); ok {
			result.StopMoved = true
			result.NewStopPrice = newStop
			result.StopMoveReason = "Trailing stop adjustment"
		}
	}

	// 8. Supporting structure health.
	if len(upd.RecentLows) > 0 && len(upd.RecentHighs) > 0 {
		result.StructureHealth = checkStructureHealth(direction, price, upd.RecentLows, upd.RecentHighs)
		if result.StructureHealth == StructureBroken {
			result.signalExit("Supporting structure broken", 100)
		}
	}

	return result
}

// MomentumStateFor returns a copy of the momentum state for a key.
func (e *Engine) MomentumStateFor(key string) (MomentumState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.momentumStates[key]
	if !ok {
		return MomentumState{}, false
	}
	return *state, true
}

// ResetMomentumState clears the momentum state for a key, e.g. after the
// session closes.
func (e *Engine) ResetMomentumState(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.momentumStates, key)
}

// ArmGuarding fits the guarding line for a position that entered without a
// full snapshot, from recent swing-source prices: lows for a long, highs
// for a short. Returns nil when the line is disabled or no prices are
// available yet.
func (e *Engine) ArmGuarding(entry float64, direction Direction, prices []float64) *GuardingParams {
	if !e.cfg.EnableGuardingLine || len(prices) == 0 {
		return nil
	}
	params := e.guarding.CalculateInitialLine(entry, direction, prices, 20)
	return &params
}

// GuardingLevel exposes the guarding line calculation for callers that
// hold their own parameters.
func (e *Engine) GuardingLevel(params GuardingParams, barsSinceEntry int) float64 {
	return e.guarding.CurrentLevel(params, barsSinceEntry)
}

func (e *Engine) momentumState(key string) *MomentumState {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.momentumStates[key]
	if !ok {
		state = &MomentumState{}
		e.momentumStates[key] = state
	}
	return state
}

func (e *Engine) breakevenPrice(entry float64, direction Direction) float64 {
	buffer := entry * e.cfg.BreakevenBufferPct / 100
	if direction == Long {
		return entry + buffer
	}
	return entry - buffer
}

func oneRPrice(entry, stop float64, direction Direction) float64 {
	riskDistance := abs(entry - stop)
	if direction == Long {
		return entry + riskDistance
	}
	return entry - riskDistance
}

func rrRatio(entry, stop, target float64) float64 {
	risk := abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return abs(target-entry) / risk
}

// estimateWinProbability is informational only: a base rate adjusted for
// R:R (longer targets hit less often) and structure quality, clamped to
// [0.2, 0.8].
func estimateWinProbability(rr, structureQuality float64) float64 {
	p := 0.45 - 0.05*(rr-2.0)
	if structureQuality >= 7 {
		p += 0.1
	} else if structureQuality > 0 && structureQuality < 3 {
		p -= 0.1
	}
	if p < 0.2 {
		p = 0.2
	}
	if p > 0.8 {
		p = 0.8
	}
	return p
}

func isBetterStop(newStop, currentStop float64, direction Direction) bool {
	if direction == Long {
		return newStop > currentStop
	}
	return newStop < currentStop
}

func legacyTrail(direction Direction, entry, price float64, primary StopLevel) (float64, bool) {
	if direction == Long {
		profitPct := (price - entry) / entry * 100
		if profitPct >= primary.DistancePct {
			newStop := entry * 1.001
			if newStop > primary.Price {
				return newStop, true
			}
		}
		return 0, false
	}

	profitPct := (entry - price) / entry * 100
	if profitPct >= primary.DistancePct {
		newStop := entry * 0.999
		if newStop < primary.Price {
			return newStop, true
		}
	}
	return 0, false
}

func checkStructureHealth(direction Direction, price float64, recentLows, recentHighs []float64) StructureHealth {
	if len(recentLows) < 3 || len(recentHighs) < 3 {
		return StructureStrong
	}

	if direction == Long {
		n := len(recentLows)
		if recentLows[n-1] < recentLows[n-2] && recentLows[n-2] < recentLows[n-3] {
			return StructureWeakening
		}
		highs := market.TailFloats(recentHighs, 10)
		peak := highs[0]
		for _, h := range highs {
			if h > peak {
				peak = h
			}
		}
		if (peak-price)/price > 0.03 {
			return StructureBroken
		}
		return StructureStrong
	}

	n := len(recentHighs)
	if recentHighs[n-1] > recentHighs[n-2] && recentHighs[n-2] > recentHighs[n-3] {
		return StructureWeakening
	}
	lows := market.TailFloats(recentLows, 10)
	trough := lows[0]
	for _, l := range lows {
		if l < trough {
			trough = l
		}
	}
	if (price-trough)/price > 0.03 {
		return StructureBroken
	}
	return StructureStrong
}

// IsSwingTimeframe reports whether a timeframe is held long enough for the
// guarding line to make sense.
func IsSwingTimeframe(timeframe string) bool {
	switch strings.ToLower(timeframe) {
	case "4h", "1d", "1w", "daily", "weekly":
		return true
	default:
		return false
	}
}
