package risk

import (
	"errors"
	"fmt"

	"trade-risk-engine/internal/market"
)

// ErrInvalidSetup marks trade-setup validation failures.
var ErrInvalidSetup = errors.New("invalid trade setup")

// TradeSetup is the immutable description of a proposed trade. The engine
// never decides whether to enter; direction and entry price come from the
// caller's strategy.
type TradeSetup struct {
	Symbol          string    `json:"symbol"`
	EntryPrice      float64   `json:"entry_price"`
	Direction       Direction `json:"direction"`
	Timeframe       string    `json:"timeframe"`
	AccountBalance  float64   `json:"account_balance"`
	RiskPerTradePct float64   `json:"risk_per_trade_pct"`
}

// Validate checks the setup invariants.
func (s TradeSetup) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidSetup)
	}
	if s.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price must be positive", ErrInvalidSetup)
	}
	if s.Direction != Long && s.Direction != Short {
		return fmt.Errorf("%w: direction must be long or short", ErrInvalidSetup)
	}
	if s.AccountBalance <= 0 {
		return fmt.Errorf("%w: account balance must be positive", ErrInvalidSetup)
	}
	if s.RiskPerTradePct <= 0 || s.RiskPerTradePct > 10 {
		return fmt.Errorf("%w: risk per trade must be in (0, 10]", ErrInvalidSetup)
	}
	return nil
}

// MarketData is the assembled market context for a calculation: the candle
// series plus the externally supplied structural analysis.
type MarketData struct {
	Klines       []market.Kline  `json:"klines"`
	CurrentPrice float64         `json:"current_price"`
	Structure    StructuralInput `json:"structure"`
}

// PositionUpdate is the per-bar state of a live position.
type PositionUpdate struct {
	CurrentPrice      float64   `json:"current_price"`
	BarsSinceEntry    int       `json:"bars_since_entry"`
	HighestSinceEntry float64   `json:"highest_since_entry"`
	LowestSinceEntry  float64   `json:"lowest_since_entry"`
	UnrealizedPnlPct  float64   `json:"unrealized_pnl_pct"`
	RecentLows        []float64 `json:"recent_lows,omitempty"`
	RecentHighs       []float64 `json:"recent_highs,omitempty"`
}
