package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"trade-risk-engine/internal/budget"
	"trade-risk-engine/internal/market"
	"trade-risk-engine/internal/risk"
	"trade-risk-engine/internal/session"
)

// ============================================================================
// RISK HANDLERS
// ============================================================================

type calculateRiskRequest struct {
	Symbol          string               `json:"symbol" binding:"required"`
	EntryPrice      float64              `json:"entry_price" binding:"required"`
	Direction       string               `json:"direction" binding:"required"`
	Timeframe       string               `json:"timeframe"`
	AccountBalance  float64              `json:"account_balance" binding:"required"`
	RiskPerTradePct float64              `json:"risk_per_trade_pct" binding:"required"`
	Klines          []market.Kline       `json:"klines"`
	CurrentPrice    float64              `json:"current_price"`
	Structure       risk.StructuralInput `json:"structure"`
}

// handleCalculateRisk computes the full risk snapshot for a proposed trade
func (s *Server) handleCalculateRisk(c *gin.Context) {
	var req calculateRiskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	direction, ok := risk.ParseDirection(req.Direction)
	if !ok {
		errorResponse(c, http.StatusBadRequest, "direction must be 'long' or 'short'")
		return
	}

	setup := risk.TradeSetup{
		Symbol:          req.Symbol,
		EntryPrice:      req.EntryPrice,
		Direction:       direction,
		Timeframe:       req.Timeframe,
		AccountBalance:  req.AccountBalance,
		RiskPerTradePct: req.RiskPerTradePct,
	}
	data := risk.MarketData{
		Klines:       req.Klines,
		CurrentPrice: req.CurrentPrice,
		Structure:    req.Structure,
	}

	levels, err := s.engine.Calculate(setup, data)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	successResponse(c, levels)
}

type updatePositionRequest struct {
	Levels   risk.RiskLevels     `json:"levels" binding:"required"`
	Update   risk.PositionUpdate `json:"update" binding:"required"`
	Klines   []market.Kline      `json:"klines"`
	StateKey string              `json:"state_key"`
}

// handleUpdatePosition runs one bar of exit arbitration for a position the
// caller tracks itself (no session involved)
func (s *Server) handleUpdatePosition(c *gin.Context) {
	var req updatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	update := s.engine.Update(&req.Levels, req.Update, req.Klines, req.StateKey)
	successResponse(c, update)
}

// ============================================================================
// SESSION HANDLERS
// ============================================================================

type createSessionRequest struct {
	Symbol            string             `json:"symbol" binding:"required"`
	Direction         string             `json:"direction" binding:"required"`
	Timeframe         string             `json:"timeframe"`
	AccountBalance    float64            `json:"account_balance" binding:"required"`
	StructuralSupport float64            `json:"structural_support" binding:"required"`
	Targets           []risk.TargetLevel `json:"targets"`
	RiskCapPct        float64            `json:"risk_cap_pct"`
	MaxShots          int                `json:"max_shots"`
	TimeoutHours      float64            `json:"timeout_hours"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	direction, ok := risk.ParseDirection(req.Direction)
	if !ok {
		errorResponse(c, http.StatusBadRequest, "direction must be 'long' or 'short'")
		return
	}

	if req.RiskCapPct <= 0 {
		req.RiskCapPct = s.config.DefaultRiskCapPct
	}
	if req.MaxShots <= 0 {
		req.MaxShots = s.config.DefaultMaxShots
	}
	if req.TimeoutHours <= 0 {
		req.TimeoutHours = s.config.DefaultTimeoutHours
	}

	sess, err := s.sessions.CreateSession(c.Request.Context(), session.CreateParams{
		Symbol:            req.Symbol,
		Direction:         direction,
		Timeframe:         req.Timeframe,
		AccountBalance:    req.AccountBalance,
		StructuralSupport: req.StructuralSupport,
		Targets:           req.Targets,
		RiskCapPct:        req.RiskCapPct,
		MaxShots:          req.MaxShots,
		TimeoutHours:      req.TimeoutHours,
	})
	if err != nil {
		errorResponse(c, sessionErrorStatus(err), err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    sess,
	})
}

func (s *Server) handleListSessions(c *gin.Context) {
	successResponse(c, s.sessions.ActiveSessions())
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.sessions.GetSession(c.Param("id"))
	if err != nil {
		errorResponse(c, sessionErrorStatus(err), err.Error())
		return
	}
	successResponse(c, sess)
}

func (s *Server) handleSessionSummary(c *gin.Context) {
	summary, err := s.sessions.Summary(c.Param("id"))
	if err != nil {
		errorResponse(c, sessionErrorStatus(err), err.Error())
		return
	}
	successResponse(c, summary)
}

type takeShotRequest struct {
	EntryPrice   float64 `json:"entry_price" binding:"required"`
	ATR          float64 `json:"atr"`
	StopOverride float64 `json:"stop_override"`
}

func (s *Server) handleTakeShot(c *gin.Context) {
	var req takeShotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	shot, err := s.sessions.TakeShot(c.Request.Context(), c.Param("id"), req.EntryPrice, req.ATR, req.StopOverride)
	if err != nil {
		errorResponse(c, sessionErrorStatus(err), err.Error())
		return
	}
	successResponse(c, shot)
}

type updateSessionRequest struct {
	CurrentPrice       float64   `json:"current_price" binding:"required"`
	CurrentBar         int       `json:"current_bar"`
	RecentLows         []float64 `json:"recent_lows"`
	RecentHighs        []float64 `json:"recent_highs"`
	OpposingSignal     bool      `json:"opposing_signal"`
	MomentumExhaustion bool      `json:"momentum_exhaustion"`
	VolumeClimax       bool      `json:"volume_climax"`
}

func (s *Server) handleUpdateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	update, err := s.sessions.UpdateSession(c.Request.Context(), c.Param("id"), session.UpdateInput{
		CurrentPrice:       req.CurrentPrice,
		CurrentBar:         req.CurrentBar,
		RecentLows:         req.RecentLows,
		RecentHighs:        req.RecentHighs,
		OpposingSignal:     req.OpposingSignal,
		MomentumExhaustion: req.MomentumExhaustion,
		VolumeClimax:       req.VolumeClimax,
	})
	if err != nil {
		errorResponse(c, sessionErrorStatus(err), err.Error())
		return
	}
	successResponse(c, update)
}

type executeExitRequest struct {
	ExitPrice      float64 `json:"exit_price"`
	Reason         string  `json:"reason"`
	ExitPercentage float64 `json:"exit_percentage" binding:"required"`
}

func (s *Server) handleExecuteExit(c *gin.Context) {
	var req executeExitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	record, err := s.sessions.ExecuteExit(c.Request.Context(), c.Param("id"), req.ExitPrice, req.Reason, req.ExitPercentage)
	if err != nil {
		errorResponse(c, sessionErrorStatus(err), err.Error())
		return
	}
	successResponse(c, record)
}

type closeSessionRequest struct {
	ExitPrice float64 `json:"exit_price"`
}

func (s *Server) handleCloseSession(c *gin.Context) {
	var req closeSessionRequest
	// Body is optional for a manual close
	_ = c.ShouldBindJSON(&req)

	record, err := s.sessions.CloseSession(c.Request.Context(), c.Param("id"), req.ExitPrice)
	if err != nil {
		errorResponse(c, sessionErrorStatus(err), err.Error())
		return
	}
	successResponse(c, record)
}

func (s *Server) handleMomentumState(c *gin.Context) {
	state, ok := s.engine.MomentumStateFor(c.Param("id"))
	if !ok {
		errorResponse(c, http.StatusNotFound, "no momentum state for session")
		return
	}
	successResponse(c, state)
}

func (s *Server) handleResetMomentum(c *gin.Context) {
	s.engine.ResetMomentumState(c.Param("id"))
	successResponse(c, gin.H{"reset": true})
}

// sessionErrorStatus maps state-machine errors onto HTTP statuses: unknown
// session is not-found, lifecycle refusals are conflicts, and everything
// else is a validation failure.
func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrSessionInactive),
		errors.Is(err, budget.ErrBudgetExhausted):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
