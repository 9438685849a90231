package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"trade-risk-engine/internal/risk"
	"trade-risk-engine/internal/session"
	"trade-risk-engine/internal/store"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	AllowedOrigins []string

	// Defaults applied when a create-session request omits them.
	DefaultRiskCapPct   float64
	DefaultMaxShots     int
	DefaultTimeoutHours float64
}

// Server exposes the risk engine and session state machine over HTTP.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	engine      *risk.Engine
	sessions    *session.Manager
	journal     *store.Journal // nil when persistence is disabled
	rateLimiter *RateLimiter
}

// NewServer creates a new API server
func NewServer(config ServerConfig, engine *risk.Engine, sessions *session.Manager, journal *store.Journal) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8088"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		config:      config,
		engine:      engine,
		sessions:    sessions,
		journal:     journal,
		rateLimiter: NewRateLimiter(120, time.Minute),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	{
		riskGroup := api.Group("/risk")
		{
			riskGroup.POST("/calculate", s.handleCalculateRisk)
			riskGroup.POST("/update", s.handleUpdatePosition)
		}

		sessionGroup := api.Group("/sessions")
		{
			sessionGroup.POST("", s.handleCreateSession)
			sessionGroup.GET("", s.handleListSessions)
			sessionGroup.GET("/:id", s.handleGetSession)
			sessionGroup.GET("/:id/summary", s.handleSessionSummary)
			sessionGroup.POST("/:id/shots", s.handleTakeShot)
			sessionGroup.POST("/:id/update", s.handleUpdateSession)
			sessionGroup.POST("/:id/exit", s.handleExecuteExit)
			sessionGroup.POST("/:id/close", s.handleCloseSession)
			sessionGroup.DELETE("/:id", s.handleCloseSession)
			sessionGroup.GET("/:id/momentum", s.handleMomentumState)
			sessionGroup.DELETE("/:id/momentum", s.handleResetMomentum)
		}
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() + ":" + c.FullPath()
		if !s.rateLimiter.Allow(key) {
			errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Router returns the underlying gin router, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving HTTP requests. Blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting HTTP server on %s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dbHealthy := true
	if s.journal != nil {
		if err := s.journal.HealthCheck(ctx); err != nil {
			dbHealthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !dbHealthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"database":  dbHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
