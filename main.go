package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trade-risk-engine/config"
	"trade-risk-engine/internal/api"
	"trade-risk-engine/internal/budget"
	"trade-risk-engine/internal/risk"
	"trade-risk-engine/internal/session"
	"trade-risk-engine/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Msg("Structured logging initialized")

	// Risk engine configuration from defaults plus overrides
	riskCfg := risk.DefaultConfig()
	riskCfg.ATRStopMultiplier = cfg.RiskConfig.ATRStopMultiplier
	riskCfg.MaxStopPct = cfg.RiskConfig.MaxStopPct
	riskCfg.EnableMultiTier = cfg.RiskConfig.EnableMultiTier
	riskCfg.MinRRForEntry = cfg.RiskConfig.MinRRForEntry
	riskCfg.EnforceMinRR = cfg.RiskConfig.EnforceMinRR
	riskCfg.EnableBreakevenStop = cfg.RiskConfig.EnableBreakevenStop
	riskCfg.BreakevenTriggerR = cfg.RiskConfig.BreakevenTriggerR
	riskCfg.EnableDivergence = cfg.RiskConfig.EnableDivergence
	riskCfg.EnableMomentumTrailing = cfg.RiskConfig.EnableMomentumTrailing
	riskCfg.MinHistoryBars = cfg.RiskConfig.MinHistoryBars
	riskCfg.EnableGuardingLine = cfg.GuardingConfig.Enabled
	riskCfg.GuardingActivationBars = cfg.GuardingConfig.ActivationBars
	riskCfg.GuardingBufferPct = cfg.GuardingConfig.BufferPct

	engine := risk.NewEngine(riskCfg, logger)
	logger.Info().Msg("Risk engine initialized")

	// Optional PostgreSQL session journal
	var journal *store.Journal
	if cfg.DatabaseConfig.Enabled {
		db, err := store.NewDB(store.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(ctx); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		cancel()

		journal = store.NewJournal(db)
		logger.Info().Msg("Session journal enabled")
	}

	// Optional Redis session snapshots, with in-memory fallback
	var snapshots session.SnapshotStore
	if cfg.RedisConfig.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		snapshots = store.NewRedisSessionStore(client)
		logger.Info().Str("address", cfg.RedisConfig.Address).Msg("Session snapshots enabled")
	}

	allocator := budget.NewAllocator(logger)

	var journalIface session.Journal
	if journal != nil {
		journalIface = journal
	}
	sessions := session.NewManager(engine, allocator, logger, journalIface, snapshots)
	logger.Info().Msg("Session manager initialized")

	server := api.NewServer(api.ServerConfig{
		Port:                cfg.ServerConfig.Port,
		Host:                cfg.ServerConfig.Host,
		ProductionMode:      cfg.ServerConfig.ProductionMode,
		AllowedOrigins:      cfg.ServerConfig.AllowedOrigins,
		DefaultRiskCapPct:   cfg.BudgetConfig.DefaultRiskCapPct,
		DefaultMaxShots:     cfg.BudgetConfig.DefaultMaxShots,
		DefaultTimeoutHours: cfg.SessionConfig.DefaultTimeoutHours,
	}, engine, sessions, journal)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	logger.Info().Msg("Shutdown complete")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	var out *os.File
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("Failed to open log file %s: %v, falling back to stdout", cfg.Output, err)
			out = os.Stdout
		} else {
			out = f
		}
	}

	level := zerolog.InfoLevel
	switch strings.ToUpper(cfg.Level) {
	case "DEBUG":
		level = zerolog.DebugLevel
	case "WARN":
		level = zerolog.WarnLevel
	case "ERROR":
		level = zerolog.ErrorLevel
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if !cfg.JSONFormat {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out})
	}
	return logger
}
