// Package store provides durable persistence for the session lifecycle: a
// PostgreSQL journal of sessions, shots, and exits, plus Redis snapshots of
// open sessions for restart recovery.
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trade-risk-engine/internal/budget"
	"trade-risk-engine/internal/session"
)

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS risk_sessions (
			id VARCHAR(36) PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			timeframe VARCHAR(10),
			status VARCHAR(10) NOT NULL,
			phase VARCHAR(12) NOT NULL,
			account_balance DECIMAL(20, 8) NOT NULL,
			structural_support DECIMAL(20, 8) NOT NULL,
			risk_cap_pct DECIMAL(10, 4) NOT NULL,
			max_shots INTEGER NOT NULL,
			remaining_size DECIMAL(20, 8) NOT NULL DEFAULT 0,
			targets_hit INTEGER NOT NULL DEFAULT 0,
			realized_pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_sessions_symbol ON risk_sessions(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_sessions_status ON risk_sessions(status)`,

		`CREATE TABLE IF NOT EXISTS risk_shots (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(36) NOT NULL REFERENCES risk_sessions(id) ON DELETE CASCADE,
			shot_number INTEGER NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			stop_price DECIMAL(20, 8) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			risk_amount DECIMAL(20, 8) NOT NULL,
			allocation_pct DECIMAL(10, 4) NOT NULL,
			status VARCHAR(10) NOT NULL,
			taken_at TIMESTAMP NOT NULL,
			UNIQUE(session_id, shot_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_shots_session ON risk_shots(session_id)`,

		`CREATE TABLE IF NOT EXISTS risk_exits (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(36) NOT NULL REFERENCES risk_sessions(id) ON DELETE CASCADE,
			exit_price DECIMAL(20, 8) NOT NULL,
			exit_size DECIMAL(20, 8) NOT NULL,
			exit_percentage DECIMAL(10, 4) NOT NULL,
			reason VARCHAR(30) NOT NULL,
			realized_pnl DECIMAL(20, 8) NOT NULL,
			executed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_exits_session ON risk_exits(session_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// Journal is the PostgreSQL-backed session journal.
type Journal struct {
	db *DB
}

// NewJournal creates a journal over an open database.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db}
}

// HealthCheck performs a database health check
func (j *Journal) HealthCheck(ctx context.Context) error {
	return j.db.Pool.Ping(ctx)
}

// RecordSession upserts the current state of a session.
func (j *Journal) RecordSession(ctx context.Context, s *session.Session) error {
	query := `
		INSERT INTO risk_sessions (
			id, symbol, direction, timeframe, status, phase,
			account_balance, structural_support, risk_cap_pct, max_shots,
			remaining_size, targets_hit, realized_pnl,
			created_at, expires_at, closed_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			phase = EXCLUDED.phase,
			remaining_size = EXCLUDED.remaining_size,
			targets_hit = EXCLUDED.targets_hit,
			realized_pnl = EXCLUDED.realized_pnl,
			closed_at = EXCLUDED.closed_at,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := j.db.Pool.Exec(
		ctx, query,
		s.ID, s.Symbol, string(s.Direction), s.Timeframe, string(s.Status), string(s.Phase),
		s.AccountBalance, s.StructuralSupport, s.Budget.TotalRiskCapPct, s.Budget.MaxShots,
		s.RemainingSize, s.TargetsHit, s.RealizedPnl,
		s.CreatedAt, s.ExpiresAt, s.ClosedAt,
	)
	return err
}

// RecordShot inserts one allocated shot.
func (j *Journal) RecordShot(ctx context.Context, sessionID string, shot budget.Shot) error {
	query := `
		INSERT INTO risk_shots (session_id, shot_number, entry_price, stop_price, size, risk_amount, allocation_pct, status, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, shot_number) DO NOTHING
	`
	_, err := j.db.Pool.Exec(
		ctx, query,
		sessionID, shot.ShotNumber, shot.EntryPrice, shot.StopPrice,
		shot.Size, shot.RiskAmount, shot.AllocationPct, string(shot.Status), shot.TakenAt,
	)
	return err
}

// RecordExit inserts one realized exit slice.
func (j *Journal) RecordExit(ctx context.Context, sessionID string, exit session.ExitRecord) error {
	query := `
		INSERT INTO risk_exits (session_id, exit_price, exit_size, exit_percentage, reason, realized_pnl, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := j.db.Pool.Exec(
		ctx, query,
		sessionID, exit.ExitPrice, exit.ExitSize, exit.ExitPercentage,
		string(exit.Reason), exit.RealizedPnl, exit.ExecutedAt,
	)
	return err
}
