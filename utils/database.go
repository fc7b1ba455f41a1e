package utils

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	DB            *pgxpool.Pool
	dbInitialized = false
	dbMutex       sync.RWMutex
)

// SetupDatabase initializes the database connection pool and runs startup
// migrations. With no DATABASE_URL the process runs on the in-memory stores,
// which is also what the tests exercise.
func SetupDatabase() error {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	if dbInitialized {
		return nil
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil
	}

	ctx := context.Background()

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Pool sizing tuned for a chat-bot workload: many short queries in bursts
	config.MaxConns = 30
	config.MinConns = 8
	config.MaxConnLifetime = 45 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	config.ConnConfig.RuntimeParams = map[string]string{
		"application_name":                    "kasumi-bot",
		"timezone":                            "UTC",
		"statement_timeout":                   "30s",
		"idle_in_transaction_session_timeout": "60s",
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	conn.Release()

	DB = pool
	dbInitialized = true

	if err := createTables(); err != nil {
		return err
	}
	if err := runMigrations(); err != nil {
		return err
	}

	return nil
}

// CloseDatabase closes the database connection pool
func CloseDatabase() {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	if DB != nil {
		DB.Close()
		DB = nil
		dbInitialized = false
	}
}

// createTables ensures every subsystem's tables exist
func createTables() error {
	if DB == nil {
		return fmt.Errorf("database not connected")
	}
	ctx := context.Background()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			last_daily_time BIGINT NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			amount BIGINT NOT NULL,
			time BIGINT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS nicknames (
			user_id TEXT PRIMARY KEY,
			nickname TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS blackjack_games (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			bet_amount BIGINT NOT NULL,
			result TEXT NOT NULL,
			winnings BIGINT NOT NULL,
			is_split BOOLEAN NOT NULL DEFAULT FALSE,
			timestamp BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mines_games (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			bet_amount BIGINT NOT NULL,
			mines INTEGER NOT NULL,
			revealed_count INTEGER NOT NULL,
			result TEXT NOT NULL,
			winnings BIGINT NOT NULL,
			timestamp BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS onestroke_games (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			edge_count INTEGER NOT NULL,
			reward BIGINT NOT NULL,
			elapsed_seconds DOUBLE PRECISION NOT NULL,
			completed BOOLEAN NOT NULL,
			timestamp BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS red_envelopes (
			id BIGSERIAL PRIMARY KEY,
			creator_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			channel_index INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			total_amount BIGINT NOT NULL,
			remaining_amount BIGINT NOT NULL,
			total_count INTEGER NOT NULL,
			remaining_count INTEGER NOT NULL,
			pending_amounts TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			is_expired BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS envelope_claims (
			id BIGSERIAL PRIMARY KEY,
			envelope_id BIGINT NOT NULL,
			user_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			claimed_at BIGINT NOT NULL,
			UNIQUE (envelope_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS mails (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			star_shards BIGINT NOT NULL DEFAULT 0,
			expire_days INTEGER NOT NULL DEFAULT 7,
			sender_id TEXT NOT NULL DEFAULT 'system',
			is_broadcast BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mail_recipients (
			id BIGSERIAL PRIMARY KEY,
			mail_id BIGINT NOT NULL REFERENCES mails(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at BIGINT,
			UNIQUE (mail_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_mails (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			recipients TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			star_shards BIGINT NOT NULL DEFAULT 0,
			expire_days INTEGER NOT NULL DEFAULT 7,
			scheduled_time BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			created_by TEXT NOT NULL,
			is_sent BOOLEAN NOT NULL DEFAULT FALSE,
			sent_at BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS channel_members (
			channel_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			joined_at BIGINT NOT NULL,
			PRIMARY KEY (channel_id, user_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := DB.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	createIndexes()
	return nil
}

// createIndexes adds indexes for the hot query paths; failures are non-fatal
func createIndexes() {
	if DB == nil {
		return
	}
	ctx := context.Background()

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_users_level_balance ON users(level DESC, balance DESC)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, time DESC)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_description ON transactions(user_id, description)",
		"CREATE INDEX IF NOT EXISTS idx_blackjack_user_time ON blackjack_games(user_id, timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_mines_user_time ON mines_games(user_id, timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_onestroke_best ON onestroke_games(difficulty, elapsed_seconds) WHERE completed",
		"CREATE INDEX IF NOT EXISTS idx_envelopes_channel ON red_envelopes(channel_id, created_at DESC) WHERE NOT is_expired",
		"CREATE INDEX IF NOT EXISTS idx_mail_recipients_user ON mail_recipients(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_scheduled_due ON scheduled_mails(scheduled_time) WHERE NOT is_sent",
	}

	for _, query := range indexes {
		DB.Exec(ctx, query)
	}
}

// runMigrations upgrades schemas created by older deployments: the level
// column did not always exist and balances were once stored as floats.
func runMigrations() error {
	if DB == nil {
		return fmt.Errorf("database not connected")
	}
	ctx := context.Background()

	migrations := []string{
		"ALTER TABLE users ADD COLUMN IF NOT EXISTS level INTEGER NOT NULL DEFAULT 1",
		"UPDATE users SET balance = CEIL(balance) WHERE balance <> CEIL(balance)",
	}

	for _, stmt := range migrations {
		if _, err := DB.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
