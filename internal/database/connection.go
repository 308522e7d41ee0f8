package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config selects and tunes the database connection
type Config struct {
	Type         string // sqlite3 or postgres
	URL          string // postgres connection string
	SQLitePath   string
	MaxRetries   int           // retries for transient errors
	RetryBackoff time.Duration // initial backoff between retries
}

// DefaultConfig returns a local SQLite configuration
func DefaultConfig() Config {
	return Config{
		Type:         "sqlite3",
		SQLitePath:   filepath.Join("data", "langfocus.db"),
		MaxRetries:   3,
		RetryBackoff: 50 * time.Millisecond,
	}
}

// DB wraps the sqlx connection together with the transient-error retry policy
type DB struct {
	*sqlx.DB
	maxRetries   int
	retryBackoff time.Duration
}

// Connect establishes a connection to the database and initializes the schema
func Connect(ctx context.Context, cfg Config) (*DB, error) {
	var (
		conn *sqlx.DB
		err  error
	)

	switch cfg.Type {
	case "postgres":
		conn, err = sqlx.ConnectContext(ctx, "postgres", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
	case "sqlite3", "":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dsn := cfg.SQLitePath + "?_foreign_keys=on&_busy_timeout=5000"
		conn, err = sqlx.ConnectContext(ctx, "sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
		}
		// SQLite doesn't support multiple writers
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	db := &DB{DB: conn, maxRetries: cfg.MaxRetries, retryBackoff: cfg.RetryBackoff}
	if db.retryBackoff <= 0 {
		db.retryBackoff = 50 * time.Millisecond
	}

	if err := db.initializeSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// IsPostgres reports whether the connection uses the postgres driver
func (db *DB) IsPostgres() bool {
	return db.DriverName() == "postgres"
}

func (db *DB) initializeSchema(ctx context.Context) error {
	ts, num, serial := "TIMESTAMP", "REAL", "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.IsPostgres() {
		ts, num, serial = "TIMESTAMPTZ", "DOUBLE PRECISION", "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			language_code TEXT NOT NULL DEFAULT '',
			created_at %[1]s NOT NULL
		)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS reminder_state (
			user_id BIGINT PRIMARY KEY REFERENCES users(id),
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_practice_at %[1]s,
			last_reminder_at %[1]s,
			reminder_count INTEGER NOT NULL DEFAULT 0,
			claimed_until %[1]s,
			created_at %[1]s NOT NULL,
			updated_at %[1]s NOT NULL
		)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS progress (
			user_id BIGINT NOT NULL REFERENCES users(id),
			technique_id INTEGER NOT NULL,
			mastery %[2]s NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			correct_count INTEGER NOT NULL DEFAULT 0,
			streak INTEGER NOT NULL DEFAULT 0,
			last_practiced_at %[1]s,
			created_at %[1]s NOT NULL,
			updated_at %[1]s NOT NULL,
			PRIMARY KEY (user_id, technique_id)
		)`, ts, num),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS attempts (
			id %[3]s,
			user_id BIGINT NOT NULL REFERENCES users(id),
			session_id TEXT NOT NULL,
			technique_id INTEGER NOT NULL,
			statement_id INTEGER NOT NULL,
			answer TEXT NOT NULL,
			score %[2]s NOT NULL,
			is_correct BOOLEAN NOT NULL,
			feedback TEXT NOT NULL DEFAULT '',
			mastery_before %[2]s NOT NULL,
			mastery_after %[2]s NOT NULL,
			created_at %[1]s NOT NULL
		)`, ts, num, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id),
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			correct_count INTEGER NOT NULL DEFAULT 0,
			average_score %[2]s NOT NULL DEFAULT 0,
			started_at %[1]s NOT NULL,
			finished_at %[1]s
		)`, ts, num),
		`CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts (user_id, technique_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions (user_id, started_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
