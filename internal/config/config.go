package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration
type Config struct {
	LogMode     string
	CatalogPath string
	Telegram    TelegramConfig
	Database    DatabaseConfig
	AI          AIConfig
	Grading     GradingConfig
	Session     SessionConfig
	Reminder    ReminderConfig
}

// TelegramConfig configures the chat platform adapter
type TelegramConfig struct {
	Token    string
	AdminIDs []int64
	Debug    bool
}

// DatabaseConfig selects the storage driver
type DatabaseConfig struct {
	Type       string // sqlite3 or postgres
	URL        string // postgres connection string
	SQLitePath string
}

// AIConfig configures the OpenAI-compatible completion endpoint
type AIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// GradingConfig configures the grading pipeline
type GradingConfig struct {
	Timeout     time.Duration // per try
	MaxRetries  int
	Backoff     time.Duration // initial backoff interval
	Workers     int
	RPS         float64
	Burst       int
	CacheTTL    time.Duration
	CacheSize   int
	PromptsPath string
	RedisAddr   string
}

// SessionConfig configures practice rounds
type SessionConfig struct {
	MaxAttempts      int
	IdleTimeout      time.Duration
	BusyTimeout      time.Duration
	ReapWait         time.Duration
	CorrectThreshold float64
	AlphaMin         float64
}

// ReminderConfig configures the re-engagement sweep
type ReminderConfig struct {
	Cooldown    time.Duration
	Time        string // HH:MM, UTC
	SendTimeout time.Duration
	Lease       time.Duration
}

// Default returns the configuration used when no environment overrides are set
func Default() *Config {
	return &Config{
		LogMode:     "development",
		CatalogPath: "data/catalog.json",
		Database: DatabaseConfig{
			Type:       "sqlite3",
			SQLitePath: "data/langfocus.db",
		},
		AI: AIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   600,
		},
		Grading: GradingConfig{
			Timeout:    20 * time.Second,
			MaxRetries: 2,
			Backoff:    500 * time.Millisecond,
			Workers:    4,
			RPS:        2,
			Burst:      4,
			CacheTTL:   24 * time.Hour,
			CacheSize:  2048,
		},
		Session: SessionConfig{
			MaxAttempts:      5,
			IdleTimeout:      30 * time.Minute,
			BusyTimeout:      3 * time.Second,
			ReapWait:         10 * time.Millisecond,
			CorrectThreshold: 70,
			AlphaMin:         0.3,
		},
		Reminder: ReminderConfig{
			Cooldown:    7 * 24 * time.Hour,
			Time:        "12:00",
			SendTimeout: 10 * time.Second,
			Lease:       5 * time.Minute,
		},
	}
}

// Load reads an optional .env file and applies environment overrides on top of Default
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	cfg.LogMode = str("LOG_MODE", cfg.LogMode)
	cfg.CatalogPath = str("CATALOG_PATH", cfg.CatalogPath)

	cfg.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.AdminIDs = parseIDs(os.Getenv("ADMIN_USER_IDS"))
	cfg.Telegram.Debug = boolean("TELEGRAM_DEBUG", false)

	cfg.Database.Type = str("DB_TYPE", cfg.Database.Type)
	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.SQLitePath = str("SQLITE_PATH", cfg.Database.SQLitePath)

	cfg.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.AI.BaseURL = str("OPENAI_BASE_URL", cfg.AI.BaseURL)
	cfg.AI.Model = str("OPENAI_MODEL", cfg.AI.Model)
	cfg.AI.Temperature = float("AI_TEMPERATURE", cfg.AI.Temperature)
	cfg.AI.MaxTokens = integer("AI_MAX_TOKENS", cfg.AI.MaxTokens)

	cfg.Grading.Timeout = duration("GRADING_TIMEOUT", cfg.Grading.Timeout)
	cfg.Grading.MaxRetries = integer("GRADING_MAX_RETRIES", cfg.Grading.MaxRetries)
	cfg.Grading.Backoff = duration("GRADING_BACKOFF", cfg.Grading.Backoff)
	cfg.Grading.Workers = integer("GRADING_WORKERS", cfg.Grading.Workers)
	cfg.Grading.RPS = float("GRADING_RPS", cfg.Grading.RPS)
	cfg.Grading.Burst = integer("GRADING_BURST", cfg.Grading.Burst)
	cfg.Grading.CacheTTL = duration("GRADING_CACHE_TTL", cfg.Grading.CacheTTL)
	cfg.Grading.CacheSize = integer("GRADING_CACHE_SIZE", cfg.Grading.CacheSize)
	cfg.Grading.PromptsPath = os.Getenv("PROMPTS_PATH")
	cfg.Grading.RedisAddr = os.Getenv("REDIS_ADDR")

	cfg.Session.MaxAttempts = integer("SESSION_MAX_ATTEMPTS", cfg.Session.MaxAttempts)
	cfg.Session.IdleTimeout = duration("SESSION_IDLE_TIMEOUT", cfg.Session.IdleTimeout)
	cfg.Session.BusyTimeout = duration("SESSION_BUSY_TIMEOUT", cfg.Session.BusyTimeout)
	cfg.Session.ReapWait = duration("SESSION_REAP_WAIT", cfg.Session.ReapWait)
	cfg.Session.CorrectThreshold = float("CORRECT_THRESHOLD", cfg.Session.CorrectThreshold)
	cfg.Session.AlphaMin = float("MASTERY_ALPHA_MIN", cfg.Session.AlphaMin)

	cfg.Reminder.Cooldown = duration("REMINDER_COOLDOWN", cfg.Reminder.Cooldown)
	cfg.Reminder.Time = str("REMINDER_TIME", cfg.Reminder.Time)
	cfg.Reminder.SendTimeout = duration("REMINDER_SEND_TIMEOUT", cfg.Reminder.SendTimeout)
	cfg.Reminder.Lease = duration("REMINDER_LEASE", cfg.Reminder.Lease)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot run with
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite3":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required when DB_TYPE=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.Database.Type)
	}
	if c.Grading.Workers < 1 {
		return errors.New("GRADING_WORKERS must be at least 1")
	}
	if c.Grading.RPS <= 0 {
		return errors.New("GRADING_RPS must be positive")
	}
	if c.Session.MaxAttempts < 1 {
		return errors.New("SESSION_MAX_ATTEMPTS must be at least 1")
	}
	if c.Session.AlphaMin <= 0 || c.Session.AlphaMin > 1 {
		return errors.New("MASTERY_ALPHA_MIN must be in (0, 1]")
	}
	if c.Session.CorrectThreshold < 0 || c.Session.CorrectThreshold > 100 {
		return errors.New("CORRECT_THRESHOLD must be in [0, 100]")
	}
	if _, err := time.Parse("15:04", c.Reminder.Time); err != nil {
		return fmt.Errorf("REMINDER_TIME must be HH:MM: %w", err)
	}
	if c.Reminder.Cooldown <= 0 {
		return errors.New("REMINDER_COOLDOWN must be positive")
	}
	return nil
}

// IsAdmin reports whether the Telegram user is listed in ADMIN_USER_IDS
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func integer(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func float(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return def
}

func boolean(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// parseIDs parses a comma separated list of Telegram user ids, skipping garbage
func parseIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
