package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/langfocus/internal/ai"
	"github.com/example/langfocus/internal/bot"
	"github.com/example/langfocus/internal/catalog"
	"github.com/example/langfocus/internal/config"
	"github.com/example/langfocus/internal/database"
	"github.com/example/langfocus/internal/grading"
	"github.com/example/langfocus/internal/learning"
	"github.com/example/langfocus/internal/logger"
	"github.com/example/langfocus/internal/scheduler"
	"github.com/example/langfocus/internal/session"
	"github.com/example/langfocus/internal/userlock"
	goredis "github.com/redis/go-redis/v9"
)

// Mode selects how much of the system is wired
type Mode int

const (
	// ModeStorage wires storage, the catalog and reminder bookkeeping
	ModeStorage Mode = iota
	// ModeNotify adds Telegram delivery for reminders
	ModeNotify
	// ModeServe wires everything: grading, sessions, bot and scheduler
	ModeServe
)

const reapEvery = time.Minute

// App holds the wired components
type App struct {
	Config *config.Config
	Log    *logger.Logger

	DB         *database.DB
	Catalog    *catalog.Catalog
	Users      *database.UserRepository
	Progress   *database.ProgressRepository
	History    *database.SessionRepository
	Locks      *userlock.Arena
	Reminders  *scheduler.ReminderService
	Grader     *grading.Service
	Sessions   *session.Orchestrator
	Bot        *bot.Bot
	Scheduler  *scheduler.Scheduler
	redis      *goredis.Client
	telegram   *bot.Notifier
	cancelRun  context.CancelFunc
	running    sync.WaitGroup
	closeOnce  sync.Once
	startedBot bool
}

// New wires the application for the given mode. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, mode Mode) (*App, error) {
	a := &App{Config: cfg, Log: log, Locks: userlock.New()}

	dbCfg := database.DefaultConfig()
	dbCfg.Type = cfg.Database.Type
	dbCfg.URL = cfg.Database.URL
	dbCfg.SQLitePath = cfg.Database.SQLitePath
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.Users = database.NewUserRepository(db)
	a.Progress = database.NewProgressRepository(db)
	a.History = database.NewSessionRepository(db)

	if a.Catalog, err = catalog.Load(cfg.CatalogPath); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	log.Info("catalog loaded", "path", cfg.CatalogPath,
		"techniques", len(a.Catalog.GetTechniques()), "statements", len(a.Catalog.GetStatements(nil)))

	var api bot.API
	var notifier scheduler.Notifier = disabledNotifier{}
	if mode >= ModeNotify {
		if cfg.Telegram.Token == "" {
			a.Close()
			return nil, errors.New("TELEGRAM_BOT_TOKEN is not set")
		}
		tg, err := bot.NewAPI(cfg.Telegram.Token, cfg.Telegram.Debug)
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Info("authorized on telegram", "account", tg.Self.UserName)
		api = tg
		a.telegram = bot.NewNotifier(tg)
		notifier = a.telegram
	}

	a.Reminders = scheduler.NewReminderService(
		database.NewReminderRepository(db),
		database.NewStatisticsRepository(db),
		a.Users,
		notifier,
		a.Locks,
		scheduler.ReminderConfig{
			Cooldown:    cfg.Reminder.Cooldown,
			Lease:       cfg.Reminder.Lease,
			SendTimeout: cfg.Reminder.SendTimeout,
			LockTimeout: cfg.Session.BusyTimeout,
			Concurrency: 4,
		},
		log,
	)

	if mode < ModeServe {
		return a, nil
	}

	if err := a.wireGrading(ctx); err != nil {
		a.Close()
		return nil, err
	}

	tracker := learning.NewTracker()
	tracker.AlphaMin = cfg.Session.AlphaMin
	tracker.CorrectThreshold = cfg.Session.CorrectThreshold

	a.Sessions = session.New(session.Options{
		Catalog:  a.Catalog,
		Selector: learning.NewSelector(time.Now().UnixNano()),
		Tracker:  tracker,
		Grader:   a.Grader,
		Progress: a.Progress,
		History:  a.History,
		Locks:    a.Locks,
		Config: session.Config{
			MaxAttempts: cfg.Session.MaxAttempts,
			IdleTimeout: cfg.Session.IdleTimeout,
			BusyTimeout: cfg.Session.BusyTimeout,
			ReapWait:    cfg.Session.ReapWait,
		},
		Logger: log.With("service", "sessions"),
	})

	botCfg := bot.DefaultConfig()
	botCfg.AdminIDs = cfg.Telegram.AdminIDs
	botCfg.Debug = cfg.Telegram.Debug
	a.Bot = bot.New(api, a.Sessions, a.Reminders, a.Users, a.Catalog, botCfg, log)

	a.Scheduler = scheduler.New(a.Reminders, a.Sessions, scheduler.Config{
		SweepAt:   cfg.Reminder.Time,
		ReapEvery: reapEvery,
	}, log)
	return a, nil
}

func (a *App) wireGrading(ctx context.Context) error {
	cfg := a.Config
	completer, err := ai.New(ai.Config{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return err
	}

	prompts, err := grading.LoadPrompts(cfg.Grading.PromptsPath)
	if err != nil {
		return err
	}

	var cache grading.Cache
	if cfg.Grading.RedisAddr != "" {
		rdb, err := grading.NewRedisClient(ctx, cfg.Grading.RedisAddr)
		if err != nil {
			return err
		}
		a.redis = rdb
		cache = grading.NewRedisCache(rdb, cfg.Grading.CacheTTL, a.Log)
		a.Log.Info("grading cache on redis", "addr", cfg.Grading.RedisAddr)
	} else {
		cache = grading.NewMemoryCache(cfg.Grading.CacheSize, cfg.Grading.CacheTTL)
	}

	a.Grader = grading.NewService(completer, prompts, cache, grading.Config{
		Timeout:    cfg.Grading.Timeout,
		MaxRetries: cfg.Grading.MaxRetries,
		Backoff:    cfg.Grading.Backoff,
		Workers:    cfg.Grading.Workers,
		RPS:        cfg.Grading.RPS,
		Burst:      cfg.Grading.Burst,
	}, a.Log)
	return nil
}

// Start launches the scheduler and the bot polling loop
func (a *App) Start(ctx context.Context) error {
	if a.Scheduler == nil || a.Bot == nil {
		return errors.New("app was not wired for serving")
	}
	if err := a.Scheduler.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancelRun = cancel
	a.startedBot = true
	a.running.Add(1)
	go func() {
		defer a.running.Done()
		a.Bot.Run(runCtx)
	}()
	return nil
}

// Stop ends polling, waits for in-flight handlers and background jobs
func (a *App) Stop() {
	if a.cancelRun != nil {
		a.cancelRun()
	}
	if a.startedBot {
		a.running.Wait()
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
}

// Close releases connections. It is safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.Log.Warn("close redis failed", "error", err)
			}
		}
		if a.DB != nil {
			if err := a.DB.Close(); err != nil {
				a.Log.Warn("close database failed", "error", err)
			}
		}
	})
}

// disabledNotifier is used when the app runs without Telegram
type disabledNotifier struct{}

func (disabledNotifier) Send(ctx context.Context, userID int64, text string) error {
	return fmt.Errorf("%w: telegram is not configured", scheduler.ErrDeliveryTransient)
}
