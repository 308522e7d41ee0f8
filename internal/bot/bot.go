package bot

import (
	"context"
	"sync"

	"github.com/example/langfocus/internal/learning"
	"github.com/example/langfocus/internal/logger"
	"github.com/example/langfocus/internal/scheduler"
	"github.com/example/langfocus/internal/session"
	"github.com/example/langfocus/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sessions is the practice round API the bot drives
type Sessions interface {
	StartSession(ctx context.Context, userID int64) (*session.Challenge, error)
	SubmitAnswer(ctx context.Context, userID int64, text string) (*session.Result, error)
	EndSession(ctx context.Context, userID int64) (*session.Summary, error)
	CurrentChallenge(ctx context.Context, userID int64) (*session.Challenge, error)
	HasSession(ctx context.Context, userID int64) bool
	Overview(ctx context.Context, userID int64) (models.ProgressOverview, []learning.Recommendation, error)
	History(ctx context.Context, userID int64, limit int) ([]models.SessionRecord, error)
}

// Reminders is the reminder API used by settings and maintainer commands
type Reminders interface {
	ForceReminder(ctx context.Context, userID int64) (scheduler.Outcome, error)
	ForceReminderAll(ctx context.Context) (scheduler.Report, error)
	SetReminderEnabled(ctx context.Context, userID int64, enabled bool) error
	Stats(ctx context.Context) (*models.ReminderStats, error)
}

// Users registers chat users
type Users interface {
	Create(ctx context.Context, user *models.User) (bool, error)
}

// Techniques resolves technique ids for display
type Techniques interface {
	Technique(id int) (models.Technique, bool)
}

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// Bot routes Telegram updates to the practice and reminder services
type Bot struct {
	api        API
	sessions   Sessions
	reminders  Reminders
	users      Users
	techniques Techniques
	cfg        Config
	log        *logger.Logger

	wg sync.WaitGroup
}

// New creates a new bot instance
func New(api API, sessions Sessions, reminders Reminders, users Users, techniques Techniques, cfg Config, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = DefaultConfig().UpdateTimeout
	}
	return &Bot{
		api:        api,
		sessions:   sessions,
		reminders:  reminders,
		users:      users,
		techniques: techniques,
		cfg:        cfg,
		log:        log.With("service", "bot"),
	}
}

// Run polls for updates until ctx is cancelled, then waits for the handlers
// that are still running
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.cfg.UpdateTimeout
	updates := b.api.GetUpdatesChan(updateConfig)
	b.log.Info("bot started")

	defer func() {
		b.api.StopReceivingUpdates()
		b.wg.Wait()
		b.log.Info("bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// MainMenuButtons returns the buttons for the main menu
func (b *Bot) MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{
			{Text: "🎯 Practice", CallbackData: callbackLearn},
			{Text: "📊 Progress", CallbackData: callbackProgress},
		},
	}
}

func (b *Bot) reply(chatID int64, text string, buttons [][]MenuButton) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(buttons) > 0 {
		msg.ReplyMarkup = createKeyboard(buttons)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("send message failed", "chat_id", chatID, "error", err)
	}
}
