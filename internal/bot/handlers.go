package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/langfocus/internal/database"
	"github.com/example/langfocus/internal/session"
	"github.com/example/langfocus/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Constants for callback data
const (
	callbackLearn    = "learn"
	callbackProgress = "progress"
	callbackStop     = "stop"
)

const helpText = `Commands:
/learn - start a practice round
/stop - finish the current round
/progress - show your mastery
/reminders on|off - weekly practice reminders
/help - show this message

While a round is running, just send your answer as a message.`

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil && update.Message.Chat != nil:
		if update.Message.IsCommand() {
			b.handleCommand(ctx, update.Message)
		} else {
			b.handleAnswer(ctx, update.Message.Chat.ID, update.Message.From.ID, update.Message.Text)
		}
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID, userID := message.Chat.ID, message.From.ID
	switch message.Command() {
	case "start":
		b.handleStart(ctx, message)
	case "help":
		b.reply(chatID, helpText, b.MainMenuButtons())
	case "learn":
		b.handleLearn(ctx, chatID, userID)
	case "stop":
		b.handleStop(ctx, chatID, userID)
	case "progress":
		b.handleProgress(ctx, chatID, userID)
	case "reminders":
		b.handleReminderToggle(ctx, chatID, userID, message.CommandArguments())
	case "force_reminder":
		if b.requireAdmin(chatID, userID) {
			b.handleForceReminder(ctx, chatID, message.CommandArguments())
		}
	case "reminder_stats":
		if b.requireAdmin(chatID, userID) {
			b.handleReminderStats(ctx, chatID)
		}
	default:
		b.reply(chatID, "Unknown command. Use /help to see what I can do.", nil)
	}
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.log.Debug("answer callback failed", "error", err)
	}
	if callback.Message == nil || callback.From == nil {
		return
	}

	chatID, userID := callback.Message.Chat.ID, callback.From.ID
	switch callback.Data {
	case callbackLearn:
		b.handleLearn(ctx, chatID, userID)
	case callbackProgress:
		b.handleProgress(ctx, chatID, userID)
	case callbackStop:
		b.handleStop(ctx, chatID, userID)
	}
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	from := message.From
	_, err := b.users.Create(ctx, &models.User{
		ID:           from.ID,
		Username:     from.UserName,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		b.log.Error("register user failed", "user_id", from.ID, "error", err)
		b.reply(message.Chat.ID, "Something went wrong, please try /start again in a moment.", nil)
		return
	}

	name := from.FirstName
	if name == "" {
		name = "there"
	}
	b.reply(message.Chat.ID, fmt.Sprintf("Hi %s! 🎓\n\nI train your language techniques: you get a statement, answer it using the named technique and I grade the answer.\n\n%s", name, helpText), b.MainMenuButtons())
}

func (b *Bot) handleLearn(ctx context.Context, chatID, userID int64) {
	challenge, err := b.sessions.StartSession(ctx, userID)
	if errors.Is(err, session.ErrSessionAlreadyActive) {
		challenge, err = b.sessions.CurrentChallenge(ctx, userID)
		if err == nil {
			b.reply(chatID, "You already have a round running. Here is your current exercise:\n\n"+formatChallenge(challenge), stopButtons())
			return
		}
	}
	if err != nil {
		b.replyError(chatID, userID, err)
		return
	}
	b.reply(chatID, formatChallenge(challenge), stopButtons())
}

func (b *Bot) handleAnswer(ctx context.Context, chatID, userID int64, text string) {
	if !b.sessions.HasSession(ctx, userID) {
		b.reply(chatID, "There is no round running. Press Practice or send /learn to start one.", b.MainMenuButtons())
		return
	}

	res, err := b.sessions.SubmitAnswer(ctx, userID, text)
	if err != nil {
		b.replyError(chatID, userID, err)
		return
	}

	b.reply(chatID, formatResult(res, b.techniques), nil)
	switch {
	case res.Completed && res.Summary != nil:
		b.reply(chatID, formatSummary(res.Summary, b.techniques), b.MainMenuButtons())
	case res.Next != nil:
		b.reply(chatID, formatChallenge(res.Next), stopButtons())
	}
}

func (b *Bot) handleStop(ctx context.Context, chatID, userID int64) {
	summary, err := b.sessions.EndSession(ctx, userID)
	if err != nil {
		b.replyError(chatID, userID, err)
		return
	}
	b.reply(chatID, formatSummary(summary, b.techniques), b.MainMenuButtons())
}

func (b *Bot) handleProgress(ctx context.Context, chatID, userID int64) {
	overview, recs, err := b.sessions.Overview(ctx, userID)
	if err != nil {
		b.replyError(chatID, userID, err)
		return
	}
	history, err := b.sessions.History(ctx, userID, historyLimit)
	if err != nil {
		b.log.Warn("load session history failed", "user_id", userID, "error", err)
	}
	b.reply(chatID, formatOverview(overview, recs, history, b.techniques), b.MainMenuButtons())
}

func (b *Bot) handleReminderToggle(ctx context.Context, chatID, userID int64, args string) {
	var enabled bool
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		b.reply(chatID, "Usage: /reminders on or /reminders off", nil)
		return
	}

	if err := b.reminders.SetReminderEnabled(ctx, userID, enabled); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			b.reply(chatID, "Please send /start first.", nil)
			return
		}
		b.replyError(chatID, userID, err)
		return
	}
	if enabled {
		b.reply(chatID, "🔔 Reminders are on. I'll nudge you after a week without practice.", nil)
	} else {
		b.reply(chatID, "🔕 Reminders are off.", nil)
	}
}

func (b *Bot) requireAdmin(chatID, userID int64) bool {
	if b.cfg.isAdmin(userID) {
		return true
	}
	b.reply(chatID, "This command is only available for administrators.", nil)
	return false
}

func (b *Bot) handleForceReminder(ctx context.Context, chatID int64, args string) {
	target := strings.TrimSpace(args)
	if target == "" || target == "all" {
		report, err := b.reminders.ForceReminderAll(ctx)
		if err != nil {
			b.reply(chatID, "Force reminder failed: "+err.Error(), nil)
			return
		}
		b.reply(chatID, fmt.Sprintf("Reminders forced: %d sent, %d skipped, %d unreachable, %d failed.",
			report.Sent, report.Skipped, report.Unreachable, report.Transient+report.Failed), nil)
		return
	}

	userID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		b.reply(chatID, "Usage: /force_reminder [all|<user id>]", nil)
		return
	}
	outcome, err := b.reminders.ForceReminder(ctx, userID)
	if err != nil {
		b.reply(chatID, "Force reminder failed: "+err.Error(), nil)
		return
	}
	b.reply(chatID, fmt.Sprintf("Reminder for %d: %s", userID, outcome), nil)
}

func (b *Bot) handleReminderStats(ctx context.Context, chatID int64) {
	stats, err := b.reminders.Stats(ctx)
	if err != nil {
		b.reply(chatID, "Stats are unavailable: "+err.Error(), nil)
		return
	}
	b.reply(chatID, formatStats(stats), nil)
}

// replyError turns service failures into user-facing text
func (b *Bot) replyError(chatID, userID int64, err error) {
	var text string
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		text = "⏰ Your round expired after a long pause. Send /learn to start a new one."
	case errors.Is(err, session.ErrNoActiveSession):
		text = "There is no round running. Send /learn to start one."
	case errors.Is(err, session.ErrSessionBusy):
		text = "⏳ Still working on your previous message, please wait a moment."
	case errors.Is(err, session.ErrEmptyAnswer):
		text = "Please send your answer as text."
	case errors.Is(err, session.ErrGradingUnavailable):
		text = "⚠️ Your answer could not be scored right now. Nothing was recorded; please send it again."
	default:
		b.log.Error("request failed", "user_id", userID, "error", err)
		text = "⚠️ Something went wrong. Nothing was recorded; please try again."
	}
	b.reply(chatID, text, nil)
}

func stopButtons() [][]MenuButton {
	return [][]MenuButton{{{Text: "⏹ Finish round", CallbackData: callbackStop}}}
}
