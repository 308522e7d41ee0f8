package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/example/langfocus/internal/scheduler"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the subset of the Telegram client used by the bot
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewAPI authorizes against Telegram with the given token
func NewAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	api.Debug = debug
	return api, nil
}

// Notifier delivers reminders as Telegram messages
type Notifier struct {
	api API
}

// NewNotifier creates a notifier on top of the Telegram client
func NewNotifier(api API) *Notifier {
	return &Notifier{api: api}
}

// Send delivers text to the user's private chat. Failures are reported as
// scheduler.ErrRecipientUnreachable or scheduler.ErrDeliveryTransient.
func (n *Notifier) Send(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", scheduler.ErrDeliveryTransient, err)
	}

	msg := tgbotapi.NewMessage(userID, text)
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := n.api.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		return classify(err)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", scheduler.ErrDeliveryTransient, ctx.Err())
	}
}

var unreachableMarkers = []string{"blocked", "deactivated", "chat not found"}

// classify maps a Telegram error onto the delivery failure kinds
func classify(err error) error {
	if err == nil {
		return nil
	}

	code, description := 0, err.Error()
	var ptrErr *tgbotapi.Error
	var valErr tgbotapi.Error
	switch {
	case errors.As(err, &ptrErr):
		code, description = ptrErr.Code, ptrErr.Message
	case errors.As(err, &valErr):
		code, description = valErr.Code, valErr.Message
	}

	if code == http.StatusForbidden {
		return fmt.Errorf("%w: %s", scheduler.ErrRecipientUnreachable, description)
	}
	lower := strings.ToLower(description)
	for _, marker := range unreachableMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: %s", scheduler.ErrRecipientUnreachable, description)
		}
	}
	return fmt.Errorf("%w: %v", scheduler.ErrDeliveryTransient, err)
}
