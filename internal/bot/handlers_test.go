package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/langfocus/internal/learning"
	"github.com/example/langfocus/internal/scheduler"
	"github.com/example/langfocus/internal/session"
	"github.com/example/langfocus/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	sendErr  error
	delay    time.Duration
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.messages = append(f.messages, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1].Text
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Text
	}
	return out
}

type fakeSessions struct {
	active    bool
	startErr  error
	submitErr error
	result    *session.Result
	submitted []string
	history   []models.SessionRecord
}

var testChallenge = &session.Challenge{
	SessionID:     "s-1",
	Technique:     models.Technique{ID: 1, Name: "Reframing", Definition: "Change the frame."},
	Statement:     models.Statement{ID: 10, Text: "Nobody reads long emails."},
	AttemptNumber: 1,
	MaxAttempts:   10,
}

func (f *fakeSessions) StartSession(ctx context.Context, userID int64) (*session.Challenge, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.active = true
	return testChallenge, nil
}

func (f *fakeSessions) SubmitAnswer(ctx context.Context, userID int64, text string) (*session.Result, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, text)
	return f.result, nil
}

func (f *fakeSessions) EndSession(ctx context.Context, userID int64) (*session.Summary, error) {
	if !f.active {
		return nil, session.ErrNoActiveSession
	}
	f.active = false
	return &session.Summary{Status: session.StateCompleted, Attempts: 2, Correct: 1, AverageScore: 65}, nil
}

func (f *fakeSessions) CurrentChallenge(ctx context.Context, userID int64) (*session.Challenge, error) {
	return testChallenge, nil
}

func (f *fakeSessions) HasSession(ctx context.Context, userID int64) bool { return f.active }

func (f *fakeSessions) History(ctx context.Context, userID int64, limit int) ([]models.SessionRecord, error) {
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeSessions) Overview(ctx context.Context, userID int64) (models.ProgressOverview, []learning.Recommendation, error) {
	return models.ProgressOverview{TechniquesTotal: 3, Practiced: 1}, []learning.Recommendation{{TechniqueID: 2, Reason: "try it"}}, nil
}

type fakeReminders struct {
	enabled map[int64]bool
	forced  []int64
	all     int
}

func (f *fakeReminders) ForceReminder(ctx context.Context, userID int64) (scheduler.Outcome, error) {
	f.forced = append(f.forced, userID)
	return scheduler.OutcomeSent, nil
}

func (f *fakeReminders) ForceReminderAll(ctx context.Context) (scheduler.Report, error) {
	f.all++
	return scheduler.Report{Considered: 2, Sent: 2}, nil
}

func (f *fakeReminders) SetReminderEnabled(ctx context.Context, userID int64, enabled bool) error {
	f.enabled[userID] = enabled
	return nil
}

func (f *fakeReminders) Stats(ctx context.Context) (*models.ReminderStats, error) {
	return &models.ReminderStats{TotalUsers: 5, TrackedUsers: 5, EligibleNow: 2, SentToday: 1}, nil
}

type fakeUsers struct{ created []int64 }

func (f *fakeUsers) Create(ctx context.Context, user *models.User) (bool, error) {
	f.created = append(f.created, user.ID)
	return true, nil
}

type fakeTechniques map[int]models.Technique

func (f fakeTechniques) Technique(id int) (models.Technique, bool) {
	t, ok := f[id]
	return t, ok
}

type harness struct {
	bot       *Bot
	api       *fakeAPI
	sessions  *fakeSessions
	reminders *fakeReminders
	users     *fakeUsers
}

func newHarness() *harness {
	h := &harness{
		api:       &fakeAPI{},
		sessions:  &fakeSessions{},
		reminders: &fakeReminders{enabled: map[int64]bool{}},
		users:     &fakeUsers{},
	}
	techniques := fakeTechniques{
		1: {ID: 1, Name: "Reframing"},
		2: {ID: 2, Name: "Chunking up"},
	}
	cfg := DefaultConfig()
	cfg.AdminIDs = []int64{99}
	h.bot = New(h.api, h.sessions, h.reminders, h.users, techniques, cfg, nil)
	return h
}

func commandUpdate(userID int64, body string) tgbotapi.Update {
	cmd := body
	if i := strings.IndexByte(body, ' '); i > 0 {
		cmd = body[:i]
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID, FirstName: "Ann"},
		Chat:     &tgbotapi.Chat{ID: userID},
		Text:     body,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func textUpdate(userID int64, body string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: body,
	}}
}

func TestStartRegistersUser(t *testing.T) {
	h := newHarness()
	h.bot.handleUpdate(context.Background(), commandUpdate(7, "/start"))

	assert.Equal(t, []int64{7}, h.users.created)
	assert.Contains(t, h.api.last(t), "Hi Ann")
}

func TestLearnShowsChallenge(t *testing.T) {
	h := newHarness()
	h.bot.handleUpdate(context.Background(), commandUpdate(7, "/learn"))

	msg := h.api.last(t)
	assert.Contains(t, msg, "Reframing")
	assert.Contains(t, msg, "Nobody reads long emails.")
	assert.Contains(t, msg, "Exercise 1 of 10")
}

func TestLearnWhileActiveShowsCurrentExercise(t *testing.T) {
	h := newHarness()
	h.sessions.startErr = session.ErrSessionAlreadyActive
	h.bot.handleUpdate(context.Background(), commandUpdate(7, "/learn"))

	assert.Contains(t, h.api.last(t), "already have a round running")
}

func TestAnswerWithoutSession(t *testing.T) {
	h := newHarness()
	h.bot.handleUpdate(context.Background(), textUpdate(7, "my answer"))

	assert.Contains(t, h.api.last(t), "no round running")
	assert.Empty(t, h.sessions.submitted)
}

func TestAnswerShowsResultAndNext(t *testing.T) {
	h := newHarness()
	h.sessions.active = true
	next := *testChallenge
	next.AttemptNumber = 2
	h.sessions.result = &session.Result{
		IsCorrect:    true,
		Score:        85,
		Feedback:     "Nice reframe.",
		Improvements: []string{"Be shorter"},
		TechniqueID:  1,
		NewMastery:   85,
		JustMastered: true,
		Next:         &next,
	}

	h.bot.handleUpdate(context.Background(), textUpdate(7, "Long emails get read when they matter."))

	msgs := h.api.texts()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "Score: 85/100")
	assert.Contains(t, msgs[0], "Be shorter")
	assert.Contains(t, msgs[0], "mastered")
	assert.Contains(t, msgs[1], "Exercise 2 of 10")
}

func TestAnswerCompletesRound(t *testing.T) {
	h := newHarness()
	h.sessions.active = true
	h.sessions.result = &session.Result{
		Score:       40,
		TechniqueID: 1,
		Completed:   true,
		Summary: &session.Summary{
			Status:          session.StateCompleted,
			Attempts:        10,
			Correct:         6,
			AverageScore:    71,
			NewlyMastered:   []int{1},
			Recommendations: []learning.Recommendation{{TechniqueID: 2, Reason: "mastery is only 20%"}},
		},
	}

	h.bot.handleUpdate(context.Background(), textUpdate(7, "answer"))

	msgs := h.api.texts()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "Round finished")
	assert.Contains(t, msgs[1], "Newly mastered: Reframing")
	assert.Contains(t, msgs[1], "Chunking up: mastery is only 20%")
}

func TestGradingFailureAsksToResubmit(t *testing.T) {
	h := newHarness()
	h.sessions.active = true
	h.sessions.submitErr = fmt.Errorf("%w: timeout", session.ErrGradingUnavailable)

	h.bot.handleUpdate(context.Background(), textUpdate(7, "answer"))

	msg := h.api.last(t)
	assert.Contains(t, msg, "could not be scored")
	assert.Contains(t, msg, "send it again")
}

func TestStopWithoutSession(t *testing.T) {
	h := newHarness()
	h.bot.handleUpdate(context.Background(), commandUpdate(7, "/stop"))
	assert.Contains(t, h.api.last(t), "no round running")
}

func TestRemindersToggle(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.bot.handleUpdate(ctx, commandUpdate(7, "/reminders off"))
	assert.Equal(t, false, h.reminders.enabled[7])
	assert.Contains(t, h.api.last(t), "off")

	h.bot.handleUpdate(ctx, commandUpdate(7, "/reminders on"))
	assert.Equal(t, true, h.reminders.enabled[7])

	h.bot.handleUpdate(ctx, commandUpdate(7, "/reminders maybe"))
	assert.Contains(t, h.api.last(t), "Usage")
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.bot.handleUpdate(ctx, commandUpdate(7, "/force_reminder all"))
	assert.Contains(t, h.api.last(t), "only available for administrators")
	assert.Zero(t, h.reminders.all)

	h.bot.handleUpdate(ctx, commandUpdate(99, "/force_reminder all"))
	assert.Equal(t, 1, h.reminders.all)
	assert.Contains(t, h.api.last(t), "2 sent")

	h.bot.handleUpdate(ctx, commandUpdate(99, "/force_reminder 7"))
	assert.Equal(t, []int64{7}, h.reminders.forced)

	h.bot.handleUpdate(ctx, commandUpdate(99, "/reminder_stats"))
	assert.Contains(t, h.api.last(t), "Eligible now: 2")
}

func TestProgressCallback(t *testing.T) {
	h := newHarness()
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}},
		Data:    callbackProgress,
	}})

	msg := h.api.last(t)
	assert.Contains(t, msg, "Techniques practiced: 1 of 3")
	assert.Contains(t, msg, "Chunking up: try it")
	assert.NotContains(t, msg, "Recent rounds")
}

func TestProgressListsRecentRounds(t *testing.T) {
	h := newHarness()
	h.sessions.history = []models.SessionRecord{
		{ID: "b", Status: models.SessionStatusCompleted, Attempts: 4, CorrectCount: 3, AverageScore: 81, StartedAt: time.Date(2025, 3, 19, 9, 0, 0, 0, time.UTC)},
		{ID: "a", Status: models.SessionStatusExpired, Attempts: 1, StartedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
	}

	h.bot.handleUpdate(context.Background(), commandUpdate(7, "/progress"))

	msg := h.api.last(t)
	assert.Contains(t, msg, "Recent rounds:")
	assert.Contains(t, msg, "2025-03-19, completed: 3/4 correct, avg 81%")
	assert.Contains(t, msg, "2025-03-10, expired: 0/1 correct")
}
