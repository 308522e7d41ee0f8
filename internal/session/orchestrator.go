package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/langfocus/internal/catalog"
	"github.com/example/langfocus/internal/grading"
	"github.com/example/langfocus/internal/learning"
	"github.com/example/langfocus/internal/logger"
	"github.com/example/langfocus/internal/userlock"
	"github.com/example/langfocus/pkg/models"
)

// Grader scores one answer
type Grader interface {
	Grade(ctx context.Context, req grading.Request) (*grading.Result, error)
}

// ProgressStore reads and atomically updates mastery records
type ProgressStore interface {
	ListByUser(ctx context.Context, userID int64) ([]models.ProgressRecord, error)
	ApplyAttempt(ctx context.Context, attempt *models.Attempt, update func(rec *models.ProgressRecord) error) (*models.ProgressRecord, error)
}

// SessionLog keeps the history of rounds
type SessionLog interface {
	Create(ctx context.Context, s *models.SessionRecord) error
	Finish(ctx context.Context, s *models.SessionRecord) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.SessionRecord, error)
}

// Config tunes round length and timeouts
type Config struct {
	MaxAttempts int
	IdleTimeout time.Duration
	BusyTimeout time.Duration
	// ReapWait bounds how long background checks wait for a user's slot
	ReapWait    time.Duration
}

// DefaultConfig mirrors the deployment defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 10,
		IdleTimeout: 30 * time.Minute,
		BusyTimeout: 5 * time.Second,
		ReapWait:    10 * time.Millisecond,
	}
}

// Challenge is the exercise shown to the user
type Challenge struct {
	SessionID     string
	Technique     models.Technique
	Statement     models.Statement
	AttemptNumber int
	MaxAttempts   int
}

// Result is the outcome of one submitted answer
type Result struct {
	IsCorrect     bool
	Score         float64
	Feedback      string
	Improvements  []string
	DetectedTrick *string
	Encouragement string
	Cached        bool

	TechniqueID  int
	OldMastery   float64
	NewMastery   float64
	JustMastered bool

	// Next is set while the round continues, Summary once it is over
	Next      *Challenge
	Completed bool
	Summary   *Summary
}

// Summary describes a finished round
type Summary struct {
	SessionID         string
	Status            State
	Attempts          int
	Correct           int
	AverageScore      float64
	TechniquesCovered []int
	NewlyMastered     []int
	Duration          time.Duration
	Recommendations   []learning.Recommendation
}

// Orchestrator runs practice rounds. At most one round is live per user and
// every mutation for a user happens while that user's arena slot is held.
type Orchestrator struct {
	catalog  *catalog.Catalog
	selector *learning.Selector
	tracker  *learning.Tracker
	grader   Grader
	progress ProgressStore
	history  SessionLog
	locks    *userlock.Arena
	cfg      Config
	log      *logger.Logger

	// now is replaced in tests
	now func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session
}

// Options groups the collaborators of an Orchestrator
type Options struct {
	Catalog  *catalog.Catalog
	Selector *learning.Selector
	Tracker  *learning.Tracker
	Grader   Grader
	Progress ProgressStore
	History  SessionLog
	Locks    *userlock.Arena
	Config   Config
	Logger   *logger.Logger
}

// New builds an orchestrator. Selector, Tracker, Locks and Logger get
// defaults when nil.
func New(opts Options) *Orchestrator {
	if opts.Selector == nil {
		opts.Selector = learning.NewSelector(time.Now().UnixNano())
	}
	if opts.Tracker == nil {
		opts.Tracker = learning.NewTracker()
	}
	if opts.Locks == nil {
		opts.Locks = userlock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Config.MaxAttempts < 1 {
		opts.Config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if opts.Config.ReapWait <= 0 {
		opts.Config.ReapWait = DefaultConfig().ReapWait
	}

	return &Orchestrator{
		catalog:  opts.Catalog,
		selector: opts.Selector,
		tracker:  opts.Tracker,
		grader:   opts.Grader,
		progress: opts.Progress,
		history:  opts.History,
		locks:    opts.Locks,
		cfg:      opts.Config,
		log:      opts.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[int64]*Session),
	}
}

// StartSession opens a round for the user and returns the first exercise
func (o *Orchestrator) StartSession(ctx context.Context, userID int64) (*Challenge, error) {
	release, err := o.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := o.now()
	if s := o.live(userID); s != nil {
		if !s.idleExpired(now, o.cfg.IdleTimeout) {
			return nil, ErrSessionAlreadyActive
		}
		o.expire(ctx, s, now)
	}

	progress, err := o.progress.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	s := newSession(userID, progress, now)
	if err := s.transition(StateSelecting); err != nil {
		return nil, err
	}
	pick, err := o.selector.Select(o.catalog, s.progress, s.covered, s.usedStatements, now)
	if err != nil {
		return nil, fmt.Errorf("select exercise: %w", err)
	}
	if err := s.present(pick, now); err != nil {
		return nil, err
	}

	if err := o.history.Create(ctx, &models.SessionRecord{
		ID:        s.ID,
		UserID:    userID,
		Status:    models.SessionStatusActive,
		StartedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("record session: %w", err)
	}

	o.put(s)
	o.log.Info("session started", "user_id", userID, "session_id", s.ID, "technique_id", pick.Technique.ID)
	return o.challenge(s, pick), nil
}

// SubmitAnswer grades the answer to the pending exercise, records the
// attempt and moves the round forward. On any failure the round stays on
// the same exercise and nothing is recorded.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, userID int64, text string) (*Result, error) {
	release, err := o.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := o.now()
	s := o.live(userID)
	if s == nil {
		return nil, ErrNoActiveSession
	}
	if s.idleExpired(now, o.cfg.IdleTimeout) {
		o.expire(ctx, s, now)
		return nil, ErrSessionExpired
	}
	if s.State != StateAwaitingAnswer {
		return nil, ErrNoActiveSession
	}

	answer := strings.TrimSpace(text)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}

	technique, ok := o.catalog.Technique(s.TechniqueID)
	if !ok {
		return nil, fmt.Errorf("technique %d: %w", s.TechniqueID, catalog.ErrUnknownTechnique)
	}
	statement, ok := o.catalog.Statement(s.StatementID)
	if !ok {
		return nil, fmt.Errorf("statement %d: %w", s.StatementID, catalog.ErrUnknownStatement)
	}

	if err := s.transition(StateGrading); err != nil {
		return nil, err
	}
	verdict, err := o.grader.Grade(ctx, grading.Request{
		StatementID: statement.ID,
		Statement:   statement.Text,
		Technique:   technique,
		Answer:      answer,
	})
	if err != nil {
		o.rewind(s)
		o.log.Warn("grading failed", "user_id", userID, "session_id", s.ID, "error", err)
		return nil, err
	}

	if err := s.transition(StateFeedback); err != nil {
		return nil, err
	}
	attempt := &models.Attempt{
		UserID:      userID,
		SessionID:   s.ID,
		TechniqueID: technique.ID,
		StatementID: statement.ID,
		Answer:      answer,
		Score:       learning.Clamp(verdict.Score),
		Feedback:    verdict.Feedback,
		CreatedAt:   now,
	}
	var outcome learning.Outcome
	rec, err := o.progress.ApplyAttempt(ctx, attempt, func(rec *models.ProgressRecord) error {
		outcome = o.tracker.Apply(rec, attempt.Score)
		attempt.IsCorrect = outcome.Correct
		attempt.MasteryBefore = outcome.OldMastery
		attempt.MasteryAfter = outcome.NewMastery
		return nil
	})
	if err != nil {
		o.rewind(s)
		o.log.Error("record attempt failed", "user_id", userID, "session_id", s.ID, "error", err)
		return nil, err
	}

	s.record(*rec, statement.ID, attempt.Score, outcome)
	if outcome.JustMastered {
		o.log.Info("technique mastered", "user_id", userID, "technique_id", technique.ID)
	}

	res := &Result{
		IsCorrect:     outcome.Correct,
		Score:         attempt.Score,
		Feedback:      verdict.Feedback,
		Improvements:  verdict.Improvements,
		DetectedTrick: verdict.DetectedTrick,
		Encouragement: grading.Encouragement(attempt.Score),
		Cached:        verdict.Cached,
		TechniqueID:   technique.ID,
		OldMastery:    outcome.OldMastery,
		NewMastery:    outcome.NewMastery,
		JustMastered:  outcome.JustMastered,
	}

	if s.Attempts >= o.cfg.MaxAttempts || len(s.covered) >= len(o.catalog.GetTechniques()) {
		res.Completed = true
		res.Summary = o.finish(ctx, s, StateCompleted, now)
		return res, nil
	}

	if err := s.transition(StateSelecting); err != nil {
		return nil, err
	}
	pick, err := o.selector.Select(o.catalog, s.progress, s.covered, s.usedStatements, now)
	if err != nil {
		o.log.Error("select next exercise failed", "user_id", userID, "session_id", s.ID, "error", err)
		_ = s.transition(StateError)
		res.Completed = true
		res.Summary = o.finish(ctx, s, StateCompleted, now)
		return res, nil
	}
	if err := s.present(pick, now); err != nil {
		return nil, err
	}
	res.Next = o.challenge(s, pick)
	return res, nil
}

// EndSession finishes the user's round and returns its summary
func (o *Orchestrator) EndSession(ctx context.Context, userID int64) (*Summary, error) {
	release, err := o.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := o.now()
	s := o.live(userID)
	if s == nil {
		return nil, ErrNoActiveSession
	}
	if s.idleExpired(now, o.cfg.IdleTimeout) {
		return o.expire(ctx, s, now), nil
	}
	if err := s.transition(StateCompleted); err != nil {
		return nil, err
	}
	return o.finish(ctx, s, StateCompleted, now), nil
}

// CurrentChallenge returns the exercise the user is expected to answer
func (o *Orchestrator) CurrentChallenge(ctx context.Context, userID int64) (*Challenge, error) {
	release, err := o.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := o.now()
	s := o.live(userID)
	if s == nil {
		return nil, ErrNoActiveSession
	}
	if s.idleExpired(now, o.cfg.IdleTimeout) {
		o.expire(ctx, s, now)
		return nil, ErrSessionExpired
	}
	technique, _ := o.catalog.Technique(s.TechniqueID)
	statement, _ := o.catalog.Statement(s.StatementID)
	return o.challenge(s, learning.Pick{Technique: technique, Statement: statement}), nil
}

// HasSession reports whether the user has a live round. A round that has
// idled past the timeout is expired on the spot and reported as gone. A user
// whose slot is busy is mid-operation and so still has a round.
func (o *Orchestrator) HasSession(ctx context.Context, userID int64) bool {
	if o.live(userID) == nil {
		return false
	}
	release, err := o.locks.Acquire(ctx, userID, o.cfg.ReapWait)
	if err != nil {
		return true
	}
	defer release()

	now := o.now()
	s := o.live(userID)
	if s == nil {
		return false
	}
	if s.idleExpired(now, o.cfg.IdleTimeout) {
		o.expire(ctx, s, now)
		return false
	}
	return true
}

// GetProgress returns the user's mastery records
func (o *Orchestrator) GetProgress(ctx context.Context, userID int64) ([]models.ProgressRecord, error) {
	return o.progress.ListByUser(ctx, userID)
}

// Overview aggregates the user's progress and suggests what to practice next
func (o *Orchestrator) Overview(ctx context.Context, userID int64) (models.ProgressOverview, []learning.Recommendation, error) {
	progress, err := o.progress.ListByUser(ctx, userID)
	if err != nil {
		return models.ProgressOverview{}, nil, err
	}
	techniques := o.catalog.GetTechniques()
	return learning.Overview(progress, len(techniques)), learning.Recommend(progress, techniques, o.now()), nil
}

// History returns the user's most recent rounds, newest first
func (o *Orchestrator) History(ctx context.Context, userID int64, limit int) ([]models.SessionRecord, error) {
	if limit < 1 {
		limit = 10
	}
	return o.history.ListByUser(ctx, userID, limit)
}

// ExpireIdle retires rounds that waited too long for an answer. Users whose
// slot is busy are skipped and picked up on the next call.
func (o *Orchestrator) ExpireIdle(ctx context.Context) int {
	o.mu.Lock()
	ids := make([]int64, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	expired := 0
	for _, id := range ids {
		release, err := o.locks.Acquire(ctx, id, o.cfg.ReapWait)
		if err != nil {
			continue
		}
		now := o.now()
		if s := o.live(id); s != nil && s.idleExpired(now, o.cfg.IdleTimeout) {
			o.expire(ctx, s, now)
			expired++
		}
		release()
	}
	if expired > 0 {
		o.log.Info("expired idle sessions", "count", expired)
	}
	return expired
}

// Active returns the number of live rounds
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

func (o *Orchestrator) acquire(ctx context.Context, userID int64) (func(), error) {
	release, err := o.locks.Acquire(ctx, userID, o.cfg.BusyTimeout)
	if errors.Is(err, userlock.ErrBusy) {
		return nil, ErrSessionBusy
	}
	return release, err
}

func (o *Orchestrator) live(userID int64) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[userID]
}

func (o *Orchestrator) put(s *Session) {
	o.mu.Lock()
	o.sessions[s.UserID] = s
	o.mu.Unlock()
}

// rewind returns the round to the pending exercise after a failure
func (o *Orchestrator) rewind(s *Session) {
	_ = s.transition(StateError)
	_ = s.transition(StateAwaitingAnswer)
}

func (o *Orchestrator) expire(ctx context.Context, s *Session, now time.Time) *Summary {
	_ = s.transition(StateExpired)
	o.log.Info("session expired", "user_id", s.UserID, "session_id", s.ID)
	return o.finish(ctx, s, StateExpired, now)
}

// finish removes the round and stores its final figures. A failed history
// write is logged only; the progress it summarizes is already committed.
func (o *Orchestrator) finish(ctx context.Context, s *Session, status State, now time.Time) *Summary {
	s.State = status

	o.mu.Lock()
	if o.sessions[s.UserID] == s {
		delete(o.sessions, s.UserID)
	}
	o.mu.Unlock()

	rec := &models.SessionRecord{
		ID:           s.ID,
		UserID:       s.UserID,
		Status:       models.SessionStatusCompleted,
		Attempts:     s.Attempts,
		CorrectCount: s.Correct,
		AverageScore: s.averageScore(),
		StartedAt:    s.StartedAt,
		FinishedAt:   &now,
	}
	if status == StateExpired {
		rec.Status = models.SessionStatusExpired
	}
	if err := o.history.Finish(context.WithoutCancel(ctx), rec); err != nil {
		o.log.Warn("finish session record failed", "session_id", s.ID, "error", err)
	}

	covered := make([]int, 0, len(s.covered))
	for _, t := range o.catalog.GetTechniques() {
		if s.covered[t.ID] {
			covered = append(covered, t.ID)
		}
	}

	o.log.Info("session finished", "user_id", s.UserID, "session_id", s.ID, "status", status.String(), "attempts", s.Attempts)
	return &Summary{
		SessionID:         s.ID,
		Status:            status,
		Attempts:          s.Attempts,
		Correct:           s.Correct,
		AverageScore:      rec.AverageScore,
		TechniquesCovered: covered,
		NewlyMastered:     append([]int(nil), s.newlyMastered...),
		Duration:          now.Sub(s.StartedAt),
		Recommendations:   learning.Recommend(s.progress, o.catalog.GetTechniques(), now),
	}
}

func (o *Orchestrator) challenge(s *Session, pick learning.Pick) *Challenge {
	return &Challenge{
		SessionID:     s.ID,
		Technique:     pick.Technique,
		Statement:     pick.Statement,
		AttemptNumber: s.Attempts + 1,
		MaxAttempts:   o.cfg.MaxAttempts,
	}
}
