package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/langfocus/internal/logger"
	"github.com/example/langfocus/internal/userlock"
	"github.com/example/langfocus/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Delivery failures a Notifier reports
var (
	// ErrRecipientUnreachable means the user blocked the bot or no longer exists
	ErrRecipientUnreachable = errors.New("recipient unreachable")
	// ErrDeliveryTransient covers every other failure; the user stays eligible
	ErrDeliveryTransient = errors.New("delivery failed")
)

// Notifier delivers a message to a user
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// ReminderStore is the reminder side of the progress store
type ReminderStore interface {
	Get(ctx context.Context, userID int64) (*models.ReminderState, error)
	ListEligible(ctx context.Context, now time.Time, cooldown time.Duration) ([]models.ReminderState, error)
	Claim(ctx context.Context, userID int64, now time.Time, cooldown, lease time.Duration, force bool) (bool, error)
	Complete(ctx context.Context, userID int64, now time.Time) error
	Release(ctx context.Context, userID int64, now time.Time, disable bool) error
	SetEnabled(ctx context.Context, userID int64, enabled bool, now time.Time) error
}

// StatsSource aggregates reminder counters
type StatsSource interface {
	ReminderStats(ctx context.Context, now time.Time, cooldown time.Duration) (*models.ReminderStats, error)
}

// UserLister lists every known user
type UserLister interface {
	ListIDs(ctx context.Context) ([]int64, error)
}

// ReminderConfig tunes the sweep
type ReminderConfig struct {
	Cooldown    time.Duration
	Lease       time.Duration
	SendTimeout time.Duration
	LockTimeout time.Duration
	Concurrency int
}

// DefaultReminderConfig returns the weekly reminder policy
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Cooldown:    7 * 24 * time.Hour,
		Lease:       5 * time.Minute,
		SendTimeout: 10 * time.Second,
		LockTimeout: 2 * time.Second,
		Concurrency: 4,
	}
}

// Outcome of one delivery attempt
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeSkipped     Outcome = "skipped"     // not eligible, claimed elsewhere or busy
	OutcomeUnreachable Outcome = "unreachable" // reminders disabled
	OutcomeTransient   Outcome = "transient"   // retried on the next sweep
	OutcomeFailed      Outcome = "failed"      // storage error
)

// Report counts the outcomes of a sweep
type Report struct {
	Considered  int
	Sent        int
	Skipped     int
	Unreachable int
	Transient   int
	Failed      int
}

func (r *Report) add(o Outcome) {
	r.Considered++
	switch o {
	case OutcomeSent:
		r.Sent++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeUnreachable:
		r.Unreachable++
	case OutcomeTransient:
		r.Transient++
	default:
		r.Failed++
	}
}

// ReminderService sends re-engagement reminders. Each delivery holds the
// user's arena slot and a storage-level claim, so overlapping sweeps in one
// or several processes notify a user at most once per window.
type ReminderService struct {
	store    ReminderStore
	stats    StatsSource
	users    UserLister
	notifier Notifier
	locks    *userlock.Arena
	cfg      ReminderConfig
	log      *logger.Logger

	now func() time.Time
}

// NewReminderService wires a reminder service
func NewReminderService(store ReminderStore, stats StatsSource, users UserLister, notifier Notifier, locks *userlock.Arena, cfg ReminderConfig, log *logger.Logger) *ReminderService {
	def := DefaultReminderConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if locks == nil {
		locks = userlock.New()
	}
	if log == nil {
		log = logger.Nop()
	}

	return &ReminderService{
		store:    store,
		stats:    stats,
		users:    users,
		notifier: notifier,
		locks:    locks,
		cfg:      cfg,
		log:      log.With("service", "reminders"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep notifies every user who is eligible now
func (s *ReminderService) Sweep(ctx context.Context) (Report, error) {
	eligible, err := s.store.ListEligible(ctx, s.now(), s.cfg.Cooldown)
	if err != nil {
		return Report{}, fmt.Errorf("list eligible users: %w", err)
	}

	ids := make([]int64, len(eligible))
	for i, st := range eligible {
		ids[i] = st.UserID
	}
	report := s.fanOut(ctx, ids, false)
	s.log.Info("reminder sweep finished",
		"considered", report.Considered, "sent", report.Sent, "skipped", report.Skipped,
		"unreachable", report.Unreachable, "transient", report.Transient, "failed", report.Failed)
	return report, nil
}

// ForceReminder sends a reminder regardless of the cooldown. Users with
// reminders disabled are still skipped.
func (s *ReminderService) ForceReminder(ctx context.Context, userID int64) (Outcome, error) {
	outcome := s.deliver(ctx, userID, true)
	if outcome == OutcomeFailed {
		return outcome, fmt.Errorf("force reminder for user %d failed", userID)
	}
	return outcome, nil
}

// ForceReminderAll force-sends to every known user
func (s *ReminderService) ForceReminderAll(ctx context.Context) (Report, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list users: %w", err)
	}
	report := s.fanOut(ctx, ids, true)
	s.log.Info("forced reminders finished", "considered", report.Considered, "sent", report.Sent)
	return report, nil
}

// SetReminderEnabled opts the user in or out of reminders
func (s *ReminderService) SetReminderEnabled(ctx context.Context, userID int64, enabled bool) error {
	release, err := s.locks.Acquire(ctx, userID, s.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer release()
	return s.store.SetEnabled(ctx, userID, enabled, s.now())
}

// Stats returns aggregate reminder counters
func (s *ReminderService) Stats(ctx context.Context) (*models.ReminderStats, error) {
	return s.stats.ReminderStats(ctx, s.now(), s.cfg.Cooldown)
}

func (s *ReminderService) fanOut(ctx context.Context, ids []int64, force bool) Report {
	outcomes := make([]Outcome, len(ids))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = s.deliver(ctx, id, force)
			return nil
		})
	}
	_ = g.Wait()

	var report Report
	for _, o := range outcomes {
		report.add(o)
	}
	return report
}

// deliver runs claim, send, then complete or release for one user
func (s *ReminderService) deliver(ctx context.Context, userID int64, force bool) Outcome {
	log := s.log.With("user_id", userID)

	release, err := s.locks.Acquire(ctx, userID, s.cfg.LockTimeout)
	if err != nil {
		log.Info("reminder skipped", "outcome", OutcomeSkipped, "reason", err)
		return OutcomeSkipped
	}
	defer release()

	now := s.now()
	claimed, err := s.store.Claim(ctx, userID, now, s.cfg.Cooldown, s.cfg.Lease, force)
	if err != nil {
		log.Error("reminder claim failed", "outcome", OutcomeFailed, "error", err)
		return OutcomeFailed
	}
	if !claimed {
		log.Debug("reminder not claimed", "outcome", OutcomeSkipped)
		return OutcomeSkipped
	}

	// The claim is settled even when ctx is cancelled mid-send
	settleCtx := context.WithoutCancel(ctx)

	state, err := s.store.Get(ctx, userID)
	if err != nil {
		log.Warn("reminder state unavailable, using generic text", "error", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	err = s.notifier.Send(sendCtx, userID, reminderText(state, now))
	cancel()

	switch {
	case err == nil:
		if err := s.store.Complete(settleCtx, userID, now); err != nil {
			log.Error("reminder sent but not recorded", "outcome", OutcomeFailed, "error", err)
			return OutcomeFailed
		}
		log.Info("reminder sent", "outcome", OutcomeSent, "forced", force)
		return OutcomeSent
	case errors.Is(err, ErrRecipientUnreachable):
		if err := s.store.Release(settleCtx, userID, now, true); err != nil {
			log.Error("disable reminders failed", "error", err)
			return OutcomeFailed
		}
		log.Warn("recipient unreachable, reminders disabled", "outcome", OutcomeUnreachable, "error", err)
		return OutcomeUnreachable
	default:
		if err := s.store.Release(settleCtx, userID, now, false); err != nil {
			log.Error("release reminder claim failed", "error", err)
		}
		log.Warn("reminder delivery failed", "outcome", OutcomeTransient, "error", err)
		return OutcomeTransient
	}
}
