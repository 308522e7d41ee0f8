package database

import (
	"context"
	"fmt"
	"time"

	"github.com/example/langfocus/pkg/models"
)

const reminderColumns = `user_id, enabled, last_practice_at, last_reminder_at, reminder_count,
	claimed_until, created_at, updated_at`

// eligibleClause selects rows whose practice and reminder cooldowns have both
// elapsed. Parameters: enabled flag, threshold, threshold.
const eligibleClause = `enabled = ?
	AND COALESCE(last_practice_at, created_at) <= ?
	AND (last_reminder_at IS NULL OR last_reminder_at <= ?)`

// ReminderRepository handles per-user reminder tracking
type ReminderRepository struct {
	db *DB
}

// NewReminderRepository creates a new repository instance
func NewReminderRepository(db *DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Get returns the reminder state of a user
func (r *ReminderRepository) Get(ctx context.Context, userID int64) (*models.ReminderState, error) {
	var state models.ReminderState
	err := r.db.retry(ctx, func() error {
		return r.db.GetContext(ctx, &state, r.db.Rebind(`
			SELECT `+reminderColumns+` FROM reminder_state WHERE user_id = ?`), userID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder state for user %d: %w", userID, notFound(err))
	}
	return &state, nil
}

// ListEligible returns unclaimed users due for a reminder at now
func (r *ReminderRepository) ListEligible(ctx context.Context, now time.Time, cooldown time.Duration) ([]models.ReminderState, error) {
	now = now.UTC()
	threshold := now.Add(-cooldown)

	var states []models.ReminderState
	err := r.db.retry(ctx, func() error {
		states = states[:0]
		return r.db.SelectContext(ctx, &states, r.db.Rebind(`
			SELECT `+reminderColumns+` FROM reminder_state
			WHERE `+eligibleClause+`
			AND (claimed_until IS NULL OR claimed_until <= ?)
			ORDER BY user_id`), true, threshold, threshold, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible users: %w", err)
	}
	return states, nil
}

// Claim takes a short lease on the user's reminder slot. It succeeds only when
// no other sweep holds a live lease, reminders are enabled and, unless force is
// set, the user is eligible at now. A successful claim must be followed by
// Complete or Release.
func (r *ReminderRepository) Claim(ctx context.Context, userID int64, now time.Time, cooldown, lease time.Duration, force bool) (bool, error) {
	now = now.UTC()
	threshold := now.Add(-cooldown)

	query := `UPDATE reminder_state SET claimed_until = ?, updated_at = ?
		WHERE user_id = ? AND (claimed_until IS NULL OR claimed_until <= ?) AND `
	args := []interface{}{now.Add(lease), now, userID, now}
	if force {
		query += `enabled = ?`
		args = append(args, true)
	} else {
		query += eligibleClause
		args = append(args, true, threshold, threshold)
	}

	var claimed bool
	err := r.db.retry(ctx, func() error {
		res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		claimed = n == 1
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder for user %d: %w", userID, err)
	}
	return claimed, nil
}

// Complete records a delivered reminder and releases the lease.
// last_reminder_at never moves backwards.
func (r *ReminderRepository) Complete(ctx context.Context, userID int64, now time.Time) error {
	now = now.UTC()
	err := r.db.retry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, r.db.Rebind(`
			UPDATE reminder_state SET
				last_reminder_at = CASE WHEN last_reminder_at IS NULL OR last_reminder_at < ? THEN ? ELSE last_reminder_at END,
				reminder_count = reminder_count + 1,
				claimed_until = NULL,
				updated_at = ?
			WHERE user_id = ?`), now, now, now, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to complete reminder for user %d: %w", userID, err)
	}
	return nil
}

// Release drops the lease without recording a reminder. With disable set the
// user is also opted out until re-enabled.
func (r *ReminderRepository) Release(ctx context.Context, userID int64, now time.Time, disable bool) error {
	query := `UPDATE reminder_state SET claimed_until = NULL, updated_at = ? WHERE user_id = ?`
	args := []interface{}{now.UTC(), userID}
	if disable {
		query = `UPDATE reminder_state SET claimed_until = NULL, enabled = ?, updated_at = ? WHERE user_id = ?`
		args = []interface{}{false, now.UTC(), userID}
	}

	err := r.db.retry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to release reminder for user %d: %w", userID, err)
	}
	return nil
}

// SetEnabled toggles reminders for the user
func (r *ReminderRepository) SetEnabled(ctx context.Context, userID int64, enabled bool, now time.Time) error {
	var n int64
	err := r.db.retry(ctx, func() error {
		res, err := r.db.ExecContext(ctx, r.db.Rebind(`
			UPDATE reminder_state SET enabled = ?, updated_at = ? WHERE user_id = ?`),
			enabled, now.UTC(), userID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update reminders for user %d: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update reminders for user %d: %w", userID, ErrNotFound)
	}
	return nil
}
