package database

import (
	"context"
	"fmt"
	"time"

	"github.com/example/langfocus/pkg/models"
)

// StatisticsRepository computes aggregate views for administrators
type StatisticsRepository struct {
	db *DB
}

// NewStatisticsRepository creates a new repository instance
func NewStatisticsRepository(db *DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// ReminderStats counts users, tracked users, users eligible at now and users
// reminded since the start of the current UTC day
func (r *StatisticsRepository) ReminderStats(ctx context.Context, now time.Time, cooldown time.Duration) (*models.ReminderStats, error) {
	now = now.UTC()
	threshold := now.Add(-cooldown)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var stats models.ReminderStats
	err := r.db.retry(ctx, func() error {
		return r.db.GetContext(ctx, &stats, r.db.Rebind(`
			SELECT
				(SELECT COUNT(*) FROM users) AS total_users,
				(SELECT COUNT(*) FROM reminder_state) AS tracked_users,
				(SELECT COUNT(*) FROM reminder_state WHERE `+eligibleClause+`) AS eligible_now,
				(SELECT COUNT(*) FROM reminder_state WHERE last_reminder_at >= ?) AS sent_today`),
			true, threshold, threshold, dayStart)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder stats: %w", err)
	}
	return &stats, nil
}
