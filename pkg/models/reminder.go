package models

import "time"

// ReminderState holds per-user re-engagement tracking
type ReminderState struct {
	UserID         int64      `json:"user_id" db:"user_id"`
	Enabled        bool       `json:"enabled" db:"enabled"`
	LastPracticeAt *time.Time `json:"last_practice_at" db:"last_practice_at"`
	LastReminderAt *time.Time `json:"last_reminder_at" db:"last_reminder_at"`
	ReminderCount  int        `json:"reminder_count" db:"reminder_count"`
	ClaimedUntil   *time.Time `json:"claimed_until" db:"claimed_until"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IdleSince returns the moment the user was last active. Users who never
// practiced are measured from account creation.
func (r ReminderState) IdleSince() time.Time {
	if r.LastPracticeAt != nil {
		return *r.LastPracticeAt
	}
	return r.CreatedAt
}

// Eligible reports whether a reminder may be sent at now. Both the practice
// and the reminder cooldown must have elapsed.
func (r ReminderState) Eligible(now time.Time, cooldown time.Duration) bool {
	if !r.Enabled {
		return false
	}
	if now.Sub(r.IdleSince()) < cooldown {
		return false
	}
	return r.LastReminderAt == nil || now.Sub(*r.LastReminderAt) >= cooldown
}

// ReminderStats is an aggregate view of reminder tracking
type ReminderStats struct {
	TotalUsers   int `json:"total_users" db:"total_users"`
	TrackedUsers int `json:"tracked_users" db:"tracked_users"`
	EligibleNow  int `json:"eligible_now" db:"eligible_now"`
	SentToday    int `json:"sent_today" db:"sent_today"`
}
