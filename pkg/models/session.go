package models

import "time"

// Session statuses persisted in history
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusExpired   = "expired"
)

// SessionRecord is the durable history row of one practice round
type SessionRecord struct {
	ID           string     `json:"id" db:"id"`
	UserID       int64      `json:"user_id" db:"user_id"`
	Status       string     `json:"status" db:"status"`
	Attempts     int        `json:"attempts" db:"attempts"`
	CorrectCount int        `json:"correct_count" db:"correct_count"`
	AverageScore float64    `json:"average_score" db:"average_score"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" db:"finished_at"`
}
