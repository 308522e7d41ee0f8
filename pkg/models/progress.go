package models

import "time"

// MasteryThreshold is the mastery level at which a technique counts as mastered
const MasteryThreshold = 80.0

// ProgressRecord tracks a user's proficiency with a single technique
type ProgressRecord struct {
	UserID          int64      `json:"user_id" db:"user_id"`
	TechniqueID     int        `json:"technique_id" db:"technique_id"`
	Mastery         float64    `json:"mastery" db:"mastery"`           // 0-100 weighted moving average
	Attempts        int        `json:"attempts" db:"attempts"`         // Successfully graded attempts
	CorrectCount    int        `json:"correct_count" db:"correct_count"`
	Streak          int        `json:"streak" db:"streak"`             // Consecutive correct attempts
	LastPracticedAt *time.Time `json:"last_practiced_at" db:"last_practiced_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// IsMastered reports whether mastery reached MasteryThreshold
func (p ProgressRecord) IsMastered() bool {
	return p.Mastery >= MasteryThreshold
}

// ProgressOverview summarizes a user's progress across the whole catalog
type ProgressOverview struct {
	TechniquesTotal int     `json:"techniques_total"`
	Practiced       int     `json:"practiced"`
	Mastered        int     `json:"mastered"`
	AverageMastery  float64 `json:"average_mastery"`
	BestStreak      int     `json:"best_streak"`
	TotalAttempts   int     `json:"total_attempts"`
}
