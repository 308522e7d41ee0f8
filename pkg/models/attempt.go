package models

import "time"

// Attempt is one graded answer
type Attempt struct {
	ID            int64     `json:"id" db:"id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	SessionID     string    `json:"session_id" db:"session_id"`
	TechniqueID   int       `json:"technique_id" db:"technique_id"`
	StatementID   int       `json:"statement_id" db:"statement_id"`
	Answer        string    `json:"answer" db:"answer"`
	Score         float64   `json:"score" db:"score"`
	IsCorrect     bool      `json:"is_correct" db:"is_correct"`
	Feedback      string    `json:"feedback" db:"feedback"`
	MasteryBefore float64   `json:"mastery_before" db:"mastery_before"`
	MasteryAfter  float64   `json:"mastery_after" db:"mastery_after"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
