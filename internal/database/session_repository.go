package database

import (
	"context"
	"fmt"

	"github.com/example/langfocus/pkg/models"
	"github.com/jmoiron/sqlx"
)

// SessionRepository keeps the history of practice rounds
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new repository instance
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row, registering the user first if needed
func (r *SessionRepository) Create(ctx context.Context, s *models.SessionRecord) error {
	s.StartedAt = s.StartedAt.UTC()
	err := r.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := createUserTx(ctx, tx, &models.User{ID: s.UserID, CreatedAt: s.StartedAt}); err != nil {
			return err
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO sessions (id, user_id, status, attempts, correct_count, average_score, started_at, finished_at)
			VALUES (:id, :user_id, :status, :attempts, :correct_count, :average_score, :started_at, :finished_at)`, s)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Finish stores the final status and counters of a session
func (r *SessionRepository) Finish(ctx context.Context, s *models.SessionRecord) error {
	if s.FinishedAt != nil {
		t := s.FinishedAt.UTC()
		s.FinishedAt = &t
	}
	err := r.db.retry(ctx, func() error {
		_, err := r.db.NamedExecContext(ctx, `
			UPDATE sessions SET status = :status, attempts = :attempts, correct_count = :correct_count,
				average_score = :average_score, finished_at = :finished_at
			WHERE id = :id`, s)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", s.ID, err)
	}
	return nil
}

// ListByUser returns the most recent sessions of a user
func (r *SessionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.SessionRecord, error) {
	var sessions []models.SessionRecord
	err := r.db.retry(ctx, func() error {
		sessions = sessions[:0]
		return r.db.SelectContext(ctx, &sessions, r.db.Rebind(`
			SELECT id, user_id, status, attempts, correct_count, average_score, started_at, finished_at
			FROM sessions WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`), userID, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}
