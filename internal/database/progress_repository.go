package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/langfocus/pkg/models"
	"github.com/jmoiron/sqlx"
)

const progressColumns = `user_id, technique_id, mastery, attempts, correct_count, streak,
	last_practiced_at, created_at, updated_at`

// ProgressRepository handles per-technique mastery records
type ProgressRepository struct {
	db *DB
}

// NewProgressRepository creates a new repository instance
func NewProgressRepository(db *DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// ListByUser returns every progress record of the user ordered by technique
func (r *ProgressRepository) ListByUser(ctx context.Context, userID int64) ([]models.ProgressRecord, error) {
	var records []models.ProgressRecord
	err := r.db.retry(ctx, func() error {
		records = records[:0]
		return r.db.SelectContext(ctx, &records, r.db.Rebind(`
			SELECT `+progressColumns+` FROM progress
			WHERE user_id = ? ORDER BY technique_id`), userID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list progress for user %d: %w", userID, err)
	}
	return records, nil
}

// ApplyAttempt records a graded attempt atomically. Within one transaction it
// loads (or starts) the technique record, lets update mutate it, stores the
// result, inserts the attempt row and marks the user as having practiced.
// update may be called more than once if the transaction is retried.
func (r *ProgressRepository) ApplyAttempt(ctx context.Context, attempt *models.Attempt, update func(rec *models.ProgressRecord) error) (*models.ProgressRecord, error) {
	now := attempt.CreatedAt.UTC()
	attempt.CreatedAt = now
	var result models.ProgressRecord

	err := r.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := createUserTx(ctx, tx, &models.User{ID: attempt.UserID, CreatedAt: now}); err != nil {
			return err
		}

		query := `SELECT ` + progressColumns + ` FROM progress WHERE user_id = ? AND technique_id = ?`
		if r.db.IsPostgres() {
			query += ` FOR UPDATE`
		}
		rec := models.ProgressRecord{}
		err := tx.GetContext(ctx, &rec, tx.Rebind(query), attempt.UserID, attempt.TechniqueID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			rec = models.ProgressRecord{
				UserID:      attempt.UserID,
				TechniqueID: attempt.TechniqueID,
				CreatedAt:   now,
			}
		case err != nil:
			return err
		}

		attempt.MasteryBefore = rec.Mastery
		if err := update(&rec); err != nil {
			return err
		}
		rec.LastPracticedAt = &now
		rec.UpdatedAt = now
		attempt.MasteryAfter = rec.Mastery

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO progress (`+progressColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, technique_id) DO UPDATE SET
				mastery = excluded.mastery,
				attempts = excluded.attempts,
				correct_count = excluded.correct_count,
				streak = excluded.streak,
				last_practiced_at = excluded.last_practiced_at,
				updated_at = excluded.updated_at`),
			rec.UserID, rec.TechniqueID, rec.Mastery, rec.Attempts, rec.CorrectCount, rec.Streak,
			rec.LastPracticedAt, rec.CreatedAt.UTC(), rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to store progress: %w", err)
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO attempts (user_id, session_id, technique_id, statement_id, answer, score,
				is_correct, feedback, mastery_before, mastery_after, created_at)
			VALUES (:user_id, :session_id, :technique_id, :statement_id, :answer, :score,
				:is_correct, :feedback, :mastery_before, :mastery_after, :created_at)`, attempt)
		if err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE reminder_state SET last_practice_at = ?, updated_at = ?
			WHERE user_id = ? AND (last_practice_at IS NULL OR last_practice_at < ?)`),
			now, now, attempt.UserID, now)
		if err != nil {
			return fmt.Errorf("failed to track practice: %w", err)
		}

		result = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply attempt: %w", err)
	}
	return &result, nil
}
