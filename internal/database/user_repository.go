package database

import (
	"context"
	"fmt"
	"time"

	"github.com/example/langfocus/pkg/models"
	"github.com/jmoiron/sqlx"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create registers the user together with its reminder tracking row.
// Both rows are written in one transaction; an existing user is left as is.
// It reports whether a new user was created.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (bool, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	var created bool
	err := r.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		created, err = createUserTx(ctx, tx, user)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to create user %d: %w", user.ID, err)
	}
	return created, nil
}

func createUserTx(ctx context.Context, tx *sqlx.Tx, user *models.User) (bool, error) {
	createdAt := user.CreatedAt.UTC()
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO users (id, username, first_name, last_name, language_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		user.ID, user.Username, user.FirstName, user.LastName, user.LanguageCode, createdAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	// The reminder row is always ensured, so users created before reminder
	// tracking existed are repaired on their next registration call.
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO reminder_state (user_id, enabled, reminder_count, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`),
		user.ID, true, createdAt, createdAt)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetByID returns a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.retry(ctx, func() error {
		return r.db.GetContext(ctx, &user, r.db.Rebind(`
			SELECT id, username, first_name, last_name, language_code, created_at
			FROM users WHERE id = ?`), id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, notFound(err))
	}
	return &user, nil
}

// ListIDs returns the ids of all users in ascending order
func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.retry(ctx, func() error {
		ids = ids[:0]
		return r.db.SelectContext(ctx, &ids, `SELECT id FROM users ORDER BY id`)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return ids, nil
}

// BackfillReminderStates creates reminder rows for users that have none and
// returns how many rows were created
func (r *UserRepository) BackfillReminderStates(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	var created int64
	err := r.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO reminder_state (user_id, enabled, last_practice_at, reminder_count, created_at, updated_at)
			SELECT u.id, ?, (SELECT MAX(p.last_practiced_at) FROM progress p WHERE p.user_id = u.id), 0, u.created_at, ?
			FROM users u
			WHERE NOT EXISTS (SELECT 1 FROM reminder_state rs WHERE rs.user_id = u.id)`),
			true, now)
		if err != nil {
			return err
		}
		created, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to backfill reminder states: %w", err)
	}
	return created, nil
}
