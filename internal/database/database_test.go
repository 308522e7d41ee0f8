package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/langfocus/pkg/models"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cooldown = 7 * 24 * time.Hour
	lease    = 5 * time.Minute
	now      = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "test.db")
	db, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func daysAgo(d int) time.Time {
	return now.AddDate(0, 0, -d)
}

func createUser(t *testing.T, db *DB, id int64, createdAt time.Time) {
	t.Helper()
	_, err := NewUserRepository(db).Create(context.Background(), &models.User{ID: id, Username: fmt.Sprintf("user%d", id), CreatedAt: createdAt})
	require.NoError(t, err)
}

func setReminderTimes(t *testing.T, db *DB, id int64, practice, reminder *time.Time) {
	t.Helper()
	_, err := db.Exec(`UPDATE reminder_state SET last_practice_at = ?, last_reminder_at = ? WHERE user_id = ?`, practice, reminder, id)
	require.NoError(t, err)
}

func ptr(t time.Time) *time.Time { return &t }

func getProgress(t *testing.T, db *DB, userID int64, techniqueID int) (*models.ProgressRecord, error) {
	t.Helper()
	var rec models.ProgressRecord
	err := db.Get(&rec, db.Rebind(`SELECT `+progressColumns+` FROM progress WHERE user_id = ? AND technique_id = ?`), userID, techniqueID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func countAttempts(t *testing.T, db *DB, userID int64) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, db.Rebind(`SELECT COUNT(*) FROM attempts WHERE user_id = ?`), userID))
	return n
}

func TestCreateUserCreatesReminderState(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created, err := NewUserRepository(db).Create(ctx, &models.User{ID: 42, FirstName: "Ann"})
	require.NoError(t, err)
	assert.True(t, created)

	state, err := NewReminderRepository(db).Get(ctx, 42)
	require.NoError(t, err, "reminder state must exist before any practice")
	assert.True(t, state.Enabled)
	assert.Nil(t, state.LastPracticeAt)
	assert.Nil(t, state.LastReminderAt)
	assert.Zero(t, state.ReminderCount)

	created, err = NewUserRepository(db).Create(ctx, &models.User{ID: 42})
	require.NoError(t, err)
	assert.False(t, created)

	user, err := NewUserRepository(db).GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.FirstName)

	_, err = NewUserRepository(db).GetByID(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackfillReminderStates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	createUser(t, db, 1, daysAgo(30))
	_, err := db.Exec(`INSERT INTO users (id, created_at) VALUES (?, ?)`, 2, daysAgo(20))
	require.NoError(t, err)

	n, err := NewUserRepository(db).BackfillReminderStates(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = NewReminderRepository(db).Get(ctx, 2)
	assert.NoError(t, err)

	n, err = NewUserRepository(db).BackfillReminderStates(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplyAttempt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewProgressRepository(db)
	createUser(t, db, 1, daysAgo(30))

	attempt := &models.Attempt{UserID: 1, SessionID: "s1", TechniqueID: 3, StatementID: 7, Answer: "a", Score: 90, IsCorrect: true, CreatedAt: now}
	rec, err := repo.ApplyAttempt(ctx, attempt, func(rec *models.ProgressRecord) error {
		rec.Attempts++
		rec.CorrectCount++
		rec.Mastery = 90
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	assert.InDelta(t, 0, attempt.MasteryBefore, 1e-9)
	assert.InDelta(t, 90, attempt.MasteryAfter, 1e-9)

	stored, err := getProgress(t, db, 1, 3)
	require.NoError(t, err)
	assert.InDelta(t, 90, stored.Mastery, 1e-9)
	require.NotNil(t, stored.LastPracticedAt)
	assert.True(t, now.Equal(*stored.LastPracticedAt))

	state, err := NewReminderRepository(db).Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, state.LastPracticeAt)
	assert.True(t, now.Equal(*state.LastPracticeAt))

	assert.Equal(t, 1, countAttempts(t, db, 1))
}

func TestApplyAttemptIsAllOrNothing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewProgressRepository(db)
	createUser(t, db, 1, daysAgo(30))

	boom := errors.New("boom")
	_, err := repo.ApplyAttempt(ctx, &models.Attempt{UserID: 1, TechniqueID: 3, CreatedAt: now}, func(rec *models.ProgressRecord) error {
		rec.Attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = getProgress(t, db, 1, 3)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Zero(t, countAttempts(t, db, 1))

	state, err := NewReminderRepository(db).Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, state.LastPracticeAt)
}

func TestApplyAttemptRegistersUnknownUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := NewProgressRepository(db).ApplyAttempt(ctx, &models.Attempt{UserID: 9, TechniqueID: 1, CreatedAt: now}, func(rec *models.ProgressRecord) error {
		rec.Attempts++
		return nil
	})
	require.NoError(t, err)

	_, err = NewReminderRepository(db).Get(ctx, 9)
	assert.NoError(t, err)
}

func TestListEligibleIsConjunctive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewReminderRepository(db)

	createUser(t, db, 1, daysAgo(60)) // idle 10 days, reminded 2 days ago
	setReminderTimes(t, db, 1, ptr(daysAgo(10)), ptr(daysAgo(2)))
	createUser(t, db, 2, daysAgo(60)) // idle 10 days, reminded 8 days ago
	setReminderTimes(t, db, 2, ptr(daysAgo(10)), ptr(daysAgo(8)))
	createUser(t, db, 3, daysAgo(60)) // practiced yesterday, never reminded
	setReminderTimes(t, db, 3, ptr(daysAgo(1)), nil)
	createUser(t, db, 4, daysAgo(60)) // never practiced, never reminded
	createUser(t, db, 5, daysAgo(1))  // fresh account
	createUser(t, db, 6, daysAgo(60)) // opted out
	require.NoError(t, repo.SetEnabled(ctx, 6, false, now))

	eligible, err := repo.ListEligible(ctx, now, cooldown)
	require.NoError(t, err)

	var ids []int64
	for _, s := range eligible {
		ids = append(ids, s.UserID)
		assert.True(t, s.Eligible(now, cooldown), "sql and model predicates agree for user %d", s.UserID)
	}
	assert.Equal(t, []int64{2, 4}, ids)
}

func TestClaimCompleteRelease(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewReminderRepository(db)
	createUser(t, db, 1, daysAgo(60))

	ok, err := repo.Claim(ctx, 1, now, cooldown, lease, false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Claim(ctx, 1, now, cooldown, lease, false)
	require.NoError(t, err)
	assert.False(t, ok, "a live lease blocks a second claim")

	eligible, err := repo.ListEligible(ctx, now, cooldown)
	require.NoError(t, err)
	assert.Empty(t, eligible, "claimed users are not listed")

	require.NoError(t, repo.Complete(ctx, 1, now))
	state, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ReminderCount)
	assert.Nil(t, state.ClaimedUntil)
	require.NotNil(t, state.LastReminderAt)
	assert.True(t, now.Equal(*state.LastReminderAt))

	ok, err = repo.Claim(ctx, 1, now.Add(time.Hour), cooldown, lease, false)
	require.NoError(t, err)
	assert.False(t, ok, "cooldown not elapsed")

	ok, err = repo.Claim(ctx, 1, now.Add(time.Hour), cooldown, lease, true)
	require.NoError(t, err)
	assert.True(t, ok, "force bypasses the cooldown")

	require.NoError(t, repo.Release(ctx, 1, now.Add(time.Hour), true))
	state, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, state.Enabled)
	assert.Nil(t, state.ClaimedUntil)
	assert.True(t, now.Equal(*state.LastReminderAt), "release keeps the last reminder time")

	ok, err = repo.Claim(ctx, 1, now.AddDate(0, 1, 0), cooldown, lease, true)
	require.NoError(t, err)
	assert.False(t, ok, "disabled users are never claimed")
}

func TestClaimExpiredLease(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewReminderRepository(db)
	createUser(t, db, 1, daysAgo(60))

	ok, err := repo.Claim(ctx, 1, now, cooldown, lease, false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Claim(ctx, 1, now.Add(2*lease), cooldown, lease, false)
	require.NoError(t, err)
	assert.True(t, ok, "an abandoned lease expires")
}

func TestCompleteNeverMovesBackwards(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewReminderRepository(db)
	createUser(t, db, 1, daysAgo(60))

	require.NoError(t, repo.Complete(ctx, 1, now))
	require.NoError(t, repo.Complete(ctx, 1, now.Add(-time.Hour)))

	state, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, now.Equal(*state.LastReminderAt))
}

func TestSetEnabledUnknownUser(t *testing.T) {
	db := openTestDB(t)
	err := NewReminderRepository(db).SetEnabled(context.Background(), 404, true, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReminderStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	createUser(t, db, 1, daysAgo(60))
	createUser(t, db, 2, daysAgo(60))
	setReminderTimes(t, db, 2, ptr(daysAgo(20)), ptr(now.Add(-2*time.Hour)))
	createUser(t, db, 3, daysAgo(1))
	_, err := db.Exec(`INSERT INTO users (id, created_at) VALUES (?, ?)`, 4, daysAgo(20))
	require.NoError(t, err)

	stats, err := NewStatisticsRepository(db).ReminderStats(ctx, now, cooldown)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStats{TotalUsers: 4, TrackedUsers: 3, EligibleNow: 1, SentToday: 1}, *stats)
}

func TestSessionHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)
	createUser(t, db, 1, daysAgo(1))

	rec := &models.SessionRecord{ID: "abc", UserID: 1, Status: models.SessionStatusActive, StartedAt: now}
	require.NoError(t, repo.Create(ctx, rec))

	rec.Status = models.SessionStatusCompleted
	rec.Attempts = 3
	rec.AverageScore = 71.5
	rec.FinishedAt = ptr(now.Add(10 * time.Minute))
	require.NoError(t, repo.Finish(ctx, rec))

	list, err := repo.ListByUser(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.SessionStatusCompleted, list[0].Status)
	assert.Equal(t, 3, list[0].Attempts)
	assert.InDelta(t, 71.5, list[0].AverageScore, 1e-9)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", sqlite3.Error{Code: sqlite3.ErrLocked})))
	assert.False(t, IsTransient(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.True(t, IsTransient(&pq.Error{Code: "40001"}))
	assert.True(t, IsTransient(&pq.Error{Code: "08006"}))
	assert.False(t, IsTransient(&pq.Error{Code: "23505"}))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.False(t, IsTransient(nil))
}

func TestRetryGivesUpWithStorageFailure(t *testing.T) {
	db := openTestDB(t)
	calls := 0
	err := db.retry(context.Background(), func() error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.Equal(t, db.maxRetries+1, calls)

	calls = 0
	err = db.retry(context.Background(), func() error {
		calls++
		return errors.New("constraint")
	})
	assert.NotErrorIs(t, err, ErrStorageFailure)
	assert.Equal(t, 1, calls, "permanent errors are not retried")
}

func TestCreateSessionRegistersUnknownUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	rec := &models.SessionRecord{ID: "fresh", UserID: 77, Status: models.SessionStatusActive, StartedAt: now}
	require.NoError(t, repo.Create(ctx, rec))

	user, err := NewUserRepository(db).GetByID(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, now, user.CreatedAt.UTC())

	state, err := NewReminderRepository(db).Get(ctx, 77)
	require.NoError(t, err)
	assert.True(t, state.Enabled)

	list, err := repo.ListByUser(ctx, 77, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
