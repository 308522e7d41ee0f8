package session

import (
	"fmt"
	"time"

	"github.com/example/langfocus/internal/learning"
	"github.com/example/langfocus/pkg/models"
	"github.com/google/uuid"
)

// Session is one user's live practice round. It is only touched while the
// user's arena slot is held.
type Session struct {
	ID            string
	UserID        int64
	State         State
	TechniqueID   int
	StatementID   int
	Attempts      int
	Correct       int
	ScoreSum      float64
	StartedAt     time.Time
	AwaitingSince time.Time

	covered        map[int]bool
	usedStatements map[int]map[int]bool
	newlyMastered  []int
	progress       []models.ProgressRecord
}

func newSession(userID int64, progress []models.ProgressRecord, now time.Time) *Session {
	return &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		State:          StateIdle,
		StartedAt:      now,
		covered:        make(map[int]bool),
		usedStatements: make(map[int]map[int]bool),
		progress:       progress,
	}
}

// transition moves the session to next or fails with ErrIllegalTransition
func (s *Session) transition(next State) error {
	if !s.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.State, next)
	}
	s.State = next
	return nil
}

// present records the chosen exercise and waits for an answer
func (s *Session) present(pick learning.Pick, now time.Time) error {
	if err := s.transition(StateAwaitingAnswer); err != nil {
		return err
	}
	s.TechniqueID = pick.Technique.ID
	s.StatementID = pick.Statement.ID
	s.AwaitingSince = now
	return nil
}

// idleExpired reports whether the session waited for an answer longer than timeout
func (s *Session) idleExpired(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && s.State == StateAwaitingAnswer && now.Sub(s.AwaitingSince) >= timeout
}

// record folds a graded attempt into the session counters and progress snapshot
func (s *Session) record(rec models.ProgressRecord, statementID int, score float64, outcome learning.Outcome) {
	s.Attempts++
	s.ScoreSum += score
	if outcome.Correct {
		s.Correct++
	}
	if outcome.JustMastered {
		s.newlyMastered = append(s.newlyMastered, rec.TechniqueID)
	}
	s.covered[rec.TechniqueID] = true
	if s.usedStatements[rec.TechniqueID] == nil {
		s.usedStatements[rec.TechniqueID] = make(map[int]bool)
	}
	s.usedStatements[rec.TechniqueID][statementID] = true

	for i := range s.progress {
		if s.progress[i].TechniqueID == rec.TechniqueID {
			s.progress[i] = rec
			return
		}
	}
	s.progress = append(s.progress, rec)
}

func (s *Session) averageScore() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return s.ScoreSum / float64(s.Attempts)
}
