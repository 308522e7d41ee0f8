package learning

import (
	"math"

	"github.com/example/langfocus/pkg/models"
)

// Tracker updates mastery with a weighted moving average.
// Early attempts move the score quickly, later ones smooth it.
type Tracker struct {
	// Lower bound for the update weight
	AlphaMin float64
	// Minimum score counted as a correct answer
	CorrectThreshold float64
	// Mastery at which a technique counts as mastered
	MasteredThreshold float64
}

// NewTracker returns a Tracker with default settings
func NewTracker() *Tracker {
	return &Tracker{
		AlphaMin:          0.3,
		CorrectThreshold:  70,
		MasteredThreshold: models.MasteryThreshold,
	}
}

// Outcome describes the effect of one graded attempt
type Outcome struct {
	Correct      bool
	OldMastery   float64
	NewMastery   float64
	JustMastered bool
}

// Alpha returns the update weight for the n-th attempt (1-based)
func (t *Tracker) Alpha(n int) float64 {
	if n < 1 {
		n = 1
	}
	return math.Max(t.AlphaMin, 1/float64(n))
}

// IsCorrect reports whether score passes the correctness threshold
func (t *Tracker) IsCorrect(score float64) bool {
	return score >= t.CorrectThreshold
}

// Apply folds a graded score into the record
func (t *Tracker) Apply(rec *models.ProgressRecord, score float64) Outcome {
	score = Clamp(score)
	out := Outcome{OldMastery: rec.Mastery, Correct: t.IsCorrect(score)}

	rec.Attempts++
	alpha := t.Alpha(rec.Attempts)
	rec.Mastery = Clamp(rec.Mastery*(1-alpha) + score*alpha)

	if out.Correct {
		rec.CorrectCount++
		rec.Streak++
	} else {
		rec.Streak = 0
	}

	out.NewMastery = rec.Mastery
	out.JustMastered = out.OldMastery < t.MasteredThreshold && out.NewMastery >= t.MasteredThreshold
	return out
}

// Clamp bounds a score to [0, 100]. NaN maps to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
