package learning

import (
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/langfocus/internal/catalog"
	"github.com/example/langfocus/pkg/models"
)

// ErrEmptyCatalog is returned when there is nothing to select from
var ErrEmptyCatalog = errors.New("no techniques or statements to select from")

// Selector picks the next exercise for a user
type Selector struct {
	// Time since last practice after which the recency boost is at its maximum
	RecencyHorizon time.Duration
	// Source for statement picks
	Rand *rand.Rand

	mu sync.Mutex
}

// NewSelector creates a selector with default settings
func NewSelector(seed int64) *Selector {
	return &Selector{
		RecencyHorizon: 7 * 24 * time.Hour,
		Rand:           rand.New(rand.NewSource(seed)),
	}
}

// Pick is the chosen exercise
type Pick struct {
	Technique models.Technique
	Statement models.Statement
}

// Weight returns the selection weight of a technique.
// A technique without a record has mastery 0 and the maximum recency boost.
func (s *Selector) Weight(rec *models.ProgressRecord, now time.Time) float64 {
	if rec == nil {
		return 100 * 2
	}
	return (100 - Clamp(rec.Mastery)) * s.recencyFactor(rec.LastPracticedAt, now)
}

// recencyFactor grows from 1 to 2 as the time since last practice approaches RecencyHorizon
func (s *Selector) recencyFactor(last *time.Time, now time.Time) float64 {
	if last == nil || s.RecencyHorizon <= 0 {
		return 2
	}
	elapsed := now.Sub(*last)
	if elapsed <= 0 {
		return 1
	}
	ratio := float64(elapsed) / float64(s.RecencyHorizon)
	if ratio > 1 {
		ratio = 1
	}
	return 1 + ratio
}

// SelectTechnique chooses the technique with the highest weight among those
// not yet covered, falling back to all techniques once everything is covered.
// A never attempted technique always ranks above a practiced one. Equal
// weights resolve to the lowest id.
func (s *Selector) SelectTechnique(techniques []models.Technique, progress []models.ProgressRecord, covered map[int]bool, now time.Time) (models.Technique, error) {
	if len(techniques) == 0 {
		return models.Technique{}, ErrEmptyCatalog
	}

	candidates := make([]models.Technique, 0, len(techniques))
	for _, t := range techniques {
		if !covered[t.ID] {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, techniques...)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	byTechnique := make(map[int]*models.ProgressRecord, len(progress))
	for i := range progress {
		byTechnique[progress[i].TechniqueID] = &progress[i]
	}

	best := candidates[0]
	bestNew := byTechnique[best.ID] == nil
	bestWeight := s.Weight(byTechnique[best.ID], now)
	for _, t := range candidates[1:] {
		rec := byTechnique[t.ID]
		isNew := rec == nil
		if isNew != bestNew {
			if isNew {
				best, bestNew, bestWeight = t, true, s.Weight(rec, now)
			}
			continue
		}
		if w := s.Weight(rec, now); w > bestWeight {
			best, bestWeight = t, w
		}
	}
	return best, nil
}

// Difficulty maps the average mastery of practiced techniques to the
// statement level a user should see next
func Difficulty(progress []models.ProgressRecord) string {
	if len(progress) == 0 {
		return models.DifficultyEasy
	}
	var sum float64
	for _, p := range progress {
		sum += Clamp(p.Mastery)
	}
	switch avg := sum / float64(len(progress)); {
	case avg >= 70:
		return models.DifficultyHard
	case avg >= 40:
		return models.DifficultyMedium
	default:
		return models.DifficultyEasy
	}
}

// SelectStatement picks a statement uniformly at random from those not yet
// used, reusing the full set when every statement has been used. Statements
// at the given level are preferred when any are left; an empty level
// disables the preference.
func (s *Selector) SelectStatement(statements []models.Statement, used map[int]bool, level string) (models.Statement, error) {
	if len(statements) == 0 {
		return models.Statement{}, ErrEmptyCatalog
	}

	var fresh []models.Statement
	for _, st := range statements {
		if !used[st.ID] {
			fresh = append(fresh, st)
		}
	}
	if len(fresh) == 0 {
		fresh = statements
	}
	if level != "" {
		var leveled []models.Statement
		for _, st := range fresh {
			if strings.EqualFold(st.Difficulty, level) {
				leveled = append(leveled, st)
			}
		}
		if len(leveled) > 0 {
			fresh = leveled
		}
	}
	s.mu.Lock()
	i := s.Rand.Intn(len(fresh))
	s.mu.Unlock()
	return fresh[i], nil
}

// Select runs both steps against a catalog
func (s *Selector) Select(loader catalog.Loader, progress []models.ProgressRecord, covered map[int]bool, usedStatements map[int]map[int]bool, now time.Time) (Pick, error) {
	technique, err := s.SelectTechnique(loader.GetTechniques(), progress, covered, now)
	if err != nil {
		return Pick{}, err
	}
	id := technique.ID
	statement, err := s.SelectStatement(loader.GetStatements(&id), usedStatements[id], Difficulty(progress))
	if err != nil {
		return Pick{}, err
	}
	return Pick{Technique: technique, Statement: statement}, nil
}
