package learning

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/langfocus/pkg/models"
)

const (
	lowMasteryThreshold = 60.0
	staleAfter          = 7 * 24 * time.Hour
	maxRecommendations  = 3
)

// Recommendation suggests a technique to work on next
type Recommendation struct {
	TechniqueID int
	Reason      string
}

// Recommend lists up to three techniques worth practicing: ones never tried,
// then weak ones, then ones not practiced for a week
func Recommend(progress []models.ProgressRecord, techniques []models.Technique, now time.Time) []Recommendation {
	byTechnique := make(map[int]models.ProgressRecord, len(progress))
	for _, p := range progress {
		byTechnique[p.TechniqueID] = p
	}

	sorted := append([]models.Technique(nil), techniques...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var out []Recommendation
	add := func(r Recommendation) bool {
		out = append(out, r)
		return len(out) >= maxRecommendations
	}

	for _, t := range sorted {
		if _, ok := byTechnique[t.ID]; !ok {
			if add(Recommendation{TechniqueID: t.ID, Reason: fmt.Sprintf("try %s for the first time", t.Name)}) {
				return out
			}
		}
	}

	var weak []models.ProgressRecord
	for _, p := range progress {
		if p.Mastery < lowMasteryThreshold {
			weak = append(weak, p)
		}
	}
	sort.Slice(weak, func(i, j int) bool {
		if weak[i].Mastery != weak[j].Mastery {
			return weak[i].Mastery < weak[j].Mastery
		}
		return weak[i].TechniqueID < weak[j].TechniqueID
	})
	for _, p := range weak {
		if add(Recommendation{TechniqueID: p.TechniqueID, Reason: fmt.Sprintf("mastery is only %.0f%%", p.Mastery)}) {
			return out
		}
	}

	for _, p := range progress {
		if p.Mastery < lowMasteryThreshold || p.LastPracticedAt == nil {
			continue
		}
		if now.Sub(*p.LastPracticedAt) >= staleAfter {
			if add(Recommendation{TechniqueID: p.TechniqueID, Reason: "not practiced for a week"}) {
				return out
			}
		}
	}
	return out
}

// Overview aggregates progress records against the catalog size
func Overview(progress []models.ProgressRecord, techniquesTotal int) models.ProgressOverview {
	ov := models.ProgressOverview{TechniquesTotal: techniquesTotal, Practiced: len(progress)}
	if len(progress) == 0 {
		return ov
	}
	var sum float64
	for _, p := range progress {
		sum += p.Mastery
		ov.TotalAttempts += p.Attempts
		if p.IsMastered() {
			ov.Mastered++
		}
		if p.Streak > ov.BestStreak {
			ov.BestStreak = p.Streak
		}
	}
	// Techniques never attempted count as zero mastery
	denominator := techniquesTotal
	if denominator < len(progress) {
		denominator = len(progress)
	}
	ov.AverageMastery = sum / float64(denominator)
	return ov
}
