package learning

import (
	"testing"
	"time"

	"github.com/example/langfocus/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestRecommendOrder(t *testing.T) {
	progress := []models.ProgressRecord{
		practiced(1, 30, time.Hour),
		practiced(2, 95, 10*24*time.Hour),
		practiced(3, 50, time.Hour),
	}
	recs := Recommend(progress, techniques(1, 2, 3, 4), now)

	var ids []int
	for _, r := range recs {
		ids = append(ids, r.TechniqueID)
	}
	assert.Equal(t, []int{4, 1, 3}, ids)
}

func TestRecommendStale(t *testing.T) {
	progress := []models.ProgressRecord{
		practiced(1, 95, 10*24*time.Hour),
		practiced(2, 95, time.Hour),
	}
	recs := Recommend(progress, techniques(1, 2), now)
	assert.Equal(t, []Recommendation{{TechniqueID: 1, Reason: "not practiced for a week"}}, recs)
}

func TestOverview(t *testing.T) {
	progress := []models.ProgressRecord{
		{TechniqueID: 1, Mastery: 90, Attempts: 3, Streak: 2},
		{TechniqueID: 2, Mastery: 30, Attempts: 2, Streak: 0},
	}
	ov := Overview(progress, 4)
	assert.Equal(t, 4, ov.TechniquesTotal)
	assert.Equal(t, 2, ov.Practiced)
	assert.Equal(t, 1, ov.Mastered)
	assert.Equal(t, 2, ov.BestStreak)
	assert.Equal(t, 5, ov.TotalAttempts)
	assert.InDelta(t, 30, ov.AverageMastery, 1e-9)

	assert.Zero(t, Overview(nil, 4).AverageMastery)
}
