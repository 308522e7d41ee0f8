package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReminderStateEligibleIsConjunctive(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	cooldown := 7 * 24 * time.Hour
	daysAgo := func(d int) *time.Time {
		ts := now.AddDate(0, 0, -d)
		return &ts
	}

	tests := []struct {
		name  string
		state ReminderState
		want  bool
	}{
		{"idle long, reminded recently", ReminderState{Enabled: true, LastPracticeAt: daysAgo(10), LastReminderAt: daysAgo(2)}, false},
		{"practiced recently, reminded long ago", ReminderState{Enabled: true, LastPracticeAt: daysAgo(2), LastReminderAt: daysAgo(10)}, false},
		{"both elapsed", ReminderState{Enabled: true, LastPracticeAt: daysAgo(10), LastReminderAt: daysAgo(8)}, true},
		{"never reminded", ReminderState{Enabled: true, LastPracticeAt: daysAgo(7)}, true},
		{"disabled", ReminderState{Enabled: false, LastPracticeAt: daysAgo(30)}, false},
		{"new account", ReminderState{Enabled: true, CreatedAt: now.Add(-time.Hour)}, false},
		{"old account never practiced", ReminderState{Enabled: true, CreatedAt: now.AddDate(0, 0, -9)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Eligible(now, cooldown))
		})
	}
}

func TestStatementAppliesTo(t *testing.T) {
	assert.True(t, Statement{ID: 1}.AppliesTo(5))
	assert.True(t, Statement{ID: 2, TechniqueIDs: []int{3, 5}}.AppliesTo(5))
	assert.False(t, Statement{ID: 3, TechniqueIDs: []int{3}}.AppliesTo(5))
}
