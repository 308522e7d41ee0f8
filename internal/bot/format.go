package bot

import (
	"fmt"
	"strings"

	"github.com/example/langfocus/internal/learning"
	"github.com/example/langfocus/internal/session"
	"github.com/example/langfocus/pkg/models"
)

func techniqueName(techniques Techniques, id int) string {
	if t, ok := techniques.Technique(id); ok {
		return t.Name
	}
	return fmt.Sprintf("#%d", id)
}

func formatChallenge(c *session.Challenge) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📝 Exercise %d of %d\n\n", c.AttemptNumber, c.MaxAttempts)
	fmt.Fprintf(&sb, "Technique: %s\n", c.Technique.Name)
	if c.Technique.Definition != "" {
		fmt.Fprintf(&sb, "%s\n", c.Technique.Definition)
	}
	fmt.Fprintf(&sb, "\nStatement:\n«%s»\n\nReply using this technique.", c.Statement.Text)
	return sb.String()
}

func formatResult(r *session.Result, techniques Techniques) string {
	var sb strings.Builder
	mark := "❌"
	if r.IsCorrect {
		mark = "✅"
	}
	fmt.Fprintf(&sb, "%s Score: %.0f/100\n", mark, r.Score)
	if r.Encouragement != "" {
		fmt.Fprintf(&sb, "%s\n", r.Encouragement)
	}
	if r.Feedback != "" {
		fmt.Fprintf(&sb, "\n%s\n", r.Feedback)
	}
	if len(r.Improvements) > 0 {
		sb.WriteString("\nTo improve:\n")
		for _, imp := range r.Improvements {
			fmt.Fprintf(&sb, "• %s\n", imp)
		}
	}
	if r.DetectedTrick != nil && *r.DetectedTrick != "" {
		fmt.Fprintf(&sb, "\nDetected technique: %s\n", *r.DetectedTrick)
	}
	fmt.Fprintf(&sb, "\n%s mastery: %.0f%% → %.0f%%", techniqueName(techniques, r.TechniqueID), r.OldMastery, r.NewMastery)
	if r.JustMastered {
		sb.WriteString(" 🏆 mastered!")
	}
	return sb.String()
}

func formatSummary(s *session.Summary, techniques Techniques) string {
	var sb strings.Builder
	if s.Status == session.StateExpired {
		sb.WriteString("⏰ Round expired\n\n")
	} else {
		sb.WriteString("🏁 Round finished\n\n")
	}
	fmt.Fprintf(&sb, "Answers: %d, correct: %d\n", s.Attempts, s.Correct)
	if s.Attempts > 0 {
		fmt.Fprintf(&sb, "Average score: %.0f\n", s.AverageScore)
	}
	if len(s.NewlyMastered) > 0 {
		names := make([]string, len(s.NewlyMastered))
		for i, id := range s.NewlyMastered {
			names[i] = techniqueName(techniques, id)
		}
		fmt.Fprintf(&sb, "Newly mastered: %s\n", strings.Join(names, ", "))
	}
	writeRecommendations(&sb, s.Recommendations, techniques)
	return sb.String()
}

// historyLimit is how many past rounds /progress lists
const historyLimit = 5

func formatOverview(o models.ProgressOverview, recs []learning.Recommendation, history []models.SessionRecord, techniques Techniques) string {
	var sb strings.Builder
	sb.WriteString("📊 Your progress\n\n")
	fmt.Fprintf(&sb, "Techniques practiced: %d of %d\n", o.Practiced, o.TechniquesTotal)
	fmt.Fprintf(&sb, "Mastered: %d\n", o.Mastered)
	fmt.Fprintf(&sb, "Average mastery: %.0f%%\n", o.AverageMastery)
	fmt.Fprintf(&sb, "Best streak: %d\n", o.BestStreak)
	fmt.Fprintf(&sb, "Total answers: %d\n", o.TotalAttempts)
	writeRecommendations(&sb, recs, techniques)
	writeHistory(&sb, history)
	return sb.String()
}

func writeHistory(sb *strings.Builder, history []models.SessionRecord) {
	if len(history) == 0 {
		return
	}
	sb.WriteString("\nRecent rounds:\n")
	for _, h := range history {
		fmt.Fprintf(sb, "• %s, %s: %d/%d correct, avg %.0f%%\n",
			h.StartedAt.UTC().Format("2006-01-02"), h.Status, h.CorrectCount, h.Attempts, h.AverageScore)
	}
}

func writeRecommendations(sb *strings.Builder, recs []learning.Recommendation, techniques Techniques) {
	if len(recs) == 0 {
		return
	}
	sb.WriteString("\nNext up:\n")
	for _, r := range recs {
		fmt.Fprintf(sb, "• %s: %s\n", techniqueName(techniques, r.TechniqueID), r.Reason)
	}
}

func formatStats(s *models.ReminderStats) string {
	return fmt.Sprintf("🔔 Reminder stats\n\nUsers: %d\nTracked: %d\nEligible now: %d\nSent today: %d",
		s.TotalUsers, s.TrackedUsers, s.EligibleNow, s.SentToday)
}
