package scheduler

import (
	"fmt"
	"time"

	"github.com/example/langfocus/pkg/models"
)

var weeklyMessages = []string{
	"🎯 Time to practice!\n\nA week has passed since your last training. Let's keep sharpening your language tricks.\n\nSend /learn to start.",
	"📚 Practice time!\n\n7 days without training is a good moment to come back.\n\nStart with /learn.",
	"🧠 Don't forget to practice!\n\nA week went by. Keep improving your language tricks.\n\n/learn is waiting for you!",
}

const firstMessage = "👋 You signed up but haven't tried a round yet.\n\nEach round shows a statement and asks you to answer it with one technique. Send /learn to try your first one."

// reminderText picks a message by how long the user has been away.
// Weekly messages rotate with the number of reminders already sent.
func reminderText(state *models.ReminderState, now time.Time) string {
	if state == nil {
		return weeklyMessages[0]
	}
	if state.LastPracticeAt == nil {
		return firstMessage
	}

	days := int(now.Sub(*state.LastPracticeAt).Hours() / 24)
	if days >= 30 {
		return fmt.Sprintf("👀 It has been %d days since your last round. Your progress is saved; pick up where you left off with /learn.", days)
	}
	return weeklyMessages[state.ReminderCount%len(weeklyMessages)]
}
