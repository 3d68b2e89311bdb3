package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"reminderbot/clients"
	"reminderbot/models"
)

// Renderer turns a reminder payload into message content and embed fields
type Renderer func(payload models.ReminderPayload) (string, []clients.EmbedField)

// RenderReminder is the default Renderer: a mention line followed by a stats embed
func RenderReminder(payload models.ReminderPayload) (string, []clients.EmbedField) {
	var content strings.Builder
	fmt.Fprintf(&content, "⏰ **%s** is still waiting for your answer:", payload.Title)
	for _, userID := range payload.Mentions {
		fmt.Fprintf(&content, " <@%s>", userID)
	}
	if payload.Remaining > 0 {
		fmt.Fprintf(&content, " and %d more", payload.Remaining)
	}

	fields := []clients.EmbedField{
		{Name: "Reacted", Value: fmt.Sprintf("%d/%d", payload.ReactedCount, payload.TotalUsers), Inline: true},
		{Name: "Missing", Value: fmt.Sprintf("%d", payload.MissingCount), Inline: true},
		{Name: "Interval", Value: FormatInterval(payload.Interval), Inline: true},
	}
	return content.String(), fields
}

// FormatInterval renders an interval the way users configure it
func FormatInterval(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return d.Round(time.Second).String()
	}
}
