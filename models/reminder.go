package models

import "time"

// ReminderPayload is everything a caller needs to render a reminder message
type ReminderPayload struct {
	EventID     string
	GuildID     string
	ChannelID   string
	Title       string
	Description string
	Interval    time.Duration
	// Mentions is capped; Remaining counts the missing users that did not fit
	Mentions     []string
	Remaining    int
	TotalUsers   int
	ReactedCount int
	MissingCount int
}

// DispatchResult is the outcome of a single reminder dispatch
type DispatchResult struct {
	EventID       string
	Notified      int
	Remaining     int
	Missing       []string
	SentMessageID string
	RemindedAt    time.Time
}
