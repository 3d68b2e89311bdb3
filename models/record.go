package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// legacyTimeLayouts are accepted when reading last_reminder values written by older versions
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
}

// EventRecord is the persisted layout of an Event shared by the file-based backends
type EventRecord struct {
	MessageID         uint64           `json:"message_id"`
	ChannelID         uint64           `json:"channel_id"`
	GuildID           uint64           `json:"guild_id"`
	Title             string           `json:"title"`
	Description       string           `json:"description,omitempty"`
	IntervalMinutes   float64          `json:"interval_minutes,omitempty"`
	RequiredReactions []string         `json:"required_reactions"`
	IsPaused          bool             `json:"is_paused,omitempty"`
	LastReminder      string           `json:"last_reminder"`
	UsersWhoReacted   []uint64         `json:"users_who_reacted"`
	AllUsers          []uint64         `json:"all_users"`
	Reactions         []ReactionRecord `json:"reactions,omitempty"`
	CreatedAt         string           `json:"created_at,omitempty"`
}

type ReactionRecord struct {
	ID        string `json:"id"`
	UserID    uint64 `json:"user_id"`
	Emoji     string `json:"emoji"`
	CreatedAt string `json:"created_at"`
}

// NewEventRecord converts an Event into its persisted layout
func NewEventRecord(e *Event) (EventRecord, error) {
	messageID, err := parseSnowflake("message_id", e.MessageID)
	if err != nil {
		return EventRecord{}, err
	}
	channelID, err := parseSnowflake("channel_id", e.ChannelID)
	if err != nil {
		return EventRecord{}, err
	}
	guildID, err := parseSnowflake("guild_id", e.GuildID)
	if err != nil {
		return EventRecord{}, err
	}
	reacted, err := parseSnowflakes("users_who_reacted", e.ReactedUsers.Sorted())
	if err != nil {
		return EventRecord{}, err
	}
	allUsers, err := parseSnowflakes("all_users", e.AllUsers.Sorted())
	if err != nil {
		return EventRecord{}, err
	}

	record := EventRecord{
		MessageID:         messageID,
		ChannelID:         channelID,
		GuildID:           guildID,
		Title:             e.Title,
		Description:       e.Description,
		IntervalMinutes:   e.Interval.Minutes(),
		RequiredReactions: append([]string(nil), e.RequiredReactions...),
		IsPaused:          e.IsPaused,
		LastReminder:      formatTime(e.LastReminder),
		UsersWhoReacted:   reacted,
		AllUsers:          allUsers,
		CreatedAt:         formatTime(e.CreatedAt),
	}

	for _, r := range e.Reactions {
		userID, err := parseSnowflake("reaction user_id", r.UserID)
		if err != nil {
			return EventRecord{}, err
		}
		record.Reactions = append(record.Reactions, ReactionRecord{
			ID:        r.ID,
			UserID:    userID,
			Emoji:     r.Emoji,
			CreatedAt: formatTime(r.CreatedAt),
		})
	}

	return record, nil
}

// ToEvent converts a persisted record back into an Event.
// A missing guild_id decodes as 0 and maps to UnknownGuildID; a missing interval takes defaultInterval.
func (r EventRecord) ToEvent(defaultInterval time.Duration) (*Event, error) {
	if r.MessageID == 0 {
		return nil, fmt.Errorf("event record is missing message_id")
	}

	lastReminder, err := parseTime(r.LastReminder)
	if err != nil {
		return nil, fmt.Errorf("event %d has invalid last_reminder: %w", r.MessageID, err)
	}
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("event %d has invalid created_at: %w", r.MessageID, err)
	}

	interval := defaultInterval
	if r.IntervalMinutes > 0 {
		interval = time.Duration(r.IntervalMinutes * float64(time.Minute)).Round(time.Millisecond)
	}

	event := &Event{
		MessageID:         formatSnowflake(r.MessageID),
		ChannelID:         formatSnowflake(r.ChannelID),
		GuildID:           formatSnowflake(r.GuildID),
		Title:             r.Title,
		Description:       r.Description,
		Interval:          interval,
		RequiredReactions: append([]string(nil), r.RequiredReactions...),
		IsPaused:          r.IsPaused,
		LastReminder:      lastReminder,
		CreatedAt:         createdAt,
		AllUsers:          NewUserSet(),
		ReactedUsers:      NewUserSet(),
	}
	for _, id := range r.AllUsers {
		event.AllUsers.Add(formatSnowflake(id))
	}
	for _, id := range r.UsersWhoReacted {
		event.ReactedUsers.Add(formatSnowflake(id))
	}
	for _, rr := range r.Reactions {
		created, err := parseTime(rr.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("event %d has invalid reaction timestamp: %w", r.MessageID, err)
		}
		event.Reactions = append(event.Reactions, Reaction{
			ID:        rr.ID,
			EventID:   event.MessageID,
			UserID:    formatSnowflake(rr.UserID),
			Emoji:     rr.Emoji,
			CreatedAt: created,
		})
	}

	event.Normalize()
	return event, nil
}

func parseSnowflake(field, value string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a numeric id: %w", field, value, err)
	}
	return id, nil
}

func parseSnowflakes(field string, values []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(values))
	for _, v := range values {
		id, err := parseSnowflake(field, v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatSnowflake(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range legacyTimeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
