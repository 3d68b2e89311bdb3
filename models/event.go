package models

import (
	"slices"
	"strings"
	"time"
)

const (
	// UnknownGuildID is assigned to legacy records that were stored without a guild
	UnknownGuildID = "0"

	MaxTitleLength = 100
)

// Default reactions that count as an availability answer
const (
	EmojiYes   = "✅"
	EmojiNo    = "❌"
	EmojiMaybe = "❓"
)

var DefaultRequiredReactions = []string{EmojiYes, EmojiNo, EmojiMaybe}

type EventState string

const (
	EventStateActive  EventState = "ACTIVE"
	EventStatePaused  EventState = "PAUSED"
	EventStateRemoved EventState = "REMOVED"
)

// Event is a watched message whose participants must answer with one of the required reactions
type Event struct {
	MessageID         string
	ChannelID         string
	GuildID           string
	Title             string
	Description       string
	Interval          time.Duration
	RequiredReactions []string
	IsPaused          bool
	LastReminder      time.Time
	CreatedAt         time.Time

	// AllUsers are the eligible participants snapshotted at watch time
	AllUsers UserSet
	// ReactedUsers is always a subset of AllUsers
	ReactedUsers UserSet
	// Reactions holds one entry per (user, required emoji) currently on the message
	Reactions []Reaction
}

// Reaction is a single user's recorded required-emoji response to an Event
type Reaction struct {
	ID        string
	EventID   string
	UserID    string
	Emoji     string
	CreatedAt time.Time
}

type Guild struct {
	ID        string    `json:"id"         db:"id"`
	Name      string    `json:"name"       db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type User struct {
	ID        string    `json:"id"         db:"id"`
	Username  string    `json:"username"   db:"username"`
	IsBot     bool      `json:"is_bot"     db:"is_bot"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (e *Event) State() EventState {
	if e.IsPaused {
		return EventStatePaused
	}
	return EventStateActive
}

func (e *Event) IsRequired(emoji string) bool {
	return slices.Contains(e.RequiredReactions, emoji)
}

// MissingUsers returns the sorted participants that have not answered yet
func (e *Event) MissingUsers() []string {
	return e.AllUsers.Difference(e.ReactedUsers)
}

func (e *Event) HasReaction(userID, emoji string) bool {
	return slices.ContainsFunc(e.Reactions, func(r Reaction) bool {
		return r.UserID == userID && r.Emoji == emoji
	})
}

// HoldsRequiredReaction reports whether the user still has any required emoji recorded locally
func (e *Event) HoldsRequiredReaction(userID string) bool {
	return slices.ContainsFunc(e.Reactions, func(r Reaction) bool {
		return r.UserID == userID && e.IsRequired(r.Emoji)
	})
}

// RemoveReaction drops the (user, emoji) entry and reports whether it existed
func (e *Event) RemoveReaction(userID, emoji string) bool {
	before := len(e.Reactions)
	e.Reactions = slices.DeleteFunc(e.Reactions, func(r Reaction) bool {
		return r.UserID == userID && r.Emoji == emoji
	})
	return len(e.Reactions) != before
}

// Clone returns a deep copy so callers never share mutable state with the cache
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	out.RequiredReactions = slices.Clone(e.RequiredReactions)
	out.AllUsers = e.AllUsers.Clone()
	out.ReactedUsers = e.ReactedUsers.Clone()
	out.Reactions = slices.Clone(e.Reactions)
	return &out
}

// Normalize fills defaults and re-establishes ReactedUsers ⊆ AllUsers
func (e *Event) Normalize() {
	if e.GuildID == "" {
		e.GuildID = UnknownGuildID
	}
	if len(e.RequiredReactions) == 0 {
		e.RequiredReactions = slices.Clone(DefaultRequiredReactions)
	}
	if e.AllUsers == nil {
		e.AllUsers = NewUserSet()
	}
	if e.ReactedUsers == nil {
		e.ReactedUsers = NewUserSet()
	}
	for id := range e.ReactedUsers {
		if !e.AllUsers.Has(id) {
			delete(e.ReactedUsers, id)
		}
	}
	e.Reactions = slices.DeleteFunc(e.Reactions, func(r Reaction) bool {
		return !e.AllUsers.Has(r.UserID) || !e.IsRequired(r.Emoji)
	})
}

// TruncateTitle limits a title to MaxTitleLength runes
func TruncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= MaxTitleLength {
		return title
	}
	return string(runes[:MaxTitleLength])
}

// SortEvents orders events by message ID in snowflake order
func SortEvents(events []*Event) {
	slices.SortFunc(events, func(a, b *Event) int {
		return compareIDs(a.MessageID, b.MessageID)
	})
}

// NormalizeEmoji strips emoji presentation selectors so "✅" and "✅️" compare equal
func NormalizeEmoji(emoji string) string {
	return strings.TrimSpace(strings.ReplaceAll(emoji, "\ufe0f", ""))
}
