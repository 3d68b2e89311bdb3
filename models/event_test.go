package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventNormalize(t *testing.T) {
	event := &Event{
		MessageID:    "100",
		AllUsers:     NewUserSet("1", "2"),
		ReactedUsers: NewUserSet("1", "9"),
		Reactions: []Reaction{
			{UserID: "1", Emoji: EmojiYes},
			{UserID: "9", Emoji: EmojiYes},
			{UserID: "2", Emoji: "🎉"},
		},
	}
	event.Normalize()

	assert.Equal(t, UnknownGuildID, event.GuildID)
	assert.Equal(t, DefaultRequiredReactions, event.RequiredReactions)
	assert.Equal(t, []string{"1"}, event.ReactedUsers.Sorted())
	assert.Len(t, event.Reactions, 1)
	assert.Equal(t, []string{"2"}, event.MissingUsers())
}

func TestEventReactions(t *testing.T) {
	event := &Event{
		RequiredReactions: []string{EmojiYes, EmojiNo},
		Reactions: []Reaction{
			{UserID: "1", Emoji: EmojiYes},
			{UserID: "1", Emoji: EmojiNo},
		},
	}

	assert.True(t, event.HasReaction("1", EmojiNo))
	assert.True(t, event.RemoveReaction("1", EmojiNo))
	assert.False(t, event.RemoveReaction("1", EmojiNo))
	assert.True(t, event.HoldsRequiredReaction("1"))
	assert.True(t, event.RemoveReaction("1", EmojiYes))
	assert.False(t, event.HoldsRequiredReaction("1"))
}

func TestEventCloneIsDeep(t *testing.T) {
	event := &Event{
		RequiredReactions: []string{EmojiYes},
		AllUsers:          NewUserSet("1"),
		ReactedUsers:      NewUserSet(),
	}
	clone := event.Clone()
	clone.AllUsers.Add("2")
	clone.RequiredReactions[0] = EmojiNo

	assert.False(t, event.AllUsers.Has("2"))
	assert.Equal(t, EmojiYes, event.RequiredReactions[0])
	assert.Nil(t, (*Event)(nil).Clone())
}

func TestSortingUsesSnowflakeOrder(t *testing.T) {
	ids := []string{"100", "99", "1000", "101"}
	SortIDs(ids)
	assert.Equal(t, []string{"99", "100", "101", "1000"}, ids)

	events := []*Event{{MessageID: "20"}, {MessageID: "3"}}
	SortEvents(events)
	assert.Equal(t, "3", events[0].MessageID)
}

func TestNormalizeEmojiAndTitle(t *testing.T) {
	assert.Equal(t, EmojiYes, NormalizeEmoji("✅️"))
	assert.Equal(t, "raid:123", NormalizeEmoji(" raid:123 "))

	long := make([]rune, MaxTitleLength+5)
	for i := range long {
		long[i] = 'é'
	}
	assert.Len(t, []rune(TruncateTitle(string(long))), MaxTitleLength)
	assert.Equal(t, "short", TruncateTitle("short"))
}

func TestEventRecord(t *testing.T) {
	t.Run("Round trip keeps reactions and millisecond intervals", func(t *testing.T) {
		created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
		event := &Event{
			MessageID:         "100",
			ChannelID:         "200",
			GuildID:           "300",
			Title:             "Raid",
			Interval:          90*time.Second + 500*time.Millisecond,
			RequiredReactions: []string{EmojiYes},
			LastReminder:      created.Add(time.Hour),
			CreatedAt:         created,
			AllUsers:          NewUserSet("1", "2"),
			ReactedUsers:      NewUserSet("1"),
			Reactions:         []Reaction{{ID: "rct_1", EventID: "100", UserID: "1", Emoji: EmojiYes, CreatedAt: created}},
		}

		record, err := NewEventRecord(event)
		require.NoError(t, err)
		data, err := json.Marshal(record)
		require.NoError(t, err)

		var decoded EventRecord
		require.NoError(t, json.Unmarshal(data, &decoded))
		got, err := decoded.ToEvent(time.Hour)
		require.NoError(t, err)
		assert.Equal(t, event, got)
	})

	t.Run("Legacy record without guild or interval", func(t *testing.T) {
		data := `{"message_id": 100, "channel_id": 200, "title": "Old", "required_reactions": [],
			"last_reminder": "2023-06-01T12:30:00.123456", "users_who_reacted": [1], "all_users": [1, 2]}`

		var record EventRecord
		require.NoError(t, json.Unmarshal([]byte(data), &record))
		event, err := record.ToEvent(24 * time.Hour)
		require.NoError(t, err)

		assert.Equal(t, UnknownGuildID, event.GuildID)
		assert.Equal(t, 24*time.Hour, event.Interval)
		assert.Equal(t, DefaultRequiredReactions, event.RequiredReactions)
		assert.Equal(t, time.Date(2023, 6, 1, 12, 30, 0, 123456000, time.UTC), event.LastReminder)
		assert.Equal(t, []string{"2"}, event.MissingUsers())
	})

	t.Run("Non-numeric ids are rejected", func(t *testing.T) {
		_, err := NewEventRecord(&Event{MessageID: "abc", AllUsers: NewUserSet(), ReactedUsers: NewUserSet()})
		assert.ErrorContains(t, err, "not a numeric id")
	})
}
