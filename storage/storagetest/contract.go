// Package storagetest holds the behaviour every events repository must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminderbot/core"
	"reminderbot/models"
	"reminderbot/services"
)

var baseTime = time.Date(2024, 3, 10, 20, 30, 0, 0, time.UTC)

// NewEvent builds a fully populated event with numeric IDs
func NewEvent(messageID, guildID string) *models.Event {
	event := &models.Event{
		MessageID:         messageID,
		ChannelID:         "800000000000000001",
		GuildID:           guildID,
		Title:             "Weekly sync " + messageID,
		Description:       "Bring your notes",
		Interval:          90 * time.Minute,
		RequiredReactions: []string{models.EmojiYes, models.EmojiNo},
		LastReminder:      baseTime.Add(-time.Hour),
		CreatedAt:         baseTime.Add(-24 * time.Hour),
		AllUsers:          models.NewUserSet("101", "102", "103"),
		ReactedUsers:      models.NewUserSet("101"),
		Reactions: []models.Reaction{
			{ID: "rct_" + messageID + "_101", EventID: messageID, UserID: "101", Emoji: models.EmojiYes, CreatedAt: baseTime},
		},
	}
	event.Normalize()
	return event
}

// AssertEventEqual compares events field by field, treating timestamps as instants
func AssertEventEqual(t *testing.T, expected, actual *models.Event) {
	t.Helper()
	require.NotNil(t, actual)
	assert.Equal(t, expected.MessageID, actual.MessageID)
	assert.Equal(t, expected.ChannelID, actual.ChannelID)
	assert.Equal(t, expected.GuildID, actual.GuildID)
	assert.Equal(t, expected.Title, actual.Title)
	assert.Equal(t, expected.Description, actual.Description)
	assert.Equal(t, expected.Interval, actual.Interval)
	assert.ElementsMatch(t, expected.RequiredReactions, actual.RequiredReactions)
	assert.Equal(t, expected.IsPaused, actual.IsPaused)
	assert.True(t, expected.LastReminder.Equal(actual.LastReminder),
		"last_reminder: expected %s, got %s", expected.LastReminder, actual.LastReminder)
	assert.Equal(t, expected.AllUsers.Sorted(), actual.AllUsers.Sorted())
	assert.Equal(t, expected.ReactedUsers.Sorted(), actual.ReactedUsers.Sorted())

	require.Len(t, actual.Reactions, len(expected.Reactions))
	for _, reaction := range expected.Reactions {
		assert.True(t, actual.HasReaction(reaction.UserID, reaction.Emoji),
			"missing reaction %s by %s", reaction.Emoji, reaction.UserID)
	}
}

// RunRepositoryContract exercises newRepo's repository against the shared behaviour.
// newRepo must return an empty repository for every call.
func RunRepositoryContract(t *testing.T, newRepo func(t *testing.T) services.EventsRepository) {
	ctx := context.Background()

	t.Run("CreateEvent and GetEventByID", func(t *testing.T) {
		repo := newRepo(t)
		event := NewEvent("900000000000000001", "700000000000000001")

		require.NoError(t, repo.CreateEvent(ctx, event))

		got, err := repo.GetEventByID(ctx, event.MessageID)
		require.NoError(t, err)
		require.True(t, got.IsPresent())
		AssertEventEqual(t, event, got.MustGet())
	})

	t.Run("CreateEvent rejects duplicates", func(t *testing.T) {
		repo := newRepo(t)
		event := NewEvent("900000000000000001", "700000000000000001")

		require.NoError(t, repo.CreateEvent(ctx, event))
		assert.Error(t, repo.CreateEvent(ctx, event))
	})

	t.Run("GetEventByID missing event", func(t *testing.T) {
		repo := newRepo(t)

		got, err := repo.GetEventByID(ctx, "900000000000000404")
		require.NoError(t, err)
		assert.True(t, got.IsAbsent())
	})

	t.Run("UpdateEvent", func(t *testing.T) {
		repo := newRepo(t)
		event := NewEvent("900000000000000001", "700000000000000001")

		err := repo.UpdateEvent(ctx, event)
		assert.True(t, core.IsNotFoundError(err), "updating a missing event must be not found, got %v", err)

		require.NoError(t, repo.CreateEvent(ctx, event))
		event.IsPaused = true
		event.ReactedUsers.Add("102")
		event.Reactions = append(event.Reactions, models.Reaction{
			ID: "rct_update_102", EventID: event.MessageID, UserID: "102", Emoji: models.EmojiNo, CreatedAt: baseTime,
		})
		require.NoError(t, repo.UpdateEvent(ctx, event))

		got, err := repo.GetEventByID(ctx, event.MessageID)
		require.NoError(t, err)
		AssertEventEqual(t, event, got.MustGet())
	})

	t.Run("UpsertEvent inserts then replaces", func(t *testing.T) {
		repo := newRepo(t)
		event := NewEvent("900000000000000001", "700000000000000001")

		require.NoError(t, repo.UpsertEvent(ctx, event))

		event.ReactedUsers = models.NewUserSet("103")
		event.Reactions = []models.Reaction{
			{ID: "rct_upsert_103", EventID: event.MessageID, UserID: "103", Emoji: models.EmojiNo, CreatedAt: baseTime},
		}
		event.LastReminder = baseTime
		require.NoError(t, repo.UpsertEvent(ctx, event))

		all, err := repo.ListAllEvents(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		AssertEventEqual(t, event, all[0])
	})

	t.Run("DeleteEvent", func(t *testing.T) {
		repo := newRepo(t)
		event := NewEvent("900000000000000001", "700000000000000001")
		require.NoError(t, repo.CreateEvent(ctx, event))

		require.NoError(t, repo.DeleteEvent(ctx, event.MessageID))

		got, err := repo.GetEventByID(ctx, event.MessageID)
		require.NoError(t, err)
		assert.True(t, got.IsAbsent())

		err = repo.DeleteEvent(ctx, event.MessageID)
		assert.True(t, core.IsNotFoundError(err), "deleting twice must be not found, got %v", err)
	})

	t.Run("ListEventsByGuild", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.CreateEvent(ctx, NewEvent("900000000000000010", "700000000000000001")))
		require.NoError(t, repo.CreateEvent(ctx, NewEvent("90000000000000002", "700000000000000001")))
		require.NoError(t, repo.CreateEvent(ctx, NewEvent("900000000000000003", "700000000000000002")))

		events, err := repo.ListEventsByGuild(ctx, "700000000000000001")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "90000000000000002", events[0].MessageID)
		assert.Equal(t, "900000000000000010", events[1].MessageID)

		events, err = repo.ListEventsByGuild(ctx, "700000000000000404")
		require.NoError(t, err)
		assert.Empty(t, events)

		all, err := repo.ListAllEvents(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("Unknown guild round trip", func(t *testing.T) {
		repo := newRepo(t)
		event := NewEvent("900000000000000001", "")
		require.Equal(t, models.UnknownGuildID, event.GuildID)
		require.NoError(t, repo.CreateEvent(ctx, event))

		events, err := repo.ListEventsByGuild(ctx, models.UnknownGuildID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		AssertEventEqual(t, event, events[0])
	})

	t.Run("Guilds", func(t *testing.T) {
		repo := newRepo(t)
		guild := &models.Guild{ID: "700000000000000001", Name: "Raiders", CreatedAt: baseTime}

		require.NoError(t, repo.UpsertGuild(ctx, guild))
		guild.Name = "Raiders Guild"
		require.NoError(t, repo.UpsertGuild(ctx, guild))

		got, err := repo.GetGuildByID(ctx, guild.ID)
		require.NoError(t, err)
		require.True(t, got.IsPresent())
		assert.Equal(t, "Raiders Guild", got.MustGet().Name)

		require.NoError(t, repo.DeleteGuild(ctx, guild.ID))
		got, err = repo.GetGuildByID(ctx, guild.ID)
		require.NoError(t, err)
		assert.True(t, got.IsAbsent())
		assert.True(t, core.IsNotFoundError(repo.DeleteGuild(ctx, guild.ID)))
	})

	t.Run("Users", func(t *testing.T) {
		repo := newRepo(t)
		user := &models.User{ID: "101", Username: "alice", CreatedAt: baseTime}

		require.NoError(t, repo.UpsertUser(ctx, user))
		user.IsBot = true
		require.NoError(t, repo.UpsertUser(ctx, user))

		got, err := repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, got.IsPresent())
		assert.Equal(t, "alice", got.MustGet().Username)
		assert.True(t, got.MustGet().IsBot)

		require.NoError(t, repo.DeleteUser(ctx, user.ID))
		got, err = repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, got.IsAbsent())
		assert.True(t, core.IsNotFoundError(repo.DeleteUser(ctx, user.ID)))
	})
}
