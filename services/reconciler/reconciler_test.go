package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reminderbot/clients"
	"reminderbot/clients/discord"
	"reminderbot/core"
	"reminderbot/models"
	"reminderbot/services"
	"reminderbot/services/eventcache"
	"reminderbot/testutils"
)

type reconcilerTestFixture struct {
	reconciler *ReactionReconciler
	cache      *eventcache.EventCache
	client     *discord.MockMessagingClient
}

func setupReconciler(t *testing.T, events ...*models.Event) *reconcilerTestFixture {
	t.Helper()
	cache := eventcache.NewEventCache(&services.MockEventsRepository{})
	for _, event := range events {
		cache.Put(event)
	}
	client := &discord.MockMessagingClient{}
	clock := testutils.NewFakeClock(time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC))

	return &reconcilerTestFixture{
		reconciler: NewReactionReconciler(cache, client, clock),
		cache:      cache,
		client:     client,
	}
}

func reactionEvent(event *models.Event, userID, emoji string) models.ReactionEvent {
	return models.ReactionEvent{
		GuildID:   event.GuildID,
		ChannelID: event.ChannelID,
		MessageID: event.MessageID,
		UserID:    userID,
		Emoji:     emoji,
	}
}

func assertSubset(t *testing.T, event *models.Event) {
	t.Helper()
	assert.True(t, event.ReactedUsers.IsSubsetOf(event.AllUsers), "reacted users must be a subset of all users")
}

func TestApplyReactionAdded(t *testing.T) {
	ctx := context.Background()

	t.Run("Required emoji adds user", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1", "2", "3"}, []string{"1"})
		f := setupReconciler(t, event)

		changed, err := f.reconciler.ApplyReactionAdded(ctx, reactionEvent(event, "2", models.EmojiNo))
		require.NoError(t, err)
		assert.True(t, changed)

		got := f.cache.Get("100").MustGet()
		assert.Equal(t, []string{"1", "2"}, got.ReactedUsers.Sorted())
		assert.True(t, got.HasReaction("2", models.EmojiNo))
		assertSubset(t, got)
	})

	t.Run("Adding the same reaction twice is idempotent", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1", "2", "3"}, nil)
		f := setupReconciler(t, event)

		changed, err := f.reconciler.ApplyReactionAdded(ctx, reactionEvent(event, "3", models.EmojiYes))
		require.NoError(t, err)
		assert.True(t, changed)
		once := f.cache.Get("100").MustGet()

		changed, err = f.reconciler.ApplyReactionAdded(ctx, reactionEvent(event, "3", models.EmojiYes))
		require.NoError(t, err)
		assert.False(t, changed)
		twice := f.cache.Get("100").MustGet()

		assert.Equal(t, once.ReactedUsers, twice.ReactedUsers)
		assert.Len(t, twice.Reactions, 1)
	})

	t.Run("Ignored reactions", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1", "2"}, nil)
		f := setupReconciler(t, event)

		bot := reactionEvent(event, "2", models.EmojiYes)
		bot.IsBot = true

		for name, reaction := range map[string]models.ReactionEvent{
			"non required emoji": reactionEvent(event, "1", "🎉"),
			"bot user":           bot,
			"non participant":    reactionEvent(event, "999", models.EmojiYes),
			"unwatched message":  {MessageID: "404", UserID: "1", Emoji: models.EmojiYes},
		} {
			changed, err := f.reconciler.ApplyReactionAdded(ctx, reaction)
			require.NoError(t, err, name)
			assert.False(t, changed, name)
		}

		got := f.cache.Get("100").MustGet()
		assert.Equal(t, 0, got.ReactedUsers.Len())
		assertSubset(t, got)
	})
}

func TestApplyReactionRemoved(t *testing.T) {
	ctx := context.Background()

	t.Run("User with another required emoji stays reacted", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1", "2"}, []string{"1"})
		event.Reactions = append(event.Reactions, models.Reaction{UserID: "1", Emoji: models.EmojiMaybe, EventID: "100"})
		f := setupReconciler(t, event)

		f.client.On("ListReactions", mock.Anything, event.ChannelID, "100").Return([]clients.ReactionSnapshot{
			{Emoji: models.EmojiMaybe, UserIDs: []string{"1"}},
			{Emoji: "🎉", UserIDs: []string{"1"}},
		}, nil).Once()

		changed, err := f.reconciler.ApplyReactionRemoved(ctx, reactionEvent(event, "1", models.EmojiYes))
		require.NoError(t, err)
		assert.True(t, changed)

		got := f.cache.Get("100").MustGet()
		assert.True(t, got.ReactedUsers.Has("1"))
		assert.False(t, got.HasReaction("1", models.EmojiYes))
		assert.True(t, got.HasReaction("1", models.EmojiMaybe))
		f.client.AssertExpectations(t)
	})

	t.Run("Live check finds a required emoji missed locally", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1", "2"}, []string{"1"})
		f := setupReconciler(t, event)

		f.client.On("ListReactions", mock.Anything, event.ChannelID, "100").Return([]clients.ReactionSnapshot{
			{Emoji: models.EmojiNo, UserIDs: []string{"1"}},
		}, nil).Once()

		_, err := f.reconciler.ApplyReactionRemoved(ctx, reactionEvent(event, "1", models.EmojiYes))
		require.NoError(t, err)

		got := f.cache.Get("100").MustGet()
		assert.True(t, got.ReactedUsers.Has("1"))
		assert.True(t, got.HasReaction("1", models.EmojiNo))
	})

	t.Run("Only non required emoji left drops user", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1", "2"}, []string{"1", "2"})
		f := setupReconciler(t, event)

		f.client.On("ListReactions", mock.Anything, event.ChannelID, "100").Return([]clients.ReactionSnapshot{
			{Emoji: models.EmojiYes, UserIDs: []string{"2"}},
			{Emoji: "🎉", UserIDs: []string{"1"}},
		}, nil).Once()

		changed, err := f.reconciler.ApplyReactionRemoved(ctx, reactionEvent(event, "1", models.EmojiYes))
		require.NoError(t, err)
		assert.True(t, changed)

		got := f.cache.Get("100").MustGet()
		assert.Equal(t, []string{"2"}, got.ReactedUsers.Sorted())
		assertSubset(t, got)
	})

	t.Run("Transport failure falls back to recorded reactions", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1"}, []string{"1"})
		f := setupReconciler(t, event)

		f.client.On("ListReactions", mock.Anything, event.ChannelID, "100").
			Return(nil, core.NewTransportError("list reactions", errors.New("timeout"))).Once()

		changed, err := f.reconciler.ApplyReactionRemoved(ctx, reactionEvent(event, "1", models.EmojiYes))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.False(t, f.cache.Get("100").MustGet().ReactedUsers.Has("1"))
	})

	t.Run("Deleted message evicts the event", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1"}, []string{"1"})
		f := setupReconciler(t, event)

		f.client.On("ListReactions", mock.Anything, event.ChannelID, "100").
			Return(nil, core.NewNotFoundError("message", "100")).Once()

		_, err := f.reconciler.ApplyReactionRemoved(ctx, reactionEvent(event, "1", models.EmojiYes))
		require.Error(t, err)
		assert.True(t, core.IsNotFoundError(err))
		assert.True(t, f.cache.Get("100").IsAbsent())
	})

	t.Run("Non required emoji skips live check", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1"}, []string{"1"})
		f := setupReconciler(t, event)

		changed, err := f.reconciler.ApplyReactionRemoved(ctx, reactionEvent(event, "1", "🎉"))
		require.NoError(t, err)
		assert.False(t, changed)
		f.client.AssertNotCalled(t, "ListReactions", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestFullResync(t *testing.T) {
	t.Run("Replaces reacted users with the snapshot", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1", "2", "3", "4"}, []string{"1", "2"})
		f := setupReconciler(t, event)

		got, err := f.reconciler.FullResync("100", []clients.ReactionSnapshot{
			{Emoji: models.EmojiYes, UserIDs: []string{"2", "3"}},
			{Emoji: models.EmojiMaybe, UserIDs: []string{"3", "999"}},
			{Emoji: "🎉", UserIDs: []string{"4"}},
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"2", "3"}, got.ReactedUsers.Sorted())
		assert.Len(t, got.Reactions, 3)
		assertSubset(t, got)

		// recorded reactions keep their identity
		for _, reaction := range got.Reactions {
			if reaction.UserID == "2" {
				assert.Equal(t, "rct_100_2", reaction.ID)
			}
		}
	})

	t.Run("Identical snapshot leaves reacted users unchanged", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1", "2", "3"}, []string{"1", "3"})
		f := setupReconciler(t, event)

		got, err := f.reconciler.FullResync("100", []clients.ReactionSnapshot{
			{Emoji: models.EmojiYes, UserIDs: []string{"1", "3"}},
		})
		require.NoError(t, err)
		assert.Equal(t, event.ReactedUsers, got.ReactedUsers)
	})

	t.Run("Unknown event", func(t *testing.T) {
		f := setupReconciler(t)

		_, err := f.reconciler.FullResync("404", nil)
		assert.True(t, core.IsNotFoundError(err))
	})
}

func TestResync(t *testing.T) {
	ctx := context.Background()

	t.Run("Applies live reactions", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1", "2"}, nil)
		f := setupReconciler(t, event)

		f.client.On("ListReactions", mock.Anything, event.ChannelID, "100").Return([]clients.ReactionSnapshot{
			{Emoji: models.EmojiNo, UserIDs: []string{"2"}},
		}, nil).Once()

		got, err := f.reconciler.Resync(ctx, "100")
		require.NoError(t, err)
		assert.Equal(t, []string{"2"}, got.ReactedUsers.Sorted())
		assert.Equal(t, []string{"1"}, got.MissingUsers())
	})

	t.Run("Transport failure keeps state", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1", "2"}, []string{"1"})
		f := setupReconciler(t, event)

		f.client.On("ListReactions", mock.Anything, event.ChannelID, "100").
			Return(nil, core.NewTransportError("list reactions", errors.New("503"))).Once()

		_, err := f.reconciler.Resync(ctx, "100")
		require.Error(t, err)
		assert.True(t, core.IsTransportError(err))
		assert.Equal(t, []string{"1"}, f.cache.Get("100").MustGet().ReactedUsers.Sorted())
	})

	t.Run("Deleted message evicts the event", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1"}, nil)
		f := setupReconciler(t, event)

		f.client.On("ListReactions", mock.Anything, event.ChannelID, "100").
			Return(nil, core.NewNotFoundError("message", "100")).Once()

		_, err := f.reconciler.Resync(ctx, "100")
		assert.True(t, core.IsNotFoundError(err))
		assert.True(t, f.cache.Get("100").IsAbsent())
	})
}
