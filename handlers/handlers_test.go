package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reminderbot/clients"
	"reminderbot/clients/discord"
	"reminderbot/core"
	"reminderbot/models"
	"reminderbot/services"
	"reminderbot/services/eventcache"
	"reminderbot/services/reconciler"
	"reminderbot/storage/jsonfile"
	"reminderbot/testutils"
	"reminderbot/usecases/reminders"
)

const (
	testGuild   = "333333333333333333"
	testChannel = "222222222222222222"
	testMessage = "444444444444444444"
)

type handlersTestFixture struct {
	handler    *DiscordEventsHandler
	commands   *CommandsHandler
	cache      *eventcache.EventCache
	client     *discord.MockMessagingClient
	dispatcher *services.MockReminderDispatcher
	scheduler  *services.MockReminderScheduler
}

func setupHandlers(t *testing.T, events ...*models.Event) *handlersTestFixture {
	t.Helper()
	repo, err := jsonfile.NewRepository(filepath.Join(t.TempDir(), "events.json"), 24*time.Hour)
	require.NoError(t, err)

	cache := eventcache.NewEventCache(repo)
	for _, event := range events {
		cache.Put(event)
	}
	client := &discord.MockMessagingClient{}
	clock := testutils.NewFakeClock(time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC))
	dispatcher := &services.MockReminderDispatcher{}
	scheduler := &services.MockReminderScheduler{}
	rec := reconciler.NewReactionReconciler(cache, client, clock)

	usecase := reminders.NewRemindersUseCase(cache, rec, dispatcher, scheduler, client, clock, 24*time.Hour)
	commands := NewCommandsHandler(usecase, "!")
	handler := NewDiscordEventsHandler(nil, client, rec, usecase, commands)
	t.Cleanup(handler.StopBot)

	return &handlersTestFixture{
		handler:    handler,
		commands:   commands,
		cache:      cache,
		client:     client,
		dispatcher: dispatcher,
		scheduler:  scheduler,
	}
}

func command(content string) models.CommandEvent {
	return models.CommandEvent{
		GuildID:   testGuild,
		ChannelID: testChannel,
		MessageID: "555555555555555555",
		UserID:    "1",
		Content:   content,
	}
}

func TestMapReactionEvents(t *testing.T) {
	reaction := &discordgo.MessageReaction{
		UserID:    "7",
		MessageID: testMessage,
		ChannelID: testChannel,
		GuildID:   testGuild,
		Emoji:     discordgo.Emoji{Name: "\u2705\ufe0f"},
	}

	t.Run("Add normalizes emoji", func(t *testing.T) {
		event := mapReactionAdded(&discordgo.MessageReactionAdd{MessageReaction: reaction}, "")
		assert.Equal(t, models.EmojiYes, event.Emoji)
		assert.Equal(t, "7", event.UserID)
		assert.False(t, event.IsBot)
	})

	t.Run("Add from bot member", func(t *testing.T) {
		event := mapReactionAdded(&discordgo.MessageReactionAdd{
			MessageReaction: reaction,
			Member:          &discordgo.Member{User: &discordgo.User{ID: "7", Bot: true}},
		}, "")
		assert.True(t, event.IsBot)
	})

	t.Run("Own reactions count as bot", func(t *testing.T) {
		assert.True(t, mapReactionAdded(&discordgo.MessageReactionAdd{MessageReaction: reaction}, "7").IsBot)
		assert.True(t, mapReactionRemoved(&discordgo.MessageReactionRemove{MessageReaction: reaction}, "7").IsBot)
	})

	t.Run("Custom emoji uses api name", func(t *testing.T) {
		custom := *reaction
		custom.Emoji = discordgo.Emoji{ID: "123", Name: "raid"}
		event := mapReactionRemoved(&discordgo.MessageReactionRemove{MessageReaction: &custom}, "")
		assert.Equal(t, "raid:123", event.Emoji)
	})
}

func TestMailboxAppliesReactionsInOrder(t *testing.T) {
	event := testutils.CreateTestEvent(testMessage, []string{"1", "2"}, nil)
	f := setupHandlers(t, event)
	f.client.On("ListReactions", mock.Anything, testChannel, testMessage).Return([]clients.ReactionSnapshot{}, nil)

	added := models.ReactionEvent{GuildID: testGuild, ChannelID: testChannel, MessageID: testMessage, UserID: "2", Emoji: models.EmojiYes}
	f.handler.submit("reaction add", testMessage, func(ctx context.Context) error {
		return f.handler.processReactionAdded(ctx, added)
	})
	f.handler.submit("reaction remove", testMessage, func(ctx context.Context) error {
		return f.handler.processReactionRemoved(ctx, added)
	})
	f.handler.mailbox.StopWait()

	got := f.cache.Get(testMessage).MustGet()
	assert.Equal(t, 0, got.ReactedUsers.Len())
	assert.False(t, got.HasReaction("2", models.EmojiYes))
}

func TestProcessReactionsCleared(t *testing.T) {
	ctx := context.Background()

	t.Run("Resyncs watched message", func(t *testing.T) {
		event := testutils.CreateTestEvent(testMessage, []string{"1", "2"}, []string{"1", "2"})
		f := setupHandlers(t, event)
		f.client.On("ListReactions", mock.Anything, testChannel, testMessage).Return([]clients.ReactionSnapshot{}, nil)

		require.NoError(t, f.handler.processReactionsCleared(ctx, testMessage))
		assert.Equal(t, 0, f.cache.Get(testMessage).MustGet().ReactedUsers.Len())
	})

	t.Run("Unwatched message is ignored", func(t *testing.T) {
		f := setupHandlers(t)
		assert.NoError(t, f.handler.processReactionsCleared(ctx, "999"))
		f.client.AssertNotCalled(t, "ListReactions", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Transport failures are reported", func(t *testing.T) {
		event := testutils.CreateTestEvent(testMessage, []string{"1"}, nil)
		f := setupHandlers(t, event)
		f.client.On("ListReactions", mock.Anything, testChannel, testMessage).
			Return(nil, core.NewTransportError("list reactions", errors.New("timeout")))

		err := f.handler.processReactionsCleared(ctx, testMessage)
		assert.True(t, core.IsTransportError(err))
	})
}

func TestProcessMessageDeleted(t *testing.T) {
	ctx := context.Background()
	event := testutils.CreateTestEvent(testMessage, []string{"1"}, nil)
	f := setupHandlers(t, event)

	require.NoError(t, f.handler.processMessageDeleted(ctx, testGuild, testMessage))
	assert.True(t, f.cache.Get(testMessage).IsAbsent())

	assert.NoError(t, f.handler.processMessageDeleted(ctx, testGuild, "999"), "unwatched deletes are ignored")
}

func TestProcessCommandReplies(t *testing.T) {
	f := setupHandlers(t)
	f.client.On("SendMessage", mock.Anything, testChannel, mock.MatchedBy(func(content string) bool {
		return content == "No messages are being watched in this server."
	})).Return("666", nil).Once()

	f.handler.processCommand(context.Background(), command("!list"))
	f.handler.processCommand(context.Background(), command("hello there"))

	f.client.AssertExpectations(t)
	f.client.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestCommandsHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("Ignores messages that are not commands", func(t *testing.T) {
		f := setupHandlers(t)
		for _, content := range []string{"hello", "!", "!dance", "?list"} {
			_, handled := f.commands.Handle(ctx, command(content))
			assert.False(t, handled, content)
		}
	})

	t.Run("Help", func(t *testing.T) {
		f := setupHandlers(t)
		reply, handled := f.commands.Handle(ctx, command("!HELP"))
		assert.True(t, handled)
		assert.Contains(t, reply, "!watch <message link>")
	})

	t.Run("Watch with interval and reactions", func(t *testing.T) {
		f := setupHandlers(t)
		f.client.On("FetchMessage", mock.Anything, testChannel, testMessage).
			Return(&clients.DiscordMessage{ID: testMessage, Content: "Board games"}, nil)
		f.client.On("ListGuildMembers", mock.Anything, testGuild).
			Return([]clients.GuildMember{{ID: "1"}, {ID: "2"}}, nil)
		f.client.On("ListReactions", mock.Anything, testChannel, testMessage).
			Return([]clients.ReactionSnapshot{{Emoji: "🎲", UserIDs: []string{"2"}}}, nil)

		link := "https://discord.com/channels/" + testGuild + "/" + testChannel + "/" + testMessage
		reply, handled := f.commands.Handle(ctx, command("!watch "+link+" 90 🎲 yes"))
		require.True(t, handled)
		assert.Contains(t, reply, "Watching **Board games**")
		assert.Contains(t, reply, "1/2 reacted")

		event := f.cache.Get(testMessage).MustGet()
		assert.Equal(t, 90*time.Minute, event.Interval)
		assert.Equal(t, []string{"🎲", models.EmojiYes}, event.RequiredReactions)
	})

	t.Run("Validation failures are rendered", func(t *testing.T) {
		f := setupHandlers(t)

		reply, handled := f.commands.Handle(ctx, command("!watch not-a-link"))
		assert.True(t, handled)
		assert.Contains(t, reply, "invalid link")

		reply, _ = f.commands.Handle(ctx, command("!pause"))
		assert.Contains(t, reply, "usage: !pause")

		reply, _ = f.commands.Handle(ctx, command("!interval "+testMessage+" 0.05"))
		assert.Contains(t, reply, "invalid interval: must be at least 0.1 minutes")

		reply, _ = f.commands.Handle(ctx, command("!interval "+testMessage+" 307445734562"))
		assert.Contains(t, reply, "invalid interval: must be at most")
	})

	t.Run("Unknown event is not found", func(t *testing.T) {
		f := setupHandlers(t)
		reply, _ := f.commands.Handle(ctx, command("!unwatch 123"))
		assert.Contains(t, reply, "event 123 not found")
	})

	t.Run("List shows paused events", func(t *testing.T) {
		paused := testutils.CreateTestEvent("100", []string{"1", "2"}, []string{"1"})
		paused.IsPaused = true
		f := setupHandlers(t, paused)

		reply, _ := f.commands.Handle(ctx, command("!list"))
		assert.Contains(t, reply, "`100` **Test event 100** 1/2 reacted, every 1h, paused")
	})

	t.Run("Pause delegates to the scheduler", func(t *testing.T) {
		event := testutils.CreateTestEvent("100", []string{"1"}, nil)
		f := setupHandlers(t, event)
		paused := event.Clone()
		paused.IsPaused = true
		f.scheduler.On("Pause", mock.Anything, "100").Return(paused, nil)

		reply, _ := f.commands.Handle(ctx, command("!pause 100"))
		assert.Contains(t, reply, "Paused reminders for **Test event 100**.")
	})

	t.Run("Remind reports partial failures", func(t *testing.T) {
		first := testutils.CreateTestEvent("100", []string{"1", "2"}, nil)
		second := testutils.CreateTestEvent("101", []string{"1"}, nil)
		f := setupHandlers(t, first, second)
		f.dispatcher.On("Dispatch", mock.Anything, "100").
			Return(&models.DispatchResult{EventID: "100", Notified: 2, Missing: []string{"1", "2"}, SentMessageID: "9"}, nil)
		f.dispatcher.On("Dispatch", mock.Anything, "101").
			Return(nil, core.NewTransportError("send reminder", errors.New("missing access")))

		reply, _ := f.commands.Handle(ctx, command("!remind"))
		assert.Contains(t, reply, "Sent 1 reminder(s), 2 user(s) still have to answer. 1 event(s) failed.")
		assert.Contains(t, reply, "Discord request failed")
	})
}

func TestMailboxIsSequential(t *testing.T) {
	f := setupHandlers(t)

	var (
		mu    sync.Mutex
		order []int
	)
	for i := range 20 {
		f.handler.submit("test", "1", func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, i)
			return nil
		})
	}
	f.handler.mailbox.StopWait()

	require.Len(t, order, 20)
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}
