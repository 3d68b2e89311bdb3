package handlers

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/gammazero/workerpool"

	"reminderbot/clients"
	"reminderbot/core"
	"reminderbot/core/log"
	"reminderbot/models"
	"reminderbot/services"
	"reminderbot/usecases/reminders"
)

// GatewayIntents are the gateway events the bot needs. Members and message content are privileged.
const GatewayIntents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsMessageContent

type DiscordEventsHandler struct {
	session    *discordgo.Session
	client     clients.MessagingClient
	reconciler services.ReactionReconciler
	usecase    *reminders.RemindersUseCase
	commands   *CommandsHandler
	// mailbox applies reaction and delete events one at a time in gateway order
	mailbox *workerpool.WorkerPool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewDiscordEventsHandler(
	session *discordgo.Session,
	client clients.MessagingClient,
	reconciler services.ReactionReconciler,
	usecase *reminders.RemindersUseCase,
	commands *CommandsHandler,
) *DiscordEventsHandler {
	ctx, cancel := context.WithCancel(context.Background())
	handler := &DiscordEventsHandler{
		session:    session,
		client:     client,
		reconciler: reconciler,
		usecase:    usecase,
		commands:   commands,
		mailbox:    workerpool.New(1),
		ctx:        ctx,
		cancel:     cancel,
	}

	if session != nil {
		session.AddHandler(handler.handleReactionAddedEvent)
		session.AddHandler(handler.handleReactionRemovedEvent)
		session.AddHandler(handler.handleReactionsClearedEvent)
		session.AddHandler(handler.handleMessageDeletedEvent)
		session.AddHandler(handler.handleMessagesBulkDeletedEvent)
		session.AddHandler(handler.handleMessageCreatedEvent)
		session.Identify.Intents = GatewayIntents
	}

	return handler
}

// StartBot opens the Discord connection and starts listening for events
func (h *DiscordEventsHandler) StartBot() error {
	if err := h.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	log.Info("🤖 Discord bot is now running and listening for events")
	return nil
}

// StopBot closes the gateway, then drains the events already queued
func (h *DiscordEventsHandler) StopBot() {
	if h.session != nil {
		if err := h.session.Close(); err != nil {
			log.Warn("⚠️ Failed to close Discord session: %v", err)
		}
	}
	h.mailbox.StopWait()
	h.cancel()
	log.Info("🤖 Discord bot stopped")
}

func (h *DiscordEventsHandler) submit(kind, messageID string, fn func(ctx context.Context) error) {
	h.mailbox.Submit(func() {
		if err := fn(h.ctx); err != nil {
			log.Error("❌ Failed to process %s for message %s: %v", kind, messageID, err)
		}
	})
}

func (h *DiscordEventsHandler) handleReactionAddedEvent(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.GuildID == "" {
		return
	}
	event := mapReactionAdded(r, selfID(s))
	h.submit("reaction add", event.MessageID, func(ctx context.Context) error {
		return h.processReactionAdded(ctx, event)
	})
}

func (h *DiscordEventsHandler) handleReactionRemovedEvent(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if r.GuildID == "" {
		return
	}
	event := mapReactionRemoved(r, selfID(s))
	h.submit("reaction remove", event.MessageID, func(ctx context.Context) error {
		return h.processReactionRemoved(ctx, event)
	})
}

func (h *DiscordEventsHandler) handleReactionsClearedEvent(_ *discordgo.Session, r *discordgo.MessageReactionRemoveAll) {
	if r.GuildID == "" {
		return
	}
	messageID := r.MessageID
	h.submit("reaction clear", messageID, func(ctx context.Context) error {
		return h.processReactionsCleared(ctx, messageID)
	})
}

func (h *DiscordEventsHandler) handleMessageDeletedEvent(_ *discordgo.Session, m *discordgo.MessageDelete) {
	if m.GuildID == "" {
		return
	}
	guildID, messageID := m.GuildID, m.ID
	h.submit("message delete", messageID, func(ctx context.Context) error {
		return h.processMessageDeleted(ctx, guildID, messageID)
	})
}

func (h *DiscordEventsHandler) handleMessagesBulkDeletedEvent(_ *discordgo.Session, m *discordgo.MessageDeleteBulk) {
	if m.GuildID == "" {
		return
	}
	for _, messageID := range m.Messages {
		guildID, messageID := m.GuildID, messageID
		h.submit("message delete", messageID, func(ctx context.Context) error {
			return h.processMessageDeleted(ctx, guildID, messageID)
		})
	}
}

// handleMessageCreatedEvent runs text commands on the gateway goroutine; the cache is safe for
// concurrent use so slow commands do not hold up reaction processing
func (h *DiscordEventsHandler) handleMessageCreatedEvent(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID == "" || m.Author == nil || m.Author.Bot {
		return
	}
	h.processCommand(h.ctx, models.CommandEvent{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		UserID:    m.Author.ID,
		Content:   m.Content,
	})
}

func (h *DiscordEventsHandler) processReactionAdded(ctx context.Context, event models.ReactionEvent) error {
	changed, err := h.reconciler.ApplyReactionAdded(ctx, event)
	if err != nil {
		return err
	}
	if changed {
		log.Info("🤖 Recorded %s from user %s on event %s", event.Emoji, event.UserID, event.MessageID)
	}
	return nil
}

func (h *DiscordEventsHandler) processReactionRemoved(ctx context.Context, event models.ReactionEvent) error {
	changed, err := h.reconciler.ApplyReactionRemoved(ctx, event)
	if err != nil {
		return err
	}
	if changed {
		log.Info("🤖 Removed %s from user %s on event %s", event.Emoji, event.UserID, event.MessageID)
	}
	return nil
}

func (h *DiscordEventsHandler) processReactionsCleared(ctx context.Context, messageID string) error {
	_, err := h.reconciler.Resync(ctx, messageID)
	if err != nil && core.IsNotFoundError(err) {
		// not watched, or the message is gone and the event was evicted
		return nil
	}
	return err
}

func (h *DiscordEventsHandler) processMessageDeleted(ctx context.Context, guildID, messageID string) error {
	event, err := h.usecase.Unwatch(ctx, guildID, messageID)
	if err != nil {
		if core.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	log.Info("🤖 Watched message %s (%s) was deleted, stopped watching it", messageID, event.Title)
	return nil
}

func (h *DiscordEventsHandler) processCommand(ctx context.Context, cmd models.CommandEvent) {
	reply, handled := h.commands.Handle(ctx, cmd)
	if !handled || reply == "" {
		return
	}
	if _, err := h.client.SendMessage(ctx, cmd.ChannelID, reply); err != nil {
		log.Error("❌ Failed to reply to command in channel %s: %v", cmd.ChannelID, err)
	}
}

func selfID(s *discordgo.Session) string {
	if s == nil || s.State == nil || s.State.User == nil {
		return ""
	}
	return s.State.User.ID
}

// mapReactionAdded maps a gateway reaction add to the engine model. The gateway only includes
// the member for adds, so this is the only place bot reactions can be recognised without a lookup.
func mapReactionAdded(r *discordgo.MessageReactionAdd, selfID string) models.ReactionEvent {
	event := models.ReactionEvent{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     models.NormalizeEmoji(r.Emoji.APIName()),
	}
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		event.IsBot = true
	}
	if selfID != "" && r.UserID == selfID {
		event.IsBot = true
	}
	return event
}

func mapReactionRemoved(r *discordgo.MessageReactionRemove, selfID string) models.ReactionEvent {
	return models.ReactionEvent{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     models.NormalizeEmoji(r.Emoji.APIName()),
		IsBot:     selfID != "" && r.UserID == selfID,
	}
}
