package reminders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/mo"

	"reminderbot/clients"
	"reminderbot/core"
	"reminderbot/core/log"
	"reminderbot/models"
	"reminderbot/services"
)

// WatchOptions customizes a new watch. Zero values fall back to the defaults.
type WatchOptions struct {
	Interval          mo.Option[time.Duration]
	Title             string
	RequiredReactions []string
}

// ConfigureOptions lists the fields to change on a watched event
type ConfigureOptions struct {
	Interval          mo.Option[time.Duration]
	Title             mo.Option[string]
	RequiredReactions []string
}

func (o ConfigureOptions) isEmpty() bool {
	return o.Interval.IsAbsent() && o.Title.IsAbsent() && len(o.RequiredReactions) == 0
}

type RemindersUseCase struct {
	cache           services.EventCache
	reconciler      services.ReactionReconciler
	dispatcher      services.ReminderDispatcher
	scheduler       services.ReminderScheduler
	client          clients.MessagingClient
	clock           core.Clock
	defaultInterval time.Duration
}

func NewRemindersUseCase(
	cache services.EventCache,
	reconciler services.ReactionReconciler,
	dispatcher services.ReminderDispatcher,
	scheduler services.ReminderScheduler,
	client clients.MessagingClient,
	clock core.Clock,
	defaultInterval time.Duration,
) *RemindersUseCase {
	return &RemindersUseCase{
		cache:           cache,
		reconciler:      reconciler,
		dispatcher:      dispatcher,
		scheduler:       scheduler,
		client:          client,
		clock:           clock,
		defaultInterval: defaultInterval,
	}
}

// Watch starts tracking the linked message. Every non-bot guild member becomes a participant,
// and the first reminder is due one interval from now.
func (u *RemindersUseCase) Watch(ctx context.Context, guildID, link string, opts WatchOptions) (*models.Event, error) {
	log.Info("📋 Starting to watch %s in guild %s", link, guildID)

	ref, err := ParseMessageLink(link)
	if err != nil {
		return nil, err
	}
	if ref.GuildID != guildID {
		return nil, core.NewValidationError("link", "message belongs to another server")
	}
	if u.cache.Get(ref.MessageID).IsPresent() {
		return nil, core.NewValidationError("link", "message %s is already watched", ref.MessageID)
	}

	interval := opts.Interval.OrElse(u.defaultInterval)
	if interval < core.MinInterval {
		return nil, core.NewValidationError("interval", "must be at least %s", core.MinInterval)
	}
	required := models.DefaultRequiredReactions
	if len(opts.RequiredReactions) > 0 {
		required = opts.RequiredReactions
	}

	msg, err := u.client.FetchMessage(ctx, ref.ChannelID, ref.MessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", ref.MessageID, err)
	}
	members, err := u.client.ListGuildMembers(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of guild %s: %w", guildID, err)
	}

	now := u.clock.Now()
	participants, err := u.saveIdentities(ctx, guildID, members, now)
	if err != nil {
		return nil, err
	}
	if participants.Len() == 0 {
		log.Warn("⚠️ Guild %s has no eligible members, event %s will never remind anyone", guildID, ref.MessageID)
	}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = titleFromMessage(msg)
	}

	event := &models.Event{
		MessageID:         ref.MessageID,
		ChannelID:         ref.ChannelID,
		GuildID:           guildID,
		Title:             models.TruncateTitle(title),
		Description:       msg.Content,
		Interval:          interval,
		RequiredReactions: slices.Clone(required),
		LastReminder:      now,
		CreatedAt:         now,
		AllUsers:          participants,
		ReactedUsers:      models.NewUserSet(),
	}
	event.Normalize()
	// a concurrent watch of the same message may have won since the check above
	if err := u.cache.Insert(event); err != nil {
		return nil, err
	}

	updated, err := u.reconciler.Resync(ctx, event.MessageID)
	if err != nil {
		if core.IsNotFoundError(err) {
			return nil, fmt.Errorf("message %s disappeared while watching it: %w", event.MessageID, err)
		}
		log.Warn("⚠️ Initial reaction sync for event %s failed, it will be retried before the first reminder: %v",
			event.MessageID, err)
		updated = event
	}

	if err := u.cache.Flush(ctx, event.MessageID); err != nil {
		log.Warn("⚠️ Failed to persist new event %s, will retry on next sync: %v", event.MessageID, err)
	}

	log.Info("📋 Completed successfully - watching event %s with %d participants", event.MessageID, updated.AllUsers.Len())
	return updated, nil
}

func (u *RemindersUseCase) saveIdentities(
	ctx context.Context,
	guildID string,
	members []clients.GuildMember,
	now time.Time,
) (models.UserSet, error) {
	repo := u.cache.Repository()
	if err := repo.UpsertGuild(ctx, &models.Guild{ID: guildID, CreatedAt: now}); err != nil {
		return nil, core.NewPersistenceError("upsert guild", "", err)
	}

	participants := models.NewUserSet()
	for _, member := range members {
		if member.Bot {
			continue
		}
		participants.Add(member.ID)
		user := &models.User{ID: member.ID, Username: member.Username, CreatedAt: now}
		if err := repo.UpsertUser(ctx, user); err != nil {
			return nil, core.NewPersistenceError("upsert user", "", err)
		}
	}
	return participants, nil
}

// titleFromMessage uses the first non-empty content line, then the embed title, then the message ID
func titleFromMessage(msg *clients.DiscordMessage) string {
	for _, line := range strings.Split(msg.Content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	if msg.EmbedTitle != "" {
		return msg.EmbedTitle
	}
	return "Event " + msg.ID
}

// Unwatch stops tracking the event and deletes it from the backing store
func (u *RemindersUseCase) Unwatch(ctx context.Context, guildID, eventID string) (*models.Event, error) {
	log.Info("📋 Starting to unwatch event %s", eventID)

	event, err := u.guildEvent(guildID, eventID)
	if err != nil {
		return nil, err
	}
	u.cache.Remove(eventID)

	if report := u.cache.Sync(ctx); report.HasFailures() {
		log.Warn("⚠️ Sync after unwatching %s had failures, will retry: %v", eventID, report.Err())
	}

	log.Info("📋 Completed successfully - unwatched event %s", eventID)
	return event, nil
}

// List returns the guild's watched events in message ID order
func (u *RemindersUseCase) List(guildID string) []*models.Event {
	return u.cache.ListByGuild(guildID)
}

// NextReminder is when the event becomes due, ignoring tick granularity
func (u *RemindersUseCase) NextReminder(event *models.Event) time.Time {
	return event.LastReminder.Add(event.Interval)
}

// Remind sends a reminder immediately. An empty eventID reminds every active event of the guild;
// failures are collected so one broken event does not block the others.
func (u *RemindersUseCase) Remind(ctx context.Context, guildID, eventID string) ([]*models.DispatchResult, error) {
	log.Info("📋 Starting to send manual reminders in guild %s", guildID)

	var ids []string
	if eventID != "" {
		if _, err := u.guildEvent(guildID, eventID); err != nil {
			return nil, err
		}
		ids = []string{eventID}
	} else {
		for _, event := range u.cache.ListByGuild(guildID) {
			if !event.IsPaused {
				ids = append(ids, event.MessageID)
			}
		}
	}
	if len(ids) == 0 {
		return nil, core.NewNotFoundError("active event in guild", guildID)
	}

	var (
		results []*models.DispatchResult
		errs    []error
	)
	for _, id := range ids {
		result, err := u.dispatcher.Dispatch(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", id, err))
			continue
		}
		results = append(results, result)
	}

	log.Info("📋 Completed successfully - sent %d of %d manual reminders", len(results), len(ids))
	return results, errors.Join(errs...)
}

func (u *RemindersUseCase) Pause(ctx context.Context, guildID, eventID string) (*models.Event, error) {
	if _, err := u.guildEvent(guildID, eventID); err != nil {
		return nil, err
	}
	return u.scheduler.Pause(ctx, eventID)
}

func (u *RemindersUseCase) Resume(ctx context.Context, guildID, eventID string) (*models.Event, error) {
	if _, err := u.guildEvent(guildID, eventID); err != nil {
		return nil, err
	}
	return u.scheduler.Resume(ctx, eventID)
}

// Configure changes the interval, title or required reactions of a watched event.
// Changing the required reactions triggers a resync so reacted users match the new set.
func (u *RemindersUseCase) Configure(
	ctx context.Context,
	guildID, eventID string,
	opts ConfigureOptions,
) (*models.Event, error) {
	log.Info("📋 Starting to configure event %s", eventID)

	if opts.isEmpty() {
		return nil, core.NewValidationError("options", "nothing to change")
	}
	if interval, ok := opts.Interval.Get(); ok && interval < core.MinInterval {
		return nil, core.NewValidationError("interval", "must be at least %s", core.MinInterval)
	}
	if _, err := u.guildEvent(guildID, eventID); err != nil {
		return nil, err
	}

	event, err := u.cache.Update(eventID, func(event *models.Event) error {
		if interval, ok := opts.Interval.Get(); ok {
			event.Interval = interval
		}
		if title, ok := opts.Title.Get(); ok {
			title = strings.TrimSpace(title)
			if title == "" {
				return core.NewValidationError("title", "must not be empty")
			}
			event.Title = models.TruncateTitle(title)
		}
		if len(opts.RequiredReactions) > 0 {
			event.RequiredReactions = slices.Clone(opts.RequiredReactions)
			event.Normalize()
			// only reactions that are still required count until the resync below refreshes them
			reacted := models.NewUserSet()
			for _, reaction := range event.Reactions {
				reacted.Add(reaction.UserID)
			}
			event.ReactedUsers = reacted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(opts.RequiredReactions) > 0 {
		resynced, err := u.reconciler.Resync(ctx, eventID)
		if err != nil {
			log.Warn("⚠️ Failed to resync event %s after changing reactions: %v", eventID, err)
		} else {
			event = resynced
		}
	}

	if err := u.cache.Flush(ctx, eventID); err != nil {
		log.Warn("⚠️ Failed to persist configuration of event %s, will retry on next sync: %v", eventID, err)
	}

	log.Info("📋 Completed successfully - configured event %s", eventID)
	return event, nil
}

// guildEvent loads the event and hides events that belong to other guilds
func (u *RemindersUseCase) guildEvent(guildID, eventID string) (*models.Event, error) {
	event, ok := u.cache.Get(eventID).Get()
	if !ok || event.GuildID != guildID {
		return nil, core.NewNotFoundError("event", eventID)
	}
	return event, nil
}

// Help describes the available commands
func Help(prefix string) string {
	lines := []string{
		"**Reminder commands**",
		fmt.Sprintf("`%swatch <message link> [minutes] [emoji...]` start reminding everyone who has not reacted", prefix),
		fmt.Sprintf("`%sunwatch <message id|link>` stop watching a message", prefix),
		fmt.Sprintf("`%slist` show watched messages", prefix),
		fmt.Sprintf("`%sremind [message id|link]` send reminders now", prefix),
		fmt.Sprintf("`%spause <message id|link>` / `%sresume <message id|link>`", prefix, prefix),
		fmt.Sprintf("`%sinterval <message id|link> <minutes>` change the reminder interval", prefix),
		fmt.Sprintf("`%sreactions <message id|link> <emoji...>` change the emoji that count as an answer", prefix),
		fmt.Sprintf("`%stitle <message id|link> <title>` rename an event", prefix),
		fmt.Sprintf("`%shelp` show this message", prefix),
	}
	return strings.Join(lines, "\n")
}
