package dispatcher

import (
	"context"
	"fmt"
	"time"

	"reminderbot/clients"
	"reminderbot/core"
	"reminderbot/core/log"
	"reminderbot/metrics"
	"reminderbot/models"
	"reminderbot/services"
)

// DefaultMentionCap is the largest mention list reliably delivered in one message
const DefaultMentionCap = 50

type ReminderDispatcher struct {
	cache      services.EventCache
	reconciler services.ReactionReconciler
	client     clients.MessagingClient
	clock      core.Clock
	mentionCap int
	render     Renderer
}

func NewReminderDispatcher(
	cache services.EventCache,
	reconciler services.ReactionReconciler,
	client clients.MessagingClient,
	clock core.Clock,
	mentionCap int,
) *ReminderDispatcher {
	if mentionCap <= 0 {
		mentionCap = DefaultMentionCap
	}
	return &ReminderDispatcher{
		cache:      cache,
		reconciler: reconciler,
		client:     client,
		clock:      clock,
		mentionCap: mentionCap,
		render:     RenderReminder,
	}
}

// WithRenderer replaces the default reminder rendering
func (d *ReminderDispatcher) WithRenderer(render Renderer) *ReminderDispatcher {
	d.render = render
	return d
}

// Dispatch resyncs the event's reactions and reminds every participant who has not answered.
// last_reminder is advanced only when the reminder was delivered or nobody was missing.
func (d *ReminderDispatcher) Dispatch(ctx context.Context, eventID string) (*models.DispatchResult, error) {
	log.Info("📋 Starting to dispatch reminder for event %s", eventID)

	event, err := d.reconciler.Resync(ctx, eventID)
	if err != nil {
		d.recordFailure(err)
		return nil, fmt.Errorf("failed to resync event %s before reminding: %w", eventID, err)
	}

	payload := d.BuildPayload(event)
	now := d.clock.Now()
	result := &models.DispatchResult{
		EventID:    eventID,
		Notified:   len(payload.Mentions),
		Remaining:  payload.Remaining,
		Missing:    event.MissingUsers(),
		RemindedAt: now,
	}

	if payload.MissingCount == 0 {
		log.Info("📋 Everyone answered event %s, no reminder needed", eventID)
		if err := d.markReminded(ctx, eventID, now); err != nil {
			return nil, err
		}
		return result, nil
	}

	content, fields := d.render(payload)
	messageID, err := d.client.SendReminder(ctx, event.ChannelID, content, fields)
	if err != nil {
		d.recordFailure(err)
		if core.IsNotFoundError(err) {
			d.cache.Remove(eventID)
			log.Warn("⚠️ Channel for event %s no longer exists, removed it from the watch list", eventID)
		}
		return nil, fmt.Errorf("failed to send reminder for event %s: %w", eventID, err)
	}
	result.SentMessageID = messageID

	if err := d.markReminded(ctx, eventID, now); err != nil {
		return nil, err
	}

	metrics.RemindersSent.Inc()
	metrics.MentionsSent.Add(float64(result.Notified))
	log.Info("📋 Completed successfully - reminded %d users for event %s (%d more not mentioned)",
		result.Notified, eventID, result.Remaining)
	return result, nil
}

// BuildPayload computes the capped mention list and reaction stats for an event
func (d *ReminderDispatcher) BuildPayload(event *models.Event) models.ReminderPayload {
	missing := event.MissingUsers()
	mentions := missing
	if len(mentions) > d.mentionCap {
		mentions = mentions[:d.mentionCap]
	}

	return models.ReminderPayload{
		EventID:      event.MessageID,
		GuildID:      event.GuildID,
		ChannelID:    event.ChannelID,
		Title:        event.Title,
		Description:  event.Description,
		Interval:     event.Interval,
		Mentions:     mentions,
		Remaining:    len(missing) - len(mentions),
		TotalUsers:   event.AllUsers.Len(),
		ReactedCount: event.ReactedUsers.Len(),
		MissingCount: len(missing),
	}
}

// markReminded advances last_reminder and persists the event right away. A failed write stays
// queued for the next sync, so it is logged rather than returned.
func (d *ReminderDispatcher) markReminded(ctx context.Context, eventID string, now time.Time) error {
	if err := d.cache.MarkReminded(eventID, now); err != nil {
		return fmt.Errorf("failed to record reminder for event %s: %w", eventID, err)
	}
	if err := d.cache.Flush(ctx, eventID); err != nil {
		log.Warn("⚠️ Failed to persist reminder time for event %s, will retry on next sync: %v", eventID, err)
	}
	return nil
}

func (d *ReminderDispatcher) recordFailure(err error) {
	metrics.DispatchFailures.WithLabelValues(string(core.KindOf(err))).Inc()
}

var _ services.ReminderDispatcher = (*ReminderDispatcher)(nil)
