package reconciler

import (
	"context"
	"fmt"

	"reminderbot/clients"
	"reminderbot/core"
	"reminderbot/core/log"
	"reminderbot/metrics"
	"reminderbot/models"
	"reminderbot/services"
)

type ReactionReconciler struct {
	cache  services.EventCache
	client clients.MessagingClient
	clock  core.Clock
}

func NewReactionReconciler(
	cache services.EventCache,
	client clients.MessagingClient,
	clock core.Clock,
) *ReactionReconciler {
	return &ReactionReconciler{
		cache:  cache,
		client: client,
		clock:  clock,
	}
}

// ApplyReactionAdded records a required reaction. Reactions on unwatched messages, by bots,
// by users outside the event's participants or with other emoji are ignored.
// Applying the same reaction twice is a no-op.
func (r *ReactionReconciler) ApplyReactionAdded(ctx context.Context, reaction models.ReactionEvent) (bool, error) {
	if reaction.IsBot {
		return false, nil
	}

	event, ok := r.cache.Get(reaction.MessageID).Get()
	if !ok || !event.IsRequired(reaction.Emoji) {
		return false, nil
	}
	if !event.AllUsers.Has(reaction.UserID) {
		log.Debug("Ignoring reaction from user %s who is not a participant of event %s",
			reaction.UserID, reaction.MessageID)
		return false, nil
	}

	changed := false
	_, err := r.cache.Update(reaction.MessageID, func(event *models.Event) error {
		if !event.HasReaction(reaction.UserID, reaction.Emoji) {
			event.Reactions = append(event.Reactions, r.newReaction(event.MessageID, reaction.UserID, reaction.Emoji))
			changed = true
		}
		if event.ReactedUsers.Add(reaction.UserID) {
			changed = true
		}
		return nil
	})
	if err != nil {
		if core.IsNotFoundError(err) {
			// unwatched between the read and the update
			return false, nil
		}
		return false, fmt.Errorf("failed to apply reaction add: %w", err)
	}

	if changed {
		metrics.ReactionUpdates.WithLabelValues("add").Inc()
		log.Debug("User %s reacted %s on event %s", reaction.UserID, reaction.Emoji, reaction.MessageID)
	}
	return changed, nil
}

// ApplyReactionRemoved drops one reaction and removes the user from the reacted set only if they
// hold no other required reaction. The live message is consulted because a user can hold several
// required emoji at once; if it cannot be read, the locally recorded reactions decide.
func (r *ReactionReconciler) ApplyReactionRemoved(ctx context.Context, reaction models.ReactionEvent) (bool, error) {
	event, ok := r.cache.Get(reaction.MessageID).Get()
	if !ok || !event.IsRequired(reaction.Emoji) {
		return false, nil
	}

	snapshot, err := r.client.ListReactions(ctx, event.ChannelID, event.MessageID)
	if err != nil {
		if core.IsNotFoundError(err) {
			r.evict(event.MessageID)
			return true, err
		}
		log.Warn("⚠️ Live reaction check for event %s failed, using recorded reactions: %v", event.MessageID, err)
		snapshot = nil
	}

	changed := false
	_, err = r.cache.Update(reaction.MessageID, func(event *models.Event) error {
		if event.RemoveReaction(reaction.UserID, reaction.Emoji) {
			changed = true
		}

		if snapshot != nil {
			for _, emoji := range heldRequired(event, snapshot, reaction.UserID) {
				if !event.HasReaction(reaction.UserID, emoji) {
					event.Reactions = append(event.Reactions, r.newReaction(event.MessageID, reaction.UserID, emoji))
				}
			}
		}

		if !event.HoldsRequiredReaction(reaction.UserID) && event.ReactedUsers.Remove(reaction.UserID) {
			changed = true
		}
		return nil
	})
	if err != nil {
		if core.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to apply reaction removal: %w", err)
	}

	if changed {
		metrics.ReactionUpdates.WithLabelValues("remove").Inc()
		log.Debug("User %s removed %s on event %s", reaction.UserID, reaction.Emoji, reaction.MessageID)
	}
	return changed, nil
}

// FullResync replaces the event's reactions and reacted users with the given authoritative snapshot.
// Reactions already recorded keep their original ID and timestamp.
func (r *ReactionReconciler) FullResync(eventID string, snapshot []clients.ReactionSnapshot) (*models.Event, error) {
	updated, err := r.cache.Update(eventID, func(event *models.Event) error {
		existing := make(map[string]models.Reaction, len(event.Reactions))
		for _, reaction := range event.Reactions {
			existing[reaction.UserID+"|"+reaction.Emoji] = reaction
		}

		reactions := make([]models.Reaction, 0, len(event.Reactions))
		reacted := models.NewUserSet()
		seen := make(map[string]bool)
		for _, emojiSnapshot := range snapshot {
			if !event.IsRequired(emojiSnapshot.Emoji) {
				continue
			}
			for _, userID := range emojiSnapshot.UserIDs {
				key := userID + "|" + emojiSnapshot.Emoji
				if !event.AllUsers.Has(userID) || seen[key] {
					continue
				}
				seen[key] = true

				reaction, ok := existing[key]
				if !ok {
					reaction = r.newReaction(event.MessageID, userID, emojiSnapshot.Emoji)
				}
				reactions = append(reactions, reaction)
				reacted.Add(userID)
			}
		}

		event.Reactions = reactions
		event.ReactedUsers = reacted
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ReactionUpdates.WithLabelValues("resync").Inc()
	log.Debug("Resynced event %s: %d of %d users reacted", eventID, updated.ReactedUsers.Len(), updated.AllUsers.Len())
	return updated, nil
}

// Resync reads the live reactions of the event's message and applies them with FullResync.
// An event whose message no longer exists is removed from the cache.
func (r *ReactionReconciler) Resync(ctx context.Context, eventID string) (*models.Event, error) {
	event, ok := r.cache.Get(eventID).Get()
	if !ok {
		return nil, core.NewNotFoundError("event", eventID)
	}

	snapshot, err := r.client.ListReactions(ctx, event.ChannelID, event.MessageID)
	if err != nil {
		if core.IsNotFoundError(err) {
			r.evict(eventID)
			return nil, err
		}
		return nil, fmt.Errorf("failed to list reactions for event %s: %w", eventID, err)
	}

	return r.FullResync(eventID, snapshot)
}

func (r *ReactionReconciler) evict(eventID string) {
	if r.cache.Remove(eventID) {
		metrics.ReactionUpdates.WithLabelValues("evict").Inc()
		log.Warn("⚠️ Message for event %s no longer exists, removed it from the watch list", eventID)
	}
}

func (r *ReactionReconciler) newReaction(eventID, userID, emoji string) models.Reaction {
	now := r.clock.Now()
	return models.Reaction{
		ID:        core.NewReactionID(now),
		EventID:   eventID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: now,
	}
}

// heldRequired lists the required emoji the live snapshot still shows for the user
func heldRequired(event *models.Event, snapshot []clients.ReactionSnapshot, userID string) []string {
	var held []string
	for _, emojiSnapshot := range snapshot {
		if !event.IsRequired(emojiSnapshot.Emoji) {
			continue
		}
		for _, id := range emojiSnapshot.UserIDs {
			if id == userID {
				held = append(held, emojiSnapshot.Emoji)
				break
			}
		}
	}
	return held
}

var _ services.ReactionReconciler = (*ReactionReconciler)(nil)
