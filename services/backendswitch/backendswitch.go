package backendswitch

import (
	"context"
	"fmt"

	"reminderbot/core"
	"reminderbot/core/log"
	"reminderbot/models"
	"reminderbot/services"
)

// MigrateFunc copies state into the next repository and returns it once verified
type MigrateFunc = func(ctx context.Context, current services.EventsRepository, cached []*models.Event) (services.EventsRepository, error)

// RepointableCache is an event cache whose sync target can be replaced under its sync lock
type RepointableCache interface {
	Repository() services.EventsRepository
	Repoint(ctx context.Context, migrate MigrateFunc) error
}

type BackendSwitcher struct {
	cache RepointableCache
}

func NewBackendSwitcher(cache RepointableCache) *BackendSwitcher {
	return &BackendSwitcher{cache: cache}
}

// SwitchBackend copies every event from the active repository into next, overlays the cached
// state, verifies next holds exactly the expected events and only then repoints the cache.
// Any failure leaves the previous repository authoritative.
func (s *BackendSwitcher) SwitchBackend(ctx context.Context, next services.EventsRepository) (*models.MigrationReport, error) {
	report := &models.MigrationReport{To: next.Name()}

	err := s.cache.Repoint(ctx, func(
		ctx context.Context,
		current services.EventsRepository,
		cached []*models.Event,
	) (services.EventsRepository, error) {
		report.From = current.Name()
		if current == next {
			return nil, core.NewValidationError("backend", "%s is already the active backend", next.Name())
		}
		log.Info("📋 Starting to migrate events from %s to %s", current.Name(), next.Name())

		source, err := current.ListAllEvents(ctx)
		if err != nil {
			return nil, core.NewPersistenceError("read source events", "", err)
		}

		expected := make(map[string]*models.Event, len(source)+len(cached))
		for _, event := range source {
			expected[event.MessageID] = event
		}
		// cached state is newer than anything the source may have missed
		for _, event := range cached {
			expected[event.MessageID] = event
		}

		for _, id := range sortedIDs(expected) {
			if err := next.UpsertEvent(ctx, expected[id]); err != nil {
				return nil, core.NewPersistenceError("copy event", id, err)
			}
			report.Copied++
		}

		if err := copyIdentities(ctx, current, next, expected); err != nil {
			return nil, err
		}

		verified, err := verify(ctx, next, expected)
		if err != nil {
			return nil, err
		}
		report.Verified = verified
		return next, nil
	})
	if err != nil {
		log.Error("❌ Backend switch to %s aborted, %s stays active: %v", next.Name(), s.cache.Repository().Name(), err)
		return nil, fmt.Errorf("failed to switch backend to %s: %w", next.Name(), err)
	}

	log.Info("📋 Completed successfully - switched from %s to %s with %d events", report.From, report.To, report.Verified)
	return report, nil
}

// copyIdentities copies the guild and user records referenced by the migrated events
func copyIdentities(ctx context.Context, current, next services.EventsRepository, events map[string]*models.Event) error {
	guilds := models.NewUserSet()
	users := models.NewUserSet()
	for _, event := range events {
		guilds.Add(event.GuildID)
		for id := range event.AllUsers {
			users.Add(id)
		}
	}

	for _, id := range guilds.Sorted() {
		guild, err := current.GetGuildByID(ctx, id)
		if err != nil {
			return core.NewPersistenceError("read guild "+id, "", err)
		}
		if g, ok := guild.Get(); ok {
			if err := next.UpsertGuild(ctx, g); err != nil {
				return core.NewPersistenceError("copy guild "+id, "", err)
			}
		}
	}

	for _, id := range users.Sorted() {
		user, err := current.GetUserByID(ctx, id)
		if err != nil {
			return core.NewPersistenceError("read user "+id, "", err)
		}
		if u, ok := user.Get(); ok {
			if err := next.UpsertUser(ctx, u); err != nil {
				return core.NewPersistenceError("copy user "+id, "", err)
			}
		}
	}
	return nil
}

// verify checks that next holds exactly the expected events
func verify(ctx context.Context, next services.EventsRepository, expected map[string]*models.Event) (int, error) {
	stored, err := next.ListAllEvents(ctx)
	if err != nil {
		return 0, core.NewPersistenceError("verify migrated events", "", err)
	}

	if len(stored) != len(expected) {
		return 0, fmt.Errorf("verification failed: %s holds %d events, expected %d", next.Name(), len(stored), len(expected))
	}
	for _, event := range stored {
		if _, ok := expected[event.MessageID]; !ok {
			return 0, fmt.Errorf("verification failed: %s holds unexpected event %s", next.Name(), event.MessageID)
		}
	}
	return len(stored), nil
}

func sortedIDs(events map[string]*models.Event) []string {
	ids := make([]string, 0, len(events))
	for id := range events {
		ids = append(ids, id)
	}
	models.SortIDs(ids)
	return ids
}

var _ services.BackendSwitcher = (*BackendSwitcher)(nil)
