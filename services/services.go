package services

import (
	"context"
	"time"

	"github.com/samber/mo"

	"reminderbot/clients"
	"reminderbot/models"
)

// EventsRepository is the durable store for events, guilds and users.
// Implementations: db.SQLEventsRepository (postgres, sqlite), jsonfile.Repository, boltstore.Repository.
type EventsRepository interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEventByID(ctx context.Context, id string) (mo.Option[*models.Event], error)
	UpdateEvent(ctx context.Context, event *models.Event) error
	UpsertEvent(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListEventsByGuild(ctx context.Context, guildID string) ([]*models.Event, error)
	ListAllEvents(ctx context.Context) ([]*models.Event, error)

	UpsertGuild(ctx context.Context, guild *models.Guild) error
	GetGuildByID(ctx context.Context, id string) (mo.Option[*models.Guild], error)
	DeleteGuild(ctx context.Context, id string) error

	UpsertUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (mo.Option[*models.User], error)
	DeleteUser(ctx context.Context, id string) error

	// Name identifies the backend in logs and metrics
	Name() string
	Close() error
}

// EventCache is the in-memory mirror of active events shared by every engine component
type EventCache interface {
	Get(id string) mo.Option[*models.Event]
	Put(event *models.Event)
	// Insert adds an event only if its ID is not cached yet
	Insert(event *models.Event) error
	Remove(id string) bool
	ListByGuild(guildID string) []*models.Event
	ListAll() []*models.Event
	// Update applies fn to the cached event under the cache's exclusion discipline
	Update(id string, fn func(event *models.Event) error) (*models.Event, error)
	MarkReminded(id string, when time.Time) error
	Flush(ctx context.Context, id string) error
	Sync(ctx context.Context) models.SyncReport
	Repository() EventsRepository
}

// ReactionReconciler keeps each event's reacted users consistent with the platform
type ReactionReconciler interface {
	ApplyReactionAdded(ctx context.Context, event models.ReactionEvent) (bool, error)
	ApplyReactionRemoved(ctx context.Context, event models.ReactionEvent) (bool, error)
	FullResync(eventID string, snapshot []clients.ReactionSnapshot) (*models.Event, error)
	Resync(ctx context.Context, eventID string) (*models.Event, error)
}

// ReminderDispatcher sends a reminder for one event
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, eventID string) (*models.DispatchResult, error)
}

// ReminderScheduler owns the ACTIVE/PAUSED transitions and the periodic tick
type ReminderScheduler interface {
	Pause(ctx context.Context, eventID string) (*models.Event, error)
	Resume(ctx context.Context, eventID string) (*models.Event, error)
	IsDue(event *models.Event, now time.Time) bool
}

// BackendSwitcher migrates the cache's sync target to another repository
type BackendSwitcher interface {
	SwitchBackend(ctx context.Context, next EventsRepository) (*models.MigrationReport, error)
}
