package services

import (
	"context"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"reminderbot/clients"
	"reminderbot/models"
)

// MockEventsRepository is a mock implementation of EventsRepository
type MockEventsRepository struct {
	mock.Mock
}

func (m *MockEventsRepository) CreateEvent(ctx context.Context, event *models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventsRepository) GetEventByID(ctx context.Context, id string) (mo.Option[*models.Event], error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mo.Option[*models.Event]), args.Error(1)
}

func (m *MockEventsRepository) UpdateEvent(ctx context.Context, event *models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventsRepository) UpsertEvent(ctx context.Context, event *models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventsRepository) DeleteEvent(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEventsRepository) ListEventsByGuild(ctx context.Context, guildID string) ([]*models.Event, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Event), args.Error(1)
}

func (m *MockEventsRepository) ListAllEvents(ctx context.Context) ([]*models.Event, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Event), args.Error(1)
}

func (m *MockEventsRepository) UpsertGuild(ctx context.Context, guild *models.Guild) error {
	args := m.Called(ctx, guild)
	return args.Error(0)
}

func (m *MockEventsRepository) GetGuildByID(ctx context.Context, id string) (mo.Option[*models.Guild], error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mo.Option[*models.Guild]), args.Error(1)
}

func (m *MockEventsRepository) DeleteGuild(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEventsRepository) UpsertUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockEventsRepository) GetUserByID(ctx context.Context, id string) (mo.Option[*models.User], error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mo.Option[*models.User]), args.Error(1)
}

func (m *MockEventsRepository) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEventsRepository) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockEventsRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockReactionReconciler is a mock implementation of ReactionReconciler
type MockReactionReconciler struct {
	mock.Mock
}

func (m *MockReactionReconciler) ApplyReactionAdded(ctx context.Context, event models.ReactionEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockReactionReconciler) ApplyReactionRemoved(ctx context.Context, event models.ReactionEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockReactionReconciler) FullResync(
	eventID string,
	snapshot []clients.ReactionSnapshot,
) (*models.Event, error) {
	args := m.Called(eventID, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockReactionReconciler) Resync(ctx context.Context, eventID string) (*models.Event, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

// MockReminderDispatcher is a mock implementation of ReminderDispatcher
type MockReminderDispatcher struct {
	mock.Mock
}

func (m *MockReminderDispatcher) Dispatch(ctx context.Context, eventID string) (*models.DispatchResult, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DispatchResult), args.Error(1)
}

// MockReminderScheduler is a mock implementation of ReminderScheduler
type MockReminderScheduler struct {
	mock.Mock
}

func (m *MockReminderScheduler) Pause(ctx context.Context, eventID string) (*models.Event, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockReminderScheduler) Resume(ctx context.Context, eventID string) (*models.Event, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockReminderScheduler) IsDue(event *models.Event, now time.Time) bool {
	args := m.Called(event, now)
	return args.Bool(0)
}

// MockBackendSwitcher is a mock implementation of BackendSwitcher
type MockBackendSwitcher struct {
	mock.Mock
}

func (m *MockBackendSwitcher) SwitchBackend(ctx context.Context, next EventsRepository) (*models.MigrationReport, error) {
	args := m.Called(ctx, next)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MigrationReport), args.Error(1)
}
