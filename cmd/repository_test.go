package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reminderbot/config"
	"reminderbot/models"
	"reminderbot/services"
	"reminderbot/services/backendswitch"
	"reminderbot/services/eventcache"
	"reminderbot/testutils"
)

func testStorageConfig(t *testing.T) config.StorageConfig {
	dir := t.TempDir()
	return config.StorageConfig{
		Backend:    config.BackendJSON,
		DataFile:   filepath.Join(dir, "events.json"),
		BoltFile:   filepath.Join(dir, "events.db"),
		SQLiteFile: filepath.Join(dir, "events.sqlite"),
	}
}

func TestOpenRepository(t *testing.T) {
	ctx := context.Background()
	storage := testStorageConfig(t)

	for _, backend := range []string{config.BackendJSON, config.BackendBolt, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			repo, err := openRepository(ctx, storage, backend, time.Hour)
			require.NoError(t, err)
			defer repo.Close()

			assert.Equal(t, backend, repo.Name())
			events, err := repo.ListAllEvents(ctx)
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}

	t.Run("Unknown backend", func(t *testing.T) {
		_, err := openRepository(ctx, storage, "redis", time.Hour)
		assert.Error(t, err)
	})
}

func TestMigrateBetweenFileBackends(t *testing.T) {
	ctx := context.Background()
	storage := testStorageConfig(t)

	source, err := openRepository(ctx, storage, config.BackendJSON, time.Hour)
	require.NoError(t, err)
	defer source.Close()
	require.NoError(t, source.CreateEvent(ctx, testutils.CreateTestEvent("100", []string{"1", "2"}, []string{"1"})))

	cache := eventcache.NewEventCache(source)
	_, err = cache.Load(ctx)
	require.NoError(t, err)

	target, err := openRepository(ctx, storage, config.BackendSQLite, time.Hour)
	require.NoError(t, err)
	defer target.Close()

	report, err := backendswitch.NewBackendSwitcher(cache).SwitchBackend(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Verified)

	stored, err := target.GetEventByID(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, stored.MustGet().ReactedUsers.Sorted())
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	t.Run("Opens the target and switches to it", func(t *testing.T) {
		cfg := &config.AppConfig{Storage: testStorageConfig(t)}
		switcher := &services.MockBackendSwitcher{}
		switcher.On("SwitchBackend", mock.Anything, mock.MatchedBy(func(next services.EventsRepository) bool {
			return next.Name() == config.BackendBolt
		})).Return(&models.MigrationReport{From: "json", To: "bolt", Copied: 2, Verified: 2}, nil)

		require.NoError(t, migrate(ctx, cfg, switcher, config.BackendBolt))
		switcher.AssertExpectations(t)
	})

	t.Run("Failed switch is reported", func(t *testing.T) {
		cfg := &config.AppConfig{Storage: testStorageConfig(t)}
		switcher := &services.MockBackendSwitcher{}
		switcher.On("SwitchBackend", mock.Anything, mock.Anything).Return(nil, errors.New("verification failed"))

		assert.ErrorContains(t, migrate(ctx, cfg, switcher, config.BackendSQLite), "verification failed")
	})

	t.Run("Same backend is rejected", func(t *testing.T) {
		cfg := &config.AppConfig{Storage: testStorageConfig(t)}
		switcher := &services.MockBackendSwitcher{}

		assert.ErrorContains(t, migrate(ctx, cfg, switcher, config.BackendJSON), "already the configured backend")
		switcher.AssertNotCalled(t, "SwitchBackend", mock.Anything, mock.Anything)
	})

	t.Run("Postgres needs a database url", func(t *testing.T) {
		cfg := &config.AppConfig{Storage: testStorageConfig(t)}
		assert.ErrorContains(t, migrate(ctx, cfg, &services.MockBackendSwitcher{}, config.BackendPostgres), "DB_URL")
	})
}
