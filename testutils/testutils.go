package testutils

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"reminderbot/models"
)

// PostgresTestConfig holds the connection settings for tests that need a real postgres
type PostgresTestConfig struct {
	DatabaseURL    string
	DatabaseSchema string
}

// LoadPostgresTestConfig loads postgres settings for tests from environment variables
func LoadPostgresTestConfig() (*PostgresTestConfig, error) {
	// Try to load environment variables from various possible locations
	_ = godotenv.Load("../.env.test")
	_ = godotenv.Load(".env.test")
	_ = godotenv.Load()

	databaseURL := os.Getenv("DB_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DB_URL is not set")
	}

	databaseSchema := os.Getenv("DB_SCHEMA")
	if databaseSchema == "" {
		return nil, fmt.Errorf("DB_SCHEMA is not set")
	}

	return &PostgresTestConfig{
		DatabaseURL:    databaseURL,
		DatabaseSchema: databaseSchema,
	}, nil
}

// FakeClock is a manually driven clock. Its Sleep method advances the clock instead of waiting
// and records every requested duration.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Sleeps returns the durations passed to Sleep so far
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// CreateTestEvent builds an event whose participants are the given user IDs
func CreateTestEvent(messageID string, allUsers []string, reacted []string) *models.Event {
	event := &models.Event{
		MessageID:    messageID,
		ChannelID:    "222222222222222222",
		GuildID:      "333333333333333333",
		Title:        "Test event " + messageID,
		Interval:     time.Hour,
		AllUsers:     models.NewUserSet(allUsers...),
		ReactedUsers: models.NewUserSet(reacted...),
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, userID := range reacted {
		event.Reactions = append(event.Reactions, models.Reaction{
			ID:        "rct_" + messageID + "_" + userID,
			EventID:   messageID,
			UserID:    userID,
			Emoji:     models.EmojiYes,
			CreatedAt: event.CreatedAt,
		})
	}
	event.Normalize()
	return event
}
