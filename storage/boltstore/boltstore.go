package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/mo"
	bolt "go.etcd.io/bbolt"

	"reminderbot/core"
	"reminderbot/models"
)

var (
	// Bucket names
	bucketEvents = []byte("events")
	bucketGuilds = []byte("guilds")
	bucketUsers  = []byte("users")
)

// Repository stores events in a bbolt file. Event values use the same record layout as the JSON backend.
type Repository struct {
	db              *bolt.DB
	defaultInterval time.Duration
}

func NewRepository(path string, defaultInterval time.Duration) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketGuilds, bucketUsers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db, defaultInterval: defaultInterval}, nil
}

func (r *Repository) Name() string {
	return "bolt"
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Event operations
func (r *Repository) CreateEvent(ctx context.Context, event *models.Event) error {
	return r.putEvent(event, func(existing []byte) error {
		if existing != nil {
			return core.NewValidationError("message_id", "event %s already exists", event.MessageID)
		}
		return nil
	})
}

func (r *Repository) UpdateEvent(ctx context.Context, event *models.Event) error {
	return r.putEvent(event, func(existing []byte) error {
		if existing == nil {
			return core.NewNotFoundError("event", event.MessageID)
		}
		return nil
	})
}

func (r *Repository) UpsertEvent(ctx context.Context, event *models.Event) error {
	return r.putEvent(event, func([]byte) error { return nil })
}

// putEvent stores the event if check accepts the currently stored value (nil when absent)
func (r *Repository) putEvent(event *models.Event, check func(existing []byte) error) error {
	record, err := models.NewEventRecord(event)
	if err != nil {
		return core.NewValidationError("event", "cannot store event %s: %v", event.MessageID, err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		if err := check(b.Get([]byte(event.MessageID))); err != nil {
			return err
		}
		return b.Put([]byte(event.MessageID), data)
	})
}

func (r *Repository) DeleteEvent(ctx context.Context, id string) error {
	return r.delete(bucketEvents, "event", id)
}

func (r *Repository) GetEventByID(ctx context.Context, id string) (mo.Option[*models.Event], error) {
	var event *models.Event
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEvents).Get([]byte(id))
		if data == nil {
			return nil
		}
		decoded, err := r.decodeEvent(data)
		event = decoded
		return err
	})
	if err != nil {
		return mo.None[*models.Event](), err
	}
	if event == nil {
		return mo.None[*models.Event](), nil
	}
	return mo.Some(event), nil
}

func (r *Repository) ListEventsByGuild(ctx context.Context, guildID string) ([]*models.Event, error) {
	return r.listEvents(func(event *models.Event) bool { return event.GuildID == guildID })
}

func (r *Repository) ListAllEvents(ctx context.Context) ([]*models.Event, error) {
	return r.listEvents(func(*models.Event) bool { return true })
}

func (r *Repository) listEvents(keep func(*models.Event) bool) ([]*models.Event, error) {
	events := []*models.Event{}
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEach(func(k, v []byte) error {
			event, err := r.decodeEvent(v)
			if err != nil {
				return fmt.Errorf("failed to decode event %s: %w", k, err)
			}
			if keep(event) {
				events = append(events, event)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	models.SortEvents(events)
	return events, nil
}

func (r *Repository) decodeEvent(data []byte) (*models.Event, error) {
	var record models.EventRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return record.ToEvent(r.defaultInterval)
}

// Guild operations
func (r *Repository) UpsertGuild(ctx context.Context, guild *models.Guild) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGuilds)
		stored := *guild
		if data := b.Get([]byte(guild.ID)); data != nil {
			var existing models.Guild
			if err := json.Unmarshal(data, &existing); err == nil {
				stored.CreatedAt = existing.CreatedAt
			}
		}
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return b.Put([]byte(guild.ID), data)
	})
}

func (r *Repository) GetGuildByID(ctx context.Context, id string) (mo.Option[*models.Guild], error) {
	var guild models.Guild
	found, err := r.get(bucketGuilds, id, &guild)
	if err != nil || !found {
		return mo.None[*models.Guild](), err
	}
	return mo.Some(&guild), nil
}

func (r *Repository) DeleteGuild(ctx context.Context, id string) error {
	return r.delete(bucketGuilds, "guild", id)
}

// User operations
func (r *Repository) UpsertUser(ctx context.Context, user *models.User) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		stored := *user
		if data := b.Get([]byte(user.ID)); data != nil {
			var existing models.User
			if err := json.Unmarshal(data, &existing); err == nil {
				stored.CreatedAt = existing.CreatedAt
			}
		}
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return b.Put([]byte(user.ID), data)
	})
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (mo.Option[*models.User], error) {
	var user models.User
	found, err := r.get(bucketUsers, id, &user)
	if err != nil || !found {
		return mo.None[*models.User](), err
	}
	return mo.Some(&user), nil
}

func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	return r.delete(bucketUsers, "user", id)
}

func (r *Repository) get(bucket []byte, id string, dest any) (bool, error) {
	found := false
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, dest)
	})
	return found, err
}

func (r *Repository) delete(bucket []byte, entity, id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(id)) == nil {
			return core.NewNotFoundError(entity, id)
		}
		return b.Delete([]byte(id))
	})
}
