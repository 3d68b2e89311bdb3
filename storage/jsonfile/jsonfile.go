// Package jsonfile stores events in a single JSON document on disk.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/samber/mo"

	"reminderbot/core"
	"reminderbot/models"
)

const lockRetryDelay = 50 * time.Millisecond

// document is the on-disk layout. Files written by older versions hold only the
// message_id -> record map at the top level; those are read as the events map.
type document struct {
	Events map[string]models.EventRecord `json:"events"`
	Guilds map[string]*models.Guild      `json:"guilds,omitempty"`
	Users  map[string]*models.User       `json:"users,omitempty"`
}

// Repository keeps the whole document in one file, rewritten atomically on every change.
// An exclusive file lock guards each read-modify-write so two processes never interleave.
type Repository struct {
	path            string
	lock            *flock.Flock
	mu              sync.Mutex
	defaultInterval time.Duration
}

// NewRepository opens the document at path, creating its directory if needed.
// Records without an interval load with defaultInterval.
func NewRepository(path string, defaultInterval time.Duration) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Repository{
		path:            path,
		lock:            flock.New(path + ".lock"),
		defaultInterval: defaultInterval,
	}, nil
}

func (r *Repository) Name() string {
	return "json"
}

func (r *Repository) Close() error {
	return r.lock.Close()
}

func (r *Repository) CreateEvent(ctx context.Context, event *models.Event) error {
	return r.update(ctx, func(doc *document) error {
		if _, exists := doc.Events[event.MessageID]; exists {
			return core.NewValidationError("message_id", "event %s already exists", event.MessageID)
		}
		return putEvent(doc, event)
	})
}

func (r *Repository) UpdateEvent(ctx context.Context, event *models.Event) error {
	return r.update(ctx, func(doc *document) error {
		if _, exists := doc.Events[event.MessageID]; !exists {
			return core.NewNotFoundError("event", event.MessageID)
		}
		return putEvent(doc, event)
	})
}

func (r *Repository) UpsertEvent(ctx context.Context, event *models.Event) error {
	return r.update(ctx, func(doc *document) error {
		return putEvent(doc, event)
	})
}

func (r *Repository) DeleteEvent(ctx context.Context, id string) error {
	return r.update(ctx, func(doc *document) error {
		if _, exists := doc.Events[id]; !exists {
			return core.NewNotFoundError("event", id)
		}
		delete(doc.Events, id)
		return nil
	})
}

func (r *Repository) GetEventByID(ctx context.Context, id string) (mo.Option[*models.Event], error) {
	doc, err := r.read(ctx)
	if err != nil {
		return mo.None[*models.Event](), err
	}

	record, ok := doc.Events[id]
	if !ok {
		return mo.None[*models.Event](), nil
	}
	event, err := record.ToEvent(r.defaultInterval)
	if err != nil {
		return mo.None[*models.Event](), fmt.Errorf("failed to decode event %s: %w", id, err)
	}
	return mo.Some(event), nil
}

func (r *Repository) ListEventsByGuild(ctx context.Context, guildID string) ([]*models.Event, error) {
	events, err := r.ListAllEvents(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Event, 0, len(events))
	for _, event := range events {
		if event.GuildID == guildID {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

func (r *Repository) ListAllEvents(ctx context.Context) ([]*models.Event, error) {
	doc, err := r.read(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]*models.Event, 0, len(doc.Events))
	for id, record := range doc.Events {
		event, err := record.ToEvent(r.defaultInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", id, err)
		}
		events = append(events, event)
	}
	models.SortEvents(events)
	return events, nil
}

func (r *Repository) UpsertGuild(ctx context.Context, guild *models.Guild) error {
	return r.update(ctx, func(doc *document) error {
		stored := *guild
		if existing, ok := doc.Guilds[guild.ID]; ok {
			stored.CreatedAt = existing.CreatedAt
		}
		doc.Guilds[guild.ID] = &stored
		return nil
	})
}

func (r *Repository) GetGuildByID(ctx context.Context, id string) (mo.Option[*models.Guild], error) {
	doc, err := r.read(ctx)
	if err != nil {
		return mo.None[*models.Guild](), err
	}
	guild, ok := doc.Guilds[id]
	if !ok {
		return mo.None[*models.Guild](), nil
	}
	return mo.Some(guild), nil
}

func (r *Repository) DeleteGuild(ctx context.Context, id string) error {
	return r.update(ctx, func(doc *document) error {
		if _, ok := doc.Guilds[id]; !ok {
			return core.NewNotFoundError("guild", id)
		}
		delete(doc.Guilds, id)
		return nil
	})
}

func (r *Repository) UpsertUser(ctx context.Context, user *models.User) error {
	return r.update(ctx, func(doc *document) error {
		stored := *user
		if existing, ok := doc.Users[user.ID]; ok {
			stored.CreatedAt = existing.CreatedAt
		}
		doc.Users[user.ID] = &stored
		return nil
	})
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (mo.Option[*models.User], error) {
	doc, err := r.read(ctx)
	if err != nil {
		return mo.None[*models.User](), err
	}
	user, ok := doc.Users[id]
	if !ok {
		return mo.None[*models.User](), nil
	}
	return mo.Some(user), nil
}

func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	return r.update(ctx, func(doc *document) error {
		if _, ok := doc.Users[id]; !ok {
			return core.NewNotFoundError("user", id)
		}
		delete(doc.Users, id)
		return nil
	})
}

func putEvent(doc *document, event *models.Event) error {
	record, err := models.NewEventRecord(event)
	if err != nil {
		return core.NewValidationError("event", "cannot store event %s: %v", event.MessageID, err)
	}
	doc.Events[event.MessageID] = record
	return nil
}

func (r *Repository) read(ctx context.Context) (*document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked, err := r.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return nil, fmt.Errorf("failed to lock %s: %w", r.path, lockError(err))
	}
	defer r.lock.Unlock()

	return r.load()
}

// update runs fn on the current document and writes the result back if fn succeeds
func (r *Repository) update(ctx context.Context, fn func(doc *document) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return fmt.Errorf("failed to lock %s: %w", r.path, lockError(err))
	}
	defer r.lock.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return r.save(doc)
}

func (r *Repository) load() (*document, error) {
	doc := &document{
		Events: make(map[string]models.EventRecord),
		Guilds: make(map[string]*models.Guild),
		Users:  make(map[string]*models.User),
	}

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", r.path, err)
	}

	if _, ok := top["events"]; !ok {
		// legacy layout: the whole file is the events map
		if err := json.Unmarshal(data, &doc.Events); err != nil {
			return nil, fmt.Errorf("failed to parse legacy events in %s: %w", r.path, err)
		}
		return doc, nil
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", r.path, err)
	}
	if doc.Events == nil {
		doc.Events = make(map[string]models.EventRecord)
	}
	if doc.Guilds == nil {
		doc.Guilds = make(map[string]*models.Guild)
	}
	if doc.Users == nil {
		doc.Users = make(map[string]*models.User)
	}
	return doc, nil
}

// save writes the document to a temp file in the same directory and renames it into place
func (r *Repository) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", r.path, err)
	}
	return nil
}

func lockError(err error) error {
	if err != nil {
		return err
	}
	return errors.New("lock is held by another process")
}
