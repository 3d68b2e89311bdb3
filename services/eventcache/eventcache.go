package eventcache

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/mo"

	"reminderbot/core"
	"reminderbot/core/log"
	"reminderbot/metrics"
	"reminderbot/models"
	"reminderbot/services"
)

// EventCache is the authoritative in-memory mirror of watched events.
// Mutations are visible immediately and flushed to the repository asynchronously by Sync.
type EventCache struct {
	// mu guards events, dirty, removed and version. Critical sections never do I/O.
	mu      sync.Mutex
	events  map[string]*models.Event
	dirty   map[string]uint64
	removed map[string]uint64
	version uint64

	// syncMu serializes flushes and backend switches
	syncMu sync.Mutex

	repoMu sync.RWMutex
	repo   services.EventsRepository
}

// NewEventCache creates an empty cache that syncs to repo
func NewEventCache(repo services.EventsRepository) *EventCache {
	return &EventCache{
		events:  make(map[string]*models.Event),
		dirty:   make(map[string]uint64),
		removed: make(map[string]uint64),
		repo:    repo,
	}
}

// Load rebuilds the cache entirely from the repository, discarding in-memory state
func (c *EventCache) Load(ctx context.Context) (int, error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	repo := c.Repository()
	log.Info("📋 Starting to load events from %s repository", repo.Name())

	events, err := repo.ListAllEvents(ctx)
	if err != nil {
		return 0, core.NewPersistenceError("load events", "", err)
	}

	loaded := make(map[string]*models.Event, len(events))
	unknownGuild := 0
	for _, event := range events {
		event = event.Clone()
		event.Normalize()
		if event.GuildID == models.UnknownGuildID {
			unknownGuild++
		}
		loaded[event.MessageID] = event
	}

	c.mu.Lock()
	c.events = loaded
	c.dirty = make(map[string]uint64)
	c.removed = make(map[string]uint64)
	c.mu.Unlock()

	metrics.WatchedEvents.Set(float64(len(loaded)))
	if unknownGuild > 0 {
		log.Warn("⚠️ %d events have no guild and were assigned to the unknown guild", unknownGuild)
	}
	log.Info("📋 Completed successfully - loaded %d events", len(loaded))
	return len(loaded), nil
}

// Get returns a copy of the cached event
func (c *EventCache) Get(id string) mo.Option[*models.Event] {
	c.mu.Lock()
	defer c.mu.Unlock()

	event, ok := c.events[id]
	if !ok {
		return mo.None[*models.Event]()
	}
	return mo.Some(event.Clone())
}

// Put inserts or replaces an event and queues it for sync
func (c *EventCache) Put(event *models.Event) {
	stored := event.Clone()
	stored.Normalize()

	c.mu.Lock()
	c.events[stored.MessageID] = stored
	delete(c.removed, stored.MessageID)
	c.markDirtyLocked(stored.MessageID)
	count := len(c.events)
	c.mu.Unlock()

	metrics.WatchedEvents.Set(float64(count))
}

// Insert adds an event that is not cached yet. An existing event with the same ID is left
// untouched and a ValidationError is returned.
func (c *EventCache) Insert(event *models.Event) error {
	stored := event.Clone()
	stored.Normalize()

	c.mu.Lock()
	if _, exists := c.events[stored.MessageID]; exists {
		c.mu.Unlock()
		return core.NewValidationError("event", "message %s is already watched", stored.MessageID)
	}
	c.events[stored.MessageID] = stored
	delete(c.removed, stored.MessageID)
	c.markDirtyLocked(stored.MessageID)
	count := len(c.events)
	c.mu.Unlock()

	metrics.WatchedEvents.Set(float64(count))
	return nil
}

// Remove evicts an event and queues its deletion from the repository
func (c *EventCache) Remove(id string) bool {
	c.mu.Lock()
	_, ok := c.events[id]
	if ok {
		delete(c.events, id)
		delete(c.dirty, id)
		c.version++
		c.removed[id] = c.version
	}
	count := len(c.events)
	c.mu.Unlock()

	metrics.WatchedEvents.Set(float64(count))
	return ok
}

// ListByGuild returns copies of the guild's events ordered by message ID
func (c *EventCache) ListByGuild(guildID string) []*models.Event {
	return c.list(func(e *models.Event) bool { return e.GuildID == guildID })
}

// ListAll returns copies of every cached event ordered by message ID
func (c *EventCache) ListAll() []*models.Event {
	return c.list(func(*models.Event) bool { return true })
}

func (c *EventCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *EventCache) list(keep func(*models.Event) bool) []*models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := sortedKeys(c.events)
	out := make([]*models.Event, 0, len(ids))
	for _, id := range ids {
		if event := c.events[id]; keep(event) {
			out = append(out, event.Clone())
		}
	}
	return out
}

// Update runs a read-modify-write on one event. fn receives a private copy; the copy
// replaces the cached event only when fn succeeds, so a failed fn never leaves partial state.
// fn runs inside the cache's critical section and must not block.
func (c *EventCache) Update(id string, fn func(event *models.Event) error) (*models.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.events[id]
	if !ok {
		return nil, core.NewNotFoundError("event", id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.MessageID = id
	next.Normalize()

	c.events[id] = next
	c.markDirtyLocked(id)
	return next.Clone(), nil
}

// MarkReminded advances last_reminder; it never moves backwards
func (c *EventCache) MarkReminded(id string, when time.Time) error {
	_, err := c.Update(id, func(event *models.Event) error {
		if when.After(event.LastReminder) {
			event.LastReminder = when.UTC()
		}
		return nil
	})
	return err
}

// MarkAllDirty queues every cached event for the next sync
func (c *EventCache) MarkAllDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.events {
		c.markDirtyLocked(id)
	}
}

// Repository returns the current sync target
func (c *EventCache) Repository() services.EventsRepository {
	c.repoMu.RLock()
	defer c.repoMu.RUnlock()
	return c.repo
}

// Flush persists a single event immediately if it has pending changes
func (c *EventCache) Flush(ctx context.Context, id string) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	c.mu.Lock()
	version, isDirty := c.dirty[id]
	event, exists := c.events[id]
	if exists {
		event = event.Clone()
	}
	c.mu.Unlock()

	if !isDirty || !exists {
		return nil
	}

	if err := c.Repository().UpsertEvent(ctx, event); err != nil {
		metrics.SyncFailures.Inc()
		return core.NewPersistenceError("upsert", id, err)
	}

	c.clearDirty(id, version)
	metrics.SyncedEvents.Inc()
	return nil
}

// Sync flushes every pending mutation to the repository. It is a no-op when nothing
// changed. A failing event does not block the others; failures are collected in the report.
func (c *EventCache) Sync(ctx context.Context) models.SyncReport {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	return c.syncLocked(ctx, c.Repository())
}

// Repoint flushes pending changes to the current repository, then lets migrate copy state
// into the next one. The sync target changes only if migrate succeeds; flushes are blocked
// for the whole operation so no write can land in the old backend after the copy.
func (c *EventCache) Repoint(
	ctx context.Context,
	migrate func(ctx context.Context, current services.EventsRepository, cached []*models.Event) (services.EventsRepository, error),
) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	current := c.Repository()
	report := c.syncLocked(ctx, current)
	if report.HasFailures() {
		log.Warn("⚠️ %d events failed to flush to %s before switching backends; cached state will be copied instead",
			len(report.Failures), current.Name())
	}

	next, err := migrate(ctx, current, c.ListAll())
	if err != nil {
		return err
	}

	c.repoMu.Lock()
	c.repo = next
	c.repoMu.Unlock()
	return nil
}

func (c *EventCache) syncLocked(ctx context.Context, repo services.EventsRepository) models.SyncReport {
	report := models.SyncReport{Failures: make(map[string]error)}

	c.mu.Lock()
	deletes := maps.Clone(c.removed)
	upserts := make(map[string]*models.Event, len(c.dirty))
	versions := maps.Clone(c.dirty)
	for id := range c.dirty {
		if event, ok := c.events[id]; ok {
			upserts[id] = event.Clone()
		}
	}
	c.mu.Unlock()

	if len(deletes) == 0 && len(upserts) == 0 {
		return report
	}

	log.Info("📋 Starting to sync %d changed and %d removed events to %s", len(upserts), len(deletes), repo.Name())

	for _, id := range sortedKeys(deletes) {
		if err := repo.DeleteEvent(ctx, id); err != nil && !core.IsNotFoundError(err) {
			report.Failures[id] = core.NewPersistenceError("delete", id, err)
			continue
		}
		c.mu.Lock()
		if c.removed[id] == deletes[id] {
			delete(c.removed, id)
		}
		c.mu.Unlock()
		report.Deleted++
	}

	for _, id := range sortedKeys(upserts) {
		if err := repo.UpsertEvent(ctx, upserts[id]); err != nil {
			report.Failures[id] = core.NewPersistenceError("upsert", id, err)
			continue
		}
		c.clearDirty(id, versions[id])
		report.Persisted++
	}

	metrics.SyncedEvents.Add(float64(report.Persisted))
	metrics.SyncFailures.Add(float64(len(report.Failures)))

	if report.HasFailures() {
		log.Warn("⚠️ Sync to %s finished with %d failures: %v", repo.Name(), len(report.Failures), report.Err())
	}
	log.Info("📋 Completed successfully - synced %d events, deleted %d", report.Persisted, report.Deleted)
	return report
}

func (c *EventCache) markDirtyLocked(id string) {
	c.version++
	c.dirty[id] = c.version
}

// clearDirty drops the dirty mark only if no mutation happened after the flushed snapshot
func (c *EventCache) clearDirty(id string, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty[id] == version {
		delete(c.dirty, id)
	}
}

// PendingChanges reports how many events wait for the next sync
func (c *EventCache) PendingChanges() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty) + len(c.removed)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := slices.Collect(maps.Keys(m))
	models.SortIDs(keys)
	return keys
}

var _ services.EventCache = (*EventCache)(nil)

// String is used in debug logs
func (c *EventCache) String() string {
	return fmt.Sprintf("EventCache(events=%d, pending=%d)", c.Len(), c.PendingChanges())
}
