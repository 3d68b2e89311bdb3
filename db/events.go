package db

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"

	"reminderbot/core"
	dbtx "reminderbot/db/tx"
	"reminderbot/models"
)

//go:embed schema.sql
var schemaSQL string

// SQLEventsRepository stores events in postgres or SQLite. Queries are written with '?'
// placeholders and rebound for the connection's driver.
type SQLEventsRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for events table
var eventsColumns = []string{
	"message_id",
	"channel_id",
	"guild_id",
	"title",
	"description",
	"interval_ms",
	"required_reactions",
	"is_paused",
	"last_reminder",
	"created_at",
}

type eventRow struct {
	MessageID         string       `db:"message_id"`
	ChannelID         string       `db:"channel_id"`
	GuildID           string       `db:"guild_id"`
	Title             string       `db:"title"`
	Description       string       `db:"description"`
	IntervalMs        int64        `db:"interval_ms"`
	RequiredReactions string       `db:"required_reactions"`
	IsPaused          bool         `db:"is_paused"`
	LastReminder      sql.NullTime `db:"last_reminder"`
	CreatedAt         time.Time    `db:"created_at"`
}

type participantRow struct {
	EventID    string `db:"event_id"`
	UserID     string `db:"user_id"`
	HasReacted bool   `db:"has_reacted"`
}

type reactionRow struct {
	ID        string    `db:"id"`
	EventID   string    `db:"event_id"`
	UserID    string    `db:"user_id"`
	Emoji     string    `db:"emoji"`
	CreatedAt time.Time `db:"created_at"`
}

// NewSQLEventsRepository wraps an open connection. schema is only used on postgres; empty means unqualified tables.
func NewSQLEventsRepository(db *sqlx.DB, schema string) *SQLEventsRepository {
	if db.DriverName() != DriverPostgres {
		schema = ""
	}
	return &SQLEventsRepository{db: db, schema: schema}
}

func (r *SQLEventsRepository) Name() string {
	if r.db.DriverName() == DriverSQLite {
		return "sqlite"
	}
	return r.db.DriverName()
}

func (r *SQLEventsRepository) Close() error {
	return r.db.Close()
}

// table returns the schema-qualified table name
func (r *SQLEventsRepository) table(name string) string {
	if r.schema == "" {
		return name
	}
	return r.schema + "." + name
}

// EnsureSchema creates the tables if they do not exist
func (r *SQLEventsRepository) EnsureSchema(ctx context.Context) error {
	prefix := ""
	if r.schema != "" {
		if _, err := r.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", r.schema)); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", r.schema, err)
		}
		prefix = r.schema + "."
	}

	ddl := strings.ReplaceAll(schemaSQL, "{{prefix}}", prefix)
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *SQLEventsRepository) CreateEvent(ctx context.Context, event *models.Event) error {
	return dbtx.InTransaction(ctx, r.db, func(ctx context.Context) error {
		row, err := toEventRow(event)
		if err != nil {
			return err
		}

		q := dbtx.GetTransactional(ctx, r.db)
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			r.table("events"), strings.Join(eventsColumns, ", "), placeholders(len(eventsColumns)))
		if _, err := q.ExecContext(ctx, q.Rebind(query), row.args()...); err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}

		return r.replaceChildren(ctx, event)
	})
}

func (r *SQLEventsRepository) UpdateEvent(ctx context.Context, event *models.Event) error {
	return dbtx.InTransaction(ctx, r.db, func(ctx context.Context) error {
		row, err := toEventRow(event)
		if err != nil {
			return err
		}

		sets := make([]string, 0, len(eventsColumns)-1)
		for _, column := range eventsColumns[1:] {
			sets = append(sets, column+" = ?")
		}

		q := dbtx.GetTransactional(ctx, r.db)
		query := fmt.Sprintf(`UPDATE %s SET %s WHERE message_id = ?`, r.table("events"), strings.Join(sets, ", "))
		args := append(row.args()[1:], row.MessageID)
		result, err := q.ExecContext(ctx, q.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}
		if err := requireAffected(result, "event", event.MessageID); err != nil {
			return err
		}

		return r.replaceChildren(ctx, event)
	})
}

// UpsertEvent writes the whole event aggregate in one transaction; participants and
// reactions are replaced atomically.
func (r *SQLEventsRepository) UpsertEvent(ctx context.Context, event *models.Event) error {
	return dbtx.InTransaction(ctx, r.db, func(ctx context.Context) error {
		row, err := toEventRow(event)
		if err != nil {
			return err
		}

		updates := make([]string, 0, len(eventsColumns)-1)
		for _, column := range eventsColumns[1:] {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", column, column))
		}

		q := dbtx.GetTransactional(ctx, r.db)
		query := fmt.Sprintf(`
			INSERT INTO %s (%s) VALUES (%s)
			ON CONFLICT (message_id) DO UPDATE SET %s`,
			r.table("events"), strings.Join(eventsColumns, ", "), placeholders(len(eventsColumns)),
			strings.Join(updates, ", "))
		if _, err := q.ExecContext(ctx, q.Rebind(query), row.args()...); err != nil {
			return fmt.Errorf("failed to upsert event: %w", err)
		}

		return r.replaceChildren(ctx, event)
	})
}

func (r *SQLEventsRepository) replaceChildren(ctx context.Context, event *models.Event) error {
	q := dbtx.GetTransactional(ctx, r.db)

	if err := r.deleteChildren(ctx, event.MessageID); err != nil {
		return err
	}

	insertParticipant := q.Rebind(fmt.Sprintf(
		`INSERT INTO %s (event_id, user_id, has_reacted) VALUES (?, ?, ?)`, r.table("event_participants")))
	for _, userID := range event.AllUsers.Sorted() {
		if _, err := q.ExecContext(ctx, insertParticipant, event.MessageID, userID, event.ReactedUsers.Has(userID)); err != nil {
			return fmt.Errorf("failed to insert participant %s: %w", userID, err)
		}
	}

	insertReaction := q.Rebind(fmt.Sprintf(
		`INSERT INTO %s (id, event_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?, ?)`, r.table("event_reactions")))
	for _, reaction := range event.Reactions {
		createdAt := reaction.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		id := reaction.ID
		if id == "" {
			id = core.NewReactionID(createdAt)
		}
		if _, err := q.ExecContext(ctx, insertReaction, id, event.MessageID, reaction.UserID, reaction.Emoji, createdAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert reaction %s: %w", id, err)
		}
	}

	return nil
}

func (r *SQLEventsRepository) deleteChildren(ctx context.Context, eventID string) error {
	q := dbtx.GetTransactional(ctx, r.db)
	for _, table := range []string{"event_reactions", "event_participants"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE event_id = ?`, r.table(table))
		if _, err := q.ExecContext(ctx, q.Rebind(query), eventID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func (r *SQLEventsRepository) DeleteEvent(ctx context.Context, id string) error {
	return dbtx.InTransaction(ctx, r.db, func(ctx context.Context) error {
		if err := r.deleteChildren(ctx, id); err != nil {
			return err
		}

		q := dbtx.GetTransactional(ctx, r.db)
		query := fmt.Sprintf(`DELETE FROM %s WHERE message_id = ?`, r.table("events"))
		result, err := q.ExecContext(ctx, q.Rebind(query), id)
		if err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		return requireAffected(result, "event", id)
	})
}

func (r *SQLEventsRepository) GetEventByID(ctx context.Context, id string) (mo.Option[*models.Event], error) {
	if id == "" {
		return mo.None[*models.Event](), fmt.Errorf("event ID cannot be empty")
	}

	events, err := r.loadEvents(ctx, "message_id = ?", id)
	if err != nil {
		return mo.None[*models.Event](), err
	}
	if len(events) == 0 {
		return mo.None[*models.Event](), nil
	}
	return mo.Some(events[0]), nil
}

func (r *SQLEventsRepository) ListEventsByGuild(ctx context.Context, guildID string) ([]*models.Event, error) {
	return r.loadEvents(ctx, "guild_id = ?", guildID)
}

func (r *SQLEventsRepository) ListAllEvents(ctx context.Context) ([]*models.Event, error) {
	return r.loadEvents(ctx, "1 = 1")
}

// loadEvents reads the events matching where together with their participants and reactions
func (r *SQLEventsRepository) loadEvents(ctx context.Context, where string, args ...any) ([]*models.Event, error) {
	q := dbtx.GetTransactional(ctx, r.db)

	var rows []eventRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY message_id`,
		strings.Join(eventsColumns, ", "), r.table("events"), where)
	if err := q.SelectContext(ctx, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}
	if len(rows) == 0 {
		return []*models.Event{}, nil
	}

	subquery := fmt.Sprintf(`SELECT message_id FROM %s WHERE %s`, r.table("events"), where)

	var participants []participantRow
	query = fmt.Sprintf(`SELECT event_id, user_id, has_reacted FROM %s WHERE event_id IN (%s)`,
		r.table("event_participants"), subquery)
	if err := q.SelectContext(ctx, &participants, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to select participants: %w", err)
	}

	var reactions []reactionRow
	query = fmt.Sprintf(`SELECT id, event_id, user_id, emoji, created_at FROM %s WHERE event_id IN (%s) ORDER BY created_at, id`,
		r.table("event_reactions"), subquery)
	if err := q.SelectContext(ctx, &reactions, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to select reactions: %w", err)
	}

	events := make([]*models.Event, 0, len(rows))
	byID := make(map[string]*models.Event, len(rows))
	for _, row := range rows {
		event, err := row.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
		byID[event.MessageID] = event
	}

	for _, p := range participants {
		event, ok := byID[p.EventID]
		if !ok {
			continue
		}
		event.AllUsers.Add(p.UserID)
		if p.HasReacted {
			event.ReactedUsers.Add(p.UserID)
		}
	}
	for _, reaction := range reactions {
		event, ok := byID[reaction.EventID]
		if !ok {
			continue
		}
		event.Reactions = append(event.Reactions, models.Reaction{
			ID:        reaction.ID,
			EventID:   reaction.EventID,
			UserID:    reaction.UserID,
			Emoji:     reaction.Emoji,
			CreatedAt: reaction.CreatedAt.UTC(),
		})
	}

	models.SortEvents(events)
	for _, event := range events {
		event.Normalize()
	}
	return events, nil
}

func (r *SQLEventsRepository) UpsertGuild(ctx context.Context, guild *models.Guild) error {
	q := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`, r.table("guilds"))
	if _, err := q.ExecContext(ctx, q.Rebind(query), guild.ID, guild.Name, createdAtOrNow(guild.CreatedAt)); err != nil {
		return fmt.Errorf("failed to upsert guild: %w", err)
	}
	return nil
}

func (r *SQLEventsRepository) GetGuildByID(ctx context.Context, id string) (mo.Option[*models.Guild], error) {
	q := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`SELECT id, name, created_at FROM %s WHERE id = ?`, r.table("guilds"))

	var guild models.Guild
	if err := q.GetContext(ctx, &guild, q.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*models.Guild](), nil
		}
		return mo.None[*models.Guild](), fmt.Errorf("failed to get guild by ID: %w", err)
	}
	guild.CreatedAt = guild.CreatedAt.UTC()
	return mo.Some(&guild), nil
}

func (r *SQLEventsRepository) DeleteGuild(ctx context.Context, id string) error {
	q := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.table("guilds"))
	result, err := q.ExecContext(ctx, q.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("failed to delete guild: %w", err)
	}
	return requireAffected(result, "guild", id)
}

func (r *SQLEventsRepository) UpsertUser(ctx context.Context, user *models.User) error {
	q := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`
		INSERT INTO %s (id, username, is_bot, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET username = excluded.username, is_bot = excluded.is_bot`, r.table("users"))
	if _, err := q.ExecContext(ctx, q.Rebind(query), user.ID, user.Username, user.IsBot, createdAtOrNow(user.CreatedAt)); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (r *SQLEventsRepository) GetUserByID(ctx context.Context, id string) (mo.Option[*models.User], error) {
	q := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`SELECT id, username, is_bot, created_at FROM %s WHERE id = ?`, r.table("users"))

	var user models.User
	if err := q.GetContext(ctx, &user, q.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*models.User](), nil
		}
		return mo.None[*models.User](), fmt.Errorf("failed to get user by ID: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return mo.Some(&user), nil
}

func (r *SQLEventsRepository) DeleteUser(ctx context.Context, id string) error {
	q := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.table("users"))
	result, err := q.ExecContext(ctx, q.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result, "user", id)
}

func toEventRow(event *models.Event) (eventRow, error) {
	if event.MessageID == "" {
		return eventRow{}, core.NewValidationError("message_id", "event ID cannot be empty")
	}

	reactions, err := json.Marshal(event.RequiredReactions)
	if err != nil {
		return eventRow{}, fmt.Errorf("failed to encode required reactions: %w", err)
	}

	guildID := event.GuildID
	if guildID == "" {
		guildID = models.UnknownGuildID
	}

	row := eventRow{
		MessageID:         event.MessageID,
		ChannelID:         event.ChannelID,
		GuildID:           guildID,
		Title:             event.Title,
		Description:       event.Description,
		IntervalMs:        event.Interval.Milliseconds(),
		RequiredReactions: string(reactions),
		IsPaused:          event.IsPaused,
		CreatedAt:         createdAtOrNow(event.CreatedAt),
	}
	if !event.LastReminder.IsZero() {
		row.LastReminder = sql.NullTime{Time: event.LastReminder.UTC(), Valid: true}
	}
	return row, nil
}

// args returns the row's values in eventsColumns order
func (row eventRow) args() []any {
	return []any{
		row.MessageID,
		row.ChannelID,
		row.GuildID,
		row.Title,
		row.Description,
		row.IntervalMs,
		row.RequiredReactions,
		row.IsPaused,
		row.LastReminder,
		row.CreatedAt,
	}
}

func (row eventRow) toEvent() (*models.Event, error) {
	var required []string
	if err := json.Unmarshal([]byte(row.RequiredReactions), &required); err != nil {
		return nil, fmt.Errorf("failed to decode required reactions of event %s: %w", row.MessageID, err)
	}

	event := &models.Event{
		MessageID:         row.MessageID,
		ChannelID:         row.ChannelID,
		GuildID:           row.GuildID,
		Title:             row.Title,
		Description:       row.Description,
		Interval:          time.Duration(row.IntervalMs) * time.Millisecond,
		RequiredReactions: required,
		IsPaused:          row.IsPaused,
		CreatedAt:         row.CreatedAt.UTC(),
		AllUsers:          models.NewUserSet(),
		ReactedUsers:      models.NewUserSet(),
	}
	if row.LastReminder.Valid {
		event.LastReminder = row.LastReminder.Time.UTC()
	}
	return event, nil
}

func requireAffected(result sql.Result, entity, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return core.NewNotFoundError(entity, id)
	}
	return nil
}

func createdAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
