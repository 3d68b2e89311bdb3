package handlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/mo"

	"reminderbot/core"
	"reminderbot/core/log"
	"reminderbot/metrics"
	"reminderbot/models"
	"reminderbot/services/dispatcher"
	"reminderbot/usecases/reminders"
)

var minutesPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// CommandsHandler turns prefixed text commands into use case calls and renders the reply
type CommandsHandler struct {
	usecase *reminders.RemindersUseCase
	prefix  string
}

func NewCommandsHandler(usecase *reminders.RemindersUseCase, prefix string) *CommandsHandler {
	return &CommandsHandler{usecase: usecase, prefix: prefix}
}

type commandFunc func(ctx context.Context, cmd models.CommandEvent, args []string) (string, error)

func (h *CommandsHandler) commands() map[string]commandFunc {
	return map[string]commandFunc{
		"watch":     h.watch,
		"unwatch":   h.unwatch,
		"list":      h.list,
		"remind":    h.remind,
		"pause":     h.pause,
		"resume":    h.resume,
		"interval":  h.interval,
		"reactions": h.reactions,
		"title":     h.title,
		"help":      h.help,
	}
}

// Handle runs the command in cmd.Content. It reports false when the message is not a known command.
func (h *CommandsHandler) Handle(ctx context.Context, cmd models.CommandEvent) (string, bool) {
	content := strings.TrimSpace(cmd.Content)
	if !strings.HasPrefix(content, h.prefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(content, h.prefix))
	if len(fields) == 0 {
		return "", false
	}

	name := strings.ToLower(fields[0])
	run, ok := h.commands()[name]
	if !ok {
		return "", false
	}

	log.Info("📋 Starting to handle command %s from user %s in guild %s", name, cmd.UserID, cmd.GuildID)
	reply, err := run(ctx, cmd, fields[1:])
	outcome := core.OutcomeFromError(err)
	if !outcome.Success {
		metrics.CommandsHandled.WithLabelValues(name, string(outcome.Kind)).Inc()
		log.Warn("⚠️ Command %s failed (%s): %v", name, outcome.Kind, err)
		if reply != "" {
			return reply + "\n" + renderFailure(outcome), true
		}
		return renderFailure(outcome), true
	}

	metrics.CommandsHandled.WithLabelValues(name, "ok").Inc()
	log.Info("📋 Completed successfully - handled command %s", name)
	return reply, true
}

func renderFailure(outcome core.Outcome) string {
	switch outcome.Kind {
	case core.KindValidation:
		return "⚠️ " + outcome.Reason
	case core.KindNotFound:
		return "❓ " + outcome.Reason
	case core.KindTransport:
		return "❌ Discord request failed: " + outcome.Reason
	case core.KindPersistence:
		return "❌ Could not save changes: " + outcome.Reason
	default:
		return "❌ Something went wrong: " + outcome.Reason
	}
}

func usage(format string, args ...any) error {
	return core.NewValidationError("", "usage: "+format, args...)
}

func (h *CommandsHandler) watch(ctx context.Context, cmd models.CommandEvent, args []string) (string, error) {
	if len(args) == 0 {
		return "", usage("%swatch <message link> [minutes] [emoji...]", h.prefix)
	}

	var opts reminders.WatchOptions
	rest := args[1:]
	if len(rest) > 0 && minutesPattern.MatchString(rest[0]) {
		interval, err := core.ParseMinutes("interval", rest[0])
		if err != nil {
			return "", err
		}
		opts.Interval = mo.Some(interval)
		rest = rest[1:]
	}
	if len(rest) > 0 {
		emojis, err := reminders.ParseReactions(rest)
		if err != nil {
			return "", err
		}
		opts.RequiredReactions = emojis
	}

	event, err := h.usecase.Watch(ctx, cmd.GuildID, args[0], opts)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("👀 Watching **%s** (`%s`): %d/%d reacted, reminding every %s until everyone answers with %s.",
		event.Title,
		event.MessageID,
		event.ReactedUsers.Len(),
		event.AllUsers.Len(),
		dispatcher.FormatInterval(event.Interval),
		strings.Join(event.RequiredReactions, " "),
	), nil
}

func (h *CommandsHandler) unwatch(ctx context.Context, cmd models.CommandEvent, args []string) (string, error) {
	id, err := h.eventRef(args, "unwatch")
	if err != nil {
		return "", err
	}
	event, err := h.usecase.Unwatch(ctx, cmd.GuildID, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🛑 Stopped watching **%s**.", event.Title), nil
}

func (h *CommandsHandler) list(_ context.Context, cmd models.CommandEvent, _ []string) (string, error) {
	events := h.usecase.List(cmd.GuildID)
	if len(events) == 0 {
		return "No messages are being watched in this server.", nil
	}

	lines := []string{fmt.Sprintf("**Watched messages (%d)**", len(events))}
	for _, event := range events {
		status := fmt.Sprintf("next reminder <t:%d:R>", h.usecase.NextReminder(event).Unix())
		if event.IsPaused {
			status = "paused"
		}
		lines = append(lines, fmt.Sprintf("`%s` **%s** %d/%d reacted, every %s, %s",
			event.MessageID,
			event.Title,
			event.ReactedUsers.Len(),
			event.AllUsers.Len(),
			dispatcher.FormatInterval(event.Interval),
			status,
		))
	}
	return strings.Join(lines, "\n"), nil
}

func (h *CommandsHandler) remind(ctx context.Context, cmd models.CommandEvent, args []string) (string, error) {
	id := ""
	if len(args) > 0 {
		var err error
		if id, err = reminders.ParseEventRef(args[0]); err != nil {
			return "", err
		}
	}

	results, err := h.usecase.Remind(ctx, cmd.GuildID, id)
	if len(results) == 0 {
		return "", err
	}

	sent, missing := 0, 0
	for _, result := range results {
		if result.SentMessageID != "" {
			sent++
		}
		missing += len(result.Missing)
	}
	reply := fmt.Sprintf("🔔 Sent %d reminder(s), %d user(s) still have to answer.", sent, missing)
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		reply += fmt.Sprintf(" %d event(s) failed.", len(joined.Unwrap()))
	}
	return reply, err
}

func (h *CommandsHandler) pause(ctx context.Context, cmd models.CommandEvent, args []string) (string, error) {
	id, err := h.eventRef(args, "pause")
	if err != nil {
		return "", err
	}
	event, err := h.usecase.Pause(ctx, cmd.GuildID, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("⏸️ Paused reminders for **%s**.", event.Title), nil
}

func (h *CommandsHandler) resume(ctx context.Context, cmd models.CommandEvent, args []string) (string, error) {
	id, err := h.eventRef(args, "resume")
	if err != nil {
		return "", err
	}
	event, err := h.usecase.Resume(ctx, cmd.GuildID, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("▶️ Resumed reminders for **%s**, next one <t:%d:R>.",
		event.Title, h.usecase.NextReminder(event).Unix()), nil
}

func (h *CommandsHandler) interval(ctx context.Context, cmd models.CommandEvent, args []string) (string, error) {
	if len(args) != 2 {
		return "", usage("%sinterval <message id|link> <minutes>", h.prefix)
	}
	id, err := reminders.ParseEventRef(args[0])
	if err != nil {
		return "", err
	}
	interval, err := core.ParseMinutes("interval", args[1])
	if err != nil {
		return "", err
	}

	event, err := h.usecase.Configure(ctx, cmd.GuildID, id, reminders.ConfigureOptions{Interval: mo.Some(interval)})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("⏱️ **%s** now reminds every %s.", event.Title, dispatcher.FormatInterval(event.Interval)), nil
}

func (h *CommandsHandler) reactions(ctx context.Context, cmd models.CommandEvent, args []string) (string, error) {
	if len(args) < 2 {
		return "", usage("%sreactions <message id|link> <emoji...>", h.prefix)
	}
	id, err := reminders.ParseEventRef(args[0])
	if err != nil {
		return "", err
	}
	emojis, err := reminders.ParseReactions(args[1:])
	if err != nil {
		return "", err
	}

	event, err := h.usecase.Configure(ctx, cmd.GuildID, id, reminders.ConfigureOptions{RequiredReactions: emojis})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✏️ **%s** now accepts %s (%d/%d reacted).",
		event.Title,
		strings.Join(event.RequiredReactions, " "),
		event.ReactedUsers.Len(),
		event.AllUsers.Len(),
	), nil
}

func (h *CommandsHandler) title(ctx context.Context, cmd models.CommandEvent, args []string) (string, error) {
	if len(args) < 2 {
		return "", usage("%stitle <message id|link> <title>", h.prefix)
	}
	id, err := reminders.ParseEventRef(args[0])
	if err != nil {
		return "", err
	}

	event, err := h.usecase.Configure(ctx, cmd.GuildID, id, reminders.ConfigureOptions{
		Title: mo.Some(strings.Join(args[1:], " ")),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✏️ Renamed to **%s**.", event.Title), nil
}

func (h *CommandsHandler) help(_ context.Context, _ models.CommandEvent, _ []string) (string, error) {
	return reminders.Help(h.prefix), nil
}

func (h *CommandsHandler) eventRef(args []string, command string) (string, error) {
	if len(args) != 1 {
		return "", usage("%s%s <message id|link>", h.prefix, command)
	}
	return reminders.ParseEventRef(args[0])
}
