package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/codeGROOVE-dev/retry"

	"reminderbot/clients"
	"reminderbot/core"
	"reminderbot/core/log"
	"reminderbot/models"
)

const (
	reactionsPageSize = 100
	membersPageSize   = 1000
	reminderEmbedName = "Reminder status"
)

// DiscordClient implements the clients.MessagingClient interface on top of a discordgo session
type DiscordClient struct {
	session       *discordgo.Session
	retryAttempts uint
	retryDelay    time.Duration
	retryMaxDelay time.Duration
}

// NewDiscordClient creates a new Discord client that shares the gateway session
func NewDiscordClient(session *discordgo.Session) *DiscordClient {
	return &DiscordClient{
		session:       session,
		retryAttempts: 3,
		retryDelay:    time.Second,
		retryMaxDelay: 10 * time.Second,
	}
}

// FetchMessage fetches a single message by channel and message ID
func (c *DiscordClient) FetchMessage(ctx context.Context, channelID, messageID string) (*clients.DiscordMessage, error) {
	var msg *discordgo.Message
	err := c.do(ctx, "fetch message", messageID, func() error {
		var err error
		msg, err = c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, core.NewNotFoundError("message", messageID)
	}
	return toDiscordMessage(msg), nil
}

// ListReactions reads every reaction on the message, paging through the users of each emoji
func (c *DiscordClient) ListReactions(ctx context.Context, channelID, messageID string) ([]clients.ReactionSnapshot, error) {
	var msg *discordgo.Message
	err := c.do(ctx, "fetch message", messageID, func() error {
		var err error
		msg, err = c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, core.NewNotFoundError("message", messageID)
	}

	snapshots := make([]clients.ReactionSnapshot, 0, len(msg.Reactions))
	for _, reaction := range msg.Reactions {
		if reaction == nil || reaction.Emoji == nil {
			continue
		}
		emoji := reaction.Emoji.APIName()

		userIDs, err := c.listReactionUsers(ctx, channelID, messageID, emoji)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, clients.ReactionSnapshot{Emoji: models.NormalizeEmoji(emoji), UserIDs: userIDs})
	}

	return snapshots, nil
}

func (c *DiscordClient) listReactionUsers(ctx context.Context, channelID, messageID, emoji string) ([]string, error) {
	var userIDs []string
	after := ""
	for {
		var page []*discordgo.User
		err := c.do(ctx, "list reactions", messageID, func() error {
			var err error
			page, err = c.session.MessageReactions(
				channelID,
				messageID,
				emoji,
				reactionsPageSize,
				"",
				after,
				discordgo.WithContext(ctx),
			)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, user := range page {
			if user == nil || user.Bot {
				continue
			}
			userIDs = append(userIDs, user.ID)
		}

		if len(page) < reactionsPageSize {
			return userIDs, nil
		}
		after = page[len(page)-1].ID
	}
}

// SendReminder posts the reminder content with an embed of status fields.
// Only user mentions are allowed so titles can never ping roles or @everyone.
func (c *DiscordClient) SendReminder(
	ctx context.Context,
	channelID, content string,
	fields []clients.EmbedField,
) (string, error) {
	send := &discordgo.MessageSend{
		Content: content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}
	if len(fields) > 0 {
		embed := &discordgo.MessageEmbed{Title: reminderEmbedName}
		for _, field := range fields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:   field.Name,
				Value:  field.Value,
				Inline: field.Inline,
			})
		}
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}

	var sent *discordgo.Message
	err := c.do(ctx, "send reminder", channelID, func() error {
		var err error
		sent, err = c.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return "", err
	}
	if sent == nil {
		return "", core.NewTransportError("send reminder", fmt.Errorf("discord returned no message"))
	}
	return sent.ID, nil
}

// SendMessage posts plain content with the same mention restrictions as reminders
func (c *DiscordClient) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	return c.SendReminder(ctx, channelID, content, nil)
}

// ListGuildMembers pages through all guild members
func (c *DiscordClient) ListGuildMembers(ctx context.Context, guildID string) ([]clients.GuildMember, error) {
	var members []clients.GuildMember
	after := ""
	for {
		var page []*discordgo.Member
		err := c.do(ctx, "list guild members", guildID, func() error {
			var err error
			page, err = c.session.GuildMembers(guildID, after, membersPageSize, discordgo.WithContext(ctx))
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, member := range page {
			if member == nil || member.User == nil {
				continue
			}
			members = append(members, clients.GuildMember{
				ID:       member.User.ID,
				Username: member.User.Username,
				Bot:      member.User.Bot,
			})
		}

		if len(page) < membersPageSize {
			return members, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// do runs a REST call with retries on transient failures and maps the final error into the engine taxonomy
func (c *DiscordClient) do(ctx context.Context, op, id string, fn func() error) error {
	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = fn()
			return lastErr
		},
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(c.retryMaxDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("⚠️ Retrying discord %s for %s after error (attempt %d): %v", op, id, n+1, err)
		}),
		retry.RetryIf(isRetryable),
	)
	if err == nil {
		return nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return classifyError(op, id, lastErr)
}

// isRetryable treats rate limits, server errors and network failures as transient
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Response == nil {
			return true
		}
		code := restErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return true
}

func classifyError(op, id string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeUnknownMessage:
				return core.NewNotFoundError("message", id)
			case discordgo.ErrCodeUnknownChannel:
				return core.NewNotFoundError("channel", id)
			case discordgo.ErrCodeUnknownGuild:
				return core.NewNotFoundError("guild", id)
			}
		}
		if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
			return core.NewNotFoundError(entityForOp(op), id)
		}
	}
	return core.NewTransportError(op, err)
}

func entityForOp(op string) string {
	switch {
	case strings.Contains(op, "guild"):
		return "guild"
	case strings.Contains(op, "reminder"):
		return "channel"
	default:
		return "message"
	}
}

func toDiscordMessage(msg *discordgo.Message) *clients.DiscordMessage {
	out := &clients.DiscordMessage{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		Content:   msg.Content,
	}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
	}
	for _, embed := range msg.Embeds {
		if embed != nil && embed.Title != "" {
			out.EmbedTitle = embed.Title
			break
		}
	}
	return out
}
