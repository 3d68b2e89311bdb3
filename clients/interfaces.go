package clients

import "context"

// MessagingClient is the chat-platform collaborator consumed by the reminder engine
type MessagingClient interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (*DiscordMessage, error)
	// ListReactions returns one snapshot per emoji with bot users already excluded
	ListReactions(ctx context.Context, channelID, messageID string) ([]ReactionSnapshot, error)
	SendReminder(ctx context.Context, channelID, content string, fields []EmbedField) (string, error)
	// SendMessage posts a plain reply, used for command responses
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	ListGuildMembers(ctx context.Context, guildID string) ([]GuildMember, error)
}
