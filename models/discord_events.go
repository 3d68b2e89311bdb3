package models

// ReactionEvent is a reaction add/remove delivered by the gateway
type ReactionEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
	// IsBot is only known for reaction adds (the gateway sends the member with them)
	IsBot bool
}

// CommandEvent is a prefixed text command received in a guild channel
type CommandEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Content   string
}
