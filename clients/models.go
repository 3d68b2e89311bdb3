package clients

// DiscordMessage represents the parts of a Discord message the engine reads
type DiscordMessage struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string
	// EmbedTitle is used as a title fallback when the message has no text content
	EmbedTitle string
}

// ReactionSnapshot lists the (non-bot) users holding one emoji on a message
type ReactionSnapshot struct {
	Emoji   string
	UserIDs []string
}

// GuildMember represents a member of a Discord guild
type GuildMember struct {
	ID       string
	Username string
	Bot      bool
}

// EmbedField is a name/value pair rendered in the reminder embed
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}
