package reminders

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"reminderbot/core"
	"reminderbot/models"
)

var (
	messageLinkPattern = regexp.MustCompile(
		`^https?://(?:(?:ptb|canary)\.)?discord(?:app)?\.com/channels/(\d+|@me)/(\d+)/(\d+)/?$`,
	)
	customEmojiPattern = regexp.MustCompile(`^<(a?):(\w+):(\d+)>$`)
	snowflakePattern   = regexp.MustCompile(`^\d+$`)
)

var emojiAliases = map[string]string{
	":white_check_mark:": models.EmojiYes,
	"yes":                models.EmojiYes,
	":x:":                models.EmojiNo,
	"no":                 models.EmojiNo,
	":question:":         models.EmojiMaybe,
	"maybe":              models.EmojiMaybe,
}

// MessageLink identifies a message by its jump link components
type MessageLink struct {
	GuildID   string
	ChannelID string
	MessageID string
}

// ParseMessageLink parses https://discord.com/channels/<guild>/<channel>/<message>
func ParseMessageLink(link string) (MessageLink, error) {
	link = strings.Trim(strings.TrimSpace(link), "<>")
	matches := messageLinkPattern.FindStringSubmatch(link)
	if matches == nil {
		return MessageLink{}, core.NewValidationError("link", "%q is not a discord message link", link)
	}
	if matches[1] == "@me" {
		return MessageLink{}, core.NewValidationError("link", "direct message links cannot be watched")
	}
	return MessageLink{GuildID: matches[1], ChannelID: matches[2], MessageID: matches[3]}, nil
}

// ParseEventRef accepts either a bare message ID or a message link and returns the message ID
func ParseEventRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if snowflakePattern.MatchString(ref) {
		return ref, nil
	}
	link, err := ParseMessageLink(ref)
	if err != nil {
		return "", core.NewValidationError("event", "%q is neither a message ID nor a message link", ref)
	}
	return link.MessageID, nil
}

// ParseReactions turns user input into the emoji identifiers reported by the gateway.
// Unicode emoji are kept as-is, custom emoji become "name:id" and a few text aliases are expanded.
func ParseReactions(tokens []string) ([]string, error) {
	var out []string
	for _, raw := range tokens {
		for _, token := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || unicode.IsSpace(r) }) {
			emoji, err := parseReaction(token)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(out, emoji) {
				out = append(out, emoji)
			}
		}
	}
	if len(out) == 0 {
		return nil, core.NewValidationError("reactions", "at least one emoji is required")
	}
	return out, nil
}

func parseReaction(token string) (string, error) {
	if alias, ok := emojiAliases[strings.ToLower(token)]; ok {
		return alias, nil
	}
	if matches := customEmojiPattern.FindStringSubmatch(token); matches != nil {
		return matches[2] + ":" + matches[3], nil
	}
	if isUnicodeEmoji(token) {
		return models.NormalizeEmoji(token), nil
	}
	return "", core.NewValidationError("reactions", "%q is not an emoji", token)
}

// isUnicodeEmoji accepts tokens made only of non-ASCII symbols, plus keycaps such as 1️⃣
func isUnicodeEmoji(token string) bool {
	if token == "" {
		return false
	}
	if strings.ContainsRune(token, '\u20e3') {
		return true
	}
	for _, r := range token {
		if r <= unicode.MaxASCII || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
