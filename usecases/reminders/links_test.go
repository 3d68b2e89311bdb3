package reminders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminderbot/core"
	"reminderbot/models"
)

func TestParseMessageLink(t *testing.T) {
	want := MessageLink{GuildID: "1", ChannelID: "2", MessageID: "3"}

	valid := []string{
		"https://discord.com/channels/1/2/3",
		"https://ptb.discord.com/channels/1/2/3",
		"https://canary.discord.com/channels/1/2/3/",
		"https://discordapp.com/channels/1/2/3",
		"<https://discord.com/channels/1/2/3>",
	}
	for _, link := range valid {
		t.Run(link, func(t *testing.T) {
			got, err := ParseMessageLink(link)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	invalid := []string{
		"",
		"https://example.com/channels/1/2/3",
		"https://discord.com/channels/1/2",
		"https://discord.com/channels/@me/2/3",
		"https://discord.com/channels/a/2/3",
	}
	for _, link := range invalid {
		t.Run("invalid "+link, func(t *testing.T) {
			_, err := ParseMessageLink(link)
			assert.True(t, core.IsValidationError(err))
		})
	}
}

func TestParseEventRef(t *testing.T) {
	id, err := ParseEventRef(" 123 ")
	require.NoError(t, err)
	assert.Equal(t, "123", id)

	id, err = ParseEventRef("https://discord.com/channels/1/2/3")
	require.NoError(t, err)
	assert.Equal(t, "3", id)

	_, err = ParseEventRef("raid")
	assert.True(t, core.IsValidationError(err))
}

func TestParseReactions(t *testing.T) {
	t.Run("Aliases, custom emoji and dedupe", func(t *testing.T) {
		got, err := ParseReactions([]string{"yes,no", ":question:", "<:raid:123>", "<a:dance:456>", "🎲", "YES"})
		require.NoError(t, err)
		assert.Equal(t, []string{models.EmojiYes, models.EmojiNo, models.EmojiMaybe, "raid:123", "dance:456", "🎲"}, got)
	})

	t.Run("Keycaps are emoji", func(t *testing.T) {
		got, err := ParseReactions([]string{"1\ufe0f\u20e3"})
		require.NoError(t, err)
		assert.Equal(t, []string{"1\u20e3"}, got)
	})

	t.Run("Words are rejected", func(t *testing.T) {
		_, err := ParseReactions([]string{"🎲", "maybe-not"})
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("Empty input is rejected", func(t *testing.T) {
		_, err := ParseReactions([]string{" , "})
		assert.True(t, core.IsValidationError(err))
	})
}
