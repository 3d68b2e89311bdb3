package discord

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"

	"reminderbot/core"
)

func restError(status int, code int) *discordgo.RESTError {
	err := &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
	}
	if code != 0 {
		err.Message = &discordgo.APIErrorMessage{Code: code, Message: "boom"}
	}
	return err
}

func TestClassifyError_UnknownMessageIsNotFound(t *testing.T) {
	err := classifyError("fetch message", "1001", restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage))

	assert.True(t, core.IsNotFoundError(err))
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
	assert.Contains(t, err.Error(), "message 1001 not found")
}

func TestClassifyError_PlainNotFoundStatus(t *testing.T) {
	err := classifyError("list guild members", "42", restError(http.StatusNotFound, 0))

	var notFound *core.NotFoundError
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, "guild", notFound.Entity)
	assert.Equal(t, "42", notFound.ID)
}

func TestClassifyError_ForbiddenIsTransport(t *testing.T) {
	err := classifyError("send reminder", "200", restError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions))

	assert.True(t, core.IsTransportError(err))
	assert.False(t, core.IsNotFoundError(err))
	assert.Equal(t, core.KindTransport, core.KindOf(err))
}

func TestClassifyError_NetworkErrorIsTransport(t *testing.T) {
	err := classifyError("fetch message", "1001", errors.New("connection reset by peer"))

	assert.True(t, core.IsTransportError(err))
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"rate limited", restError(http.StatusTooManyRequests, 0), true},
		{"server error", restError(http.StatusBadGateway, 0), true},
		{"not found", restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage), false},
		{"forbidden", restError(http.StatusForbidden, 0), false},
		{"network", errors.New("dial tcp: i/o timeout"), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

func TestToDiscordMessage(t *testing.T) {
	msg := &discordgo.Message{
		ID:        "1001",
		ChannelID: "200",
		GuildID:   "300",
		Content:   "Raid night on Friday",
		Author:    &discordgo.User{ID: "7"},
		Embeds:    []*discordgo.MessageEmbed{{Title: ""}, {Title: "Signup"}},
	}

	out := toDiscordMessage(msg)

	assert.Equal(t, "1001", out.ID)
	assert.Equal(t, "200", out.ChannelID)
	assert.Equal(t, "300", out.GuildID)
	assert.Equal(t, "7", out.AuthorID)
	assert.Equal(t, "Raid night on Friday", out.Content)
	assert.Equal(t, "Signup", out.EmbedTitle)
}
