package discord

import (
	"context"

	"github.com/stretchr/testify/mock"

	"reminderbot/clients"
)

// MockMessagingClient implements the clients.MessagingClient interface for testing
type MockMessagingClient struct {
	mock.Mock
}

func (m *MockMessagingClient) FetchMessage(
	ctx context.Context,
	channelID, messageID string,
) (*clients.DiscordMessage, error) {
	args := m.Called(ctx, channelID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.DiscordMessage), args.Error(1)
}

func (m *MockMessagingClient) ListReactions(
	ctx context.Context,
	channelID, messageID string,
) ([]clients.ReactionSnapshot, error) {
	args := m.Called(ctx, channelID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]clients.ReactionSnapshot), args.Error(1)
}

func (m *MockMessagingClient) SendReminder(
	ctx context.Context,
	channelID, content string,
	fields []clients.EmbedField,
) (string, error) {
	args := m.Called(ctx, channelID, content, fields)
	return args.String(0), args.Error(1)
}

func (m *MockMessagingClient) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	args := m.Called(ctx, channelID, content)
	return args.String(0), args.Error(1)
}

func (m *MockMessagingClient) ListGuildMembers(ctx context.Context, guildID string) ([]clients.GuildMember, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]clients.GuildMember), args.Error(1)
}
