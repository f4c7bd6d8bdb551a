package slackrelay

import (
	"context"

	"github.com/slack-go/slack"
)

// API is the subset of slack.Client the relay target uses, so tests can
// substitute a mock without a live workspace.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	CreateConversationContext(ctx context.Context, params slack.CreateConversationParams) (*slack.Channel, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}
