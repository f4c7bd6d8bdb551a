// Package slackrelay posts relayed session activity to Slack. Channel
// addresses are channel ids ("C123"); thread addresses append the thread
// root timestamp ("C123/1700000000.000100").
package slackrelay

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/user/foreman/internal/delivery"
)

// maxSlackMessage stays under Slack's 4000 character text limit.
const maxSlackMessage = 3900

type Target struct {
	api API
}

// New creates a target authenticated with a bot token.
func New(token string) *Target {
	return NewWithAPI(slack.New(token))
}

func NewWithAPI(api API) *Target {
	return &Target{api: api}
}

// CreateChannel finds or creates a public channel.
func (t *Target) CreateChannel(ctx context.Context, name string) (string, error) {
	name = channelName(name)
	if id, err := t.findChannel(ctx, name); err == nil && id != "" {
		return id, nil
	}
	ch, err := t.api.CreateConversationContext(ctx, slack.CreateConversationParams{ChannelName: name})
	if err != nil {
		if strings.Contains(err.Error(), "name_taken") {
			if id, findErr := t.findChannel(ctx, name); findErr == nil && id != "" {
				return id, nil
			}
		}
		return "", fmt.Errorf("create channel %s: %w", name, err)
	}
	return ch.ID, nil
}

func (t *Target) findChannel(ctx context.Context, name string) (string, error) {
	var cursor string
	for {
		channels, next, err := t.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Types:           []string{"public_channel"},
			Limit:           200,
			Cursor:          cursor,
			ExcludeArchived: true,
		})
		if err != nil {
			return "", err
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if next == "" {
			return "", nil
		}
		cursor = next
	}
}

// Post sends text, split as needed. Posting to a bare channel starts a
// thread rooted at the first part.
func (t *Target) Post(ctx context.Context, addr, text string) (string, error) {
	channel, ts := splitAddr(addr)
	for _, part := range delivery.Split(text, maxSlackMessage) {
		opts := []slack.MsgOption{slack.MsgOptionText(part, false)}
		if ts != "" {
			opts = append(opts, slack.MsgOptionTS(ts))
		}
		_, posted, err := t.api.PostMessageContext(ctx, channel, opts...)
		if err != nil {
			return "", fmt.Errorf("post to %s: %w", addr, err)
		}
		if ts == "" {
			ts = posted
		}
	}
	return channel + "/" + ts, nil
}

// Archive marks the thread root with a lock reaction and posts a closing
// note. Slack has no per-thread lock.
func (t *Target) Archive(ctx context.Context, addr string) error {
	channel, ts := splitAddr(addr)
	if ts == "" {
		return fmt.Errorf("archive %s: not a thread address", addr)
	}
	if err := t.api.AddReactionContext(ctx, "lock", slack.NewRefToMessage(channel, ts)); err != nil &&
		!strings.Contains(err.Error(), "already_reacted") {
		return fmt.Errorf("lock thread %s: %w", addr, err)
	}
	_, err := t.Post(ctx, addr, ":lock: Session closed.")
	return err
}

func splitAddr(addr string) (channel, ts string) {
	channel, ts, _ = strings.Cut(addr, "/")
	return channel, ts
}

// channelName lowercases name and replaces characters Slack rejects.
func channelName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := b.String()
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
