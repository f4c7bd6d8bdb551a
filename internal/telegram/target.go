// Package telegram posts relayed session activity to a Telegram chat.
// Bots cannot create chats, so every project channel maps to the configured
// chat; a thread is a reply chain rooted at the session's first post
// ("42/17" is message 17 in chat 42).
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/foreman/internal/delivery"
)

const maxTelegramMessage = 4096

// Sender is the subset of tgbotapi.BotAPI the target uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Target struct {
	bot    Sender
	chatID int64
}

// New creates a target posting to chatID.
func New(token string, chatID int64) (*Target, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return NewWithSender(bot, chatID), nil
}

func NewWithSender(bot Sender, chatID int64) *Target {
	return &Target{bot: bot, chatID: chatID}
}

// CreateChannel announces the channel in the configured chat and returns
// the chat's address.
func (t *Target) CreateChannel(ctx context.Context, name string) (string, error) {
	addr := strconv.FormatInt(t.chatID, 10)
	if _, err := t.send(t.chatID, 0, "# "+name); err != nil {
		return "", fmt.Errorf("announce channel %s: %w", name, err)
	}
	return addr, nil
}

// Post sends text as replies to the thread root, or starts a thread when
// addr names only a chat.
func (t *Target) Post(_ context.Context, addr, text string) (string, error) {
	chatID, root, err := parseAddr(addr)
	if err != nil {
		return "", err
	}
	for _, part := range delivery.Split(text, maxTelegramMessage) {
		id, err := t.send(chatID, root, part)
		if err != nil {
			return "", fmt.Errorf("post to %s: %w", addr, err)
		}
		if root == 0 {
			root = id
		}
	}
	return fmt.Sprintf("%d/%d", chatID, root), nil
}

// Archive posts a closing reply. Telegram has no thread lock.
func (t *Target) Archive(ctx context.Context, addr string) error {
	_, root, err := parseAddr(addr)
	if err != nil {
		return err
	}
	if root == 0 {
		return fmt.Errorf("archive %s: not a thread address", addr)
	}
	_, err = t.Post(ctx, addr, "🔒 Session closed.")
	return err
}

// send posts one message, retrying without Markdown when Telegram rejects
// the entities.
func (t *Target) send(chatID int64, replyTo int, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyToMessageID = replyTo
	sent, err := t.bot.Send(msg)
	if err != nil {
		slog.Debug("telegram markdown send failed, retrying plain", "chat_id", chatID, "error", err)
		msg.ParseMode = ""
		sent, err = t.bot.Send(msg)
		if err != nil {
			return 0, err
		}
	}
	return sent.MessageID, nil
}

func parseAddr(addr string) (int64, int, error) {
	chat, thread, hasThread := strings.Cut(addr, "/")
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid telegram address %q: %w", addr, err)
	}
	if !hasThread {
		return chatID, 0, nil
	}
	root, err := strconv.Atoi(thread)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid telegram address %q: %w", addr, err)
	}
	return chatID, root, nil
}
