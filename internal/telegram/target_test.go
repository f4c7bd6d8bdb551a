package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeSender struct {
	sent       []tgbotapi.MessageConfig
	nextID     int
	rejectMode string
	fail       bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if f.fail {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	if f.rejectMode != "" && msg.ParseMode == f.rejectMode {
		return tgbotapi.Message{}, errors.New("can't parse entities")
	}
	f.sent = append(f.sent, msg)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func TestPostStartsReplyChain(t *testing.T) {
	bot := &fakeSender{}
	target := NewWithSender(bot, 42)
	ctx := context.Background()

	thread, err := target.Post(ctx, "42", "session P-1 created")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if thread != "42/1" {
		t.Errorf("expected thread %q, got %q", "42/1", thread)
	}

	if _, err := target.Post(ctx, thread, "status: review"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(bot.sent))
	}
	if bot.sent[1].ReplyToMessageID != 1 {
		t.Errorf("expected reply to message 1, got %d", bot.sent[1].ReplyToMessageID)
	}
	if bot.sent[1].ChatID != 42 {
		t.Errorf("expected chat 42, got %d", bot.sent[1].ChatID)
	}
}

func TestPostSplitsLongText(t *testing.T) {
	bot := &fakeSender{}
	target := NewWithSender(bot, 42)

	if _, err := target.Post(context.Background(), "42/7", strings.Repeat("a", 5000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(bot.sent))
	}
	if len(bot.sent[0].Text) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(bot.sent[0].Text))
	}
}

func TestPostFallsBackToPlainText(t *testing.T) {
	bot := &fakeSender{rejectMode: tgbotapi.ModeMarkdown}
	target := NewWithSender(bot, 42)

	if _, err := target.Post(context.Background(), "42", "a_b*c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ParseMode != "" {
		t.Errorf("expected one plain-text send, got %+v", bot.sent)
	}
}

func TestPostError(t *testing.T) {
	target := NewWithSender(&fakeSender{fail: true}, 42)
	if _, err := target.Post(context.Background(), "42", "x"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestArchiveNeedsThread(t *testing.T) {
	bot := &fakeSender{}
	target := NewWithSender(bot, 42)

	if err := target.Archive(context.Background(), "42"); err == nil {
		t.Fatal("expected error for chat address, got nil")
	}
	if err := target.Archive(context.Background(), "42/3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ReplyToMessageID != 3 {
		t.Errorf("expected closing reply to message 3, got %+v", bot.sent)
	}
}

func TestCreateChannelUsesConfiguredChat(t *testing.T) {
	bot := &fakeSender{}
	addr, err := NewWithSender(bot, -100123).CreateChannel(context.Background(), "payments")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "-100123" {
		t.Errorf("expected address %q, got %q", "-100123", addr)
	}
}

func TestParseAddr(t *testing.T) {
	if _, _, err := parseAddr("abc"); err == nil {
		t.Error("expected error for non-numeric chat")
	}
	chat, root, err := parseAddr("-5/9")
	if err != nil || chat != -5 || root != 9 {
		t.Errorf("got chat=%d root=%d err=%v", chat, root, err)
	}
}
