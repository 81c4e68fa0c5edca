//go:build !integration

package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type mockSender struct {
	SendFunc func(c tgbotapi.Chattable) (tgbotapi.Message, error)
	sent     []tgbotapi.MessageConfig
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if mc, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, mc)
	}
	if m.SendFunc != nil {
		return m.SendFunc(c)
	}
	return tgbotapi.Message{}, nil
}

func TestAlertBot_SendsToAllChats(t *testing.T) {
	l := zerolog.New(io.Discard)
	s := &mockSender{}
	a := newAlertBot(s, []int64{11, 22}, &l)

	if err := a.Alert(context.Background(), "settlement failed for job x"); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 2 || s.sent[0].ChatID != 11 || s.sent[1].ChatID != 22 {
		t.Fatalf("unexpected sends: %+v", s.sent)
	}
	if s.sent[0].Text != "settlement failed for job x" {
		t.Errorf("text = %q", s.sent[0].Text)
	}
}

func TestAlertBot_ReportsFirstErrorButTriesEveryChat(t *testing.T) {
	l := zerolog.New(io.Discard)
	s := &mockSender{SendFunc: func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
		if c.(tgbotapi.MessageConfig).ChatID == 11 {
			return tgbotapi.Message{}, errors.New("blocked")
		}
		return tgbotapi.Message{}, nil
	}}
	a := newAlertBot(s, []int64{11, 22}, &l)

	err := a.Alert(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("expected send error, got %v", err)
	}
	if len(s.sent) != 2 {
		t.Errorf("both chats should be attempted, got %d", len(s.sent))
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate(strings.Repeat("a", 10), 4); got != "aaaa…" {
		t.Errorf("truncate = %q", got)
	}
}
