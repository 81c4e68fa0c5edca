package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"billz/internal/config"
	"billz/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*AlertBot)(nil)

// sender is the subset of *tgbotapi.BotAPI the alerter needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// AlertBot pushes operator alerts to a fixed set of Telegram chats.
type AlertBot struct {
	bot     sender
	chatIDs []int64
	log     zerolog.Logger
}

func NewAlertBot(cfg config.AlertsConfig, logger *zerolog.Logger) (*AlertBot, error) {
	if cfg.TelegramToken == "" {
		return nil, errors.New("alerts.telegram_token is empty")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, errors.New("alerts.chat_ids is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	return newAlertBot(bot, cfg.ChatIDs, logger), nil
}

func newAlertBot(bot sender, chatIDs []int64, logger *zerolog.Logger) *AlertBot {
	return &AlertBot{
		bot:     bot,
		chatIDs: chatIDs,
		log:     logger.With().Str("component", "alerts").Logger(),
	}
}

// Alert sends text to every chat. All chats are attempted; the first error wins.
func (a *AlertBot) Alert(ctx context.Context, text string) error {
	var first error
	for _, id := range a.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(id, truncate(text, 4000))
		msg.DisableWebPagePreview = true
		if _, err := a.bot.Send(msg); err != nil {
			a.log.Error().Err(err).Int64("chat_id", id).Msg("alert send failed")
			if first == nil {
				first = fmt.Errorf("send alert to %d: %w", id, err)
			}
		}
	}
	return first
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
