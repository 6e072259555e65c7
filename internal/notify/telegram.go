package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aegisd/aegis/internal/config"
	"github.com/aegisd/aegis/internal/render"
	"github.com/aegisd/aegis/internal/suspend"
)

// sender is the slice of the bot API the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram pushes suspension notifications to a configured chat. It is
// send-only: decisions come back through the CLI or the HTTP API, not
// through the bot.
type Telegram struct {
	cfg *config.TelegramConfig
	bot sender
}

// NewTelegram connects the notifier bot.
func NewTelegram(cfg *config.TelegramConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram init failed: %w", err)
	}
	slog.Info("telegram notifier connected", "username", bot.Self.UserName)
	return &Telegram{cfg: cfg, bot: bot}, nil
}

// NotifySuspension sends one message describing the pending suspension.
func (t *Telegram) NotifySuspension(_ context.Context, rec suspend.Record) error {
	if t.bot == nil {
		return fmt.Errorf("bot not initialized")
	}

	msg := tgbotapi.NewMessage(t.cfg.ChatID, render.PayloadText(rec))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}
