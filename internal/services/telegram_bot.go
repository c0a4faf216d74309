package services

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"settlementsam/internal/logger"
)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts operator alerts (HOT leads, failed deliveries) to
// one chat.
type TelegramNotifier struct {
	bot    botSender
	chatID int64
	log    *zap.Logger
}

// NewTelegramNotifier logs in with token. endpoint may be empty to use the
// public Bot API; it takes the tgbotapi "%s/%s" form otherwise.
func NewTelegramNotifier(token string, chatID int64, endpoint string, log *zap.Logger) (*TelegramNotifier, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	l := logger.OrNop(log)
	l.Info("[tg][init] authorized", zap.String("bot", bot.Self.UserName))
	return &TelegramNotifier{bot: bot, chatID: chatID, log: l}, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if t == nil || t.chatID == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, html.EscapeString(text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Warn("[tg][send] failed", zap.Int64("chat_id", t.chatID), zap.Error(err))
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

// LogNotifier stands in for Telegram when no bot token is configured.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, text string) error {
	logger.OrNop(n.Log).Info("[notify] " + text)
	return nil
}
