package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
)

// Sender delivers Telegram messages; *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts run summaries to a single chat.
type Notifier struct {
	bot    Sender
	chatID int64
	logger *zap.Logger
}

// NewNotifier creates a new Notifier.
func NewNotifier(bot Sender, chatID int64, logger *zap.Logger) *Notifier {
	return &Notifier{bot: bot, chatID: chatID, logger: logger}
}

// NotifyRunCompleted sends the summary of a finished run.
func (n *Notifier) NotifyRunCompleted(_ context.Context, subject, topic string, summary entities.RunSummary) error {
	msg := newMessage(n.chatID, SummaryMarkdownV2(subject, topic, summary))
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}

	n.logger.Debug("run summary sent", zap.Int64("chat_id", n.chatID), zap.String("subject", subject))
	return nil
}
