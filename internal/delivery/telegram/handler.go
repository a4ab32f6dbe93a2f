package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/service"
)

// Bot is the part of *tgbotapi.BotAPI used by the handler.
type Bot interface {
	Sender
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RunService starts and looks up background runs.
type RunService interface {
	Start(req entities.RunRequest) (*service.Run, error)
	Get(id uuid.UUID) (*service.Run, bool)
}

// RunDefaults fills the parts of a run request a chat command does not carry.
type RunDefaults struct {
	APIKey     string
	Count      int
	MaxCount   int
	OutputPath string
}

type Handler struct {
	bot      Bot
	runs     RunService
	chatID   int64
	defaults RunDefaults
	logger   *zap.Logger
}

// NewHandler creates a handler answering commands from chatID only.
func NewHandler(bot Bot, runs RunService, chatID int64, defaults RunDefaults, logger *zap.Logger) *Handler {
	return &Handler{
		bot:      bot,
		runs:     runs,
		chatID:   chatID,
		defaults: defaults,
		logger:   logger,
	}
}

func (h *Handler) Run(ctx context.Context) error {
	h.logger.Info("telegram handler started")
	defer h.logger.Info("telegram handler stopped")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.bot.GetUpdatesChan(u)
	defer h.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			h.handleUpdate(ctx, update)
		}
	}
}

func (h *Handler) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		h.handleCallback(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil || update.Message.Chat == nil {
		h.logger.Debug("update without message")
		return
	}

	chatID := update.Message.Chat.ID
	if chatID != h.chatID {
		h.logger.Debug("ignoring message from unknown chat", zap.Int64("chat_id", chatID))
		return
	}

	h.logger.Debug("update received",
		zap.Int64("chat_id", chatID),
		zap.String("text", update.Message.Text),
	)

	if !update.Message.IsCommand() {
		h.send(newPlainMessage(chatID, msgHelp))
		return
	}

	switch update.Message.Command() {
	case "start", "help":
		h.send(newPlainMessage(chatID, msgHelp))

	case "genera":
		_ = h.withErrorHandling("genera", h.generateHandler(update.Message.CommandArguments()))(ctx, chatID)

	case "stato":
		_ = h.withErrorHandling("stato", h.statusHandler(update.Message.CommandArguments()))(ctx, chatID)

	default:
		h.send(newPlainMessage(chatID, msgUnknownCommand))
	}
}

func (h *Handler) sendError(chatID int64, text string) {
	h.send(newPlainMessage(chatID, text))
}

func (h *Handler) send(c tgbotapi.Chattable) {
	if _, err := h.bot.Send(c); err != nil {
		h.logger.Error("failed to send telegram message",
			zap.Error(err),
		)
	}
}
