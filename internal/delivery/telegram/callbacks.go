package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil || cb.Message.Chat.ID != h.chatID {
		h.logger.Debug("ignoring callback from unknown chat")
		return
	}

	var (
		text   string
		kb     tgbotapi.InlineKeyboardMarkup
		notice string
		ok     bool
	)

	data := decodeCallback(cb.Data)
	switch data.Action {
	case actionStatus:
		text, kb, notice, ok = h.statusCallback(data)
	case actionItems:
		text, kb, notice, ok = h.itemsCallback(data)
	default:
		h.logger.Debug("unknown callback", zap.String("data", cb.Data))
	}

	if ok {
		edit := tgbotapi.NewEditMessageTextAndMarkup(cb.Message.Chat.ID, cb.Message.MessageID, text, kb)
		edit.ParseMode = tgbotapi.ModeMarkdownV2
		h.send(edit)
	}

	// Remove the user's "clock".
	if _, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, notice)); err != nil {
		h.logger.Warn("callback answer error", zap.Error(err))
	}
}

func (h *Handler) statusCallback(data callbackData) (string, tgbotapi.InlineKeyboardMarkup, string, bool) {
	id, err := data.runID()
	if err != nil {
		h.logger.Debug("invalid status callback", zap.String("data", data.Raw))
		return "", tgbotapi.InlineKeyboardMarkup{}, "", false
	}

	run, found := h.runs.Get(id)
	if !found {
		return "", tgbotapi.InlineKeyboardMarkup{}, msgRunNotFound, false
	}

	snap := run.Snapshot()
	return StatusMarkdownV2(snap), buildStatusKeyboard(snap), "", true
}

func (h *Handler) itemsCallback(data callbackData) (string, tgbotapi.InlineKeyboardMarkup, string, bool) {
	id, err := data.runID()
	if err != nil {
		h.logger.Debug("invalid items callback", zap.String("data", data.Raw))
		return "", tgbotapi.InlineKeyboardMarkup{}, "", false
	}
	page, err := data.page()
	if err != nil {
		h.logger.Debug("invalid items callback", zap.String("data", data.Raw))
		return "", tgbotapi.InlineKeyboardMarkup{}, "", false
	}

	run, found := h.runs.Get(id)
	if !found {
		return "", tgbotapi.InlineKeyboardMarkup{}, msgRunNotFound, false
	}

	items := run.Snapshot().Items
	if page >= len(items) {
		return "", tgbotapi.InlineKeyboardMarkup{}, msgNoItems, false
	}

	return ItemMarkdownV2(items[page], page, len(items)), buildItemsKeyboard(id, page, len(items)), "", true
}
