package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/aliskhannn/ssm-generator/internal/service"
)

// buildStatusKeyboard builds the keyboard under a run status message.
func buildStatusKeyboard(s service.RunStatus) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Aggiorna", buildStatusCallback(s.ID)),
		),
	}

	if !s.Running && len(s.Items) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Vedi domande", buildItemsCallback(s.ID, 0)),
		))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// buildItemsKeyboard builds pagination keyboard for the items of a run.
func buildItemsKeyboard(id uuid.UUID, page, total int) tgbotapi.InlineKeyboardMarkup {
	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("◀️ Precedente", buildItemsCallback(id, page-1)))
	}
	if page < total-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Successiva ▶️", buildItemsCallback(id, page+1)))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("« Torna allo stato", buildStatusCallback(id)),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
