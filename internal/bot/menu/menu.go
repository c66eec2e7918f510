package menu

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// Кнопки меню согласующего; тексты же разбирает диспетчер.
const (
	BtnPending    = "📥 Pending achievements"
	BtnHallOfFame = "🏆 Hall of fame"
	BtnExport     = "📊 Export statistics"
)

// ApproverMenu — меню согласующего (guru BK).
func ApproverMenu() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnPending),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnHallOfFame),
			tgbotapi.NewKeyboardButton(BtnExport),
		),
	)
}
