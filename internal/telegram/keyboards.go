package telegram

import (
	"strconv"
	"strings"

	"gopkg.in/telebot.v4"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

const (
	CallbackMenuPrefix = "main_"
	CallbackMenu       = "main_menu"
	CallbackStats      = "main_stats"
	CallbackHelp       = "main_help"
)

const (
	ButtonApply = "📝 Подать заявку"
	ButtonInfo  = "ℹ️ Информация"
)

func DecisionData(d Decision, requestID int64) string {
	return string(d) + "_" + strconv.FormatInt(requestID, 10)
}

// ParseDecision reads "approve_<id>" and "reject_<id>".
func ParseDecision(data string) (Decision, int64, bool) {
	action, rawID, found := strings.Cut(data, "_")
	if !found {
		return "", 0, false
	}

	d := Decision(action)
	if d != DecisionApprove && d != DecisionReject {
		return "", 0, false
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}

	return d, id, true
}

func IsDecisionData(data string) bool {
	return strings.HasPrefix(data, string(DecisionApprove)+"_") ||
		strings.HasPrefix(data, string(DecisionReject)+"_")
}

func DecisionKeyboard(requestID int64) *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{
		InlineKeyboard: [][]telebot.InlineButton{{
			{Text: "✅ Одобрить", Data: DecisionData(DecisionApprove, requestID)},
			{Text: "❌ Отклонить", Data: DecisionData(DecisionReject, requestID)},
		}},
	}
}

func WelcomeKeyboard() *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{
		ReplyKeyboard: [][]telebot.ReplyButton{
			{{Text: ButtonApply}},
			{{Text: ButtonInfo}},
		},
		ResizeKeyboard: true,
	}
}

func MenuKeyboard() *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{
		InlineKeyboard: [][]telebot.InlineButton{
			{{Text: "📊 Статистика", Data: CallbackStats}},
			{{Text: "🆘 Помощь", Data: CallbackHelp}},
		},
	}
}
