package admission

import (
	"fmt"
	"html"
	"strings"
	"time"

	"gatekeeper-bot/internal/models"
)

const defaultFirstName = "Пользователь"

var Questions = []string{
	"Как вас зовут? (ФИО)",
	"Сколько вам лет?",
	"Род деятельности, чем занимаетесь?",
	"С какой целью решили вступить в объединение?",
	"Ваше отношение к религии (христианин, родновер, агностик и т.п.)?",
	"Откуда вы узнали о нашем канале?",
	"Ваш номер телефона для связи (не обязательно)",
}

const (
	textWrongCaptcha = "❌ Неверный ответ. Пожалуйста, попробуйте еще раз."
	textCompleted    = "🎉 Спасибо за ответы! Ваша заявка будет рассмотрена в ближайшее время."
	textApproved     = "🎉 Ваша заявка одобрена! Добро пожаловать в канал!"
	textRejected     = "😞 Ваша заявка отклонена администратором."
	textNoRights     = "❌ У вас нет прав!"
	textNotFound     = "❌ Заявка не найдена"
	textDecideFailed = "❌ Не удалось обработать заявку"
)

const timestampLayout = "2006-01-02 15:04:05"

func esc(s string) string {
	return html.EscapeString(s)
}

func captchaPrompt(firstName, captcha string) string {
	return fmt.Sprintf(
		"Привет, %s!\n\nДля вступления в канал решите простую капчу:\nНапишите число: <b>%s</b>\n\nЭто необходимо для подтверждения, что вы не бот.",
		esc(firstName), captcha,
	)
}

func newRequestAlert(req *models.JoinRequest) string {
	username := "не указан"
	if req.Username != "" {
		username = req.Username
	}
	return fmt.Sprintf(
		"🆕 Новая заявка на вступление:\n👤 Пользователь: %s\n🔗 Username: @%s\n🆔 ID: %d\n🔢 Капча: %s\n📝 Заявка #%d",
		esc(strings.TrimSpace(req.FirstName+" "+req.LastName)), esc(username), req.UserID, req.CaptchaAnswer, req.ID,
	)
}

func questionPrompt(header string, number, total int, question string) string {
	return fmt.Sprintf("%s\n\n<b>Вопрос %d/%d:</b>\n%s", header, number, total, esc(question))
}

func captchaSolvedAdmin(req *models.JoinRequest) string {
	return fmt.Sprintf("✅ Пользователь %s правильно решил капчу", esc(req.DisplayName()))
}

func captchaFailedAdmin(req *models.JoinRequest, answer string) string {
	return fmt.Sprintf("❌ Пользователь %s ошибся в капче (ответил: %s)", esc(req.DisplayName()), esc(answer))
}

func transcript(req *models.JoinRequest, answers []models.Answer) string {
	var b strings.Builder
	username := req.Username
	if username == "" {
		username = "не указан"
	}
	fmt.Fprintf(&b, "📋 Итоговые ответы по заявке #%d\n👤 Пользователь: @%s (%s)\n🆔 ID: %d\n\n",
		req.ID, esc(username), esc(req.FirstName), req.UserID)

	for _, a := range answers {
		answer := "—"
		if a.AnswerText != nil {
			answer = *a.AnswerText
		}
		fmt.Fprintf(&b, "<b>%s</b>\n%s\n\n", esc(a.QuestionText), esc(answer))
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusLabel(status models.RequestStatus) string {
	if status == models.StatusApproved {
		return "ОДОБРЕНО"
	}
	return "ОТКЛОНЕНО"
}

func decidedAlert(req *models.JoinRequest, status models.RequestStatus, adminName string, at time.Time) string {
	return fmt.Sprintf("%s\n\n✅ Статус: %s\n👤 Админ: %s\n🕒 Время: %s",
		newRequestAlert(req), statusLabel(status), esc(adminName), at.Format(timestampLayout))
}
