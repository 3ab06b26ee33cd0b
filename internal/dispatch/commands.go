package dispatch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"gatekeeper-bot/internal/telegram"
)

const (
	textWelcome = "👋 Добро пожаловать в наш бот!\n\nЗдесь вы можете подать заявку на вступление в наш канал."
	textHelp    = "📌 Доступные команды:\n\n/start - Начало работы\n/help - Эта справка\n\nДля подачи заявки на вступление нажмите '" + telegram.ButtonApply + "'"
	textUnknown = "Не понимаю ваше сообщение. Используйте /help для справки."
	textMenu    = "Выберите действие:"

	textStatsFailed = "⚠️ Ошибка получения статистики"
	textRelayed     = "✅ Ваше сообщение отправлено другим администраторам"
	textForwarded   = "✅ Ваше сообщение переслано другим администраторам"
)

// command extracts "/cmd" from "/cmd@bot args".
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *telegram.Message) error {
	chatID := msg.ChatID
	isAdmin := d.bot.IsAdmin(msg.From.ID)
	text := strings.TrimSpace(msg.Text)

	switch cmd := command(text); {
	case cmd == "/start":
		_, err := d.gw.SendMessage(chatID, textWelcome, telegram.WelcomeKeyboard())
		return err
	case cmd == "/help":
		return d.send(chatID, textHelp)
	case cmd == "/stats" && isAdmin:
		return d.sendStats(ctx, chatID)
	case (cmd == "/info" || cmd == "/инфо") && isAdmin:
		return d.send(chatID, d.infoText())
	case cmd == "/menu" && isAdmin:
		_, err := d.gw.SendMessage(chatID, textMenu, telegram.MenuKeyboard())
		return err
	case isAdmin:
		return d.relay(msg)
	case text == telegram.ButtonApply:
		return d.send(chatID, d.joinHint())
	case text == telegram.ButtonInfo:
		return d.send(chatID, textHelp)
	default:
		return d.send(chatID, textUnknown)
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *telegram.Callback) error {
	var err error
	isAdmin := d.bot.IsAdmin(cb.From.ID)

	switch cb.Data {
	case telegram.CallbackMenu:
		if isAdmin {
			_, err = d.gw.SendMessage(cb.From.ID, textMenu, telegram.MenuKeyboard())
		}
	case telegram.CallbackStats:
		if isAdmin {
			err = d.sendStats(ctx, cb.From.ID)
		}
	case telegram.CallbackHelp:
		err = d.send(cb.From.ID, textHelp)
	}

	return errors.Join(err, d.gw.AnswerCallback(cb.ID, ""))
}

func (d *Dispatcher) send(chatID int64, text string) error {
	_, err := d.gw.SendMessage(chatID, text, nil)
	return err
}

func (d *Dispatcher) sendStats(ctx context.Context, chatID int64) error {
	stats, err := d.stats.RequestStats(ctx)
	if err != nil {
		return errors.Join(fmt.Errorf("request stats: %w", err), d.send(chatID, textStatsFailed))
	}
	violators, err := d.stats.CountViolators(ctx)
	if err != nil {
		return errors.Join(fmt.Errorf("count violators: %w", err), d.send(chatID, textStatsFailed))
	}

	text := fmt.Sprintf(
		"📊 Статистика заявок:\n\nВсего заявок: %d\nОдобрено: %d\nОтклонено: %d\nВ ожидании: %d\n\n🚨 Нарушителей: %d",
		stats.Total, stats.Approved, stats.Rejected, stats.Pending, violators,
	)
	return d.send(chatID, text)
}

func (d *Dispatcher) infoText() string {
	moderation := "выключена"
	if d.modCfg.Enabled {
		moderation = "включена"
	}
	return fmt.Sprintf(
		"ℹ️ Настройки бота:\n\nКанал: %d\nМодерация: %s\nЛимит нарушений: %d\nСтоп-слов: %d\nАдминистраторов: %d",
		d.bot.ChannelID, moderation, d.modCfg.MaxViolations, d.stopWords, len(d.bot.Admins),
	)
}

func (d *Dispatcher) joinHint() string {
	if name := strings.TrimPrefix(d.bot.ChannelUsername, "@"); name != "" {
		return "Чтобы подать заявку, попробуйте присоединиться к нашему каналу @" + name + " и подтвердите вступление"
	}
	return "Чтобы подать заявку, попробуйте присоединиться к нашему каналу и подтвердите вступление"
}

// relay hands an admin's free-form message to the other admins. Text is
// re-sent with a header, anything else is forwarded as is.
func (d *Dispatcher) relay(msg *telegram.Message) error {
	sender := msg.From.ID

	if msg.Text != "" {
		text := fmt.Sprintf("📨 Сообщение от админа %s:\n\n%s", html.EscapeString(msg.From.Name()), html.EscapeString(msg.Text))
		err := d.notifier.NotifyExcept(sender, text)
		return errors.Join(err, d.send(sender, textRelayed))
	}

	var errs []error
	for _, adminID := range d.bot.Admins {
		if adminID == sender {
			continue
		}
		if err := d.gw.ForwardMessage(adminID, msg.ChatID, msg.ID); err != nil {
			errs = append(errs, fmt.Errorf("forward to admin %d: %w", adminID, err))
		}
	}
	errs = append(errs, d.send(sender, textForwarded))
	return errors.Join(errs...)
}
