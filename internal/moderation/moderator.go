package moderation

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"gatekeeper-bot/internal/config"
	"gatekeeper-bot/internal/models"
	"gatekeeper-bot/internal/telegram"
	"gatekeeper-bot/pkg/logger"

	"gopkg.in/telebot.v4"
)

var technicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)присоединился к каналу`),
	regexp.MustCompile(`(?i)покинул канал`),
	regexp.MustCompile(`(?i)закрепил сообщение`),
	regexp.MustCompile(`(?i)pinned a message`),
	regexp.MustCompile(`(?i)added to channel`),
	regexp.MustCompile(`(?i)left the channel`),
}

type Store interface {
	RecordDeletedMessage(ctx context.Context, msg *models.DeletedMessage) error
	RecordViolation(ctx context.Context, v *models.Violator) (int, error)
}

type Gateway interface {
	SendMessage(chatID int64, text string, markup *telebot.ReplyMarkup) (int, error)
	DeleteMessage(chatID int64, messageID int) error
	BanChatMember(chatID, userID int64) error
}

type Moderator struct {
	store    Store
	gw       Gateway
	notifier *telegram.Notifier
	bot      config.BotConfig
	cfg      config.ModerationConfig
	words    *StopWords
}

func New(store Store, gw Gateway, bot config.BotConfig, cfg config.ModerationConfig, words *StopWords) *Moderator {
	return &Moderator{
		store:    store,
		gw:       gw,
		notifier: telegram.NewNotifier(gw, bot.Admins),
		bot:      bot,
		cfg:      cfg,
		words:    words,
	}
}

func (m *Moderator) Enabled() bool {
	return m.cfg.Enabled
}

func (m *Moderator) Handle(ctx context.Context, msg *telegram.Message) error {
	switch msg.Service {
	case telegram.ServiceMemberJoined, telegram.ServiceMemberLeft:
		if !m.cfg.DeleteServiceMessages {
			return nil
		}
		return m.deleteServiceMessage(ctx, msg)
	case telegram.ServicePinned:
		if !m.cfg.DeletePinnedNotifications {
			return nil
		}
		return m.deleteServiceMessage(ctx, msg)
	}

	text := strings.ToLower(msg.Content())

	if found := m.words.Match(text); len(found) > 0 {
		return m.punish(ctx, msg, found)
	}

	if isTechnical(text) && m.cfg.DeleteServiceMessages {
		return m.deleteServiceMessage(ctx, msg)
	}

	return nil
}

func isTechnical(text string) bool {
	for _, p := range technicalPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func senderID(msg *telegram.Message) int64 {
	if msg.From == nil {
		return 0
	}
	return msg.From.ID
}

func (m *Moderator) deleteServiceMessage(ctx context.Context, msg *telegram.Message) error {
	if err := m.gw.DeleteMessage(msg.ChatID, msg.ID); err != nil {
		return fmt.Errorf("delete service message %d: %w", msg.ID, err)
	}

	logger.Debug("Service message deleted", logger.Int("message_id", msg.ID))

	record := &models.DeletedMessage{
		MessageID: msg.ID,
		UserID:    senderID(msg),
		Reason:    models.ReasonServiceMessage,
		Text:      msg.Content(),
	}
	if err := m.store.RecordDeletedMessage(ctx, record); err != nil {
		return fmt.Errorf("record deleted service message: %w", err)
	}
	return nil
}

func (m *Moderator) punish(ctx context.Context, msg *telegram.Message, found []string) error {
	if err := m.gw.DeleteMessage(msg.ChatID, msg.ID); err != nil {
		return fmt.Errorf("delete violating message %d: %w", msg.ID, err)
	}

	logger.Info("Stop word violation",
		logger.Int("message_id", msg.ID),
		logger.Int64("user_id", senderID(msg)),
		logger.Any("words", found),
	)

	record := &models.DeletedMessage{
		MessageID: msg.ID,
		UserID:    senderID(msg),
		Reason:    models.ReasonStopWord,
		Text:      msg.Content(),
	}
	if err := m.store.RecordDeletedMessage(ctx, record); err != nil {
		return fmt.Errorf("record deleted message: %w", err)
	}

	if msg.From != nil {
		violations, err := m.store.RecordViolation(ctx, &models.Violator{
			UserID:    msg.From.ID,
			Username:  msg.From.Username,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
		})
		if err != nil {
			return fmt.Errorf("record violation: %w", err)
		}

		if violations >= m.cfg.MaxViolations {
			if err := m.gw.BanChatMember(msg.ChatID, msg.From.ID); err != nil {
				return fmt.Errorf("ban user %d: %w", msg.From.ID, err)
			}
			logger.Warn("User banned",
				logger.Int64("user_id", msg.From.ID),
				logger.Int("violations", violations),
			)
			if err := m.notifier.Notify(fmt.Sprintf("⛔ Пользователь ID %d забанен за превышение лимита нарушений", msg.From.ID)); err != nil {
				return err
			}
		}
	}

	return m.notifier.Notify(m.violationAlert(msg, found))
}

func (m *Moderator) violationAlert(msg *telegram.Message, found []string) string {
	username := "неизвестен"
	if msg.From != nil && msg.From.Username != "" {
		username = msg.From.Username
	}
	return fmt.Sprintf(
		"🚨 Нарушение в канале!\n\n🔗 Сообщение: %s\n👤 Пользователь: @%s\n🆔 ID: %d\n🔞 Нарушения: %s\n\nСообщение было автоматически удалено.",
		m.bot.MessageLink(msg.ID), html.EscapeString(username), senderID(msg), html.EscapeString(strings.Join(found, ", ")),
	)
}
