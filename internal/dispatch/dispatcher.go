package dispatch

import (
	"context"
	"errors"
	"html"

	"gatekeeper-bot/internal/config"
	"gatekeeper-bot/internal/database"
	"gatekeeper-bot/internal/models"
	"gatekeeper-bot/internal/telegram"
	"gatekeeper-bot/pkg/logger"

	"gopkg.in/telebot.v4"
)

const maxAlertErrorLength = 1000

type Route string

const (
	RouteModeration Route = "moderation"
	RouteAdmission  Route = "admission"
	RouteCommands   Route = "commands"
	RouteIgnored    Route = "ignored"
)

type Admission interface {
	HandleJoinRequest(ctx context.Context, jr *telegram.JoinRequest) error
	HandleUserMessage(ctx context.Context, msg *telegram.Message) (bool, error)
	HandleDecision(ctx context.Context, cb *telegram.Callback) error
}

type Moderation interface {
	Enabled() bool
	Handle(ctx context.Context, msg *telegram.Message) error
}

type Gateway interface {
	SendMessage(chatID int64, text string, markup *telebot.ReplyMarkup) (int, error)
	ForwardMessage(toChatID, fromChatID int64, messageID int) error
	AnswerCallback(callbackID, text string) error
}

type Stats interface {
	RequestStats(ctx context.Context) (models.RequestStats, error)
	CountViolators(ctx context.Context) (int, error)
}

type Dispatcher struct {
	admission  Admission
	moderation Moderation
	gw         Gateway
	stats      Stats
	notifier   *telegram.Notifier
	bot        config.BotConfig
	modCfg     config.ModerationConfig
	stopWords  int
}

type Deps struct {
	Admission  Admission
	Moderation Moderation
	Gateway    Gateway
	Stats      Stats
	// StopWords is the loaded list size, shown by /info.
	StopWords int
}

func New(bot config.BotConfig, modCfg config.ModerationConfig, deps Deps) *Dispatcher {
	return &Dispatcher{
		admission:  deps.Admission,
		moderation: deps.Moderation,
		gw:         deps.Gateway,
		stats:      deps.Stats,
		notifier:   telegram.NewNotifier(deps.Gateway, bot.Admins),
		bot:        bot,
		modCfg:     modCfg,
		stopWords:  deps.StopWords,
	}
}

// Dispatch routes one update and is the only place where failures are logged
// and reported to admins.
func (d *Dispatcher) Dispatch(ctx context.Context, u *telegram.Update) {
	route, err := d.route(ctx, u)

	logger.Debug("Update dispatched",
		logger.Int64("update_id", u.ID),
		logger.String("kind", u.Kind.String()),
		logger.String("route", string(route)),
	)

	if err != nil {
		d.report(u, route, err)
	}
}

func (d *Dispatcher) route(ctx context.Context, u *telegram.Update) (Route, error) {
	if msg := d.channelMessage(u); msg != nil {
		if !d.moderation.Enabled() {
			return RouteIgnored, nil
		}
		return RouteModeration, d.moderation.Handle(ctx, msg)
	}

	switch u.Kind {
	case telegram.KindJoinRequest:
		logger.Info("Incoming join request",
			logger.Int64("user_id", u.JoinRequest.From.ID),
			logger.String("username", u.JoinRequest.From.Username),
		)
		return RouteAdmission, d.admission.HandleJoinRequest(ctx, u.JoinRequest)

	case telegram.KindCallback:
		logger.Info("Incoming callback",
			logger.Int64("user_id", u.Callback.From.ID),
			logger.String("callback_data", u.Callback.Data),
		)
		if telegram.IsDecisionData(u.Callback.Data) {
			return RouteAdmission, d.admission.HandleDecision(ctx, u.Callback)
		}
		return RouteCommands, d.handleCallback(ctx, u.Callback)

	case telegram.KindMessage:
		msg := u.Message
		if msg.From == nil || !msg.IsPrivate() {
			return RouteIgnored, nil
		}
		handled, err := d.admission.HandleUserMessage(ctx, msg)
		if handled || err != nil {
			return RouteAdmission, err
		}
		return RouteCommands, d.handleMessage(ctx, msg)
	}

	return RouteIgnored, nil
}

func (d *Dispatcher) channelMessage(u *telegram.Update) *telegram.Message {
	switch {
	case u.Kind == telegram.KindChannelPost:
		return u.ChannelPost
	case u.Kind == telegram.KindMessage && u.Message.ChatID == d.bot.ChannelID:
		return u.Message
	default:
		return nil
	}
}

func (d *Dispatcher) report(u *telegram.Update, route Route, err error) {
	logger.Error("Failed to process update",
		logger.Int64("update_id", u.ID),
		logger.String("kind", u.Kind.String()),
		logger.String("route", string(route)),
		logger.Err(err),
	)

	if nerr := d.notifier.Notify(alertText(route, err)); nerr != nil {
		logger.Error("Failed to alert admins", logger.Err(nerr))
	}
}

func alertText(route Route, err error) string {
	prefix := "⚠️ Ошибка обработки: "
	var qe *database.QueryError
	switch {
	case route == RouteModeration:
		prefix = "⚠️ Ошибка модерации: "
	case errors.As(err, &qe):
		prefix = "⚠️ Ошибка базы данных: "
	}
	return prefix + html.EscapeString(truncate(err.Error(), maxAlertErrorLength))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
