package telegram

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gopkg.in/telebot.v4"
)

// CallError wraps a failed Bot API call.
type CallError struct {
	Method string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("telegram %s failed: %v", e.Method, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func callErr(method string, err error) error {
	if err == nil {
		return nil
	}
	return &CallError{Method: method, Err: err}
}

type Settings struct {
	Token   string
	Timeout time.Duration
	// Offline skips the getMe handshake.
	Offline bool
}

type Client struct {
	bot *telebot.Bot
}

func NewClient(s Settings) (*Client, error) {
	if s.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}

	b, err := telebot.NewBot(telebot.Settings{
		Token:   s.Token,
		Client:  &http.Client{Timeout: s.Timeout},
		Offline: s.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Client{bot: b}, nil
}

func stored(chatID int64, messageID int) *telebot.StoredMessage {
	return &telebot.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	}
}

func sendOptions(markup *telebot.ReplyMarkup) []interface{} {
	opts := []interface{}{telebot.ModeHTML, telebot.NoPreview}
	if markup != nil {
		opts = append(opts, markup)
	}
	return opts
}

func (c *Client) SendMessage(chatID int64, text string, markup *telebot.ReplyMarkup) (int, error) {
	msg, err := c.bot.Send(&telebot.Chat{ID: chatID}, text, sendOptions(markup)...)
	if err != nil {
		return 0, callErr("sendMessage", err)
	}
	return msg.ID, nil
}

// EditMessageText replaces the text. A nil markup drops the inline keyboard.
func (c *Client) EditMessageText(chatID int64, messageID int, text string, markup *telebot.ReplyMarkup) error {
	_, err := c.bot.Edit(stored(chatID, messageID), text, sendOptions(markup)...)
	return callErr("editMessageText", err)
}

func (c *Client) DeleteMessage(chatID int64, messageID int) error {
	return callErr("deleteMessage", c.bot.Delete(stored(chatID, messageID)))
}

func (c *Client) ForwardMessage(toChatID, fromChatID int64, messageID int) error {
	_, err := c.bot.Forward(&telebot.Chat{ID: toChatID}, stored(fromChatID, messageID))
	return callErr("forwardMessage", err)
}

func (c *Client) BanChatMember(chatID, userID int64) error {
	err := c.bot.Ban(&telebot.Chat{ID: chatID}, &telebot.ChatMember{User: &telebot.User{ID: userID}})
	return callErr("banChatMember", err)
}

func (c *Client) ApproveJoinRequest(chatID, userID int64) error {
	err := c.bot.ApproveJoinRequest(&telebot.Chat{ID: chatID}, &telebot.User{ID: userID})
	return callErr("approveChatJoinRequest", err)
}

func (c *Client) DeclineJoinRequest(chatID, userID int64) error {
	err := c.bot.DeclineJoinRequest(&telebot.Chat{ID: chatID}, &telebot.User{ID: userID})
	return callErr("declineChatJoinRequest", err)
}

func (c *Client) AnswerCallback(callbackID, text string) error {
	err := c.bot.Respond(&telebot.Callback{ID: callbackID}, &telebot.CallbackResponse{Text: text})
	return callErr("answerCallbackQuery", err)
}

var allowedUpdates = []string{"message", "channel_post", "chat_join_request", "callback_query"}

// RegisterWebhook points Telegram at publicURL.
func (c *Client) RegisterWebhook(publicURL, secret string) error {
	err := c.bot.SetWebhook(&telebot.Webhook{
		Endpoint:       &telebot.WebhookEndpoint{PublicURL: publicURL},
		SecretToken:    secret,
		AllowedUpdates: allowedUpdates,
	})
	return callErr("setWebhook", err)
}
