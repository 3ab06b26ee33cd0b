package telegram

import (
	"encoding/json"
	"fmt"

	"gopkg.in/telebot.v4"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindChannelPost
	KindMessage
	KindJoinRequest
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindChannelPost:
		return "channel_post"
	case KindMessage:
		return "message"
	case KindJoinRequest:
		return "chat_join_request"
	case KindCallback:
		return "callback_query"
	default:
		return "unknown"
	}
}

type ServiceKind int

const (
	ServiceNone ServiceKind = iota
	ServiceMemberJoined
	ServiceMemberLeft
	ServicePinned
)

type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Name renders "First Last (@username)" for relays and logs.
func (u User) Name() string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if u.Username != "" {
		name += " (@" + u.Username + ")"
	}
	return name
}

type Message struct {
	ID       int
	ChatID   int64
	ChatType string
	From     *User
	Text     string
	Caption  string
	Service  ServiceKind
}

func (m *Message) IsPrivate() bool {
	return m.ChatType == string(telebot.ChatPrivate)
}

// Content is the text, or the caption for media messages.
func (m *Message) Content() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

type JoinRequest struct {
	ChatID int64
	From   User
}

type Callback struct {
	ID            string
	From          User
	Data          string
	MessageID     int
	MessageChatID int64
}

// Update is a decoded inbound update. Exactly one of the variant pointers is
// set, matching Kind.
type Update struct {
	ID          int64
	Kind        Kind
	ChannelPost *Message
	Message     *Message
	JoinRequest *JoinRequest
	Callback    *Callback
}

func Decode(data []byte) (*Update, error) {
	var raw telebot.Update
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode update: %w", err)
	}

	u := &Update{ID: int64(raw.ID)}

	switch {
	case raw.ChannelPost != nil:
		u.Kind = KindChannelPost
		u.ChannelPost = convertMessage(raw.ChannelPost)
	case raw.Message != nil:
		u.Kind = KindMessage
		u.Message = convertMessage(raw.Message)
	case raw.ChatJoinRequest != nil:
		u.Kind = KindJoinRequest
		u.JoinRequest = convertJoinRequest(raw.ChatJoinRequest)
	case raw.Callback != nil:
		u.Kind = KindCallback
		u.Callback = convertCallback(raw.Callback)
	}

	return u, nil
}

func convertUser(u *telebot.User) *User {
	if u == nil {
		return nil
	}
	return &User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func convertMessage(m *telebot.Message) *Message {
	msg := &Message{
		ID:      m.ID,
		From:    convertUser(m.Sender),
		Text:    m.Text,
		Caption: m.Caption,
	}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
		msg.ChatType = string(m.Chat.Type)
	}

	switch {
	case m.UserJoined != nil || len(m.UsersJoined) > 0:
		msg.Service = ServiceMemberJoined
	case m.UserLeft != nil:
		msg.Service = ServiceMemberLeft
	case m.PinnedMessage != nil:
		msg.Service = ServicePinned
	}

	return msg
}

func convertJoinRequest(r *telebot.ChatJoinRequest) *JoinRequest {
	jr := &JoinRequest{}
	if r.Chat != nil {
		jr.ChatID = r.Chat.ID
	}
	if u := convertUser(r.Sender); u != nil {
		jr.From = *u
	}
	return jr
}

func convertCallback(c *telebot.Callback) *Callback {
	cb := &Callback{
		ID:   c.ID,
		Data: c.Data,
	}
	if u := convertUser(c.Sender); u != nil {
		cb.From = *u
	}
	if c.Message != nil {
		cb.MessageID = c.Message.ID
		if c.Message.Chat != nil {
			cb.MessageChatID = c.Message.Chat.ID
		}
	}
	return cb
}
