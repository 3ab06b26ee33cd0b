package telegram

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gopkg.in/telebot.v4"
)

// MaxMessageLength is the Bot API limit for a text message.
const MaxMessageLength = 4096

type MessageSender interface {
	SendMessage(chatID int64, text string, markup *telebot.ReplyMarkup) (int, error)
}

// Notifier fans a text out to the configured admins. A failed send does not
// stop delivery to the rest.
type Notifier struct {
	sender MessageSender
	admins []int64
}

func NewNotifier(sender MessageSender, admins []int64) *Notifier {
	return &Notifier{sender: sender, admins: admins}
}

func (n *Notifier) Admins() []int64 {
	return n.admins
}

func (n *Notifier) Notify(text string) error {
	return n.NotifyExcept(0, text)
}

func (n *Notifier) NotifyExcept(skip int64, text string) error {
	var errs []error
	for _, adminID := range n.admins {
		if adminID == skip {
			continue
		}
		for _, chunk := range SplitText(text, MaxMessageLength) {
			if _, err := n.sender.SendMessage(adminID, chunk, nil); err != nil {
				errs = append(errs, fmt.Errorf("notify admin %d: %w", adminID, err))
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) NotifyRequest(requestID int64, text string) error {
	return n.Notify(fmt.Sprintf("📌 Заявка #%d\n%s", requestID, text))
}

// SplitText cuts text into chunks of at most limit runes, preferring to break
// on blank lines, then on newlines. Cuts never land inside an HTML tag, entity
// or tag pair unless a single element is longer than limit. Empty chunks are
// dropped.
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for {
		text = strings.TrimLeft(text, "\n")
		if text == "" {
			break
		}
		if utf8.RuneCountInString(text) <= limit {
			chunks = append(chunks, text)
			break
		}

		head := string([]rune(text)[:limit])
		cut := breakPoint(head)
		if safe := markupSafeCut(head[:cut]); safe > 0 {
			cut = safe
		}

		if chunk := strings.TrimRight(head[:cut], "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = text[cut:]
	}
	return chunks
}

func breakPoint(head string) int {
	if cut := strings.LastIndex(head, "\n\n"); cut > 0 {
		return cut
	}
	if cut := strings.LastIndex(head, "\n"); cut > 0 {
		return cut
	}
	return len(head)
}

// markupSafeCut returns the longest prefix length of s that leaves no tag or
// entity unterminated and no tag unclosed.
func markupSafeCut(s string) int {
	cut := len(s)
	if i := strings.LastIndexByte(s, '&'); i >= 0 && !strings.Contains(s[i:], ";") {
		cut = i
	}

	var open []int
	var names []string
	for i := 0; i < cut; {
		j := strings.IndexByte(s[i:cut], '<')
		if j < 0 {
			break
		}
		start := i + j
		k := strings.IndexByte(s[start:cut], '>')
		if k < 0 {
			cut = start
			break
		}

		tag := s[start+1 : start+k]
		name, _, _ := strings.Cut(strings.TrimPrefix(tag, "/"), " ")
		if strings.HasPrefix(tag, "/") {
			if n := len(names); n > 0 && names[n-1] == name {
				names, open = names[:n-1], open[:n-1]
			}
		} else {
			names = append(names, name)
			open = append(open, start)
		}
		i = start + k + 1
	}

	if len(open) > 0 && open[0] < cut {
		cut = open[0]
	}
	return cut
}
