package publisher

import (
	"context"
	"fmt"
	"strings"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type telegramMessage struct {
	chatID int64
	text   string
}

// Telegram forwards staff toasts to a chat. Sends happen on the Run
// goroutine; a full queue drops the message.
type Telegram struct {
	api   sender
	chats map[string]int64
	queue chan telegramMessage
	log   *logrus.Entry
}

// NewTelegram maps restaurant ids to chat ids. The "*" key is the fallback chat.
func NewTelegram(token string, chats map[string]int64, log *logrus.Entry) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newTelegram(api, chats, log), nil
}

func newTelegram(api sender, chats map[string]int64, log *logrus.Entry) *Telegram {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Telegram{api: api, chats: chats, queue: make(chan telegramMessage, 64), log: log}
}

func (t *Telegram) Notify(_ context.Context, scope string, toast domain.Toast) {
	rid, ok := strings.CutPrefix(scope, "staff:")
	if !ok {
		return
	}
	chatID, ok := t.chats[rid]
	if !ok {
		if chatID, ok = t.chats["*"]; !ok {
			return
		}
	}

	msg := telegramMessage{chatID: chatID, text: formatToast(toast)}
	select {
	case t.queue <- msg:
	default:
		t.log.WithField("restaurant_id", rid).Warn("[telegram] queue full, message dropped")
	}
}

// Run sends queued messages until ctx is done.
func (t *Telegram) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-t.queue:
			if _, err := t.api.Send(tgbotapi.NewMessage(m.chatID, m.text)); err != nil {
				t.log.WithError(err).WithField("chat_id", m.chatID).Warn("[telegram] send failed")
			}
		}
	}
}

func formatToast(t domain.Toast) string {
	switch t.Level {
	case domain.ToastSuccess:
		return "✅ " + t.Message
	case domain.ToastError:
		return "⚠️ " + t.Message
	}
	return "🔔 " + t.Message
}

var _ outbound.Notifier = (*Telegram)(nil)
