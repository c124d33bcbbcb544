package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MEKXH/gatekeeper/internal/approval"
)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends pending actions to one chat. The bot connects on the first
// notification.
type Telegram struct {
	token  string
	chatID int64

	mu     sync.Mutex
	bot    botSender
	newBot func(token string) (botSender, error)
}

// NewTelegram validates the settings without contacting Telegram.
func NewTelegram(token, chatID string) (*Telegram, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return &Telegram{
		token:  token,
		chatID: id,
		newBot: func(token string) (botSender, error) {
			return tgbotapi.NewBotAPI(token)
		},
	}, nil
}

func (t *Telegram) client() (botSender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := t.newBot(t.token)
	if err != nil {
		return nil, fmt.Errorf("telegram init failed: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// NotifyPending sends the action as HTML, falling back to plain text when
// Telegram rejects the markup.
func (t *Telegram) NotifyPending(ctx context.Context, action approval.PendingAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.client()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, renderHTML(action))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err = bot.Send(msg); err != nil {
		msg.ParseMode = ""
		msg.Text = PlainText(action)
		_, err = bot.Send(msg)
	}
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
