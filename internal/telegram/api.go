// Package telegram pushes operational notices to an admin chat.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram rejects longer message texts.
const maxMessageLen = 4096

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type botAPISender struct{ api *tgbotapi.BotAPI }

func (s botAPISender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return s.api.Send(c)
}

// Notifier sends plain text to one chat.
type Notifier struct {
	s      sender
	chatID int64
}

func NewNotifier(token string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	return &Notifier{s: botAPISender{api: api}, chatID: chatID}, nil
}

// Notify splits text into chunks Telegram accepts and sends them in order.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	for _, chunk := range split(text, maxMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := n.s.Send(tgbotapi.NewMessage(n.chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// split cuts on rune boundaries, preferring the last newline within limit.
func split(text string, limit int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 || len(out) == 0 {
		out = append(out, string(runes))
	}
	return out
}
