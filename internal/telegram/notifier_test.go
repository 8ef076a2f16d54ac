package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func TestNotify(t *testing.T) {
	fs := &fakeSender{}
	n := &Notifier{s: fs, chatID: 77}

	require.NoError(t, n.Notify(context.Background(), "Agenda de hoy"))
	require.Len(t, fs.sent, 1)
	assert.Equal(t, int64(77), fs.sent[0].ChatID)
	assert.Equal(t, "Agenda de hoy", fs.sent[0].Text)
}

func TestNotify_SplitsLongText(t *testing.T) {
	fs := &fakeSender{}
	n := &Notifier{s: fs, chatID: 1}

	line := strings.Repeat("á", 99) + "\n"
	text := strings.Repeat(line, 50) // 5000 runes
	require.NoError(t, n.Notify(context.Background(), text))

	require.Len(t, fs.sent, 2)
	assert.Equal(t, 4000, len([]rune(fs.sent[0].Text)))
	assert.Equal(t, text, fs.sent[0].Text+fs.sent[1].Text)
}

func TestNotify_Error(t *testing.T) {
	n := &Notifier{s: &fakeSender{err: errors.New("blocked")}, chatID: 1}
	assert.ErrorContains(t, n.Notify(context.Background(), "x"), "blocked")
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{""}, split("", 10))
	assert.Equal(t, []string{"abcde", "fgh"}, split("abcdefgh", 5))
	assert.Equal(t, []string{"ab\n", "cdef"}, split("ab\ncdef", 5))
}
