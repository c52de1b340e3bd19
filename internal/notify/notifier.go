package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
)

var ErrNotifyFailed = errors.New("notify failed")

// Notifier delivers one event to a destination chat.
type Notifier interface {
	Notify(ctx context.Context, destination int64, ev models.Event) error
}

// Sender is the part of *tgbot.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram отправляет события в чаты с учётом лимитов Telegram:
// ~30 сообщений/с на бота и ~1 сообщение/с на чат.
type Telegram struct {
	bot    Sender
	global *rate.Limiter

	mu      sync.Mutex
	perChat map[int64]*rate.Limiter
}

func NewTelegram(bot Sender) *Telegram {
	return &Telegram{
		bot:     bot,
		global:  rate.NewLimiter(rate.Limit(25), 5),
		perChat: make(map[int64]*rate.Limiter),
	}
}

func (t *Telegram) Notify(ctx context.Context, destination int64, ev models.Event) error {
	return t.Send(ctx, destination, Format(ev))
}

// Send posts plain text to chatID, waiting for rate-limit tokens.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	return t.send(ctx, chatID, tgbot.NewMessage(chatID, text))
}

// SendMarkdown posts text with Markdown parse mode.
func (t *Telegram) SendMarkdown(ctx context.Context, chatID int64, text string) error {
	msg := tgbot.NewMessage(chatID, text)
	msg.ParseMode = tgbot.ModeMarkdown
	return t.send(ctx, chatID, msg)
}

func (t *Telegram) send(ctx context.Context, chatID int64, msg tgbot.MessageConfig) error {
	if t == nil || t.bot == nil || chatID == 0 {
		return fmt.Errorf("%w: no bot or chat", ErrNotifyFailed)
	}
	if err := t.global.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotifyFailed, err)
	}
	if err := t.chatLimiter(chatID).Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotifyFailed, err)
	}
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("%w: chat %d: %v", ErrNotifyFailed, chatID, err)
	}
	return nil
}

func (t *Telegram) chatLimiter(chatID int64) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.perChat[chatID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(1), 3)
		t.perChat[chatID] = l
	}
	return l
}

// Stdout: заглушка, всё пишет в лог.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) Notify(_ context.Context, destination int64, ev models.Event) error {
	logger.Info("[notify] chat=%d %s", destination, Format(ev))
	return nil
}
