package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal_bot/internal/exchange"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/notify"
	"signal_bot/internal/runner"
	"signal_bot/pkg/logger"
)

const (
	ModeLive = "LIVE"
	ModeTest = "TEST"
)

// Bot is the part of *tgbot.BotAPI the command loop uses.
type Bot interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	Request(c tgbot.Chattable) (*tgbot.APIResponse, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// Positions lists open MEXC futures positions for /mypos.
type Positions interface {
	HasCreds() bool
	OpenPositions(ctx context.Context) ([]exchange.OpenPosition, error)
}

// promptSendWait bounds how long a button answer waits for the prompt's
// message ID.
const promptSendWait = 10 * time.Second

type pending struct {
	ch     chan bool
	ready  chan struct{} // closed once msgID is known
	msgID  int
	prompt string
}

// Telegram
type Telegram struct {
	bot   Bot
	out   *notify.Telegram
	svc   *runner.Service
	mx    Positions
	await *awaitStore

	target         int64
	confirmSend    bool
	confirmTimeout time.Duration

	mu       sync.Mutex
	mode     string
	pendings map[string]*pending

	cancel context.CancelFunc
	done   chan struct{}
}

func NewTelegram(cfg *config.Config, bot Bot, out *notify.Telegram, svc *runner.Service, mx Positions) *Telegram {
	return &Telegram{
		bot:            bot,
		out:            out,
		svc:            svc,
		mx:             mx,
		await:          newAwaitStore(),
		target:         cfg.Telegram.TargetGroupID,
		confirmSend:    cfg.Telegram.ConfirmSend,
		confirmTimeout: cfg.Telegram.ConfirmTimeout,
		mode:           strings.ToUpper(cfg.Telegram.Mode),
		pendings:       make(map[string]*pending),
	}
}

func (t *Telegram) Send(ctx context.Context, chatID int64, msg string) error {
	return t.out.Send(ctx, chatID, msg)
}

func (t *Telegram) SendF(ctx context.Context, chatID int64, format string, args ...any) error {
	return t.Send(ctx, chatID, fmt.Sprintf(format, args...))
}

func (t *Telegram) SendMarkdown(ctx context.Context, chatID int64, msg string) error {
	return t.out.SendMarkdown(ctx, chatID, msg)
}

func (t *Telegram) Mode() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

func (t *Telegram) setMode(mode string) {
	t.mu.Lock()
	t.mode = mode
	t.mu.Unlock()
	logger.Info("[telegram] mode switched to %s", mode)
}

func (t *Telegram) editReplyMarkupRemove(chatID int64, msgID int) error {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	edit := tgbot.NewEditMessageReplyMarkup(chatID, msgID, rm)
	_, err := t.bot.Request(edit)
	return err
}

func (t *Telegram) editText(chatID int64, msgID int, text string) error {
	edit := tgbot.NewEditMessageText(chatID, msgID, text)
	_, err := t.bot.Request(edit)
	return err
}

// Confirm: сообщение с кнопками и ожиданием callback.
func (t *Telegram) Confirm(ctx context.Context, chatID int64, prompt string, timeout time.Duration) bool {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	p := &pending{
		ch:     make(chan bool, 1),
		ready:  make(chan struct{}),
		prompt: prompt,
	}

	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()

	btnYes := tgbot.NewInlineKeyboardButtonData("📣 Опубликовать", "CONF::"+token)
	btnNo := tgbot.NewInlineKeyboardButtonData("❌ Отмена", "REJ::"+token)
	kb := tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(btnYes, btnNo))

	msg := tgbot.NewMessage(chatID, prompt)
	msg.ReplyMarkup = kb

	sent, err := t.bot.Send(msg)
	if err != nil {
		logger.Error("[telegram] confirm prompt: %v", err)
		t.dropPending(token)
		close(p.ready)
		return false
	}
	t.mu.Lock()
	p.msgID = sent.MessageID
	t.mu.Unlock()
	close(p.ready)

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		_ = t.editReplyMarkupRemove(chatID, p.msgID)
		_ = t.editText(chatID, p.msgID, fmt.Sprintf("%s\n\n⏳ Таймаут", prompt))
		t.dropPending(token)
		return false
	case <-ctx.Done():
		_ = t.editReplyMarkupRemove(chatID, p.msgID)
		_ = t.editText(chatID, p.msgID, fmt.Sprintf("%s\n\n⛔️ Отменено", prompt))
		t.dropPending(token)
		return false
	}
}

func (t *Telegram) dropPending(token string) {
	t.mu.Lock()
	delete(t.pendings, token)
	t.mu.Unlock()
}

// resolve hands the button answer to the waiting Confirm and returns the
// prompt message it belongs to. A tap that races the prompt's Send waits
// for the message ID.
func (t *Telegram) resolve(token string, ok bool) (msgID int, prompt string, found bool) {
	t.mu.Lock()
	p, found := t.pendings[token]
	if found {
		delete(t.pendings, token)
	}
	t.mu.Unlock()
	if !found {
		return 0, "", false
	}

	tmr := time.NewTimer(promptSendWait)
	defer tmr.Stop()
	select {
	case <-p.ready:
	case <-tmr.C:
		logger.Warn("[telegram] confirm prompt still unsent after %s", promptSendWait)
	}

	t.mu.Lock()
	msgID = p.msgID
	t.mu.Unlock()
	p.ch <- ok
	return msgID, p.prompt, true
}

// Start runs the update loop until Stop or ctx cancellation.
func (t *Telegram) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		defer close(t.done)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}()
	logger.Info("[telegram] bot started, mode=%s target=%d", t.Mode(), t.target)
}

func (t *Telegram) Stop() {
	if t.cancel == nil {
		return
	}
	t.bot.StopReceivingUpdates()
	t.cancel()
	<-t.done
}
