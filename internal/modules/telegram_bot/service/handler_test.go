package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_bot/internal/exchange"
	"signal_bot/internal/ledger"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/notify"
	"signal_bot/internal/registry"
	"signal_bot/internal/runner"
)

const (
	privateChat int64 = 7
	groupChat   int64 = 500
)

const block = "#portx\nPAIR: BTCUSDT\nSIDE: LONG\nENTRY: 100-102\nSTOPLOSS: 95\nTAKE_PROFIT: 110\n#end"

type sent struct {
	chatID int64
	text   string
	markup any
}

type fakeBot struct {
	mu       sync.Mutex
	sent     []sent
	requests int
	edited   []int
	nextID   int

	// when set, a message with a keyboard signals entered and blocks on gate
	gate    chan struct{}
	entered chan struct{}
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	m, isMsg := c.(tgbotapi.MessageConfig)
	if isMsg {
		b.sent = append(b.sent, sent{chatID: m.ChatID, text: m.Text, markup: m.ReplyMarkup})
	}
	gate := b.gate
	b.mu.Unlock()

	if _, hasKB := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); isMsg && hasKB && gate != nil {
		b.entered <- struct{}{}
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return tgbotapi.Message{MessageID: b.nextID}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests++
	switch e := c.(type) {
	case tgbotapi.EditMessageReplyMarkupConfig:
		b.edited = append(b.edited, e.MessageID)
	case tgbotapi.EditMessageTextConfig:
		b.edited = append(b.edited, e.MessageID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) edits() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.edited...)
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (b *fakeBot) StopReceivingUpdates() {}

func (b *fakeBot) to(chatID int64) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, s := range b.sent {
		if s.chatID == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

func (b *fakeBot) lastMarkup() (tgbotapi.InlineKeyboardMarkup, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.sent) - 1; i >= 0; i-- {
		if kb, ok := b.sent[i].markup.(tgbotapi.InlineKeyboardMarkup); ok {
			return kb, true
		}
	}
	return tgbotapi.InlineKeyboardMarkup{}, false
}

type fakePositions struct {
	creds bool
	list  []exchange.OpenPosition
}

func (f *fakePositions) HasCreds() bool { return f.creds }

func (f *fakePositions) OpenPositions(context.Context) ([]exchange.OpenPosition, error) {
	return f.list, nil
}

func newTelegram(t *testing.T, mode string, confirm bool) (*Telegram, *fakeBot, *runner.Service) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Telegram.Mode = mode
	cfg.Telegram.TargetGroupID = groupChat
	cfg.Telegram.ConfirmSend = confirm
	cfg.Telegram.ConfirmTimeout = 5 * time.Second

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	svc := runner.NewService(registry.New(), ledger.NewMemory(0), func() time.Time { return now })
	bot := &fakeBot{}
	tg := NewTelegram(cfg, bot, notify.NewTelegram(bot), svc, &fakePositions{})
	return tg, bot, svc
}

func message(chatID int64, text string) tgbotapi.Update {
	chatType := "group"
	if chatID == privateChat {
		chatType = "private"
	}
	msg := &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID, Type: chatType},
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func TestPlainBlockRegistersForChat(t *testing.T) {
	tg, bot, svc := newTelegram(t, ModeTest, false)
	ctx := context.Background()

	tg.handleUpdate(ctx, message(groupChat+1, "Новый сигнал\n"+block))
	list := svc.ListActive(groupChat + 1)
	require.Len(t, list, 1)
	assert.Equal(t, "BTC_USDT", list[0].Pair)

	replies := bot.to(groupChat + 1)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Сигнал принят")

	tg.handleUpdate(ctx, message(groupChat+1, "просто текст"))
	assert.Len(t, bot.to(groupChat+1), 1)
}

func TestInvalidBlockIsRejected(t *testing.T) {
	tg, bot, svc := newTelegram(t, ModeTest, false)

	tg.handleUpdate(context.Background(), message(42, "#portx\nPAIR: BTCUSDT\nSIDE: LONG\nENTRY: 100\n#end"))
	assert.Empty(t, svc.ListActive(42))
	replies := bot.to(42)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "не принят")
}

func TestSendInTestModeOnlyPreviews(t *testing.T) {
	tg, bot, svc := newTelegram(t, ModeTest, false)

	tg.handleUpdate(context.Background(), message(privateChat, "/send\n"+block))

	assert.Len(t, svc.ListActive(groupChat), 1)
	assert.Empty(t, bot.to(groupChat))
	replies := bot.to(privateChat)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "TEST MODE")
	assert.Contains(t, replies[0], "BTC_USDT")
}

func TestSendInLiveModePublishes(t *testing.T) {
	tg, bot, svc := newTelegram(t, ModeTest, false)
	ctx := context.Background()

	tg.handleUpdate(ctx, message(privateChat, "/mode_live"))
	assert.Equal(t, ModeLive, tg.Mode())

	tg.handleUpdate(ctx, message(privateChat, "/send\n"+block))
	assert.Len(t, svc.ListActive(groupChat), 1)

	cards := bot.to(groupChat)
	require.Len(t, cards, 1)
	assert.Contains(t, cards[0], "Futures Signal")
	assert.Contains(t, bot.to(privateChat)[1], "опубликован")
}

func TestSendWaitsForBlock(t *testing.T) {
	tg, bot, svc := newTelegram(t, ModeTest, false)
	ctx := context.Background()

	tg.handleUpdate(ctx, message(privateChat, "/send"))
	require.Len(t, bot.to(privateChat), 1)
	assert.Contains(t, bot.to(privateChat)[0], "#portx")

	tg.handleUpdate(ctx, message(privateChat, block))
	assert.Len(t, svc.ListActive(groupChat), 1)
	assert.Empty(t, svc.ListActive(privateChat))
}

func TestStatusInPrivateShowsTargetGroup(t *testing.T) {
	tg, bot, svc := newTelegram(t, ModeTest, false)
	ctx := context.Background()

	_, _, err := svc.SubmitText(block, groupChat)
	require.NoError(t, err)

	tg.handleUpdate(ctx, message(privateChat, "/status"))
	tg.handleUpdate(ctx, message(privateChat, "/recap 6"))
	tg.handleUpdate(ctx, message(privateChat, "/mode_status"))

	replies := bot.to(privateChat)
	require.Len(t, replies, 3)
	assert.Contains(t, replies[0], "BTC_USDT")
	assert.Contains(t, replies[1], "Recap")
	assert.Contains(t, replies[2], ModeTest)
}

func TestMyPosWithoutKeys(t *testing.T) {
	tg, bot, _ := newTelegram(t, ModeTest, false)

	tg.handleUpdate(context.Background(), message(privateChat, "/mypos"))
	replies := bot.to(privateChat)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "MEXC")
}

func TestConfirmBeforePublish(t *testing.T) {
	tg, bot, svc := newTelegram(t, ModeLive, true)
	ctx := context.Background()

	tg.handleUpdate(ctx, message(privateChat, "/send\n"+block))
	assert.Empty(t, svc.ListActive(groupChat))

	var kb tgbotapi.InlineKeyboardMarkup
	require.Eventually(t, func() bool {
		var ok bool
		kb, ok = bot.lastMarkup()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	data := kb.InlineKeyboard[0][0].CallbackData
	require.NotNil(t, data)
	require.True(t, strings.HasPrefix(*data, "CONF::"))

	tg.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    *data,
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: privateChat, Type: "private"}},
	}})

	require.Eventually(t, func() bool {
		return len(svc.ListActive(groupChat)) == 1 && len(bot.to(groupChat)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConfirmTapDuringPromptSend(t *testing.T) {
	tg, bot, _ := newTelegram(t, ModeLive, true)
	bot.nextID = 41
	bot.gate = make(chan struct{})
	bot.entered = make(chan struct{}, 1)
	ctx := context.Background()

	result := make(chan bool, 1)
	go func() { result <- tg.Confirm(ctx, privateChat, "publish?", 5*time.Second) }()
	<-bot.entered

	kb, ok := bot.lastMarkup()
	require.True(t, ok)
	data := kb.InlineKeyboard[0][0].CallbackData
	require.NotNil(t, data)

	tapped := make(chan struct{})
	go func() {
		defer close(tapped)
		tg.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb1",
			Data: *data,
			Message: &tgbotapi.Message{
				Chat: &tgbotapi.Chat{ID: privateChat, Type: "private"},
			},
		}})
	}()

	select {
	case <-tapped:
		t.Fatal("tap handled before the prompt was sent")
	case <-time.After(50 * time.Millisecond):
	}
	close(bot.gate)

	select {
	case ok := <-result:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("confirm did not return")
	}
	<-tapped
	assert.Equal(t, []int{42, 42}, bot.edits())
}

func TestParseHours(t *testing.T) {
	h, err := parseHours("")
	require.NoError(t, err)
	assert.Equal(t, 24, h)

	h, err = parseHours("12h")
	require.NoError(t, err)
	assert.Equal(t, 12, h)

	_, err = parseHours("0")
	assert.Error(t, err)
	_, err = parseHours("abc")
	assert.Error(t, err)
}
