package service

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal_bot/internal/intake"
	"signal_bot/internal/models"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"
)

const awaitSignal = "send"

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// 1) Обычные сообщения
	if msg := update.Message; msg != nil && msg.Chat != nil {
		chatID := msg.Chat.ID

		if msg.IsCommand() {
			t.clearAwait(chatID)
			if err := t.handleCommand(ctx, msg); err != nil {
				logger.Error("[telegram] /%s chat=%d: %v", msg.Command(), chatID, err)
			}
			return
		}

		if err := t.handleTextMessage(ctx, msg); err != nil {
			logger.Error("[telegram] text chat=%d: %v", chatID, err)
		}
		return
	}

	// 2) Inline-кнопки (CallbackQuery)
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil {
			return
		}
		t.handleCallback(ctx, cb.Message.Chat.ID, cb)
		return
	}

	// 3) Остальное игнорируем
}

func (t *Telegram) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return t.Send(ctx, chatID, formatHelp(t.Mode()))
	case "id":
		if msg.From != nil {
			return t.SendF(ctx, chatID, "Chat ID: %d\nUser ID: %d", chatID, msg.From.ID)
		}
		return t.SendF(ctx, chatID, "Chat ID: %d", chatID)
	case "status":
		dest := t.destinationFor(msg.Chat)
		return t.Send(ctx, chatID, notify.FormatActive(t.svc.ListActive(dest), t.svc.Now()))
	case "send":
		return t.handleSend(ctx, msg.Chat, args)
	case "mypos":
		return t.handlePositions(ctx, chatID)
	case "recap":
		return t.handleRecap(ctx, msg.Chat, args)
	case "mode_live":
		t.setMode(ModeLive)
		return t.Send(ctx, chatID, "🟢 Режим LIVE: /send публикует сигналы в группу.")
	case "mode_test":
		t.setMode(ModeTest)
		return t.Send(ctx, chatID, "🧪 Режим TEST: /send показывает превью здесь.")
	case "mode_status":
		return t.SendF(ctx, chatID, "Текущий режим: %s", t.Mode())
	default:
		return t.Send(ctx, chatID, "Неизвестная команда. /help")
	}
}

func (t *Telegram) handleTextMessage(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	// 1) Ждём блок после пустого /send
	if key, ok := t.peekAwait(chatID); ok && key == awaitSignal {
		t.clearAwait(chatID)
		return t.handleSend(ctx, msg.Chat, text)
	}

	// 2) Блок #portx в любом чате регистрирует сигнал для этого чата
	if !intake.HasBlock(text) {
		return nil
	}
	req, id, err := t.svc.SubmitText(text, chatID)
	if err != nil {
		return t.replyInvalid(ctx, chatID, err)
	}
	logger.Info("[telegram] signal %s registered: %s %s chat=%d", id, req.Pair, req.Side, chatID)
	return t.Send(ctx, chatID, formatRegistered(req))
}

// handleSend registers a #portx block for the target group. LIVE posts the
// card to the group, TEST only shows a preview in the current chat.
func (t *Telegram) handleSend(ctx context.Context, chat *tgbotapi.Chat, payload string) error {
	chatID := chat.ID
	if payload == "" {
		t.setAwait(chatID, awaitSignal)
		return t.Send(ctx, chatID, sendUsage)
	}

	req, err := intake.Parse(payload)
	if err != nil {
		return t.replyInvalid(ctx, chatID, err)
	}
	dest := t.target
	if dest == 0 {
		dest = chatID
	}
	req.Destination = dest

	if t.Mode() != ModeLive {
		if _, err := t.svc.Submit(req); err != nil {
			return t.replyInvalid(ctx, chatID, err)
		}
		return t.SendMarkdown(ctx, chatID, "🧪 *TEST MODE* (в группу не отправлено)\n\n"+notify.FormatSignalCard(req))
	}

	if t.confirmSend {
		go t.publishConfirmed(ctx, chatID, req)
		return nil
	}
	return t.publish(ctx, chatID, req)
}

func (t *Telegram) publishConfirmed(ctx context.Context, chatID int64, req models.SignalRequest) {
	prompt := "Опубликовать сигнал?\n\n" + intake.Format(req)
	if !t.Confirm(ctx, chatID, prompt, t.confirmTimeout) {
		return
	}
	if err := t.publish(ctx, chatID, req); err != nil {
		logger.Error("[telegram] publish chat=%d: %v", chatID, err)
	}
}

func (t *Telegram) publish(ctx context.Context, chatID int64, req models.SignalRequest) error {
	id, err := t.svc.Submit(req)
	if err != nil {
		return t.replyInvalid(ctx, chatID, err)
	}
	logger.Info("[telegram] signal %s published: %s %s chat=%d", id, req.Pair, req.Side, req.Destination)

	if err := t.SendMarkdown(ctx, req.Destination, notify.FormatSignalCard(req)); err != nil {
		_ = t.Send(ctx, chatID, "⚠️ Сигнал зарегистрирован, но карточку отправить не удалось.")
		return err
	}
	if req.Destination != chatID {
		return t.Send(ctx, chatID, "✅ Сигнал опубликован в группу.")
	}
	return nil
}

func (t *Telegram) handleRecap(ctx context.Context, chat *tgbotapi.Chat, args string) error {
	hours, err := parseHours(args)
	if err != nil {
		return t.Send(ctx, chat.ID, "Использование: /recap [часы], например /recap 12")
	}
	since := t.svc.Now().Add(-time.Duration(hours) * time.Hour)
	sum, err := t.svc.Recap(ctx, t.destinationFor(chat), since)
	if err != nil {
		_ = t.Send(ctx, chat.ID, "❗️ История недоступна, попробуй позже.")
		return err
	}
	return t.Send(ctx, chat.ID, notify.FormatRecap("📒 Recap", &sum))
}

// /mypos: вывод открытых позиций с MEXC
func (t *Telegram) handlePositions(ctx context.Context, chatID int64) error {
	if t.mx == nil || !t.mx.HasCreds() {
		return t.Send(ctx, chatID, "❗️ Ключи MEXC не заданы")
	}
	positions, err := t.mx.OpenPositions(ctx)
	if err != nil {
		_ = t.SendF(ctx, chatID, "❗️ Ошибка получения позиций: %v", err)
		return err
	}
	return t.Send(ctx, chatID, formatPositions(positions))
}

func (t *Telegram) handleCallback(ctx context.Context, chatID int64, cb *tgbotapi.CallbackQuery) {
	_, _ = t.bot.Request(tgbotapi.NewCallback(cb.ID, ""))

	kind, token, ok := strings.Cut(cb.Data, "::")
	if !ok {
		return
	}
	var approved bool
	switch kind {
	case "CONF":
		approved = true
	case "REJ":
	default:
		return
	}

	msgID, prompt, found := t.resolve(token, approved)
	if !found {
		return
	}
	if msgID == 0 && cb.Message != nil {
		msgID = cb.Message.MessageID
	}
	_ = t.editReplyMarkupRemove(chatID, msgID)
	suffix := "\n\n❌ Отменено"
	if approved {
		suffix = "\n\n✅ Опубликовано"
	}
	_ = t.editText(chatID, msgID, prompt+suffix)
}

// destinationFor maps a private chat to the target group, so the operator
// sees what /send registered there.
func (t *Telegram) destinationFor(chat *tgbotapi.Chat) int64 {
	if chat.IsPrivate() && t.target != 0 {
		return t.target
	}
	return chat.ID
}

func (t *Telegram) replyInvalid(ctx context.Context, chatID int64, err error) error {
	if errors.Is(err, models.ErrInvalidSignal) || errors.Is(err, intake.ErrNoBlock) {
		return t.SendF(ctx, chatID, "❌ Сигнал не принят: %v", err)
	}
	return err
}
