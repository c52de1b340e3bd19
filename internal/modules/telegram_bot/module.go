package telegram

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/fx"

	"signal_bot/internal/exchange"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/telegram_bot/service"
	"signal_bot/internal/notify"
	"signal_bot/internal/runner"
	"signal_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("telegram",
		// 1. Клиент Bot API (nil без токена)
		fx.Provide(
			newBotAPI,
			newSink,
		),

		// 2. Адаптер: куда движок шлёт уведомления
		fx.Provide(
			func(out *notify.Telegram) notify.Notifier {
				if out == nil {
					logger.Warn("[telegram] TELEGRAM_TOKEN not set, notifications go to the log")
					return notify.NewStdout()
				}
				return out
			},
		),

		// Запуск цикла команд через Lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, cfg *config.Config, bot *tgbot.BotAPI, out *notify.Telegram, svc *runner.Service, mx *exchange.MexcClient) {
				if bot == nil {
					return
				}
				t := service.NewTelegram(cfg, bot, out, svc, mx)
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						t.Start(context.Background())
						return nil
					},
					OnStop: func(ctx context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}

func newBotAPI(cfg *config.Config) (*tgbot.BotAPI, error) {
	if cfg.Telegram.Token == "" {
		return nil, nil
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	logger.Info("[telegram] authorized as @%s", b.Self.UserName)
	return b, nil
}

func newSink(bot *tgbot.BotAPI) *notify.Telegram {
	if bot == nil {
		return nil
	}
	return notify.NewTelegram(bot)
}
