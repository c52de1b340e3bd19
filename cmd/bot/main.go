package main

import (
	"context"

	"go.uber.org/fx"

	"signal_bot/internal/modules/api"
	"signal_bot/internal/modules/bootstrap"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/exchange"
	"signal_bot/internal/modules/health"
	"signal_bot/internal/modules/storage"
	telegram "signal_bot/internal/modules/telegram_bot"
	"signal_bot/internal/runner"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/tracing"
)

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		fx.Invoke(setupLogging),
		storage.Module(),
		health.Module(),
		exchange.Module(),
		bootstrap.Module(),
		api.Module(),
		runner.Module(),
		telegram.Module(),
	)
	app.Run()
	logger.Sync()
}

func setupLogging(lc fx.Lifecycle, cfg *config.Config) error {
	logger.SetServiceName("signal_bot")
	logger.Init(cfg.Log.Dir, cfg.Log.Debug)

	_, closeTracer, err := tracing.InitTracer(tracing.Config{
		Host: cfg.Tracing.Host,
		Port: cfg.Tracing.Port,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeTracer()
			return nil
		},
	})
	logger.Info("signal_bot starting: mode=%s price=%s ledger=%s", cfg.Telegram.Mode, cfg.Price.Source, cfg.Ledger.Driver)
	return nil
}
