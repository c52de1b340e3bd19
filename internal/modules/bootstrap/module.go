package bootstrap

import (
	"context"

	"go.uber.org/fx"

	"signal_bot/internal/exchange"
	bootstrap "signal_bot/internal/modules/bootstrap/service"
	"signal_bot/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			func(cfg *config.Config, prices exchange.PriceSource) *bootstrap.Warmuper {
				return bootstrap.NewWarmuper(prices, cfg.Engine.FetchTimeout)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, wu *bootstrap.Warmuper) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					// прогрев не блокирует старт; ошибка уже в логе
					go func() {
						_, _ = wu.Warmup(context.Background(), cfg.Price.WarmupPairs)
					}()
					return nil
				},
			})
		}),
	)
}
