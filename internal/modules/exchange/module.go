package exchange

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"signal_bot/internal/exchange"
	"signal_bot/internal/modules/config"
	health "signal_bot/internal/modules/health/service"
	"signal_bot/pkg/logger"
)

// Module provides the MEXC client and the PriceSource the poller reads.
func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			newMexcClient,
			newPriceSource,
		),
	)
}

func newMexcClient(cfg *config.Config) *exchange.MexcClient {
	mx := exchange.NewMexcClient(cfg.Engine.FetchTimeout)
	mx.SetCreds(cfg.Mexc.APIKey, cfg.Mexc.SecretKey)
	return mx
}

func newPriceSource(lc fx.Lifecycle, cfg *config.Config, mx *exchange.MexcClient, state *health.State) (exchange.PriceSource, error) {
	switch cfg.Price.Source {
	case "", "mexc":
		logger.Info("[exchange] price source: MEXC REST")
		return mx, nil

	case "mexc_ws":
		st := exchange.NewStreamer(mx, cfg.Price.StaleAfter)
		st.OnConnChange(state.SetWSConnected)
		var cancel context.CancelFunc
		lc.Append(fx.Hook{
			OnStart: func(_ context.Context) error {
				var ctx context.Context
				ctx, cancel = context.WithCancel(context.Background())
				st.Start(ctx)
				return nil
			},
			OnStop: func(_ context.Context) error {
				state.SetWSConnected(false)
				st.Stop()
				if cancel != nil {
					cancel()
				}
				return nil
			},
		})
		logger.Info("[exchange] price source: MEXC websocket, REST fallback after %s", cfg.Price.StaleAfter)
		return st, nil

	case "binance":
		logger.Info("[exchange] price source: Binance REST")
		return exchange.NewBinanceSource(cfg.Binance.APIKey, cfg.Binance.SecretKey), nil
	}
	return nil, fmt.Errorf("unknown price source %q", cfg.Price.Source)
}
