package runner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	"signal_bot/internal/exchange"
	"signal_bot/internal/ledger"
	"signal_bot/internal/modules/config"
	health "signal_bot/internal/modules/health/service"
	"signal_bot/internal/notify"
	"signal_bot/internal/registry"
	"signal_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func() Clock { return time.Now },
			registry.New,
			NewService,
			newDispatcher,
			newPoller,
			newRecapScheduler,
			newPositionSync,
		),
		fx.Invoke(run),
	)
}

func newDispatcher(cfg *config.Config, n notify.Notifier) *Dispatcher {
	return NewDispatcher(n, cfg.Engine.NotifyQueue, cfg.Engine.NotifyWorkers, cfg.Engine.NotifyTimeout)
}

func newPoller(
	cfg *config.Config,
	reg *registry.Registry,
	led ledger.Ledger,
	prices exchange.PriceSource,
	d *Dispatcher,
	now Clock,
	state *health.State,
) *Poller {
	return NewPoller(reg, led, prices, d, now, PollerOptions{
		Interval:     cfg.Engine.PollInterval,
		FetchTimeout: cfg.Engine.FetchTimeout,
		Concurrency:  cfg.Engine.Concurrency,
		OnTick:       state.TouchTick,
	})
}

func newRecapScheduler(cfg *config.Config, reg *registry.Registry, led ledger.Ledger, d *Dispatcher, now Clock) (*RecapScheduler, error) {
	return NewRecapScheduler(reg, led, d, now, RecapOptions{
		RecapAt:    cfg.Recap.At,
		BriefingAt: cfg.Recap.BriefingAt,
		Window:     cfg.Recap.Window,
		Location:   cfg.RecapLocation(),
	})
}

// newPositionSync returns nil without MEXC credentials.
func newPositionSync(cfg *config.Config, reg *registry.Registry, mx *exchange.MexcClient) *PositionSync {
	if !mx.HasCreds() {
		logger.Info("[positions] MEXC keys not set, position sync disabled")
		return nil
	}
	return NewPositionSync(reg, mx, cfg.Mexc.SyncInterval)
}

func run(
	lc fx.Lifecycle,
	d *Dispatcher,
	p *Poller,
	rs *RecapScheduler,
	ps *PositionSync,
	state *health.State,
) {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	spawn := func(ctx context.Context, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			d.Start()
			spawn(ctx, p.Run)
			spawn(ctx, rs.Run)
			if ps != nil {
				spawn(ctx, ps.Run)
			}
			state.SetReady(true)
			return nil
		},
		OnStop: func(_ context.Context) error {
			state.SetReady(false)
			if cancel != nil {
				cancel()
			}
			wg.Wait()
			// дожидаемся отправки уже поставленных в очередь уведомлений
			d.Close()
			return nil
		},
	})
}
