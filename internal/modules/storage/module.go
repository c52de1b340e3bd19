package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/fx"

	"signal_bot/internal/ledger"
	"signal_bot/internal/ledger/pg"
	"signal_bot/internal/ledger/sqlite"
	"signal_bot/internal/modules/config"
	"signal_bot/pkg/db"
	"signal_bot/pkg/logger"
)

const pruneEvery = time.Hour

// Module provides the closure ledger selected by ledger.driver.
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(newLedger),
	)
}

type pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

func newLedger(ctx context.Context, lc fx.Lifecycle, cfg *config.Config) (ledger.Ledger, error) {
	switch cfg.Ledger.Driver {
	case "", "memory":
		logger.Info("[storage] ledger: memory, retention %s", cfg.Ledger.Retention)
		return ledger.NewMemory(cfg.Ledger.Retention), nil

	case "postgres":
		poolMaster, err := db.NewPool(ctx, db.PoolConfig{
			DSN: cfg.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create poolMaster: %w", err)
		}
		if err = poolMaster.Ping(ctx); err != nil {
			poolMaster.Close()
			return nil, err
		}

		tx := db.NewPgTxManager(poolMaster)
		h := pg.NewHistory(tx)
		if err := h.Migrate(ctx); err != nil {
			tx.Close()
			return nil, err
		}
		keepPruned(lc, h, cfg.Ledger.Retention, tx.Close)
		logger.Info("[storage] ledger: postgres")
		return h, nil

	case "sqlite":
		if dir := filepath.Dir(cfg.Ledger.SQLite); cfg.Ledger.SQLite != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("ledger dir: %w", err)
			}
		}
		h, err := sqlite.Open(cfg.Ledger.SQLite)
		if err != nil {
			return nil, err
		}
		keepPruned(lc, h, cfg.Ledger.Retention, func() {
			if err := h.Close(); err != nil {
				logger.Error("[storage] sqlite close: %v", err)
			}
		})
		logger.Info("[storage] ledger: sqlite %s", cfg.Ledger.SQLite)
		return h, nil
	}
	return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
}

// keepPruned drops records older than retention every hour and closes the
// store on stop.
func keepPruned(lc fx.Lifecycle, p pruner, retention time.Duration, closeFn func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				if retention <= 0 {
					<-ctx.Done()
					return
				}
				t := time.NewTicker(pruneEvery)
				defer t.Stop()
				for {
					prune(ctx, p, retention)
					select {
					case <-ctx.Done():
						return
					case <-t.C:
					}
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			<-done
			closeFn()
			return nil
		},
	})
}

func prune(ctx context.Context, p pruner, retention time.Duration) {
	n, err := p.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		logger.Error("[storage] prune: %v", err)
		return
	}
	if n > 0 {
		logger.Info("[storage] pruned %d closures", n)
	}
}
