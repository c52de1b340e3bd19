package runner

import (
	"context"
	"time"

	"signal_bot/internal/exchange"
	"signal_bot/internal/models"
	"signal_bot/internal/registry"
	"signal_bot/pkg/logger"
)

// PositionSource lists open exchange positions.
type PositionSource interface {
	OpenPositions(ctx context.Context) ([]exchange.OpenPosition, error)
}

// PositionSync annotates active signals with the exchange position on the
// same pair. It never changes lifecycle state.
type PositionSync struct {
	reg      *registry.Registry
	src      PositionSource
	interval time.Duration
}

func NewPositionSync(reg *registry.Registry, src PositionSource, interval time.Duration) *PositionSync {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &PositionSync{reg: reg, src: src, interval: interval}
}

// Refresh pulls positions once. On error the previous annotations stay.
func (p *PositionSync) Refresh(ctx context.Context) error {
	if p.reg.Len() == 0 {
		return nil
	}
	positions, err := p.src.OpenPositions(ctx)
	if err != nil {
		return err
	}

	byPair := make(map[string]models.LivePosition, len(positions))
	for _, pos := range positions {
		if pos.HoldVol <= 0 {
			continue
		}
		byPair[pos.Pair()] = pos.Live()
	}
	p.reg.SetLivePositions(byPair)
	return nil
}

func (p *PositionSync) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := p.Refresh(ctx); err != nil {
				logger.Warn("[positions] sync: %v", err)
			}
		}
	}
}
