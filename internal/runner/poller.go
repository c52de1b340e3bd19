package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"signal_bot/internal/exchange"
	"signal_bot/internal/ledger"
	"signal_bot/internal/lifecycle"
	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/internal/registry"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/tracing"
)

// PairWatcher is implemented by price sources that keep per-pair state,
// such as streams, and want to drop pairs nobody tracks any more.
type PairWatcher interface {
	Retain(pairs []string)
}

type PollerOptions struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Concurrency  int
	// OnTick is called with the tick time after every completed tick.
	OnTick func(time.Time)
}

// Poller drives the lifecycle of every active signal on a fixed interval.
// One tick runs to completion before the next starts.
type Poller struct {
	reg    *registry.Registry
	led    ledger.Ledger
	prices exchange.PriceSource
	out    EventSink
	now    Clock
	opts   PollerOptions
}

// TickReport summarizes one tick.
type TickReport struct {
	At        time.Time
	Pairs     int
	Failed    []string
	Evaluated int
	Swept     int
	Closed    int
	Events    []models.Event
}

func NewPoller(reg *registry.Registry, led ledger.Ledger, prices exchange.PriceSource, out EventSink, now Clock, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 4 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Poller{reg: reg, led: led, prices: prices, out: out, now: now, opts: opts}
}

// Run ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.opts.Interval)
	defer t.Stop()

	logger.Info("[poller] started, interval=%s", p.opts.Interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[poller] stopped")
			return
		case <-t.C:
			p.Tick(ctx)
		}
	}
}

// Tick fetches one price per distinct pair, evaluates every active signal,
// writes results back to the registry and ledger, and hands events to the sink.
func (p *Poller) Tick(ctx context.Context) TickReport {
	start := time.Now()
	span, ctx := tracing.StartSpan(ctx, "poller.tick")
	defer span.Finish()

	pairs := p.reg.Pairs()
	if w, ok := p.prices.(PairWatcher); ok {
		w.Retain(pairs)
	}
	span.SetTag("pairs", len(pairs))

	prices, failed := p.fetchAll(ctx, pairs)
	now := p.now()
	report := TickReport{At: now, Pairs: len(pairs), Failed: failed}

	// запись в ledger не должна обрываться отменой тика
	writeCtx := context.WithoutCancel(ctx)

	for _, s := range p.reg.Snapshot() {
		var (
			next   models.Signal
			events []models.Event
		)
		if price, ok := prices[s.Pair]; ok {
			next, events = lifecycle.Evaluate(s, price, now)
			report.Evaluated++
		} else {
			next, events = lifecycle.SweepExpired(s, now)
			report.Swept++
		}
		if next == s {
			continue
		}
		if err := lifecycle.CheckTransition(s, next); err != nil {
			metrics.InvariantViolations.Inc()
			logger.Error("[poller] %v", err)
			continue
		}
		if !p.reg.Apply(next) {
			continue
		}

		if next.Closed() {
			report.Closed++
			metrics.ClosuresTotal.WithLabelValues(string(next.CloseReason)).Inc()
			if err := p.led.Record(writeCtx, next.Closure()); err != nil && !errors.Is(err, ledger.ErrDuplicate) {
				logger.Error("[poller] ledger record %s: %v", next.ID, err)
			}
			logger.Info("[poller] %s %s %s closed: %s @ %v", next.ID, next.Pair, next.Side, next.CloseReason, next.ClosePrice)
		}

		for _, ev := range events {
			metrics.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
			p.out.Enqueue(ev)
		}
		report.Events = append(report.Events, events...)
	}

	metrics.ActiveSignals.Set(float64(p.reg.Len()))
	metrics.TicksTotal.Inc()
	metrics.TickSeconds.Observe(time.Since(start).Seconds())
	if p.opts.OnTick != nil {
		p.opts.OnTick(now)
	}
	return report
}

// fetchAll fetches every pair concurrently. A failed pair is absent from the
// returned map and listed in failed.
func (p *Poller) fetchAll(ctx context.Context, pairs []string) (map[string]float64, []string) {
	var (
		mu     sync.Mutex
		prices = make(map[string]float64, len(pairs))
		failed []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			price, err := p.fetch(gctx, pair)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, pair)
				metrics.PriceFetchFailures.WithLabelValues(pair).Inc()
				logger.Warn("[poller] price %s: %v", pair, err)
				return nil
			}
			prices[pair] = price
			return nil
		})
	}
	_ = g.Wait()
	return prices, failed
}

func (p *Poller) fetch(ctx context.Context, pair string) (price float64, err error) {
	span, ctx := tracing.StartSpan(ctx, "price.fetch")
	span.SetTag("pair", pair)
	defer func() { tracing.Finish(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	price, err = p.prices.GetPrice(ctx, pair)
	if err != nil {
		return 0, err
	}
	if err := exchange.CheckPrice(pair, price); err != nil {
		return 0, err
	}
	return price, nil
}
