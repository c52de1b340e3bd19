package runner

import (
	"context"
	"sort"
	"sync"
	"time"

	"signal_bot/internal/helper"
	"signal_bot/internal/ledger"
	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/internal/registry"
	"signal_bot/pkg/logger"
)

const recapCheckEvery = 20 * time.Second

type RecapOptions struct {
	// RecapAt and BriefingAt are "HH:MM"; empty disables the job.
	RecapAt    string
	BriefingAt string
	Window     time.Duration
	Location   *time.Location
}

// RecapScheduler fires the daily recap and the morning briefing once per
// calendar day, at the configured local minute.
type RecapScheduler struct {
	reg *registry.Registry
	led ledger.Ledger
	out EventSink
	now Clock

	loc        *time.Location
	window     time.Duration
	recapAt    int
	briefingAt int

	mu           sync.Mutex
	lastRecap    string
	lastBriefing string
}

func NewRecapScheduler(reg *registry.Registry, led ledger.Ledger, out EventSink, now Clock, opts RecapOptions) (*RecapScheduler, error) {
	r := &RecapScheduler{
		reg:        reg,
		led:        led,
		out:        out,
		now:        now,
		loc:        opts.Location,
		window:     opts.Window,
		recapAt:    -1,
		briefingAt: -1,
	}
	if r.loc == nil {
		r.loc = time.Local
	}
	if r.window <= 0 {
		r.window = 24 * time.Hour
	}
	var err error
	if opts.RecapAt != "" {
		if r.recapAt, err = helper.ParseClock(opts.RecapAt); err != nil {
			return nil, err
		}
	}
	if opts.BriefingAt != "" {
		if r.briefingAt, err = helper.ParseClock(opts.BriefingAt); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *RecapScheduler) Run(ctx context.Context) {
	t := time.NewTicker(recapCheckEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Check(ctx)
		}
	}
}

// Check fires whichever job is due this minute and has not fired today.
func (r *RecapScheduler) Check(ctx context.Context) {
	now := r.now().In(r.loc)
	minute := helper.MinuteOfDay(now)
	day := helper.DayKey(now)

	if r.due(minute, r.recapAt, day, &r.lastRecap) {
		r.fireRecap(ctx, now)
	}
	if r.due(minute, r.briefingAt, day, &r.lastBriefing) {
		r.fireBriefing(ctx, now)
	}
}

func (r *RecapScheduler) due(minute, at int, day string, last *string) bool {
	if at < 0 || minute != at {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if *last == day {
		return false
	}
	*last = day
	return true
}

func (r *RecapScheduler) fireRecap(ctx context.Context, now time.Time) {
	since := now.Add(-r.window)
	recs, err := r.led.Since(ctx, since)
	if err != nil {
		logger.Error("[recap] ledger: %v", err)
		return
	}
	groups := ledger.GroupByDestination(recs)
	for _, dest := range ledger.Destinations(groups) {
		sum := ledger.Summarize(dest, since, now, groups[dest])
		r.emit(models.Event{Kind: models.EventDailyRecap, Destination: dest, At: now, Recap: &sum})
	}
	logger.Info("[recap] daily recap for %d chats, %d closures", len(groups), len(recs))
}

func (r *RecapScheduler) fireBriefing(ctx context.Context, now time.Time) {
	since := now.Add(-r.window)
	recs, err := r.led.Since(ctx, since)
	if err != nil {
		logger.Error("[recap] ledger: %v", err)
		recs = nil
	}
	groups := ledger.GroupByDestination(recs)

	dests := make(map[int64]struct{})
	for _, d := range r.reg.Destinations() {
		dests[d] = struct{}{}
	}
	for d := range groups {
		dests[d] = struct{}{}
	}
	for _, dest := range sortedDestinations(dests) {
		sum := ledger.Summarize(dest, since, now, groups[dest])
		r.emit(models.Event{
			Kind:        models.EventMorningBriefing,
			Destination: dest,
			At:          now,
			Recap:       &sum,
			Active:      r.reg.ListActive(dest),
		})
	}
	logger.Info("[recap] morning briefing for %d chats", len(dests))
}

func (r *RecapScheduler) emit(ev models.Event) {
	metrics.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	r.out.Enqueue(ev)
}

func sortedDestinations(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
