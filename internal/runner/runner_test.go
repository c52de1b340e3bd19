package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_bot/internal/exchange"
	"signal_bot/internal/ledger"
	"signal_bot/internal/models"
	"signal_bot/internal/registry"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = t
}

// fakePrices returns the current price of each pair; pairs in fail error out.
type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	fail   map[string]bool
	calls  map[string]int
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		prices: make(map[string]float64),
		fail:   make(map[string]bool),
		calls:  make(map[string]int),
	}
}

func (f *fakePrices) GetPrice(_ context.Context, pair string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[pair]++
	if f.fail[pair] {
		return 0, exchange.ErrPriceFetchFailed
	}
	return f.prices[pair], nil
}

func (f *fakePrices) set(pair string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[pair] = price
	f.fail[pair] = false
}

func (f *fakePrices) broken(pair string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[pair] = true
}

type sink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *sink) Enqueue(ev models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *sink) kinds() []models.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	clock  *fakeClock
	reg    *registry.Registry
	led    *ledger.Memory
	prices *fakePrices
	out    *sink
	poller *Poller
	svc    *Service
}

func newFixture() *fixture {
	f := &fixture{
		clock:  &fakeClock{cur: t0},
		reg:    registry.New(),
		led:    ledger.NewMemory(0),
		prices: newFakePrices(),
		out:    &sink{},
	}
	f.poller = NewPoller(f.reg, f.led, f.prices, f.out, f.clock.Now, PollerOptions{Concurrency: 2})
	f.svc = NewService(f.reg, f.led, f.clock.Now)
	return f
}

func request(pair string, low, high, stop float64, dest int64) models.SignalRequest {
	return models.SignalRequest{
		Pair:          pair,
		Side:          models.SideLong,
		EntryLow:      low,
		EntryHigh:     high,
		StopLoss:      stop,
		TrailStartPct: 0.03,
		TrailGapPct:   0.02,
		MaxRuntime:    60 * time.Minute,
		Destination:   dest,
	}
}

func TestTickIsolatesFailedPairs(t *testing.T) {
	f := newFixture()
	btc, err := f.svc.Submit(request("BTC_USDT", 100, 102, 95, 1))
	require.NoError(t, err)
	eth, err := f.svc.Submit(request("ETH_USDT", 10, 11, 9, 1))
	require.NoError(t, err)

	f.prices.set("BTC_USDT", 101)
	f.prices.broken("ETH_USDT")

	f.clock.Set(t0.Add(5 * time.Second))
	rep := f.poller.Tick(context.Background())
	assert.Equal(t, 2, rep.Pairs)
	assert.Equal(t, []string{"ETH_USDT"}, rep.Failed)
	assert.Equal(t, 1, rep.Evaluated)
	assert.Equal(t, 1, rep.Swept)

	s, ok := f.reg.Get(btc)
	require.True(t, ok)
	assert.Equal(t, models.StatusTriggered, s.Status)
	s, ok = f.reg.Get(eth)
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, s.Status)

	// пара восстановилась на следующем тике
	f.prices.set("ETH_USDT", 10.5)
	f.clock.Set(t0.Add(10 * time.Second))
	rep = f.poller.Tick(context.Background())
	assert.Empty(t, rep.Failed)
	s, _ = f.reg.Get(eth)
	assert.Equal(t, models.StatusTriggered, s.Status)
	assert.Equal(t, 10.5, s.TriggerPrice)

	assert.Equal(t, []models.EventKind{models.EventEntryTriggered, models.EventEntryTriggered}, f.out.kinds())
}

func TestTickFetchesEachPairOnce(t *testing.T) {
	f := newFixture()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Submit(request("BTC_USDT", 100, 102, 95, int64(i)))
		require.NoError(t, err)
	}
	f.prices.set("BTC_USDT", 150)

	rep := f.poller.Tick(context.Background())
	assert.Equal(t, 1, rep.Pairs)
	assert.Equal(t, 3, rep.Evaluated)
	assert.Equal(t, 1, f.prices.calls["BTC_USDT"])
}

func TestClosedSignalLeavesRegistryAndIsRecordedOnce(t *testing.T) {
	f := newFixture()
	req := request("BTC_USDT", 100, 102, 95, 7)
	tp := 110.0
	req.TakeProfit = &tp
	id, err := f.svc.Submit(req)
	require.NoError(t, err)

	f.prices.set("BTC_USDT", 101)
	f.clock.Set(t0.Add(5 * time.Second))
	f.poller.Tick(context.Background())

	f.prices.set("BTC_USDT", 111)
	f.clock.Set(t0.Add(10 * time.Second))
	rep := f.poller.Tick(context.Background())
	assert.Equal(t, 1, rep.Closed)

	_, ok := f.reg.Get(id)
	assert.False(t, ok)
	assert.Empty(t, f.svc.ListActive(7))
	assert.Equal(t, 1, f.led.Len())

	rep = f.poller.Tick(context.Background())
	assert.Equal(t, 0, rep.Pairs)
	assert.Equal(t, 1, f.led.Len())

	recs, err := f.led.Window(context.Background(), 7, t0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.CloseTP, recs[0].Outcome)
	require.NotNil(t, recs[0].ClosePrice)
	assert.Equal(t, 111.0, *recs[0].ClosePrice)

	assert.Equal(t, []models.EventKind{models.EventEntryTriggered, models.EventTakeProfitHit}, f.out.kinds())
}

func TestExpirySweepRunsWhenFetchFails(t *testing.T) {
	f := newFixture()
	id, err := f.svc.Submit(request("SOL_USDT", 100, 102, 95, 3))
	require.NoError(t, err)
	f.prices.broken("SOL_USDT")

	f.clock.Set(t0.Add(59 * time.Minute))
	rep := f.poller.Tick(context.Background())
	assert.Equal(t, 0, rep.Closed)

	f.clock.Set(t0.Add(61 * time.Minute))
	rep = f.poller.Tick(context.Background())
	assert.Equal(t, 1, rep.Swept)
	assert.Equal(t, 1, rep.Closed)

	_, ok := f.reg.Get(id)
	assert.False(t, ok)
	recs, err := f.led.Since(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.CloseExpired, recs[0].Outcome)
	assert.Nil(t, recs[0].ClosePrice)
	assert.Equal(t, []models.EventKind{models.EventExpired}, f.out.kinds())
}

func TestTickCallsOnTick(t *testing.T) {
	f := newFixture()
	var got time.Time
	p := NewPoller(f.reg, f.led, f.prices, f.out, f.clock.Now, PollerOptions{OnTick: func(at time.Time) { got = at }})
	p.Tick(context.Background())
	assert.Equal(t, t0, got)
}

type failingLedger struct{ ledger.Memory }

func (*failingLedger) Record(context.Context, models.ClosureRecord) error {
	return errors.New("disk full")
}

func TestLedgerFailureDoesNotBlockClosure(t *testing.T) {
	f := newFixture()
	led := &failingLedger{}
	p := NewPoller(f.reg, led, f.prices, f.out, f.clock.Now, PollerOptions{})
	id, err := f.svc.Submit(request("BTC_USDT", 100, 102, 95, 1))
	require.NoError(t, err)

	f.prices.set("BTC_USDT", 101)
	p.Tick(context.Background())
	f.prices.set("BTC_USDT", 90)
	rep := p.Tick(context.Background())

	assert.Equal(t, 1, rep.Closed)
	_, ok := f.reg.Get(id)
	assert.False(t, ok)
	assert.Contains(t, f.out.kinds(), models.EventStopLossHit)
}

func TestServiceSubmitTextAndRecap(t *testing.T) {
	f := newFixture()
	text := "#portx\nPAIR: btcusdt.p\nSIDE: long\nENTRY: 100-102\nSTOPLOSS: 95\nTAKE_PROFIT: 110\n#end"

	req, id, err := f.svc.SubmitText(text, 55)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "BTC_USDT", req.Pair)
	assert.Equal(t, int64(55), req.Destination)

	list := f.svc.ListActive(55)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	_, _, err = f.svc.SubmitText("#portx\nPAIR: BTCUSDT\n#end", 55)
	assert.ErrorIs(t, err, models.ErrInvalidSignal)
	assert.Len(t, f.svc.ListActive(55), 1)

	f.prices.set("BTC_USDT", 101)
	f.poller.Tick(context.Background())
	f.prices.set("BTC_USDT", 112)
	f.clock.Set(t0.Add(time.Minute))
	f.poller.Tick(context.Background())

	sum, err := f.svc.Recap(context.Background(), 55, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, 1, sum.TakeProfit)
	assert.Equal(t, t0.Add(time.Minute), sum.Until)

	sum, err = f.svc.Recap(context.Background(), 56, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Total)
}
