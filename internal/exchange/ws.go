package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"signal_bot/pkg/logger"
)

const mexcContractWS = "wss://contract.mexc.com/edge"

type quote struct {
	price float64
	at    time.Time
}

// Streamer is a PriceSource backed by MEXC contract ticker streams, one
// websocket per watched pair. Cached prices older than staleAfter, or pairs
// without a stream yet, are served by the fallback source.
type Streamer struct {
	dialer     *websocket.Dialer
	url        string
	fallback   PriceSource
	staleAfter time.Duration
	now        func() time.Time

	mu     sync.RWMutex
	base   context.Context
	last   map[string]quote
	subs   map[string]context.CancelFunc
	conns  int
	onConn func(connected bool)
}

func NewStreamer(fallback PriceSource, staleAfter time.Duration) *Streamer {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Second
	}
	return &Streamer{
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		url:        mexcContractWS,
		fallback:   fallback,
		staleAfter: staleAfter,
		now:        time.Now,
		last:       make(map[string]quote),
		subs:       make(map[string]context.CancelFunc),
	}
}

// SetURL overrides the websocket endpoint.
func (s *Streamer) SetURL(url string) { s.url = url }

// OnConnChange registers fn to be told when the first stream comes up and
// when the last one goes down.
func (s *Streamer) OnConnChange(fn func(connected bool)) {
	s.mu.Lock()
	s.onConn = fn
	s.mu.Unlock()
}

// Start enables streaming; until then every read goes to the fallback.
func (s *Streamer) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
}

// Stop closes all streams.
func (s *Streamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pair, cancel := range s.subs {
		cancel()
		delete(s.subs, pair)
	}
	s.base = nil
}

func (s *Streamer) GetPrice(ctx context.Context, pair string) (float64, error) {
	s.watch(pair)

	s.mu.RLock()
	q, ok := s.last[pair]
	s.mu.RUnlock()
	if ok && s.now().Sub(q.at) <= s.staleAfter {
		return q.price, nil
	}
	if s.fallback == nil {
		return 0, ErrPriceFetchFailed
	}
	return s.fallback.GetPrice(ctx, pair)
}

// Retain keeps streams only for the given pairs.
func (s *Streamer) Retain(pairs []string) {
	keep := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		keep[p] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for pair, cancel := range s.subs {
		if _, ok := keep[pair]; !ok {
			cancel()
			delete(s.subs, pair)
			delete(s.last, pair)
		}
	}
}

// Set stores a streamed price.
func (s *Streamer) Set(pair string, price float64) {
	if CheckPrice(pair, price) != nil {
		return
	}
	s.mu.Lock()
	s.last[pair] = quote{price: price, at: s.now()}
	s.mu.Unlock()
}

func (s *Streamer) watch(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		return
	}
	if _, ok := s.subs[pair]; ok {
		return
	}
	ctx, cancel := context.WithCancel(s.base)
	s.subs[pair] = cancel
	go s.stream(ctx, pair)
}

type tickerFrame struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Data    struct {
		Symbol    string  `json:"symbol"`
		LastPrice float64 `json:"lastPrice"`
	} `json:"data"`
}

// stream держит одно WS-соединение на пару и переподключается с backoff.
func (s *Streamer) stream(ctx context.Context, pair string) {
	retry := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			retry++
			if retry > 8 {
				logger.Warn("[WS] %s: giving up after %d dial errors: %v", pair, retry-1, err)
				s.forget(pair)
				return
			}
			if !sleepCtx(ctx, time.Duration(300*retry)*time.Millisecond) {
				return
			}
			continue
		}
		retry = 0

		if err := conn.WriteJSON(map[string]any{"method": "sub.ticker", "param": map[string]string{"symbol": pair}}); err != nil {
			logger.Warn("[WS] %s subscribe error: %v", pair, err)
			_ = conn.Close()
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}
		s.track(1)

		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(15 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-stopPing:
					return
				case <-ctx.Done():
					_ = conn.Close()
					return
				case <-t.C:
					_ = conn.WriteJSON(map[string]string{"method": "ping"})
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("[WS] %s read error: %v", pair, err)
				}
				break
			}
			var frame tickerFrame
			if err := sonic.Unmarshal(msg, &frame); err != nil || frame.Channel != "push.ticker" {
				continue
			}
			s.Set(pair, frame.Data.LastPrice)
		}
		close(stopPing)
		_ = conn.Close()
		s.track(-1)

		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func (s *Streamer) track(delta int) {
	s.mu.Lock()
	before := s.conns
	s.conns += delta
	after, fn := s.conns, s.onConn
	s.mu.Unlock()

	if fn == nil {
		return
	}
	switch {
	case before == 0 && after > 0:
		fn(true)
	case before > 0 && after == 0:
		fn(false)
	}
}

func (s *Streamer) forget(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.subs[pair]; ok {
		cancel()
		delete(s.subs, pair)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
