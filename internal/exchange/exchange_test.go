package exchange

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_bot/internal/models"
)

func TestCheckPrice(t *testing.T) {
	assert.NoError(t, CheckPrice("X", 1.5))
	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.ErrorIs(t, CheckPrice("X", bad), ErrInvalidPrice)
	}
}

func TestMexcGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		switch r.URL.Query().Get("symbol") {
		case "BTCUSDT":
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"64123.45"}`))
		case "ZEROUSDT":
			_, _ = w.Write([]byte(`{"symbol":"ZEROUSDT","price":"0"}`))
		case "JUNKUSDT":
			_, _ = w.Write([]byte(`{"symbol":"JUNKUSDT","price":"n/a"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		}
	}))
	defer srv.Close()

	m := NewMexcClient(time.Second)
	m.SetBaseURLs(srv.URL, "")

	p, err := m.GetPrice(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	assert.Equal(t, 64123.45, p)

	_, err = m.GetPrice(context.Background(), "ZERO_USDT")
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = m.GetPrice(context.Background(), "JUNK_USDT")
	assert.ErrorIs(t, err, ErrPriceFetchFailed)

	_, err = m.GetPrice(context.Background(), "NOPE_USDT")
	assert.ErrorIs(t, err, ErrPriceFetchFailed)
}

func TestMexcOpenPositionsSigned(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/private/position/open_positions", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("ApiKey"))
		assert.Equal(t, "1700000000000", r.Header.Get("Request-Time"))
		assert.Equal(t, Sign("key", "secret", "1700000000000", ""), r.Header.Get("Signature"))
		_, _ = w.Write([]byte(`{"success":true,"code":0,"data":[
			{"symbol":"BTC_USDT","positionType":1,"holdVol":3,"holdAvgPrice":101.5,"leverage":20,"liquidatePrice":90,"realised":1.25},
			{"symbol":"ETH_USDT","positionType":2,"holdVol":1,"holdAvgPrice":3000,"leverage":10,"liquidatePrice":3300}
		]}`))
	}))
	defer srv.Close()

	m := NewMexcClient(time.Second)
	m.SetBaseURLs("", srv.URL)
	m.now = func() time.Time { return fixed }

	_, err := m.OpenPositions(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)

	m.SetCreds("key", "secret")
	positions, err := m.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	live := positions[0].Live()
	assert.Equal(t, models.SideLong, live.Side)
	assert.Equal(t, 3.0, live.Volume)
	assert.Equal(t, 20, live.Leverage)
	assert.Equal(t, 1.25, live.PnL)
	assert.Equal(t, models.SideShort, positions[1].Live().Side)
	assert.Equal(t, "ETH_USDT", positions[1].Pair())
}

func TestMexcOpenPositionsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"code":602,"message":"signature verification failed"}`))
	}))
	defer srv.Close()

	m := NewMexcClient(time.Second)
	m.SetBaseURLs("", srv.URL)
	m.SetCreds("key", "bad")
	_, err := m.OpenPositions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "602")
}

func TestBinanceSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/ticker/price"))
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","price":"3012.50000000"}`))
	}))
	defer srv.Close()

	b := NewBinanceSource("", "")
	b.SetBaseURL(srv.URL)
	p, err := b.GetPrice(context.Background(), "ETH_USDT")
	require.NoError(t, err)
	assert.Equal(t, 3012.5, p)
}

func TestStreamerFallsBackWhenStale(t *testing.T) {
	var calls atomic.Int32
	fallback := PriceFunc(func(ctx context.Context, pair string) (float64, error) {
		calls.Add(1)
		return 42, nil
	})
	now := time.Unix(1000, 0)
	s := NewStreamer(fallback, 10*time.Second)
	s.now = func() time.Time { return now }

	p, err := s.GetPrice(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	assert.Equal(t, 42.0, p)

	s.Set("BTC_USDT", 100)
	p, err = s.GetPrice(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p)
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(11 * time.Second)
	p, err = s.GetPrice(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	assert.Equal(t, 42.0, p)
	assert.Equal(t, int32(2), calls.Load())

	_, err = NewStreamer(nil, time.Second).GetPrice(context.Background(), "BTC_USDT")
	assert.True(t, errors.Is(err, ErrPriceFetchFailed))
}

func TestStreamerReadsTickerPush(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub struct {
			Method string            `json:"method"`
			Param  map[string]string `json:"param"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"push.ticker","data":{"symbol":"`+sub.Param["symbol"]+`","lastPrice":101.5}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewStreamer(PriceFunc(func(context.Context, string) (float64, error) { return 1, nil }), time.Minute)
	s.SetURL("ws" + strings.TrimPrefix(srv.URL, "http"))
	var connected atomic.Bool
	s.OnConnChange(connected.Store)
	s.Start(ctx)
	defer s.Stop()
	assert.False(t, connected.Load())

	require.Eventually(t, func() bool {
		p, err := s.GetPrice(ctx, "BTC_USDT")
		return err == nil && p == 101.5
	}, 3*time.Second, 20*time.Millisecond)
	assert.True(t, connected.Load())

	s.Retain(nil)
	require.Eventually(t, func() bool { return !connected.Load() }, 3*time.Second, 20*time.Millisecond)
	p, err := s.GetPrice(context.Background(), "SOL_USDT")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
}
