package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_bot/internal/exchange"
)

func TestWarmup(t *testing.T) {
	src := exchange.PriceFunc(func(_ context.Context, pair string) (float64, error) {
		switch pair {
		case "BTC_USDT":
			return 65000, nil
		case "ETH_USDT":
			return 0, nil
		}
		return 0, exchange.ErrPriceFetchFailed
	})
	w := NewWarmuper(src, time.Second)

	res, err := w.Warmup(context.Background(), []string{"btcusdt", "ETH_USDT", "NOPE_USDT", ""})
	require.Error(t, err)
	assert.Equal(t, map[string]float64{"BTC_USDT": 65000}, res.Prices)
	assert.Len(t, res.Errors, 2)
	assert.ErrorIs(t, res.Errors["ETH_USDT"], exchange.ErrInvalidPrice)
	assert.ErrorIs(t, res.Errors["NOPE_USDT"], exchange.ErrPriceFetchFailed)

	res, err = w.Warmup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Prices)
}
