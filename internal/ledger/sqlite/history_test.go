package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_bot/internal/ledger"
	"signal_bot/internal/models"
)

func TestHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	h, err := Open(":memory:")
	require.NoError(t, err)
	defer h.Close()

	base := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	tp, price := 110.0, 111.0
	trig := base.Add(10 * time.Minute)

	hit := models.ClosureRecord{
		SignalID: "tp-1", Destination: 5, Pair: "BTC_USDT", Side: models.SideLong,
		Outcome: models.CloseTP, EntryLow: 100, EntryHigh: 102, FinalStop: 95,
		TakeProfit: &tp, CreatedAt: base, TriggeredAt: &trig,
		ClosedAt: base.Add(time.Hour), ClosePrice: &price,
	}
	expired := models.ClosureRecord{
		SignalID: "exp-1", Destination: 5, Pair: "ETH_USDT", Side: models.SideShort,
		Outcome: models.CloseExpired, EntryLow: 10, EntryHigh: 11, FinalStop: 12,
		CreatedAt: base, ClosedAt: base.Add(2 * time.Hour),
	}
	require.NoError(t, h.Record(ctx, hit))
	require.NoError(t, h.Record(ctx, expired))
	assert.ErrorIs(t, h.Record(ctx, hit), ledger.ErrDuplicate)

	got, err := h.Window(ctx, 5, base)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, hit.SignalID, got[0].SignalID)
	assert.Equal(t, models.CloseTP, got[0].Outcome)
	require.NotNil(t, got[0].ClosePrice)
	assert.Equal(t, 111.0, *got[0].ClosePrice)
	require.NotNil(t, got[0].TriggeredAt)
	assert.True(t, trig.Equal(*got[0].TriggeredAt))
	assert.True(t, hit.ClosedAt.Equal(got[0].ClosedAt))

	assert.Nil(t, got[1].ClosePrice)
	assert.Nil(t, got[1].TriggeredAt)
	assert.Nil(t, got[1].TakeProfit)
	assert.Equal(t, models.SideShort, got[1].Side)

	later, err := h.Window(ctx, 5, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, "exp-1", later[0].SignalID)

	other, err := h.Window(ctx, 6, base)
	require.NoError(t, err)
	assert.Empty(t, other)

	n, err := h.Prune(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := h.Since(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
