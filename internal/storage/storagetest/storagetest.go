// Package storagetest holds the behavioral checks every storage.BarStore
// backend must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/storage"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) storage.BarStore

// Day returns 2024-01-d as midnight UTC.
func Day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// Bars builds one bar per day in [from, to] with distinct prices.
func Bars(from, to int) []domain.PriceBar {
	out := make([]domain.PriceBar, 0, to-from+1)
	for d := from; d <= to; d++ {
		px := 100 + float64(d)
		out = append(out, domain.PriceBar{
			Date:   Day(d),
			Open:   px,
			High:   px + 1.5,
			Low:    px - 1.25,
			Close:  px + 0.5,
			Volume: int64(1_000_000 + d),
		})
	}
	return out
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertAndGetRange", func(t *testing.T) { testUpsertAndGetRange(t, newStore(t)) })
	t.Run("UpsertIsIdempotent", func(t *testing.T) { testUpsertIdempotent(t, newStore(t)) })
	t.Run("UpsertReplacesRow", func(t *testing.T) { testUpsertReplaces(t, newStore(t)) })
	t.Run("GetRangeBounds", func(t *testing.T) { testGetRangeBounds(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("Metadata", func(t *testing.T) { testMetadata(t, newStore(t)) })
	t.Run("ClearSymbol", func(t *testing.T) { testClearSymbol(t, newStore(t)) })
	t.Run("ClearAll", func(t *testing.T) { testClearAll(t, newStore(t)) })
	t.Run("InvalidInput", func(t *testing.T) { testInvalidInput(t, newStore(t)) })
}

func testUpsertAndGetRange(t *testing.T, store storage.BarStore) {
	defer store.Close()
	ctx := context.Background()

	bars := Bars(2, 6)
	require.NoError(t, store.Upsert(ctx, "QQQ", bars))

	got, err := store.GetRange(ctx, "QQQ", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, len(bars))
	for i := range bars {
		assertBarEqual(t, bars[i], got[i])
	}
}

func testUpsertIdempotent(t *testing.T, store storage.BarStore) {
	defer store.Close()
	ctx := context.Background()

	bars := Bars(1, 10)
	require.NoError(t, store.Upsert(ctx, "QQQ", bars))
	require.NoError(t, store.Upsert(ctx, "QQQ", bars))

	got, err := store.GetRange(ctx, "QQQ", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 10)

	meta, err := store.Metadata(ctx, "QQQ")
	require.NoError(t, err)
	assert.Equal(t, 10, meta.Rows)
}

func testUpsertReplaces(t *testing.T, store storage.BarStore) {
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "QQQ", Bars(1, 3)))

	revised := Bars(2, 4)
	revised[0].Close = 250.75
	require.NoError(t, store.Upsert(ctx, "QQQ", revised))

	got, err := store.GetRange(ctx, "QQQ", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, Day(2), got[1].Date)
	assert.InDelta(t, 250.75, got[1].Close, 1e-9)
}

func testGetRangeBounds(t *testing.T, store storage.BarStore) {
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "QQQ", Bars(1, 10)))
	require.NoError(t, store.Upsert(ctx, "SPY", Bars(1, 10)))

	got, err := store.GetRange(ctx, "QQQ", Day(3), Day(5))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Day(3), got[0].Date)
	assert.Equal(t, Day(5), got[2].Date)

	got, err = store.GetRange(ctx, "qqq", Day(8), time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = store.GetRange(ctx, "QQQ", time.Time{}, Day(2))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func testNotFound(t *testing.T, store storage.BarStore) {
	defer store.Close()
	ctx := context.Background()

	_, err := store.GetRange(ctx, "NOPE", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Metadata(ctx, "NOPE")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Upsert(ctx, "QQQ", Bars(1, 3)))
	_, err = store.GetRange(ctx, "QQQ", Day(20), Day(25))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testMetadata(t *testing.T, store storage.BarStore) {
	defer store.Close()
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Upsert(ctx, "QQQ", Bars(3, 7)))
	require.NoError(t, store.Upsert(ctx, "QQQ", Bars(1, 2)))
	require.NoError(t, store.Upsert(ctx, "SPY", Bars(5, 5)))

	meta, err := store.Metadata(ctx, "QQQ")
	require.NoError(t, err)
	assert.Equal(t, "QQQ", meta.Symbol)
	assert.Equal(t, 7, meta.Rows)
	assert.True(t, meta.StartDate.Equal(Day(1)), "start %s", meta.StartDate)
	assert.True(t, meta.EndDate.Equal(Day(7)), "end %s", meta.EndDate)
	assert.True(t, meta.LastUpdated.After(before), "last_updated %s", meta.LastUpdated)

	all, err := store.ListMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "QQQ", all[0].Symbol)
	assert.Equal(t, "SPY", all[1].Symbol)
	assert.Equal(t, 1, all[1].Rows)
}

func testClearSymbol(t *testing.T, store storage.BarStore) {
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "QQQ", Bars(1, 3)))
	require.NoError(t, store.Upsert(ctx, "SPY", Bars(1, 3)))
	require.NoError(t, store.Clear(ctx, "qqq"))

	_, err := store.GetRange(ctx, "QQQ", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Metadata(ctx, "QQQ")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.GetRange(ctx, "SPY", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func testClearAll(t *testing.T, store storage.BarStore) {
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "QQQ", Bars(1, 3)))
	require.NoError(t, store.Upsert(ctx, "SPY", Bars(1, 3)))
	require.NoError(t, store.Clear(ctx, ""))

	all, err := store.ListMetadata(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = store.GetRange(ctx, "SPY", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testInvalidInput(t *testing.T, store storage.BarStore) {
	defer store.Close()

	err := store.Upsert(context.Background(), "", Bars(1, 2))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func assertBarEqual(t *testing.T, want, got domain.PriceBar) {
	t.Helper()
	assert.True(t, want.Date.Equal(got.Date), "date %s != %s", want.Date, got.Date)
	assert.InDelta(t, want.Open, got.Open, 1e-9)
	assert.InDelta(t, want.High, got.High, 1e-9)
	assert.InDelta(t, want.Low, got.Low, 1e-9)
	assert.InDelta(t, want.Close, got.Close, 1e-9)
	assert.Equal(t, want.Volume, got.Volume)
}
