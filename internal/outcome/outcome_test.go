package outcome

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapup-lab/internal/domain"
)

func ptr[T any](v T) *T { return &v }

var day0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, open, close float64, ret *float64) domain.IndicatorBar {
	return domain.IndicatorBar{
		PriceBar: domain.PriceBar{
			Date:   day0.AddDate(0, 0, i),
			Open:   open,
			High:   max(open, close) + 1,
			Low:    min(open, close) - 1,
			Close:  close,
			Volume: 1000,
		},
		DailyReturn: ret,
		CloseLoc:    0.4,
	}
}

func TestMap_GapUpAndDown(t *testing.T) {
	bars := []domain.IndicatorBar{
		bar(0, 100, 100, nil),
		bar(1, 99, 96, ptr(-4.0)),
		bar(2, 96.96, 97, ptr(1.04)),
		bar(3, 97, 93, ptr(-4.12)),
		bar(4, 92, 94, ptr(1.07)),
	}
	bars[1].RVOL = ptr(1.8)

	got := Map(bars, []domain.IndicatorBar{bars[1], bars[3]})
	require.Len(t, got, 2)

	assert.Equal(t, bars[1].Date, got[0].Date)
	assert.Equal(t, -4.0, got[0].DropReturn)
	assert.InDelta(t, 1.0, got[0].NextGapPercent, 1e-9)
	assert.True(t, got[0].GapUp)
	require.NotNil(t, got[0].RVOL)
	assert.Equal(t, 1.8, *got[0].RVOL)
	assert.Equal(t, 0.4, got[0].CloseLoc)

	assert.InDelta(t, (92.0-93.0)/93.0*100, got[1].NextGapPercent, 1e-9)
	assert.False(t, got[1].GapUp)
	assert.Nil(t, got[1].RVOL)
}

func TestMap_FinalDateSkipped(t *testing.T) {
	bars := []domain.IndicatorBar{
		bar(0, 100, 100, nil),
		bar(1, 99, 95, ptr(-5.0)),
	}

	got := Map(bars, []domain.IndicatorBar{bars[1]})
	assert.Empty(t, got)
}

func TestMap_EqualOpenIsNotGapUp(t *testing.T) {
	bars := []domain.IndicatorBar{
		bar(0, 100, 100, nil),
		bar(1, 99, 96, ptr(-4.0)),
		bar(2, 96, 97, ptr(1.0)),
	}

	got := Map(bars, []domain.IndicatorBar{bars[1]})
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].NextGapPercent)
	assert.False(t, got[0].GapUp)
}

func TestMap_UsesNextBarByPosition(t *testing.T) {
	// a weekend between bars does not matter; the following row is used
	bars := []domain.IndicatorBar{
		bar(0, 100, 100, nil),
		bar(1, 99, 96, ptr(-4.0)),
		bar(4, 97, 98, ptr(2.0)),
	}

	got := Map(bars, []domain.IndicatorBar{bars[1]})
	require.Len(t, got, 1)
	assert.True(t, got[0].GapUp)
}

func TestMap_UnknownEventSkipped(t *testing.T) {
	bars := []domain.IndicatorBar{bar(0, 100, 100, nil), bar(1, 99, 96, ptr(-4.0))}
	stray := bar(10, 90, 85, ptr(-6.0))

	assert.Empty(t, Map(bars, []domain.IndicatorBar{stray}))
	assert.Empty(t, Map(nil, nil))
}

func TestMap_UndefinedReturnSkipped(t *testing.T) {
	bars := []domain.IndicatorBar{
		bar(0, 100, 96, nil),
		bar(1, 97, 93, ptr(-3.13)),
		bar(2, 94, 95, ptr(2.15)),
	}

	got := Map(bars, []domain.IndicatorBar{bars[0], bars[1]})
	require.Len(t, got, 1, "an event without a daily return must not become a 0% drop")
	assert.Equal(t, bars[1].Date, got[0].Date)
	assert.Equal(t, -3.13, got[0].DropReturn)
}
