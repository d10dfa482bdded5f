package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/backtest-service/internal/model"
)

func TestBuildTimelineUnionSortedDeduped(t *testing.T) {
	series := model.Series{
		btc.Key(): {
			candle(btc, day(2), 100),
			candle(btc, day(0), 100),
			candle(btc, day(4), 100),
		},
		eth.Key(): {
			candle(eth, day(0), 200), // shared with BTC, must dedupe
			candle(eth, day(1), 200),
			candle(eth, day(3), 200),
		},
	}

	timeline := BuildTimeline(series, testStart, testEnd)

	require.Len(t, timeline, 5)
	for i := 0; i < len(timeline); i++ {
		assert.Equal(t, day(i), timeline[i])
	}
}

func TestBuildTimelineWindowRestricted(t *testing.T) {
	series := model.Series{
		btc.Key(): priceSeries(btc, 1, 2, 3, 4, 5),
	}

	timeline := BuildTimeline(series, day(1), day(3))

	require.Len(t, timeline, 3)
	assert.Equal(t, day(1), timeline[0])
	assert.Equal(t, day(3), timeline[2])
}

func TestBuildTimelineEmpty(t *testing.T) {
	assert.Empty(t, BuildTimeline(model.Series{}, testStart, testEnd))

	// Data entirely outside the window also yields an empty timeline.
	series := model.Series{btc.Key(): priceSeries(btc, 1, 2)}
	assert.Empty(t, BuildTimeline(series, day(10), day(20)))
}

func TestSeriesSourceObservationCarriedForward(t *testing.T) {
	source := NewSeriesSource(map[model.Instrument][]model.Candle{
		btc: {
			candle(btc, day(0), 100),
			candle(btc, day(3), 130),
		},
	})

	// Before the first observation there is nothing to carry forward.
	_, ok := source.ObservationAt(btc, day(0).Add(-time.Hour))
	assert.False(t, ok)

	// A gap carries the last observation forward, never a later one.
	c, ok := source.ObservationAt(btc, day(1))
	require.True(t, ok)
	assert.Equal(t, 100.0, c.Close)

	c, ok = source.ObservationAt(btc, day(3))
	require.True(t, ok)
	assert.Equal(t, 130.0, c.Close)
}

func TestSeriesSourceExactAt(t *testing.T) {
	source := NewSeriesSource(map[model.Instrument][]model.Candle{
		btc: {candle(btc, day(0), 100), candle(btc, day(2), 120)},
	})

	c, ok := source.ExactAt(btc, day(2))
	require.True(t, ok)
	assert.Equal(t, 120.0, c.Close)

	_, ok = source.ExactAt(btc, day(1))
	assert.False(t, ok)

	_, ok = source.ExactAt(eth, day(0))
	assert.False(t, ok)
}

func TestSeriesSourceSortsInput(t *testing.T) {
	source := NewSeriesSource(map[model.Instrument][]model.Candle{
		btc: {
			candle(btc, day(2), 120),
			candle(btc, day(0), 100),
			candle(btc, day(1), 110),
		},
	})

	timeline := source.Timeline(testStart, testEnd)
	require.Len(t, timeline, 3)
	assert.True(t, timeline[0].Before(timeline[1]))
	assert.True(t, timeline[1].Before(timeline[2]))
}
