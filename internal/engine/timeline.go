package engine

import (
	"sort"
	"time"

	"github.com/yourorg/backtest-service/internal/model"
)

// BuildTimeline merges the per-instrument series into a single globally
// sorted sequence of timestamps: the union of all observation times,
// restricted to [start, end], ascending and deduplicated.
func BuildTimeline(series model.Series, start, end time.Time) []time.Time {
	seen := make(map[int64]struct{})
	var out []time.Time
	for _, candles := range series {
		for _, c := range candles {
			if c.Time.Before(start) || c.Time.After(end) {
				continue
			}
			key := c.Time.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c.Time)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
