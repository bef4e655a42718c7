// Package series merges the historical batch source and the live snapshot
// source into one deduplicated, chronologically ordered, size-bounded
// reading sequence.
package series

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/agrosense/irrigation-core/internal/model"
	"github.com/agrosense/irrigation-core/internal/observability"
	"github.com/agrosense/irrigation-core/pkg/timestamp"
)

// SortMode selects the series ordering.
type SortMode int

const (
	// SortFine orders by the decomposed calendar tuple
	// (year, month, day, hour, minute, second), discarding sub-second
	// resolution for determinism across clock drift.
	SortFine SortMode = iota
	// SortRaw orders by the resolved epoch float directly.
	SortRaw
)

// ParseSortMode maps the query-string value to a mode. "datetime" (the
// default) is the fine calendar order, "timestamp" the raw epoch order.
func ParseSortMode(s string) SortMode {
	if strings.EqualFold(strings.TrimSpace(s), "timestamp") {
		return SortRaw
	}
	return SortFine
}

const DefaultLimit = 100

// Options bound one series request.
type Options struct {
	Window *Window
	Limit  int
	Sort   SortMode
}

// Engine resolves, filters, merges and orders readings from the two sources.
type Engine struct {
	hist    HistoricalSource
	live    LiveSource
	metrics *observability.Metrics
	now     func() time.Time
}

func NewEngine(hist HistoricalSource, live LiveSource, metrics *observability.Metrics) *Engine {
	return &Engine{hist: hist, live: live, metrics: metrics, now: time.Now}
}

// Series produces the merged ascending sequence, at most opts.Limit long.
// Historical candidates are over-fetched 2x to compensate for records the
// era/window filter drops after timestamp resolution.
func (e *Engine) Series(ctx context.Context, opts Options) ([]model.SensorReading, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	now := e.now()

	raws, err := e.hist.Query(ctx, opts.Window, 2*limit)
	if err != nil {
		return nil, fmt.Errorf("historical query: %w", err)
	}

	readings := make([]model.SensorReading, 0, len(raws))
	for _, raw := range raws {
		ts := e.resolveTimestamp(raw, now)
		if !timestamp.WithinEra(ts, now) {
			e.metrics.RecordDropped("out_of_era")
			continue
		}
		if opts.Window != nil && !opts.Window.Contains(ts) {
			e.metrics.RecordDropped("out_of_window")
			continue
		}
		readings = append(readings, model.SensorReading{
			Timestamp:    ts,
			Temperature:  raw.Temperature,
			Humidity:     raw.Humidity,
			SoilMoisture: raw.SoilMoisture,
			Source:       model.SourceHistorical,
		})
	}

	// Fold in the live snapshot when no window was asked for, or when the
	// historical side came up empty.
	if opts.Window == nil || len(readings) == 0 {
		if live, ok := e.liveReading(ctx, now); ok {
			switch {
			case !timestamp.WithinEra(live.Timestamp, now):
				e.metrics.RecordDropped("out_of_era")
			case opts.Window == nil || opts.Window.Contains(live.Timestamp):
				readings = append(readings, live)
			}
		}
	}

	sortReadings(readings, opts.Sort)

	if len(readings) > limit {
		// Keep the most recent limit entries, then re-normalize the order of
		// the retained slice.
		readings = readings[len(readings)-limit:]
		sortReadings(readings, opts.Sort)
	}
	return readings, nil
}

// resolveTimestamp applies source priority: the explicit datetime text is
// authoritative; the raw timestamp field is the fallback; absent both, now.
func (e *Engine) resolveTimestamp(raw model.RawRecord, now time.Time) float64 {
	if raw.DatetimeText != "" {
		if ts, ok := timestamp.ParseDatetimeText(raw.DatetimeText); ok {
			return ts
		}
		log.Printf("series: unparsable datetime %q, falling back to raw timestamp", raw.DatetimeText)
		e.metrics.NormalizeFallback()
	}
	if raw.Timestamp.Kind == model.TimestampAbsent && raw.DatetimeText == "" {
		e.metrics.NormalizeFallback()
	}
	return timestamp.NormalizeAt(raw.Timestamp, now)
}

func (e *Engine) liveReading(ctx context.Context, now time.Time) (model.SensorReading, bool) {
	if e.live == nil {
		return model.SensorReading{}, false
	}
	raw, err := e.live.Snapshot(ctx)
	if err != nil {
		log.Printf("series: live snapshot unavailable: %v", err)
		e.metrics.SourceError("live")
		return model.SensorReading{}, false
	}
	return model.SensorReading{
		Timestamp:    e.resolveTimestamp(raw, now),
		Temperature:  raw.Temperature,
		Humidity:     raw.Humidity,
		SoilMoisture: raw.SoilMoisture,
		Source:       model.SourceLive,
	}, true
}

func sortReadings(rs []model.SensorReading, mode SortMode) {
	switch mode {
	case SortRaw:
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Timestamp < rs[j].Timestamp })
	default:
		sort.SliceStable(rs, func(i, j int) bool {
			return lessCalendar(calendarKey(rs[i].Timestamp), calendarKey(rs[j].Timestamp))
		})
	}
}

// calendarKey decomposes an epoch into (y, m, d, h, min, s) in UTC.
// Sub-second precision is intentionally discarded.
func calendarKey(ts float64) [6]int {
	t := time.Unix(int64(ts), 0).UTC()
	return [6]int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()}
}

func lessCalendar(a, b [6]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
