// Package timestamp normalizes the heterogeneous timestamp encodings the
// sensor sources produce: textual datetimes in a handful of layouts, raw
// numeric epochs in seconds or milliseconds, or nothing at all. Every
// function here is total — a malformed value falls back to the current
// instant instead of failing, so one dirty record never aborts a batch.
package timestamp

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/agrosense/irrigation-core/internal/model"
)

// Epoch bounds for plausible numeric timestamps:
// 2020-01-01T00:00:00Z .. 2030-01-01T00:00:00Z, in seconds.
const (
	MinEpochSeconds = 1_577_836_800
	MaxEpochSeconds = 1_893_456_000
)

// layouts the sources are known to emit, tried in order. The Z-suffixed
// entries parse as UTC; the others carry no zone and parse as UTC too so the
// same text always maps to the same instant regardless of server locale.
var layouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05Z",
	"02/01/2006 15:04:05",
	"02-01-2006 15:04:05",
}

// ParseDatetimeText parses a textual datetime against the known layouts,
// first match wins, with a generic RFC3339 parse as last resort. Returns
// epoch seconds and false when nothing matched. Never panics or errors.
func ParseDatetimeText(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return epochSeconds(t), true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return epochSeconds(t), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return epochSeconds(t), true
	}
	log.Printf("timestamp: could not parse datetime text %q", s)
	return 0, false
}

// Normalize converts any raw timestamp field into epoch seconds.
// Total: anomalous input falls back to now.
func Normalize(v model.TimestampField) float64 {
	return NormalizeAt(v, time.Now())
}

// NormalizeAt is Normalize with an explicit current instant, for tests.
func NormalizeAt(v model.TimestampField, now time.Time) float64 {
	switch v.Kind {
	case model.TimestampNumeric:
		return normalizeNumeric(v.Numeric, now)
	case model.TimestampText:
		s := strings.TrimSpace(v.Text)
		if s == "" {
			return epochSeconds(now)
		}
		// Numeric coercion first: sources sometimes write the epoch as a
		// string. One hop only, then the numeric path decides.
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return normalizeNumeric(f, now)
		}
		if ts, ok := ParseDatetimeText(s); ok {
			return ts
		}
		log.Printf("timestamp: falling back to current time for %q", s)
		return epochSeconds(now)
	default:
		return epochSeconds(now)
	}
}

func normalizeNumeric(v float64, now time.Time) float64 {
	switch {
	case v >= MinEpochSeconds && v <= MaxEpochSeconds:
		return v
	case v >= MinEpochSeconds*1000 && v <= MaxEpochSeconds*1000:
		return v / 1000
	default:
		log.Printf("timestamp: numeric value %v out of plausible range, using current time", v)
		return epochSeconds(now)
	}
}

// WithinEra reports whether ts lies in the validity era:
// 2020-01-01T00:00:00Z up to one day past now. Records outside it are
// dropped by the merge engine, not errored.
func WithinEra(ts float64, now time.Time) bool {
	return ts >= MinEpochSeconds && ts <= epochSeconds(now)+86400
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
