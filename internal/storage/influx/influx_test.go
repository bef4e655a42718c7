package influx

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agrosense/irrigation-core/internal/model"
	"github.com/agrosense/irrigation-core/internal/services/series"
)

func TestBuildSeriesFlux_NoWindow(t *testing.T) {
	flux := buildSeriesFlux("agri", "sensor_history", nil, 200)

	assert.Contains(t, flux, `from(bucket: "agri")`)
	assert.Contains(t, flux, "range(start: 2020-01-01T00:00:00Z, stop: now())")
	assert.Contains(t, flux, `r._measurement == "sensor_history"`)
	assert.Contains(t, flux, `pivot(rowKey: ["_time"]`)
	assert.Contains(t, flux, `sort(columns: ["_time"], desc: true)`)
	assert.Contains(t, flux, "limit(n: 200)")
}

func TestBuildSeriesFlux_Window(t *testing.T) {
	w := &series.Window{Start: 1_749_000_000, End: 1_749_086_400}
	flux := buildSeriesFlux("agri", "sensor_history", w, 100)

	// inclusive window → stop one second past End (range stop is exclusive)
	assert.Contains(t, flux, "range(start: 2025-06-04T01:20:00Z, stop: 2025-06-05T01:20:01Z)")
	assert.Contains(t, flux, "limit(n: 100)")
}

// A windowed query must select the window's oldest candidates: when the
// window holds more rows than the limit, descending order would pick a
// different candidate set than the ascending one the series contract wants.
func TestBuildSeriesFlux_WindowSelectsOldestAscending(t *testing.T) {
	w := &series.Window{Start: 1_749_000_000, End: 1_749_086_400}
	flux := buildSeriesFlux("agri", "sensor_history", w, 100)

	assert.Contains(t, flux, `sort(columns: ["_time"], desc: false)`)
	assert.NotContains(t, flux, "desc: true")
}

func TestBuildRecentFlux(t *testing.T) {
	flux := buildRecentFlux("agri", "watering_analysis", 20)
	assert.Contains(t, flux, `r._measurement == "watering_analysis"`)
	assert.Contains(t, flux, "limit(n: 20)")
}

func TestTimestampField(t *testing.T) {
	assert.Equal(t, model.TimestampField{}, timestampField(nil))
	assert.Equal(t, model.NumericTimestamp(1.7e9), timestampField(1.7e9))
	assert.Equal(t, model.NumericTimestamp(1_700_000_000), timestampField(int64(1_700_000_000)))
	assert.Equal(t, model.TextTimestamp("2025-06-04 21:15:15"), timestampField("2025-06-04 21:15:15"))
	assert.Equal(t, model.TimestampField{}, timestampField("   "))
	assert.Equal(t, model.TimestampField{}, timestampField(struct{}{}))
}

func TestCoercions(t *testing.T) {
	assert.Equal(t, 1.5, toFloat(1.5))
	assert.Equal(t, 3.0, toFloat(int64(3)))
	assert.Equal(t, 2.5, toFloat(" 2.5 "))
	assert.Equal(t, 0.0, toFloat("junk"))
	assert.Equal(t, 0.0, toFloat(nil))

	assert.Equal(t, "x", toString("x"))
	assert.Equal(t, "", toString(nil))
	assert.Equal(t, "", toString(4.0))

	assert.True(t, toBool(true))
	assert.True(t, toBool(1.0))
	assert.True(t, toBool("true"))
	assert.True(t, toBool("1"))
	assert.False(t, toBool(false))
	assert.False(t, toBool(nil))
	assert.False(t, toBool("no"))
}
