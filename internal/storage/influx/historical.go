// Package influx adapts InfluxDB to the two storage roles the core
// consumes: the durable historical reading source and the append-only
// watering analysis history.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/agrosense/irrigation-core/internal/model"
	"github.com/agrosense/irrigation-core/internal/services/series"
	"github.com/agrosense/irrigation-core/pkg/timestamp"
)

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// ReadingMeasurement holds raw sensor history; HistoryMeasurement holds
	// decision records.
	ReadingMeasurement string
	HistoryMeasurement string
}

func (c *Config) applyDefaults() {
	if c.ReadingMeasurement == "" {
		c.ReadingMeasurement = "sensor_history"
	}
	if c.HistoryMeasurement == "" {
		c.HistoryMeasurement = "watering_analysis"
	}
}

// HistoricalSource reads raw reading batches. Implements
// series.HistoricalSource.
type HistoricalSource struct {
	query       api.QueryAPI
	bucket      string
	measurement string
}

func NewHistoricalSource(client influxdb2.Client, cfg Config) *HistoricalSource {
	cfg.applyDefaults()
	return &HistoricalSource{
		query:       client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
		measurement: cfg.ReadingMeasurement,
	}
}

// Query returns up to limit raw records. Without a window the newest limit
// records are selected (descending); with a window the range is pushed into
// the Flux query and the window's oldest limit records are selected
// (ascending). The range filters on the stored _time, which reflects the
// raw, unnormalized field, so the merge engine refilters on the resolved
// timestamp.
func (h *HistoricalSource) Query(ctx context.Context, window *series.Window, limit int) ([]model.RawRecord, error) {
	res, err := h.query.Query(ctx, buildSeriesFlux(h.bucket, h.measurement, window, limit))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer func() { _ = res.Close() }()

	var out []model.RawRecord
	for res.Next() {
		rec := res.Record()
		raw := model.RawRecord{
			Temperature:  toFloat(rec.ValueByKey("temperature")),
			Humidity:     toFloat(rec.ValueByKey("humidity")),
			SoilMoisture: toFloat(rec.ValueByKey("soil_moisture")),
			DatetimeText: toString(rec.ValueByKey("datetime")),
		}
		raw.Timestamp = timestampField(rec.ValueByKey("ts"))
		out = append(out, raw)
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("influx result: %w", res.Err())
	}
	return out, nil
}

func buildSeriesFlux(bucket, measurement string, window *series.Window, limit int) string {
	start := time.Unix(timestamp.MinEpochSeconds, 0).UTC().Format(time.RFC3339)
	stop := "now()"
	// the no-window query takes the newest candidates; a windowed query takes
	// the window's oldest instead
	desc := true
	if window != nil {
		start = time.Unix(int64(window.Start), 0).UTC().Format(time.RFC3339)
		// range stop is exclusive, the window is inclusive
		stop = time.Unix(int64(window.End)+1, 0).UTC().Format(time.RFC3339)
		desc = false
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"], desc: %t)
  |> limit(n: %d)
`, bucket, start, stop, measurement, desc, limit)
}

// timestampField maps whatever shape the stored ts field has into the
// tagged variant the normalizer consumes.
func timestampField(v interface{}) model.TimestampField {
	switch t := v.(type) {
	case nil:
		return model.TimestampField{}
	case float64:
		return model.NumericTimestamp(t)
	case int64:
		return model.NumericTimestamp(float64(t))
	case int:
		return model.NumericTimestamp(float64(t))
	case string:
		if strings.TrimSpace(t) == "" {
			return model.TimestampField{}
		}
		return model.TextTimestamp(t)
	default:
		return model.TimestampField{}
	}
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return 0
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int64:
		return t != 0
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true") || t == "1"
	}
	return false
}
