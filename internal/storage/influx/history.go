package influx

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/agrosense/irrigation-core/internal/model"
)

const reasonSeparator = "; "

// HistoryStore appends and reads back watering decision records.
// Implements analysis.HistoryStore. Each Append writes exactly one point,
// so a record is either fully stored or absent.
type HistoryStore struct {
	write       api.WriteAPIBlocking
	query       api.QueryAPI
	bucket      string
	measurement string
}

func NewHistoryStore(client influxdb2.Client, cfg Config) *HistoryStore {
	cfg.applyDefaults()
	return &HistoryStore{
		write:       client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:       client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
		measurement: cfg.HistoryMeasurement,
	}
}

func (s *HistoryStore) Append(ctx context.Context, rec model.DecisionRecord) error {
	tags := map[string]string{
		"id":            rec.ID,
		"analysis_type": string(rec.Kind),
	}
	if rec.ScheduledSlot != "" {
		tags["scheduled_slot"] = rec.ScheduledSlot
	}

	fields := map[string]interface{}{
		"temperature":   rec.Temperature,
		"humidity":      rec.Humidity,
		"soil_moisture": rec.SoilMoisture,
		"decision":      rec.Decision,
		"decision_text": rec.DecisionText,
		"reasons":       strings.Join(rec.Reasons, reasonSeparator),
	}
	if rec.Classifier != nil {
		fields["rf_prediction"] = rec.Classifier.PredictedClass
		fields["rf_confidence"] = rec.Classifier.Confidence
		fields["rf_probability_no_water"] = rec.Classifier.ProbNoWater
		fields["rf_probability_water"] = rec.Classifier.ProbWater
	}

	point := influxdb2.NewPoint(s.measurement, tags, fields, rec.CreatedAt)
	if err := s.write.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Recent returns the newest limit records, descending by creation time.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]model.DecisionRecord, error) {
	res, err := s.query.Query(ctx, buildRecentFlux(s.bucket, s.measurement, limit))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer func() { _ = res.Close() }()

	var out []model.DecisionRecord
	for res.Next() {
		r := res.Record()
		rec := model.DecisionRecord{
			ID:            toString(r.ValueByKey("id")),
			Temperature:   toFloat(r.ValueByKey("temperature")),
			Humidity:      toFloat(r.ValueByKey("humidity")),
			SoilMoisture:  toFloat(r.ValueByKey("soil_moisture")),
			Decision:      toBool(r.ValueByKey("decision")),
			DecisionText:  toString(r.ValueByKey("decision_text")),
			CreatedAt:     r.Time().UTC(),
			Kind:          model.InvocationKind(toString(r.ValueByKey("analysis_type"))),
			ScheduledSlot: toString(r.ValueByKey("scheduled_slot")),
		}
		if reasons := toString(r.ValueByKey("reasons")); reasons != "" {
			rec.Reasons = strings.Split(reasons, reasonSeparator)
		}
		if v := r.ValueByKey("rf_confidence"); v != nil {
			rec.Classifier = &model.ClassifierOpinion{
				PredictedClass: toBool(r.ValueByKey("rf_prediction")),
				Confidence:     toFloat(v),
				ProbNoWater:    toFloat(r.ValueByKey("rf_probability_no_water")),
				ProbWater:      toFloat(r.ValueByKey("rf_probability_water")),
			}
		}
		out = append(out, rec)
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("influx result: %w", res.Err())
	}
	return out, nil
}

func buildRecentFlux(bucket, measurement string, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)
`, bucket, time.Unix(0, 0).UTC().Format(time.RFC3339), measurement, limit)
}
