// Package analysis implements the watering decision engine: the disjunctive
// threshold rule over the latest historical reading, rationale generation,
// the optional classifier cross-check and the append-only decision history.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/agrosense/irrigation-core/internal/model"
	"github.com/agrosense/irrigation-core/internal/observability"
	"github.com/agrosense/irrigation-core/internal/services/series"
)

// ErrNoData means the historical source holds no reading to evaluate.
// Manual invocations surface it to the caller; scheduled ones log and skip.
var ErrNoData = errors.New("no sensor data available")

// Scorer is the pretrained classifier contract. Advisory only: its output
// never alters the threshold decision.
type Scorer interface {
	Score(temperature, humidity, soilMoisture float64) (predicted bool, probNoWater, probWater float64, err error)
}

// HistoryStore is the append-only watering analysis history.
type HistoryStore interface {
	Append(ctx context.Context, rec model.DecisionRecord) error
	Recent(ctx context.Context, limit int) ([]model.DecisionRecord, error)
}

// Engine evaluates the threshold rule and persists one DecisionRecord per
// evaluation. Read-only after construction; safe for concurrent use.
type Engine struct {
	hist       series.HistoricalSource
	store      HistoryStore
	scorer     Scorer // may be nil
	thresholds model.Thresholds
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewEngine(hist series.HistoricalSource, store HistoryStore, scorer Scorer, metrics *observability.Metrics) *Engine {
	return &Engine{
		hist:       hist,
		store:      store,
		scorer:     scorer,
		thresholds: model.DefaultThresholds(),
		metrics:    metrics,
		now:        time.Now,
	}
}

func (e *Engine) Thresholds() model.Thresholds { return e.thresholds }

// CheckWatering returns true ("water") when any metric falls outside its
// closed optimal band. A single out-of-range metric forces a positive
// decision regardless of the other two.
func (e *Engine) CheckWatering(temperature, humidity, soilMoisture float64) bool {
	return !e.thresholds.Temperature.Contains(temperature) ||
		!e.thresholds.Humidity.Contains(humidity) ||
		!e.thresholds.SoilMoisture.Contains(soilMoisture)
}

// NoReasonText is the rationale recorded for a negative decision.
const NoReasonText = "all parameters within optimal range"

// Reasons generates the human-readable rationale, one entry per out-of-band
// metric in fixed metric order. A negative decision yields the single
// NoReasonText sentence.
func (e *Engine) Reasons(temperature, humidity, soilMoisture float64) []string {
	var reasons []string
	appendBand := func(name string, v float64, b model.Band) {
		switch {
		case v < b.Min:
			reasons = append(reasons, fmt.Sprintf("%s too low (%g < %g)", name, v, b.Min))
		case v > b.Max:
			reasons = append(reasons, fmt.Sprintf("%s too high (%g > %g)", name, v, b.Max))
		}
	}
	appendBand("temperature", temperature, e.thresholds.Temperature)
	appendBand("humidity", humidity, e.thresholds.Humidity)
	appendBand("soil moisture", soilMoisture, e.thresholds.SoilMoisture)

	if len(reasons) == 0 {
		return []string{NoReasonText}
	}
	return reasons
}

// Evaluate runs one watering analysis against the single most recent
// historical reading and appends the resulting record to the history store.
// slot is the "HH:MM" firing slot for scheduled invocations, empty otherwise.
func (e *Engine) Evaluate(ctx context.Context, kind model.InvocationKind, slot string) (model.DecisionRecord, error) {
	raws, err := e.hist.Query(ctx, nil, 1)
	if err != nil {
		return model.DecisionRecord{}, fmt.Errorf("latest reading: %w", err)
	}
	if len(raws) == 0 {
		return model.DecisionRecord{}, ErrNoData
	}
	latest := raws[0]

	water := e.CheckWatering(latest.Temperature, latest.Humidity, latest.SoilMoisture)
	text := "do not water"
	if water {
		text = "water"
	}

	rec := model.DecisionRecord{
		ID:           uuid.NewString(),
		Temperature:  latest.Temperature,
		Humidity:     latest.Humidity,
		SoilMoisture: latest.SoilMoisture,
		Decision:     water,
		DecisionText: text,
		Reasons:      e.Reasons(latest.Temperature, latest.Humidity, latest.SoilMoisture),
		CreatedAt:    e.now().UTC(),
		Kind:         kind,
	}
	if kind == model.InvocationScheduled {
		rec.ScheduledSlot = slot
	}
	rec.Classifier = e.classifierOpinion(latest.Temperature, latest.Humidity, latest.SoilMoisture)

	if err := e.store.Append(ctx, rec); err != nil {
		e.metrics.HistoryAppendError()
		return model.DecisionRecord{}, fmt.Errorf("append decision record: %w", err)
	}
	e.metrics.Decision(string(kind), water)
	log.Printf("analysis: %s decision=%s reasons=%d id=%s", kind, text, len(rec.Reasons), rec.ID)
	return rec, nil
}

// classifierOpinion scores the feature vector when a classifier is
// configured. Any scoring failure is absorbed: the opinion is omitted and
// the threshold decision stands.
func (e *Engine) classifierOpinion(temperature, humidity, soilMoisture float64) *model.ClassifierOpinion {
	if e.scorer == nil {
		return nil
	}
	predicted, probNo, probWater, err := e.scorer.Score(temperature, humidity, soilMoisture)
	if err != nil {
		log.Printf("analysis: classifier scoring failed, omitting opinion: %v", err)
		return nil
	}
	confidence := probNo
	if probWater > confidence {
		confidence = probWater
	}
	return &model.ClassifierOpinion{
		PredictedClass: predicted,
		Confidence:     confidence * 100,
		ProbNoWater:    probNo,
		ProbWater:      probWater,
	}
}

// RunScheduled is the body of one scheduled firing. There is no caller to
// report to, so every failure is logged and swallowed.
func (e *Engine) RunScheduled(slot string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	rec, err := e.Evaluate(ctx, model.InvocationScheduled, slot)
	switch {
	case errors.Is(err, ErrNoData):
		log.Printf("analysis: scheduled slot %s skipped, no sensor data", slot)
	case err != nil:
		log.Printf("analysis: scheduled slot %s failed: %v", slot, err)
	default:
		log.Printf("analysis: scheduled slot %s stored decision %s (%s)", slot, rec.ID, rec.DecisionText)
	}
}
