package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosense/irrigation-core/internal/model"
	"github.com/agrosense/irrigation-core/internal/services/series"
)

type fakeHistorical struct {
	records []model.RawRecord
	err     error
}

func (f *fakeHistorical) Query(_ context.Context, _ *series.Window, limit int) ([]model.RawRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type memStore struct {
	appended []model.DecisionRecord
	err      error
}

func (m *memStore) Append(_ context.Context, rec model.DecisionRecord) error {
	if m.err != nil {
		return m.err
	}
	m.appended = append(m.appended, rec)
	return nil
}

func (m *memStore) Recent(_ context.Context, limit int) ([]model.DecisionRecord, error) {
	if limit > len(m.appended) {
		limit = len(m.appended)
	}
	out := make([]model.DecisionRecord, 0, limit)
	for i := len(m.appended) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.appended[i])
	}
	return out, nil
}

type fakeScorer struct {
	predicted bool
	probNo    float64
	probWater float64
	err       error
}

func (f *fakeScorer) Score(_, _, _ float64) (bool, float64, float64, error) {
	if f.err != nil {
		return false, 0, 0, f.err
	}
	return f.predicted, f.probNo, f.probWater, nil
}

func latestRecord(t, h, s float64) model.RawRecord {
	return model.RawRecord{Temperature: t, Humidity: h, SoilMoisture: s,
		Timestamp: model.NumericTimestamp(1_749_500_000)}
}

func newEngine(hist series.HistoricalSource, store HistoryStore, scorer Scorer) *Engine {
	e := NewEngine(hist, store, scorer, nil)
	e.now = func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestCheckWatering(t *testing.T) {
	e := newEngine(nil, nil, nil)

	tests := []struct {
		name    string
		t, h, s float64
		want    bool
	}{
		{"all in band", 25, 77, 65, false},
		{"temperature low", 19, 77, 65, true},
		{"temperature high", 32, 77, 65, true},
		{"humidity low", 25, 74, 65, true},
		{"humidity high", 25, 81, 65, true},
		{"soil low", 25, 77, 59, true},
		{"soil high", 25, 77, 76, true},
		{"all out of band", 19, 74, 59, true},
		// bands are closed: boundary values do not trigger watering
		{"temperature min boundary", 20, 77, 65, false},
		{"temperature max boundary", 31, 77, 65, false},
		{"humidity min boundary", 25, 75, 65, false},
		{"humidity max boundary", 25, 80, 65, false},
		{"soil min boundary", 25, 77, 60, false},
		{"soil max boundary", 25, 77, 75, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.CheckWatering(tt.t, tt.h, tt.s))
		})
	}
}

func TestReasons(t *testing.T) {
	e := newEngine(nil, nil, nil)

	assert.Equal(t, []string{NoReasonText}, e.Reasons(25, 77, 65))

	one := e.Reasons(19, 77, 65)
	require.Len(t, one, 1)
	assert.Equal(t, "temperature too low (19 < 20)", one[0])

	three := e.Reasons(19, 74, 59)
	require.Len(t, three, 3)
	assert.Equal(t, "temperature too low (19 < 20)", three[0])
	assert.Equal(t, "humidity too low (74 < 75)", three[1])
	assert.Equal(t, "soil moisture too low (59 < 60)", three[2])

	high := e.Reasons(32.5, 81, 76)
	require.Len(t, high, 3)
	assert.Equal(t, "temperature too high (32.5 > 31)", high[0])
	assert.Equal(t, "humidity too high (81 > 80)", high[1])
	assert.Equal(t, "soil moisture too high (76 > 75)", high[2])
}

func TestEvaluate_Manual(t *testing.T) {
	store := &memStore{}
	e := newEngine(&fakeHistorical{records: []model.RawRecord{latestRecord(19, 77, 65)}}, store, nil)

	rec, err := e.Evaluate(context.Background(), model.InvocationManual, "")
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.True(t, rec.Decision)
	assert.Equal(t, "water", rec.DecisionText)
	assert.Equal(t, []string{"temperature too low (19 < 20)"}, rec.Reasons)
	assert.Equal(t, model.InvocationManual, rec.Kind)
	assert.Empty(t, rec.ScheduledSlot)
	assert.Nil(t, rec.Classifier)
	assert.Equal(t, time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC), rec.CreatedAt)

	require.Len(t, store.appended, 1)
	assert.Equal(t, rec.ID, store.appended[0].ID)
}

func TestEvaluate_ScheduledRecordsSlot(t *testing.T) {
	store := &memStore{}
	e := newEngine(&fakeHistorical{records: []model.RawRecord{latestRecord(25, 77, 65)}}, store, nil)

	rec, err := e.Evaluate(context.Background(), model.InvocationScheduled, "08:00")
	require.NoError(t, err)
	assert.Equal(t, model.InvocationScheduled, rec.Kind)
	assert.Equal(t, "08:00", rec.ScheduledSlot)
	assert.False(t, rec.Decision)
	assert.Equal(t, "do not water", rec.DecisionText)
	assert.Equal(t, []string{NoReasonText}, rec.Reasons)
}

func TestEvaluate_NoData(t *testing.T) {
	e := newEngine(&fakeHistorical{}, &memStore{}, nil)
	_, err := e.Evaluate(context.Background(), model.InvocationManual, "")
	require.ErrorIs(t, err, ErrNoData)
}

func TestEvaluate_SourceErrorPropagates(t *testing.T) {
	e := newEngine(&fakeHistorical{err: errors.New("influx down")}, &memStore{}, nil)
	_, err := e.Evaluate(context.Background(), model.InvocationManual, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
}

func TestEvaluate_ClassifierAttached(t *testing.T) {
	scorer := &fakeScorer{predicted: true, probNo: 0.2, probWater: 0.8}
	e := newEngine(&fakeHistorical{records: []model.RawRecord{latestRecord(19, 77, 65)}}, &memStore{}, scorer)

	rec, err := e.Evaluate(context.Background(), model.InvocationManual, "")
	require.NoError(t, err)
	require.NotNil(t, rec.Classifier)
	assert.True(t, rec.Classifier.PredictedClass)
	assert.InDelta(t, 80.0, rec.Classifier.Confidence, 1e-9)
	assert.InDelta(t, 0.2, rec.Classifier.ProbNoWater, 1e-9)
	assert.InDelta(t, 0.8, rec.Classifier.ProbWater, 1e-9)
}

func TestEvaluate_ClassifierFailureOmitted(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("model incompatible")}
	e := newEngine(&fakeHistorical{records: []model.RawRecord{latestRecord(19, 77, 65)}}, &memStore{}, scorer)

	rec, err := e.Evaluate(context.Background(), model.InvocationManual, "")
	require.NoError(t, err, "scoring failure is never fatal")
	assert.Nil(t, rec.Classifier)
	assert.True(t, rec.Decision, "threshold decision unaffected")
}

func TestEvaluate_AppendErrorSurfaces(t *testing.T) {
	store := &memStore{err: errors.New("write failed")}
	e := newEngine(&fakeHistorical{records: []model.RawRecord{latestRecord(25, 77, 65)}}, store, nil)

	_, err := e.Evaluate(context.Background(), model.InvocationManual, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append decision record")
}

func TestRunScheduled_SwallowsNoData(t *testing.T) {
	e := newEngine(&fakeHistorical{}, &memStore{}, nil)
	// must neither panic nor append anything
	e.RunScheduled("06:00")
}
