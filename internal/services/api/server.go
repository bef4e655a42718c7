// Package api is the HTTP surface over the merge and decision engines.
// Handlers never fail hard on a source outage: breakers and zeroed fallback
// payloads keep downstream consumers alive.
package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"

	"github.com/agrosense/irrigation-core/internal/live"
	"github.com/agrosense/irrigation-core/internal/model"
	"github.com/agrosense/irrigation-core/internal/observability"
	"github.com/agrosense/irrigation-core/internal/services/analysis"
	"github.com/agrosense/irrigation-core/internal/services/series"
)

// SeriesProvider produces the merged reading sequence.
type SeriesProvider interface {
	Series(ctx context.Context, opts series.Options) ([]model.SensorReading, error)
}

// Evaluator runs watering analyses.
type Evaluator interface {
	Evaluate(ctx context.Context, kind model.InvocationKind, slot string) (model.DecisionRecord, error)
	Thresholds() model.Thresholds
	RunScheduled(slot string)
}

// LiveReader exposes the two independent live snapshots.
type LiveReader interface {
	DHT() (live.DHTSnapshot, bool)
	Soil() (live.SoilSnapshot, bool)
}

// SlotLister reports the registered analysis slots and scheduler state.
type SlotLister interface {
	Slots() []analysis.SlotStatus
	Running() bool
}

type Server struct {
	series    SeriesProvider
	evaluator Evaluator
	history   analysis.HistoryStore
	liveData  LiveReader
	scheduler SlotLister
	metrics   *observability.Metrics

	timeout time.Duration
	// one breaker per backing store, so a dead historical source cannot take
	// the live endpoints down with it
	seriesCB  *gobreaker.CircuitBreaker
	historyCB *gobreaker.CircuitBreaker

	now func() time.Time
}

func NewServer(sp SeriesProvider, ev Evaluator, hist analysis.HistoryStore, lr LiveReader, sl SlotLister, metrics *observability.Metrics, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		series:    sp,
		evaluator: ev,
		history:   hist,
		liveData:  lr,
		scheduler: sl,
		metrics:   metrics,
		timeout:   timeout,
		seriesCB:  mkBreaker("historical-source"),
		historyCB: mkBreaker("history-store"),
		now:       time.Now,
	}
}

func mkBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})
}

// Router wires all routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/sensor-data", s.handleSensorData).Methods(http.MethodGet)
	r.HandleFunc("/api/latest-data", s.handleLatestData).Methods(http.MethodGet)
	r.HandleFunc("/api/analyze-watering", s.handleAnalyzeWatering).Methods(http.MethodGet)
	r.HandleFunc("/api/watering-history", s.handleWateringHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/threshold-info", s.handleThresholdInfo).Methods(http.MethodGet)
	r.HandleFunc("/api/scheduler-status", s.handleSchedulerStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/trigger-scheduled-analysis", s.handleTriggerScheduled).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", observability.Handler())
	return r
}

// Handler is the router wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return handlers.LoggingHandler(os.Stdout, s.Router())
}
