package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/agrosense/irrigation-core/internal/live"
	"github.com/agrosense/irrigation-core/internal/model"
	"github.com/agrosense/irrigation-core/internal/services/analysis"
	"github.com/agrosense/irrigation-core/internal/services/series"
	"github.com/agrosense/irrigation-core/pkg/timestamp"
)

const historyPageSize = 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSensorData returns the merged series, oldest first.
func (s *Server) handleSensorData(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqContext(r)
	defer cancel()

	opts := series.Options{Limit: series.DefaultLimit, Sort: series.SortFine}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}
	opts.Sort = series.ParseSortMode(q.Get("sort"))

	// a window needs both bounds, matching the dashboard contract
	startRaw, endRaw := q.Get("start"), q.Get("end")
	if startRaw != "" && endRaw != "" {
		start, err1 := strconv.ParseFloat(startRaw, 64)
		end, err2 := strconv.ParseFloat(endRaw, 64)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "start and end must be epoch seconds")
			return
		}
		opts.Window = &series.Window{Start: start, End: end}
	}

	out, err := s.seriesCB.Execute(func() (any, error) {
		return s.series.Series(ctx, opts)
	})
	if err != nil {
		log.Printf("api: sensor-data: %v", err)
		s.metrics.SourceError("historical")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	readings := out.([]model.SensorReading)
	if readings == nil {
		readings = []model.SensorReading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

type latestDataResponse struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture float64 `json:"soil_moisture"`
	Timestamp    float64 `json:"timestamp"`
	Error        string  `json:"error,omitempty"`
}

// handleLatestData flattens the two live snapshots into one payload. Either
// snapshot may be missing; with both missing the payload is zeroed and the
// status is 500 so pollers can tell an outage from a calm sensor.
func (s *Server) handleLatestData(w http.ResponseWriter, _ *http.Request) {
	dht, okDHT := s.liveData.DHT()
	soil, okSoil := s.liveData.Soil()
	if !okDHT && !okSoil {
		s.metrics.SourceError("live")
		writeJSON(w, http.StatusInternalServerError, latestDataResponse{Error: "no live data available"})
		return
	}

	resp := latestDataResponse{}
	if okDHT {
		resp.Temperature = dht.Temperature
		resp.Humidity = dht.Humidity
	}
	if okSoil {
		resp.SoilMoisture = soil.Percentage
	}
	newest := live.NewerUpdate(dht.LatestUpdate, soil.LatestUpdate)
	if ts, ok := timestamp.ParseDatetimeText(newest); ok {
		resp.Timestamp = ts
	} else {
		resp.Timestamp = float64(s.now().UTC().Unix())
	}
	writeJSON(w, http.StatusOK, resp)
}

type analyzeResponse struct {
	Success      bool                     `json:"success"`
	Prediction   int                      `json:"prediction"`
	Decision     string                   `json:"decision"`
	Reasons      []string                 `json:"reasons"`
	SensorData   analyzeSensorData        `json:"sensor_data"`
	Thresholds   model.Thresholds         `json:"thresholds"`
	Timestamp    string                   `json:"timestamp"`
	DocID        string                   `json:"doc_id"`
	RandomForest *model.ClassifierOpinion `json:"random_forest,omitempty"`
}

type analyzeSensorData struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture float64 `json:"soil_moisture"`
}

func (s *Server) handleAnalyzeWatering(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqContext(r)
	defer cancel()

	rec, err := s.evaluator.Evaluate(ctx, model.InvocationManual, "")
	if err != nil {
		if errors.Is(err, analysis.ErrNoData) {
			writeError(w, http.StatusNotFound, "no sensor data available in history")
			return
		}
		log.Printf("api: analyze-watering: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	prediction := 0
	if rec.Decision {
		prediction = 1
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		Success:    true,
		Prediction: prediction,
		Decision:   rec.DecisionText,
		Reasons:    rec.Reasons,
		SensorData: analyzeSensorData{
			Temperature:  rec.Temperature,
			Humidity:     rec.Humidity,
			SoilMoisture: rec.SoilMoisture,
		},
		Thresholds:   s.evaluator.Thresholds(),
		Timestamp:    rec.CreatedAt.UTC().Format(time.RFC3339),
		DocID:        rec.ID,
		RandomForest: rec.Classifier,
	})
}

type historyResponse struct {
	Success bool                   `json:"success"`
	Data    []model.DecisionRecord `json:"data"`
	Count   int                    `json:"count"`
}

func (s *Server) handleWateringHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.reqContext(r)
	defer cancel()

	out, err := s.historyCB.Execute(func() (any, error) {
		return s.history.Recent(ctx, historyPageSize)
	})
	if err != nil {
		log.Printf("api: watering-history: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	records := out.([]model.DecisionRecord)
	if records == nil {
		records = []model.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Success: true, Data: records, Count: len(records)})
}

func (s *Server) handleThresholdInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"thresholds": s.evaluator.Thresholds(),
		"rule":       "watering is recommended when any parameter falls outside its optimal band",
	})
}

type schedulerStatusResponse struct {
	SchedulerRunning bool                 `json:"scheduler_running"`
	Slots            []string             `json:"scheduled_hours"`
	Jobs             []schedulerJobStatus `json:"jobs"`
}

type schedulerJobStatus struct {
	Slot    string `json:"slot"`
	NextRun string `json:"next_run"`
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	slots := s.scheduler.Slots()
	resp := schedulerStatusResponse{
		SchedulerRunning: s.scheduler.Running(),
		Slots:            make([]string, 0, len(slots)),
		Jobs:             make([]schedulerJobStatus, 0, len(slots)),
	}
	for _, sl := range slots {
		resp.Slots = append(resp.Slots, sl.Slot)
		next := ""
		if !sl.NextRun.IsZero() {
			next = sl.NextRun.UTC().Format(time.RFC3339)
		}
		resp.Jobs = append(resp.Jobs, schedulerJobStatus{Slot: sl.Slot, NextRun: next})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTriggerScheduled runs one scheduled-analysis body on demand, mainly
// for smoke-testing a deployment without waiting for the next slot.
func (s *Server) handleTriggerScheduled(w http.ResponseWriter, _ *http.Request) {
	slot := s.now().UTC().Format("15:04")
	s.evaluator.RunScheduled(slot)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "scheduled analysis triggered",
		"slot":    slot,
	})
}

func (s *Server) reqContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}
