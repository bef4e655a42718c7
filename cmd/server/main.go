package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/agrosense/irrigation-core/internal/classifier"
	"github.com/agrosense/irrigation-core/internal/live"
	"github.com/agrosense/irrigation-core/internal/observability"
	"github.com/agrosense/irrigation-core/internal/services/analysis"
	"github.com/agrosense/irrigation-core/internal/services/api"
	"github.com/agrosense/irrigation-core/internal/services/series"
	"github.com/agrosense/irrigation-core/internal/storage/influx"
	"github.com/agrosense/irrigation-core/pkg/rabbitmq"
)

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envSlots(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func main() {
	cfg := struct {
		Rabbit rabbitmq.Config

		InfluxURL    string
		InfluxToken  string
		InfluxOrg    string
		InfluxBucket string

		ModelPath string
		Slots     []string

		HTTPPort       int
		RequestTimeout time.Duration
	}{
		Rabbit: rabbitmq.Config{
			Host:     envStr("RABBITMQ_HOST", "localhost"),
			Port:     envInt("RABBITMQ_PORT", 1883),
			User:     envStr("RABBITMQ_USER", "guest"),
			Password: envStr("RABBITMQ_PASSWORD", "guest"),
			ClientID: envStr("HOSTNAME", "irrigation-core"),
		},

		InfluxURL:    envStr("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    envStr("INFLUX_ORG", "agrosense"),
		InfluxBucket: envStr("INFLUX_BUCKET", "irrigation"),

		ModelPath: envStr("MODEL_PATH", "model/forest.json"),
		Slots: envSlots("ANALYSIS_HOURS", []string{
			"06:00", "08:00", "10:00", "12:00", "14:00", "16:00", "18:00",
		}),

		HTTPPort:       envInt("HTTP_PORT", 8080),
		RequestTimeout: time.Duration(envInt("REQUEST_TIMEOUT_MS", 5000)) * time.Millisecond,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// === InfluxDB ===
	influxClient := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	defer influxClient.Close()
	storeCfg := influx.Config{Org: cfg.InfluxOrg, Bucket: cfg.InfluxBucket}
	historical := influx.NewHistoricalSource(influxClient, storeCfg)
	history := influx.NewHistoryStore(influxClient, storeCfg)

	// === MQTT live snapshots ===
	mqttClient, err := rabbitmq.NewConn(ctx, &cfg.Rabbit)
	if err != nil {
		log.Fatalf("server: mqtt connection error: %v", err)
	}
	defer rabbitmq.CloseConn(mqttClient)

	liveCache := live.NewCache(rabbitmq.NewConsumer(mqttClient, []string{live.TopicDHT, live.TopicSoil}, nil))
	go liveCache.Start(ctx)

	// === Classifier (advisory, service runs without it) ===
	var scorer analysis.Scorer
	if forest, err := classifier.Load(cfg.ModelPath); err != nil {
		log.Printf("server: classifier unavailable, continuing without: %v", err)
	} else {
		scorer = forest
		log.Printf("server: classifier loaded from %s", cfg.ModelPath)
	}

	// === Engines ===
	metrics := observability.NewMetrics()
	seriesEngine := series.NewEngine(historical, liveCache, metrics)
	analysisEngine := analysis.NewEngine(historical, history, scorer, metrics)

	// === Scheduler ===
	scheduler := analysis.NewScheduler()
	for _, slot := range cfg.Slots {
		slot := slot
		if err := scheduler.Register(slot, func() { analysisEngine.RunScheduled(slot) }); err != nil {
			log.Fatalf("server: register slot %s: %v", slot, err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Printf("server: scheduled analysis at %s", strings.Join(cfg.Slots, ", "))

	// === HTTP ===
	srv := api.NewServer(seriesEngine, analysisEngine, history, liveCache, scheduler, metrics, cfg.RequestTimeout)
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("server: HTTP listening on :%d", cfg.HTTPPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: http error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("server: shutting down...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
}
