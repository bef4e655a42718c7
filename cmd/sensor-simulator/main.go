package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/agrosense/irrigation-core/internal/simulator"
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

func main() {
	cfg := struct {
		Rabbit   rabbitmq.Config
		Interval time.Duration
		Seed     int64
	}{
		Rabbit: rabbitmq.Config{
			Host:     envStr("RABBITMQ_HOST", "localhost"),
			Port:     envInt("RABBITMQ_PORT", 1883),
			User:     envStr("RABBITMQ_USER", "guest"),
			Password: envStr("RABBITMQ_PASSWORD", "guest"),
			ClientID: envStr("HOSTNAME", "sensor-simulator"),
		},
		Interval: time.Duration(envInt("PUBLISH_INTERVAL_S", 30)) * time.Second,
		Seed:     int64(envInt("SIMULATOR_SEED", int(time.Now().UnixNano()))),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := rabbitmq.NewConn(ctx, &cfg.Rabbit)
	if err != nil {
		log.Fatalf("simulator: mqtt connection error: %v", err)
	}
	defer rabbitmq.CloseConn(client)

	pub := rabbitmq.NewPublisher(client)
	sim := simulator.New(simulator.NewGenerator(cfg.Seed), pub, cfg.Interval)

	log.Printf("simulator: publishing every %s", cfg.Interval)
	sim.Run(ctx)
}
