// Package simulator publishes synthetic DHT and soil snapshots to the live
// topics, standing in for the field hardware during development.
package simulator

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/agrosense/irrigation-core/internal/live"
	"github.com/agrosense/irrigation-core/pkg/rabbitmq"
)

const updateLayout = "2006-01-02 15:04:05"

// Generator holds the random-walk state for the three parameters. Values stay
// inside plausible greenhouse ranges so downstream analyses see realistic
// boundary crossings rather than noise.
type Generator struct {
	mu           sync.Mutex
	rng          *rand.Rand
	temperature  float64
	humidity     float64
	soilMoisture float64
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng:          rand.New(rand.NewSource(seed)),
		temperature:  25,
		humidity:     77,
		soilMoisture: 68,
	}
}

// Next advances the walk one step and returns both snapshots stamped at now.
func (g *Generator) Next(now time.Time) (live.DHTSnapshot, live.SoilSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.temperature = clamp(g.temperature+g.step(0.4), 15, 38)
	g.humidity = clamp(g.humidity+g.step(1.2), 40, 95)

	// moisture mostly dries out; a rare rewetting mimics irrigation or rain
	g.soilMoisture -= 0.15 + g.rng.Float64()*0.1
	if g.soilMoisture < 35 || g.rng.Float64() < 0.02 {
		g.soilMoisture = 60 + g.rng.Float64()*15
	}
	g.soilMoisture = clamp(g.soilMoisture, 20, 90)

	stamp := now.UTC().Format(updateLayout)
	dht := live.DHTSnapshot{
		Temperature:  round1(g.temperature),
		Humidity:     round1(g.humidity),
		LatestUpdate: stamp,
	}
	soil := live.SoilSnapshot{
		Percentage:   round1(g.soilMoisture),
		LatestUpdate: stamp,
	}
	return dht, soil
}

func (g *Generator) step(scale float64) float64 {
	return (g.rng.Float64()*2 - 1) * scale
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// Simulator drives a Generator on a fixed interval and publishes retained
// snapshots, so a consumer that connects late still gets the latest pair.
type Simulator struct {
	generator *Generator
	publisher rabbitmq.IPublisher
	interval  time.Duration
}

func New(gen *Generator, pub rabbitmq.IPublisher, interval time.Duration) *Simulator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Simulator{generator: gen, publisher: pub, interval: interval}
}

// Run publishes until the context is cancelled. Publish failures are logged
// and the loop keeps going; the broker reconnect logic lives below us.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.publishOnce(time.Now())
	for {
		select {
		case <-ctx.Done():
			log.Println("simulator: stopping")
			return
		case now := <-ticker.C:
			s.publishOnce(now)
		}
	}
}

func (s *Simulator) publishOnce(now time.Time) {
	dht, soil := s.generator.Next(now)

	if payload, err := json.Marshal(dht); err == nil {
		if err := s.publisher.PublishRetained(live.TopicDHT, payload); err != nil {
			log.Printf("simulator: publish dht: %v", err)
		}
	}
	if payload, err := json.Marshal(soil); err == nil {
		if err := s.publisher.PublishRetained(live.TopicSoil, payload); err != nil {
			log.Printf("simulator: publish soil: %v", err)
		}
	}
}
