// Package live keeps the most recent device snapshots fed over MQTT.
// Two independent topics mirror the device layout: the DHT sensor publishes
// air temperature/humidity, the soil probe publishes a moisture percentage.
// Both are retained, so the cache fills immediately on subscribe.
package live

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/agrosense/irrigation-core/internal/model"
	"github.com/agrosense/irrigation-core/pkg/dedup"
	"github.com/agrosense/irrigation-core/pkg/rabbitmq"
	"github.com/agrosense/irrigation-core/pkg/timestamp"
)

const (
	TopicDHT  = "sensor/dht"
	TopicSoil = "sensor/soil"
)

// ErrNoSnapshot means no live reading has arrived yet on either topic.
var ErrNoSnapshot = errors.New("live source has no snapshot")

type DHTSnapshot struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	LatestUpdate string  `json:"latestUpdate"`
}

type SoilSnapshot struct {
	Percentage   float64 `json:"percentage"`
	LatestUpdate string  `json:"latestUpdate"`
}

// Cache implements series.LiveSource over the two snapshot topics.
type Cache struct {
	consumer rabbitmq.IConsumer
	deduper  *dedup.Deduper

	mu      sync.RWMutex
	dht     DHTSnapshot
	hasDHT  bool
	soil    SoilSnapshot
	hasSoil bool
}

func NewCache(consumer rabbitmq.IConsumer) *Cache {
	c := &Cache{
		consumer: consumer,
		deduper:  dedup.New(2*time.Minute, 10000),
	}
	if consumer != nil {
		consumer.SetHandler(c.Handle)
	}
	return c
}

// Start consumes the snapshot topics until ctx is cancelled.
func (c *Cache) Start(ctx context.Context) {
	c.consumer.ConsumeMessage(ctx)
}

// Handle ingests one MQTT snapshot message. Malformed payloads are logged
// and dropped so the subscription never dies.
func (c *Cache) Handle(topic string, msg mqtt.Message) error {
	h := sha256.Sum256(msg.Payload())
	if !c.deduper.ShouldProcess(hex.EncodeToString(h[:])) {
		return nil
	}

	switch {
	case strings.HasSuffix(topic, "dht"):
		var s DHTSnapshot
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("live: bad DHT payload: %v", err)
			return nil
		}
		c.mu.Lock()
		c.dht, c.hasDHT = s, true
		c.mu.Unlock()
	case strings.HasSuffix(topic, "soil"):
		var s SoilSnapshot
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("live: bad soil payload: %v", err)
			return nil
		}
		c.mu.Lock()
		c.soil, c.hasSoil = s, true
		c.mu.Unlock()
	default:
		// other topics are not ours
	}
	return nil
}

// DHT returns the latest air snapshot, if any arrived.
func (c *Cache) DHT() (DHTSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dht, c.hasDHT
}

// Soil returns the latest soil snapshot, if any arrived.
func (c *Cache) Soil() (SoilSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.soil, c.hasSoil
}

// Snapshot merges the two topic caches into one raw record for the merge
// engine. Both snapshots must be present: a half-filled reading would put a
// fabricated zero into the series. The datetime text carried over is the
// newer of the two update texts.
func (c *Cache) Snapshot(_ context.Context) (model.RawRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasDHT || !c.hasSoil {
		return model.RawRecord{}, ErrNoSnapshot
	}
	return model.RawRecord{
		Temperature:  c.dht.Temperature,
		Humidity:     c.dht.Humidity,
		SoilMoisture: c.soil.Percentage,
		DatetimeText: NewerUpdate(c.dht.LatestUpdate, c.soil.LatestUpdate),
	}, nil
}

// NewerUpdate picks whichever of the two update texts denotes the later
// instant. Unparsable or empty texts lose to parsable ones.
func NewerUpdate(a, b string) string {
	ta, okA := timestamp.ParseDatetimeText(a)
	tb, okB := timestamp.ParseDatetimeText(b)
	switch {
	case okA && okB:
		if tb > ta {
			return b
		}
		return a
	case okB:
		return b
	case okA:
		return a
	default:
		if a != "" {
			return a
		}
		return b
	}
}
