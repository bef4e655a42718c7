package rabbitmq

import (
	"context"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IConsumer is the subscription side of the broker connection.
type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler func(topic string, message mqtt.Message) error)
}

// Consumer subscribes a single handler to one or more topics.
type Consumer struct {
	client  mqtt.Client
	topics  []string
	handler func(topic string, message mqtt.Message) error
}

func NewConsumer(client mqtt.Client, topics []string, handler func(topic string, message mqtt.Message) error) *Consumer {
	return &Consumer{client: client, topics: topics, handler: handler}
}

func (c *Consumer) SetHandler(handler func(topic string, message mqtt.Message) error) {
	c.handler = handler
}

// Snapshot topics ride QoS1 so a flaky link cannot silently lose the latest
// reading; dedup downstream absorbs the redeliveries that QoS1 allows.
func qosFor(topic string) byte {
	if strings.HasPrefix(strings.TrimSpace(topic), "sensor/") {
		return 1
	}
	return 0
}

// ConsumeMessage subscribes to every topic and blocks until ctx is done,
// then unsubscribes.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	for _, topic := range c.topics {
		topic := topic
		token := c.client.Subscribe(topic, qosFor(topic), func(_ mqtt.Client, msg mqtt.Message) {
			if c.handler == nil {
				log.Printf("rabbitmq: no handler set for topic %s", topic)
				return
			}
			if err := c.handler(msg.Topic(), msg); err != nil {
				log.Printf("rabbitmq: handler error on %s: %v", msg.Topic(), err)
			}
		})
		if token.Wait() && token.Error() != nil {
			log.Printf("rabbitmq: subscribe error on %s: %v", topic, token.Error())
			continue
		}
		log.Printf("rabbitmq: subscribed to %s", topic)
	}

	<-ctx.Done()

	for _, topic := range c.topics {
		c.client.Unsubscribe(topic).Wait()
	}
}
