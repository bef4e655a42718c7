package rabbitmq

import (
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher is the publishing side of the broker connection.
type IPublisher interface {
	PublishMessage(topic string, payload []byte) error
	PublishRetained(topic string, payload []byte) error
	Close()
}

type Publisher struct {
	client mqtt.Client
}

func NewPublisher(client mqtt.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishMessage publishes at QoS1 without the retain flag.
func (p *Publisher) PublishMessage(topic string, payload []byte) error {
	return p.publish(topic, payload, false)
}

// PublishRetained publishes at QoS1 with the retain flag set, so a consumer
// that connects later immediately receives the latest snapshot.
func (p *Publisher) PublishRetained(topic string, payload []byte) error {
	return p.publish(topic, payload, true)
}

func (p *Publisher) publish(topic string, payload []byte, retained bool) error {
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", topic, token.Error())
	}
	return nil
}

func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Println("rabbitmq: publisher disconnected")
	}
}
