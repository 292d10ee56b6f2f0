package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// publisher is the part of mqtt.Client the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each event as JSON on <Topic>/<event type>.
type MQTT struct {
	Client  publisher
	Topic   string
	QoS     byte
	Timeout time.Duration
}

// DialMQTT connects to broker and returns a sink plus its disconnect func.
func DialMQTT(broker, clientID, topic string) (*MQTT, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(5 * time.Second) {
		return nil, nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return &MQTT{Client: client, Topic: topic, QoS: 1}, func() { client.Disconnect(250) }, nil
}

func (m *MQTT) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("mqtt encode: %w", err)
	}
	topic := strings.TrimSuffix(m.Topic, "/") + "/" + e.Type
	tok := m.Client.Publish(topic, m.QoS, false, payload)

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}
