package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/garygsw/sensor-reader/pkg/config"
	"github.com/garygsw/sensor-reader/pkg/output"
	"github.com/garygsw/sensor-reader/pkg/sensor"
)

const (
	DefaultServer   = "tcp://localhost:1883"
	DefaultClientID = "sensor-reader"
	DefaultTopic    = "sensors"
)

type MQTTOutput struct {
	client mqtt.Client
	topic  string
}

func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	server := cfg.Server
	if server == "" {
		server = DefaultServer
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(server).SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTOutput{client: client, topic: topic}, nil
}

// Publish sends one JSON payload per sample to <topic>/<channel>.
func (m *MQTTOutput) Publish(samples []sensor.Sample) error {
	for _, s := range samples {
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		token := m.client.Publish(fmt.Sprintf("%s/%s", m.topic, s.Channel), 0, false, b)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}
