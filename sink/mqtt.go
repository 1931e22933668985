package sink

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwesterb/go-wattsup"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MQTTConfig holds MQTT publisher configuration.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// Topic pattern, e.g. "wattsup/{device_id}/reading".
	Topic string
	QoS   byte
}

// MQTT publishes every record as a JSON message.
type MQTT struct {
	client mqtt.Client
	cfg    MQTTConfig
	log    logrus.FieldLogger
}

// NewMQTT connects to the broker.
func NewMQTT(cfg MQTTConfig, log logrus.FieldLogger) (*MQTT, error) {
	log = log.WithField("broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("MQTT connection established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrap(token.Error(), "connecting to MQTT broker")
	}

	return &MQTT{client: client, cfg: cfg, log: log}, nil
}

// formatTopic replaces the {device_id} placeholder.
func formatTopic(pattern, device string) string {
	if device == "" {
		device = "unknown"
	}
	return strings.ReplaceAll(pattern, "{device_id}", device)
}

func (m *MQTT) Write(ctx context.Context, r *wattsup.Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshalling record")
	}

	topic := formatTopic(m.cfg.Topic, r.Device)
	token := m.client.Publish(topic, m.cfg.QoS, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publishing to %s", topic)
	}
	m.log.WithField("topic", topic).Debug("Published record")
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	m.log.Info("MQTT disconnected")
	return nil
}
