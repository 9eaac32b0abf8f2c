package telemetry

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSinkConfig is the connection and topic configuration for MQTTSink.
type MQTTSinkConfig struct {
	Broker   string
	Username string
	Password string
	Topic    string // base topic; records publish to Topic/<channel>
	TLS      *tls.Config
}

// MQTTSink publishes each delivered Record as a JSON payload over a
// connection configured for auto-reconnect, retry-on-connect, keepalive,
// and a generated client ID.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	logger *log.Logger
}

type mqttPayload struct {
	TimestampUnixMs int64    `json:"timestamp_ms"`
	Channel         string   `json:"channel"`
	Fields          []string `json:"fields"`
}

func generateClientID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return "wwvsyncd_" + hex.EncodeToString(buf)
}

// NewMQTTSink connects to cfg.Broker and returns a ready-to-use sink.
func NewMQTTSink(cfg MQTTSinkConfig, logger *log.Logger) (*MQTTSink, error) {
	if logger == nil {
		logger = log.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	if cfg.TLS != nil {
		opts.SetTLSConfig(cfg.TLS)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Println("mqtt: connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Printf("mqtt: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect to broker: %w", token.Error())
	}

	return &MQTTSink{client: client, topic: cfg.Topic, logger: logger}, nil
}

func (s *MQTTSink) Deliver(rec Record) {
	payload := mqttPayload{
		TimestampUnixMs: time.Now().UnixMilli(),
		Channel:         rec.Channel,
		Fields:          rec.Fields,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("mqtt: marshal record: %v", err)
		return
	}
	topic := s.topic + "/" + rec.Channel
	token := s.client.Publish(topic, 0, false, data)
	// Fire-and-forget: telemetry is lossy by design, so we do not wait on
	// the publish token here.
	_ = token
}

func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
