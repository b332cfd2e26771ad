package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sensorpipe/internal/config"
)

// MQTTSink publishes each conditioned output as a JSON payload on
// <topic_prefix>/<channel>. Publishes are QoS 0 fire-and-forget so a slow
// broker never stalls the acquisition loop.
type MQTTSink struct {
	client mqtt.Client
	prefix string
}

const mqttConnectTimeout = 5 * time.Second

func NewMQTTSink(cfg config.MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(mqttConnectTimeout)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(mqttConnectTimeout) {
		// Keep the client; auto-reconnect will bring the link up later.
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", cfg.Broker)
	} else if err := tok.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, err)
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "sensorpipe"
	}
	return &MQTTSink{client: client, prefix: prefix}, nil
}

func (s *MQTTSink) send(channel string, v any) {
	if !s.client.IsConnectionOpen() {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.client.Publish(s.prefix+"/"+channel, 0, false, payload)
}

func (s *MQTTSink) SetAccel(v AccelSample) { s.send("accel", v) }
func (s *MQTTSink) SetGyro(v GyroSample)   { s.send("gyro", v) }
func (s *MQTTSink) SetMag(v MagSample)     { s.send("mag", v) }
func (s *MQTTSink) SetAuxMag(v MagSample)  { s.send("auxmag", v) }
func (s *MQTTSink) SetBaro(v BaroSample)   { s.send("baro", v) }

func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
