package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/operant-box/internal/session"
)

// Config configures the broker connection.
type Config struct {
	Broker string
	// Box names the apparatus; it is part of every topic.
	Box      string
	ClientID string
	// BufferSize is how many messages are kept while disconnected.
	BufferSize     int
	ConnectTimeout time.Duration
}

const (
	defaultBufferSize     = 1000
	defaultConnectTimeout = 10 * time.Second
	publishTimeout        = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Publishing never waits
// on the network: messages go out asynchronously while connected and are
// buffered while not, then replayed on reconnect.
type RealPublisher struct {
	client      paho.Client
	eventsTopic string
	systemTopic string

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout the publisher is still
// returned; paho keeps retrying in the background.
func NewRealPublisher(cfg Config) (*RealPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "operant-" + cfg.Box
	}

	p := &RealPublisher{
		eventsTopic: TopicEvents(cfg.Box),
		systemTopic: TopicSystem(cfg.Box),
		buffer:      newRingBuffer(cfg.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.systemTopic, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt: connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		log.Warn().Str("broker", cfg.Broker).Msg("mqtt: broker not reachable yet, buffering")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	msgs := p.buffer.drainAll()
	dropped := p.buffer.dropped
	p.mu.Unlock()

	log.Info().Int("replayed", len(msgs)).Int("dropped_total", dropped).Msg("mqtt: connected")
	for _, m := range msgs {
		p.send(m)
	}
}

func (p *RealPublisher) send(m bufferedMsg) {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(m)
		p.mu.Unlock()
		return
	}
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Warn().Str("topic", m.topic).Msg("mqtt: publish timeout")
			return
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", m.topic).Msg("mqtt: publish failed")
		}
	}()
}

// Publish sends a session event. QoS 1: lever events are the experiment's
// data.
func (p *RealPublisher) Publish(at time.Time, event session.Event) error {
	payload, err := FormatPayload(at, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	p.send(bufferedMsg{topic: p.eventsTopic, payload: payload, qos: 1})
	return nil
}

// PublishSystem sends a system lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	p.send(bufferedMsg{topic: p.systemTopic, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
