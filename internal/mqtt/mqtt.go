// Package mqtt publishes session and system events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/operant-box/internal/session"
)

const topicRoot = "operant"

// timestampFormat keeps millisecond resolution; lever events are closer
// together than a second.
const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// TopicEvents is the topic for session events of one box.
func TopicEvents(box string) string {
	return topicRoot + "/" + box + "/events"
}

// TopicSystem is the topic for lifecycle events of one box.
func TopicSystem(box string) string {
	return topicRoot + "/" + box + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a session event observed at wall-clock time at.
	// Returns error if the event cannot be formatted; delivery failures are
	// logged, never returned.
	Publish(at time.Time, event session.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message for a session event.
type Payload struct {
	Event EventPayload `json:"event"`
}

// EventPayload contains the session event details.
type EventPayload struct {
	Timestamp  string `json:"timestamp"`
	Kind       string `json:"kind"`
	Session    string `json:"session,omitempty"`
	SessionMs  uint32 `json:"t_ms"`
	Lever      string `json:"lever,omitempty"`
	Role       string `json:"role,omitempty"`
	DurationMs uint32 `json:"duration_ms,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// FormatPayload creates the JSON payload for a session event.
func FormatPayload(at time.Time, event session.Event) ([]byte, error) {
	p := EventPayload{
		Timestamp:  at.UTC().Format(timestampFormat),
		Kind:       string(event.Kind),
		Session:    event.SessionID,
		SessionMs:  uint32(event.SessionTime),
		Lever:      event.Lever,
		DurationMs: uint32(event.Duration),
		Reason:     event.Reason,
	}
	if event.Lever != "" {
		p.Role = event.Role.String()
	}
	return json.Marshal(Payload{Event: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
