package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the realtime events stream.
	StreamName = "GATEWAY_EVENTS"

	streamMaxAge = 24 * time.Hour
)

// StreamSubjects are the subjects captured by the events stream.
var StreamSubjects = []string{"sidebar.chat", "chat.>"}

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream creates the events stream if it does not exist. The stream keeps
// a short replay window for operator clients that reconnect.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    StreamSubjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      streamMaxAge,
		MaxBytes:    1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
		Description: "Conversation summaries and messages for operator clients",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Sink publishes realtime events to NATS subjects named after their topic.
// With JetStream enabled publishes are acknowledged by the events stream.
type Sink struct {
	client    *Client
	jetStream bool
}

// NewSink creates a sink. Set jetStream once EnsureStream has succeeded.
func NewSink(client *Client, jetStream bool) *Sink {
	return &Sink{client: client, jetStream: jetStream}
}

// Name implements realtime.Sink.
func (s *Sink) Name() string {
	if s.jetStream {
		return "jetstream"
	}
	return "nats"
}

// Publish implements realtime.Sink.
func (s *Sink) Publish(ctx context.Context, topic string, data []byte) error {
	if !s.client.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	if s.jetStream {
		if _, err := s.client.JetStream().Publish(ctx, topic, data); err != nil {
			return fmt.Errorf("failed to publish to stream: %w", err)
		}
		return nil
	}
	if err := s.client.Conn().Publish(topic, data); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}
