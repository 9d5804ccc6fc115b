// Package realtime fans conversation events out to operator clients.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
	"github.com/capitalize-ai/messaging-gateway/pkg/metrics"
)

// TopicSidebar carries conversation summaries for the operator sidebar.
const TopicSidebar = "sidebar.chat"

// ChatTopic returns the per-conversation topic.
func ChatTopic(conversationID string) string {
	return "chat." + conversationID
}

// Sink delivers an encoded event to one transport.
type Sink interface {
	Name() string
	Publish(ctx context.Context, topic string, data []byte) error
}

// Publisher emits conversation events. Publishing never fails the caller.
type Publisher interface {
	PublishSummary(ctx context.Context, ev model.SummaryEvent)
	PublishMessage(ctx context.Context, ev model.MessageEvent)
}

// Broadcaster publishes every event to all configured sinks.
type Broadcaster struct {
	sinks   []Sink
	timeout time.Duration
	logger  *logger.Logger
}

// NewBroadcaster creates a broadcaster. Each sink call is bounded by timeout.
func NewBroadcaster(log *logger.Logger, timeout time.Duration, sinks ...Sink) *Broadcaster {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	var active []Sink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Broadcaster{sinks: active, timeout: timeout, logger: log}
}

// PublishSummary publishes to the sidebar topic.
func (b *Broadcaster) PublishSummary(ctx context.Context, ev model.SummaryEvent) {
	b.publish(ctx, TopicSidebar, ev)
}

// PublishMessage publishes to the conversation topic.
func (b *Broadcaster) PublishMessage(ctx context.Context, ev model.MessageEvent) {
	b.publish(ctx, ChatTopic(ev.ConversationID), ev)
}

func (b *Broadcaster) publish(ctx context.Context, topic string, payload any) {
	if len(b.sinks) == 0 {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("failed to encode realtime event", zap.String("topic", topic), zap.Error(err))
		return
	}

	for _, sink := range b.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		err := sink.Publish(sctx, topic, data)
		cancel()

		status := "ok"
		if err != nil {
			status = "error"
			b.logger.Warn("realtime publish failed",
				zap.String("sink", sink.Name()),
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
		metrics.RealtimePublishes.WithLabelValues(sink.Name(), status).Inc()
	}
}
