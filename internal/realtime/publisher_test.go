package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	name   string
	err    error
	topics []string
	data   [][]byte
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, topic string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	s.data = append(s.data, data)
	return s.err
}

func TestBroadcaster_PublishesToEverySink(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	ok := &recordingSink{name: "ok"}
	b := NewBroadcaster(logger.NewNop(), 0, failing, nil, ok)

	b.PublishSummary(context.Background(), model.SummaryEvent{ConversationID: "c1", Name: "Ana", LastMessagePreview: "hola"})
	b.PublishMessage(context.Background(), model.MessageEvent{ConversationID: "c1", MessageID: "m1", Body: model.StringPtr("hola")})

	for _, s := range []*recordingSink{failing, ok} {
		assert.Equal(t, []string{TopicSidebar, "chat.c1"}, s.topics)
	}

	var summary map[string]any
	require.NoError(t, json.Unmarshal(ok.data[0], &summary))
	assert.Equal(t, "c1", summary["conversation_id"])
	assert.Equal(t, "hola", summary["last_message_preview"])
}

func TestBroadcaster_NoSinks(t *testing.T) {
	b := NewBroadcaster(logger.NewNop(), 0)
	assert.NotPanics(t, func() {
		b.PublishSummary(context.Background(), model.SummaryEvent{})
	})
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("sidebar.chat", "sidebar.chat"))
	assert.True(t, Match("chat.>", "chat.123"))
	assert.False(t, Match("chat.>", "sidebar.chat"))
	assert.False(t, Match("chat.1", "chat.12"))
}
