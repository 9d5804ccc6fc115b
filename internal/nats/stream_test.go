package nats

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
)

func TestSink_Name(t *testing.T) {
	assert.Equal(t, "nats", NewSink(&Client{}, false).Name())
	assert.Equal(t, "jetstream", NewSink(&Client{}, true).Name())
}

func TestSink_PublishWhenDisconnected(t *testing.T) {
	err := NewSink(&Client{}, false).Publish(context.Background(), "sidebar.chat", []byte(`{}`))
	assert.Error(t, err)
}

func connectTestServer(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Connect(ctx, Config{URL: url, Name: "gateway-test"}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSink_CorePublish(t *testing.T) {
	c := connectTestServer(t)

	sub, err := c.Conn().SubscribeSync("chat.>")
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, c.Conn().Flush())

	sink := NewSink(c, false)
	require.NoError(t, sink.Publish(context.Background(), "chat.abc", []byte(`{"conversation_id":"abc"}`)))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "chat.abc", msg.Subject)
	assert.JSONEq(t, `{"conversation_id":"abc"}`, string(msg.Data))
}

func TestSink_JetStreamPublish(t *testing.T) {
	c := connectTestServer(t)
	ctx := context.Background()

	if err := NewStreamManager(c).EnsureStream(ctx); err != nil {
		t.Skipf("JetStream unavailable: %v", err)
	}

	received := make(chan *nats.Msg, 1)
	sub, err := c.Conn().ChanSubscribe("sidebar.chat", received)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, NewSink(c, true).Publish(ctx, "sidebar.chat", []byte(`{"name":"Ana"}`)))

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"name":"Ana"}`, string(msg.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
