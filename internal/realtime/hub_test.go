package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
)

func dialHub(t *testing.T, srv *httptest.Server, topics string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?topics=" + topics
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, time.Second, 10*time.Millisecond)
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHub_DeliversSubscribedTopics(t *testing.T) {
	hub := NewHub(logger.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	sidebar := dialHub(t, srv, TopicSidebar)
	chats := dialHub(t, srv, "chat.>")
	waitForClients(t, hub, 2)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, "chat.c1", []byte(`{"body":"hola"}`)))
	require.NoError(t, hub.Publish(ctx, TopicSidebar, []byte(`{"name":"Ana"}`)))

	f := readFrame(t, chats)
	assert.Equal(t, "chat.c1", f.Topic)
	assert.JSONEq(t, `{"body":"hola"}`, string(f.Data))

	f = readFrame(t, sidebar)
	assert.Equal(t, TopicSidebar, f.Topic)
}

func TestHub_RuntimeSubscribe(t *testing.T) {
	hub := NewHub(logger.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv, "")
	waitForClients(t, hub, 1)

	cmd, _ := json.Marshal(Command{Action: "subscribe", Topic: "chat.c9"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, cmd))

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for _, c := range hub.clients {
			if c.wants("chat.c9") {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), "chat.c9", []byte(`{}`)))
	assert.Equal(t, "chat.c9", readFrame(t, conn).Topic)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub := NewHub(logger.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv, TopicSidebar)
	waitForClients(t, hub, 1)
	conn.Close()
	waitForClients(t, hub, 0)
}
