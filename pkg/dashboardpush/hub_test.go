package dashboardpush

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

func setupTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := New(5*time.Second, nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("websocket accept error: %v", err)
			return
		}
		hub.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(server.Close)
	return hub, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) PublishedContext {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg PublishedContext
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_BroadcastReachesConnectedClient(t *testing.T) {
	hub, server := setupTestHub(t)
	conn := connectWS(t, server)

	// Give the accept handler a moment to register before broadcasting.
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(PublishedContext{
		ConsumerID: "triage-agent",
		Session:    "session:abc",
		Context:    models.AssembledContext{ConsumerID: "triage-agent", FormattedContext: "hello"},
	})

	msg := readJSON(t, conn)
	assert.Equal(t, "triage-agent", msg.ConsumerID)
	assert.Equal(t, "session:abc", msg.Session)
	assert.Equal(t, "hello", msg.Context.FormattedContext)
}

func TestHub_BroadcastToOneFailingConnectionDoesNotBlockOthers(t *testing.T) {
	hub, server := setupTestHub(t)
	conn1 := connectWS(t, server)
	conn2 := connectWS(t, server)

	require.Eventually(t, func() bool { return hub.ActiveConnections() == 2 }, time.Second, 10*time.Millisecond)

	// Close one connection without telling the hub, simulating a dead peer.
	conn1.Close(websocket.StatusNormalClosure, "")

	hub.Broadcast(PublishedContext{ConsumerID: "triage-agent"})

	msg := readJSON(t, conn2)
	assert.Equal(t, "triage-agent", msg.ConsumerID)
}

func TestHub_NotifyPublishMatchesAssemblerPublishNotifierSignature(t *testing.T) {
	hub, server := setupTestHub(t)
	conn := connectWS(t, server)
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	hub.NotifyPublish("triage-agent", "session:abc", models.AssembledContext{ConsumerID: "triage-agent"})

	msg := readJSON(t, conn)
	assert.Equal(t, "triage-agent", msg.ConsumerID)
	assert.WithinDuration(t, time.Now(), msg.PublishedAt, time.Second)
}

func TestHub_ActiveConnectionsReflectsDisconnects(t *testing.T) {
	hub, server := setupTestHub(t)
	conn := connectWS(t, server)
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 0 }, time.Second, 10*time.Millisecond)
}
