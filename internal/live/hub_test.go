package live

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	wsURL, err := WebSocketURL(srv.URL)
	require.NoError(t, err)
	return hub, wsURL
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub, wsURL := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	group := 12
	hub.Broadcast(Event{Type: EventResultsUpdated, TestGroupID: &group})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, EventResultsUpdated, ev.Type)
	require.NotNil(t, ev.TestGroupID)
	assert.Equal(t, 12, *ev.TestGroupID)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, wsURL := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := &client{send: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	// The first event fills the buffer; the second finds it full
	hub.Broadcast(Event{Type: EventResultsUpdated})
	assert.Equal(t, 1, hub.Clients())

	hub.Broadcast(Event{Type: EventResultsUpdated})
	assert.Equal(t, 0, hub.Clients())

	<-c.send
	_, open := <-c.send
	assert.False(t, open, "send channel is closed for the writer to exit")
}

func TestClient_ReceivesEvents(t *testing.T) {
	hub, wsURL := startHub(t)

	received := make(chan Event, 1)
	c := NewClient(func(ev Event) { received <- ev })
	require.NoError(t, c.Connect(wsURL))
	defer c.Disconnect()
	assert.True(t, c.IsConnected())

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	hub.Broadcast(Event{Type: EventMatchPending})

	select {
	case ev := <-received:
		assert.Equal(t, EventMatchPending, ev.Type)
		assert.Nil(t, ev.TestGroupID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	hub.Close()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the hub closing")
	}
	assert.False(t, c.IsConnected())
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://lab.example.com/", "wss://lab.example.com/ws"},
		{"http://host/dash", "ws://host/dash/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := WebSocketURL(tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
