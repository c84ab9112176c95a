package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wevn/wevn/models"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Serve(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	go hub.Run()

	c1 := dialHub(t, hub)
	c2 := dialHub(t, hub)

	hub.Broadcast(models.Notification{Type: models.ChangeNode})

	for _, conn := range []*websocket.Conn{c1, c2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var n models.Notification
		require.NoError(t, json.Unmarshal(payload, &n))
		assert.Equal(t, models.ChangeNode, n.Type)
	}
}

func TestDisconnectedClientIsPruned(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	go hub.Run()

	c1 := dialHub(t, hub)
	c2 := dialHub(t, hub)
	c2.Close()

	// Give the hub time to observe the disconnect, then broadcast.
	time.Sleep(100 * time.Millisecond)
	hub.Broadcast(models.Notification{Type: models.ChangeDomain})

	c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := c1.ReadMessage()
	require.NoError(t, err)

	var n models.Notification
	require.NoError(t, json.Unmarshal(payload, &n))
	assert.Equal(t, models.ChangeDomain, n.Type)
}
