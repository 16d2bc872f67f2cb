package live

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

	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/snapshot"
)

func dial(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, userID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount(userID) > 0 }, time.Second, 10*time.Millisecond)
	return conn
}

func TestNotifySnapshotReachesOwner(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "user-1")

	hub.NotifySnapshot("user-1", snapshot.Snapshot{
		AccountID:      "acc-1",
		SnapshotDate:   "2024-01-10",
		CurrentBalance: domain.Positive(100, "USD"),
		SnapshotType:   snapshot.TypeSync,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessageSnapshotUpserted, msg.Type)
	assert.Equal(t, "acc-1", msg.Snapshot.AccountID)
	assert.Equal(t, "2024-01-10", msg.Snapshot.SnapshotDate)
}

func TestNotifySnapshotSkipsOtherUsers(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "user-2")

	hub.NotifySnapshot("user-1", snapshot.Snapshot{AccountID: "acc-1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestUnregisterOnDisconnect(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "user-1")

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount("user-1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	hub := NewHub()
	c := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", c)

	hub.NotifySnapshot("user-1", snapshot.Snapshot{AccountID: "a"})
	hub.NotifySnapshot("user-1", snapshot.Snapshot{AccountID: "b"})

	assert.Len(t, c.send, 1)

	hub.Unregister("user-1", c)
	hub.Unregister("user-1", c)
	assert.Equal(t, 0, hub.ClientCount("user-1"))
}
