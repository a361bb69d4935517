package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskar-77/OskarTrackSystem33/internal/pipeline"
	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastsFrames(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return fixed }

	conn := dial(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	zone := 2
	hub.OnFrameResult(15, &pipeline.FrameResult{
		Tracks:         map[int]tracking.Centroid{4: {X: 10, Y: 20}},
		ZoneOf:         map[int]*int{4: &zone},
		DetectionCount: 1,
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg FrameMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "frame", msg.Type)
	assert.Equal(t, 15, msg.FrameIndex)
	assert.True(t, fixed.Equal(msg.Timestamp))
	assert.Equal(t, 1, msg.Analysis.PersonCount)
	require.Len(t, msg.Analysis.Tracks, 1)
	assert.Equal(t, [2]int{10, 20}, msg.Analysis.Tracks[0].Position)
	require.NotNil(t, msg.Analysis.Tracks[0].ZoneID)
	assert.Equal(t, 2, *msg.Analysis.Tracks[0].ZoneID)
}

func TestHub_Echo(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	conn := dial(t, hub)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg EchoMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EchoMessage{Type: "echo", Message: "hello"}, msg)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	conn := dial(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_NoClientsIsNoop(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	hub.OnFrameResult(0, &pipeline.FrameResult{})
	hub.Broadcast([]byte("x"))
	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())
}
