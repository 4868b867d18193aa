package ws

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mlm_go_server/internal/pkg/pubsub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)

	assert.NotNil(t, hub)
	assert.NotNil(t, hub.logger)
	assert.Equal(t, 0, hub.ConnectionCount())
	assert.False(t, hub.IsOnline(123))
}

func TestHub_SendToUser_UserNotOnline(t *testing.T) {
	hub := NewHub(nil)

	err := hub.SendToUser(123, &Message{Type: "test", Data: map[string]string{"key": "value"}})
	assert.NoError(t, err)
}

func TestHub_Dispatch_IgnoresAnonymous(t *testing.T) {
	hub := NewHub(nil)

	// 不应 panic
	hub.Dispatch(nil)
	hub.Dispatch(&pubsub.Event{Type: pubsub.EventCommissionCreated})
}

// startServer 启动一个将连接注册为 userID 的测试服务
func startServer(t *testing.T, hub *Hub, userID int64) (*websocket.Conn, func()) {
	t.Helper()

	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}

		client := &Client{UserID: userID, Conn: conn}
		hub.Register(client)
		<-done
		hub.Unregister(client)
		conn.Close()
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.IsOnline(userID) }, time.Second, 10*time.Millisecond)

	return conn, func() {
		close(done)
		conn.Close()
		server.Close()
	}
}

func TestHub_WithRealWebSocket(t *testing.T) {
	hub := NewHub(nil)

	_, stop := startServer(t, hub, 100)

	assert.True(t, hub.IsOnline(100))
	assert.Equal(t, 1, hub.ConnectionCount())

	stop()

	assert.Eventually(t, func() bool { return !hub.IsOnline(100) }, time.Second, 10*time.Millisecond)
}

func TestHub_DispatchDeliversEvent(t *testing.T) {
	hub := NewHub(nil)

	conn, stop := startServer(t, hub, 7)
	defer stop()

	evt, err := pubsub.NewEvent(pubsub.EventCommissionCreated, 7, map[string]interface{}{"amount": "9.70"})
	require.NoError(t, err)
	hub.Dispatch(evt)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, pubsub.EventCommissionCreated, got.Type)
	assert.JSONEq(t, `{"amount":"9.70"}`, string(got.Data))
}

func TestHub_EvictsOldestOverCap(t *testing.T) {
	hub := NewHub(nil, WithMaxConnsPerMember(1))

	first, stopFirst := startServer(t, hub, 9)
	defer stopFirst()
	second, stopSecond := startServer(t, hub, 9)
	defer stopSecond()

	// 第二个连接注册后，最早的连接被服务端关闭
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "evicted connection should be closed, not idle")
	}
	assert.Equal(t, 1, hub.ConnectionCount())

	require.NoError(t, hub.SendToUser(9, &Message{Type: "ping"}))
	require.NoError(t, second.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := second.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","data":null}`, string(data))
}

func TestHub_UnregisterTwiceIsSafe(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{UserID: 3}

	hub.mu.Lock()
	hub.members[3] = []*Client{client}
	hub.mu.Unlock()

	hub.Unregister(client)
	hub.Unregister(client)
	assert.False(t, hub.IsOnline(3))
	assert.Equal(t, 0, hub.ConnectionCount())
}
