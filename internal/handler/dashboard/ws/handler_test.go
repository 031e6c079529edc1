package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/trading-dashboard/internal/service/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, hub *realtime.Hub) *websocket.Conn {
	t.Helper()
	mux := http.NewServeMux()
	NewDashboardWSHandler(hub, "").Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestServe_SubscribeAndTick(t *testing.T) {
	hub := realtime.NewHub(8)
	conn := dial(t, hub)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","symbol":"btc"}`)))
	ack := readFrame(t, conn)
	assert.Equal(t, "subscribed", ack["type"])
	assert.Equal(t, "BTC", ack["symbol"])

	require.Eventually(t, func() bool { return hub.SubscriberCount("BTC") == 1 }, time.Second, 10*time.Millisecond)
	hub.Deliver("BTC", []byte(`{"type":"tick","symbol":"BTC","price":64000.5,"t":1}`))
	tick := readFrame(t, conn)
	assert.Equal(t, "tick", tick["type"])
	assert.Equal(t, 64000.5, tick["price"])
}

func TestServe_DisconnectUnregisters(t *testing.T) {
	hub := realtime.NewHub(8)
	conn := dial(t, hub)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		allowed string
		origin  string
		want    bool
	}{
		{allowed: "", origin: "https://any.example.org", want: true},
		{allowed: "https://dash.example.org", origin: "https://dash.example.org", want: true},
		{allowed: "https://dash.example.org", origin: "https://evil.example.org", want: false},
		{allowed: "https://dash.example.org", origin: "", want: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, originAllowed(tt.allowed, tt.origin), tt.origin)
	}
}
