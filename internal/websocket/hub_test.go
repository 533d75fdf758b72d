package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/vei/internal/monitoring"
)

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastsReload(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := dial(t, ctx, srv, nil)
	b := dial(t, ctx, srv, nil)
	waitClients(t, hub, 2)

	assert.Equal(t, 2, hub.Reload())

	for _, conn := range []*websocket.Conn{a, b} {
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageText, typ)

		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, Message{Type: MessageReload}, msg)
		assert.JSONEq(t, `{"type":"reload"}`, string(data))
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, nil)
	waitClients(t, hub, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	waitClients(t, hub, 0)
	assert.Equal(t, 0, hub.Reload())
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.com"}},
	})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	assert.Equal(t, 0, hub.Clients())
}

func TestHubAllowsConfiguredOrigin(t *testing.T) {
	hub := NewHub(HubOptions{OriginPatterns: []string{"app.example.com"}})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial(t, ctx, srv, http.Header{"Origin": []string{"https://app.example.com"}})
	waitClients(t, hub, 1)
}

func TestHubClose(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, nil)
	waitClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	_, _, err := conn.Read(ctx)
	assert.Error(t, err)

	rr := httptest.NewRecorder()
	hub.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHubRecordsMetrics(t *testing.T) {
	rec := monitoring.NewPrometheusRecorder(prometheus.NewRegistry())
	hub := NewHub(HubOptions{Recorder: rec})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial(t, ctx, srv, nil)
	waitClients(t, hub, 1)
	hub.Reload()
	hub.Broadcast(Message{Type: "ping"})

	families, err := rec.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), values["vei_connected_clients"])
	assert.Equal(t, float64(1), values["vei_reload_broadcasts_total"])
}

func TestHubKeepsIdleClients(t *testing.T) {
	hub := NewHub(HubOptions{PingInterval: 20 * time.Millisecond})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Like a browser: keep reading so pings are answered, never send.
	conn := dial(t, ctx, srv, nil)
	received := make(chan []byte, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			received <- data
		}
	}()
	waitClients(t, hub, 1)

	time.Sleep(25 * 20 * time.Millisecond)
	require.Equal(t, 1, hub.Clients(), "idle client dropped")
	require.Equal(t, 1, hub.Reload())

	select {
	case data := <-received:
		assert.JSONEq(t, `{"type":"reload"}`, string(data))
	case <-ctx.Done():
		t.Fatal("reload not delivered to idle client")
	}
}

func TestHubDropsUnresponsivePeer(t *testing.T) {
	hub := NewHub(HubOptions{PingInterval: 20 * time.Millisecond})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, nil)
	waitClients(t, hub, 1)

	// A peer that closes its side stops answering pings.
	conn.CloseNow()
	waitClients(t, hub, 0)
}
