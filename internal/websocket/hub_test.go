package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-back/pkg/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func waitForRecent(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.Recent()) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d recent items, got %d", want, len(hub.Recent()))
}

func TestHub_RecentListCapped(t *testing.T) {
	hub := runHub(t)

	for i := 1; i <= RecentLimit+5; i++ {
		hub.Publish(models.NewsItem{ID: int64(i), Headline: fmt.Sprintf("item %d", i)})
	}

	waitForRecent(t, hub, RecentLimit)

	recent := hub.Recent()
	require.Len(t, recent, RecentLimit)

	// Newest first; the oldest five fell off.
	assert.Equal(t, int64(RecentLimit+5), recent[0].ID)
	assert.Equal(t, int64(6), recent[len(recent)-1].ID)
}

func TestHub_BroadcastToClient(t *testing.T) {
	hub := runHub(t)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the registration to land before publishing.
	deadline := time.Now().Add(3 * time.Second)
	for hub.GetConnectionCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, hub.GetConnectionCount())

	hub.Publish(models.NewsItem{ID: 77, Headline: "breaking"})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "news", env.Event)

	var item models.NewsItem
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, int64(77), item.ID)
	assert.Equal(t, "breaking", item.Headline)
}

func TestHub_NewClientReceivesSnapshot(t *testing.T) {
	hub := runHub(t)

	hub.Publish(models.NewsItem{ID: 1, Headline: "earlier"})
	hub.Publish(models.NewsItem{ID: 2, Headline: "latest"})
	waitForRecent(t, hub, 2)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Event string            `json:"event"`
		Data  []models.NewsItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "news_snapshot", env.Event)
	require.Len(t, env.Data, 2)
	assert.Equal(t, int64(2), env.Data[0].ID)
}

func TestHub_ReadPumpExitsAfterShutdown(t *testing.T) {
	hub := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	serverConns := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// The connection is hijacked; it outlives the handler.
		serverConns <- conn
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	peer, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer peer.Close()

	var conn *websocket.Conn
	select {
	case conn = <-serverConns:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
	}

	client := &Client{conn: conn, send: make(chan []byte, 1), hub: hub}

	// Stop the hub loop before the pump tries to unregister.
	cancel()
	select {
	case <-hubDone:
	case <-time.After(3 * time.Second):
		t.Fatal("hub never stopped")
	}

	pumpDone := make(chan struct{})
	go func() {
		client.readPump()
		close(pumpDone)
	}()

	peer.Close()

	select {
	case <-pumpDone:
	case <-time.After(3 * time.Second):
		t.Fatal("read pump blocked after hub shutdown")
	}
}

func TestHub_ConnectionCountTracksDisconnects(t *testing.T) {
	hub := runHub(t)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	deadline := time.Now().Add(3 * time.Second)
	for hub.GetConnectionCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, hub.GetConnectionCount())

	conn.Close()

	deadline = time.Now().Add(3 * time.Second)
	for hub.GetConnectionCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 0, hub.GetConnectionCount())
}
