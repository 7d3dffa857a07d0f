package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testClient(t *testing.T, serverURL string, onNews NewsHandler) *Client {
	t.Helper()

	creds := credentials.NewStore(credentials.NewMemoryBackend(), nil, testLogger())
	require.NoError(t, creds.Set(context.Background(), models.VendorNews,
		models.Credential{Key: "key-id", Secret: "key-secret"}))

	cfg := &config.NewsConfig{StreamURL: "ws" + strings.TrimPrefix(serverURL, "http")}
	streamCfg := &config.StreamConfig{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
	return NewClient(cfg, streamCfg, creds, onNews, testLogger())
}

func waitForState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, got %v", want, c.State())
}

// vendorHandshake drives the server side of auth+subscribe and returns the
// upgraded connection.
func vendorHandshake(t *testing.T, w http.ResponseWriter, r *http.Request) *websocket.Conn {
	t.Helper()

	conn, err := upgrader.Upgrade(w, r, nil)
	require.NoError(t, err)

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var auth authFrame
	require.NoError(t, json.Unmarshal(msg, &auth))
	assert.Equal(t, "auth", auth.Action)
	assert.Equal(t, "key-id", auth.Key)
	assert.Equal(t, "key-secret", auth.Secret)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`[{"T":"success","msg":"authenticated"}]`)))

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)

	var sub subscribeFrame
	require.NoError(t, json.Unmarshal(msg, &sub))
	assert.Equal(t, "subscribe", sub.Action)
	assert.Equal(t, []string{"*"}, sub.News)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`[{"T":"subscription","news":["*"]}]`)))

	return conn
}

func TestClient_ConnectAuthenticateSubscribe(t *testing.T) {
	news := make(chan models.NewsItem, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn := vendorHandshake(t, w, r)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`[{
			"T": "n",
			"id": 9001,
			"headline": "Fed holds rates",
			"summary": "No change.",
			"symbols": ["SPY"],
			"source": "reuters",
			"url": "https://example.com/fed",
			"created_at": "2025-06-01T18:00:00Z"
		}]`)))

		// Hold the socket open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL, func(item models.NewsItem) {
		news <- item
	})

	require.NoError(t, client.Connect(context.Background()))
	waitForState(t, client, StateSubscribed)

	select {
	case item := <-news:
		assert.Equal(t, int64(9001), item.ID)
		assert.Equal(t, "Fed holds rates", item.Headline)
		assert.Equal(t, []string{"SPY"}, item.Symbols)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for news item")
	}

	status := client.Status()
	assert.Equal(t, "subscribed", status.State)
	assert.Equal(t, int64(1), status.Received)

	client.Disconnect()
	assert.Equal(t, StateDisconnected, client.State())
}

func TestClient_NewsBeforeSubscribedIsDropped(t *testing.T) {
	delivered := make(chan models.NewsItem, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Consume the auth frame, then push news before ever acknowledging.
		_, _, err = conn.ReadMessage()
		require.NoError(t, err)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"T":"n","id":1,"headline":"too early"}]`)))

		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"T":"success","msg":"authenticated"}]`)))

		_, _, err = conn.ReadMessage() // subscribe frame
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"T":"subscription","news":["*"]}]`)))

		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"T":"n","id":2,"headline":"on time"}]`)))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL, func(item models.NewsItem) {
		delivered <- item
	})

	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()

	select {
	case item := <-delivered:
		// Only the post-subscription item arrives.
		assert.Equal(t, int64(2), item.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for news item")
	}
	assert.Empty(t, delivered)
}

func TestClient_ConnectClosesPreviousSession(t *testing.T) {
	var sessions atomic.Int32
	firstClosed := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := sessions.Add(1)
		conn := vendorHandshake(t, w, r)
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if n == 1 {
					close(firstClosed)
				}
				return
			}
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL, nil)

	require.NoError(t, client.Connect(context.Background()))
	waitForState(t, client, StateSubscribed)

	// Second connect tears the first socket down before opening the new one.
	require.NoError(t, client.Connect(context.Background()))
	waitForState(t, client, StateSubscribed)

	select {
	case <-firstClosed:
	case <-time.After(3 * time.Second):
		t.Fatal("first session was never closed")
	}
	assert.Equal(t, int32(2), sessions.Load())

	client.Disconnect()
}

func TestClient_VendorErrorFrameIsTerminal(t *testing.T) {
	var dials atomic.Int32
	errs := make(chan error, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn := vendorHandshake(t, w, r)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"T":"error","code":406,"msg":"connection limit exceeded"}]`)))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL, nil)
	client.SetErrorHandler(func(err error) {
		errs <- err
	})

	require.NoError(t, client.Connect(context.Background()))

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "connection limit exceeded")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream error")
	}

	waitForState(t, client, StateDisconnected)

	// No automatic reconnect: the dial count stays where it was.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
}

func TestClient_SocketDropIsTerminal(t *testing.T) {
	var dials atomic.Int32
	errs := make(chan error, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn := vendorHandshake(t, w, r)
		conn.Close() // drop without a close handshake
	}))
	defer server.Close()

	client := testClient(t, server.URL, nil)
	client.SetErrorHandler(func(err error) {
		errs <- err
	})

	require.NoError(t, client.Connect(context.Background()))

	select {
	case <-errs:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream error")
	}

	waitForState(t, client, StateDisconnected)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
}

func TestClient_DisconnectDuringHandshakeChurn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil { // auth frame
			return
		}

		// Flood authenticated acks so the read loop keeps writing
		// subscribe frames while the caller tears the session down.
		for {
			if err := conn.WriteMessage(websocket.TextMessage,
				[]byte(`[{"T":"success","msg":"authenticated"}]`)); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL, nil)

	for i := 0; i < 50; i++ {
		require.NoError(t, client.Connect(context.Background()))
		time.Sleep(time.Duration(i%5) * time.Millisecond)
		client.Disconnect()
	}

	assert.Equal(t, StateDisconnected, client.State())
}

func TestClient_DisconnectWhileDisconnected(t *testing.T) {
	client := testClient(t, "http://127.0.0.1:0", nil)

	// Safe no-op when there is no session.
	client.Disconnect()
	assert.Equal(t, StateDisconnected, client.State())
}

func TestDecodeFrames(t *testing.T) {
	frames := decodeFrames([]byte(`[{"T":"success","msg":"connected"},{"T":"n","id":5}]`))
	require.Len(t, frames, 2)
	assert.Equal(t, "success", frames[0].T)
	assert.Equal(t, int64(5), frames[1].ID)

	frames = decodeFrames([]byte(`{"T":"error","code":400,"msg":"bad"}`))
	require.Len(t, frames, 1)
	assert.Equal(t, 400, frames[0].Code)

	assert.Nil(t, decodeFrames(nil))
	assert.Nil(t, decodeFrames([]byte("not json")))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "authenticating", StateAuthenticating.String())
	assert.Equal(t, "subscribed", StateSubscribed.String())
}
