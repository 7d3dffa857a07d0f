package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

// State is the streaming session state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateSubscribed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// NewsHandler receives each normalized news item from the stream
type NewsHandler func(models.NewsItem)

// ErrorHandler receives terminal stream errors (socket error, vendor error
// frame). The session is already disconnected when it fires; reconnection
// is a deliberate caller action, never automatic.
type ErrorHandler func(error)

// authFrame is the first frame sent after the socket opens
type authFrame struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// subscribeFrame is sent after the vendor acknowledges authentication
type subscribeFrame struct {
	Action string   `json:"action"`
	News   []string `json:"news"`
}

// inboundFrame is the union of frame shapes the vendor pushes. The T tag
// discriminates: "success"/"error" for control, "subscription" for the
// subscribe ack, "n" for news events.
type inboundFrame struct {
	T   string `json:"T"`
	Msg string `json:"msg,omitempty"`

	// error frames
	Code int `json:"code,omitempty"`

	// news frames
	ID        int64    `json:"id,omitempty"`
	Headline  string   `json:"headline,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Symbols   []string `json:"symbols,omitempty"`
	Source    string   `json:"source,omitempty"`
	URL       string   `json:"url,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
}

// Client manages the persistent news streaming session. One logical
// connection at a time: Connect on a live session tears the old socket
// down first, so there are never two open sockets or duplicate
// subscriptions.
type Client struct {
	url              string
	creds            *credentials.Store
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	logger           *logrus.Entry

	onNews  NewsHandler
	onError ErrorHandler

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
	wg   sync.WaitGroup

	state       atomic.Int32
	received    atomic.Int64
	connectedAt atomic.Int64
}

// NewClient creates a streaming client. The handler is registered once at
// construction; re-registering on reconnect would risk duplicate delivery.
func NewClient(cfg *config.NewsConfig, streamCfg *config.StreamConfig, creds *credentials.Store, onNews NewsHandler, logger *logrus.Logger) *Client {
	return &Client{
		url:              cfg.StreamURL,
		creds:            creds,
		handshakeTimeout: streamCfg.HandshakeTimeout,
		writeTimeout:     streamCfg.WriteTimeout,
		onNews:           onNews,
		logger:           logger.WithField("component", "news-stream"),
	}
}

// SetErrorHandler registers a handler for terminal stream errors
func (c *Client) SetErrorHandler(h ErrorHandler) {
	c.onError = h
}

// State returns the current session state
func (c *Client) State() State {
	return State(c.state.Load())
}

// Status reports the session state for the API
func (c *Client) Status() models.StreamStatus {
	status := models.StreamStatus{
		State:    c.State().String(),
		Received: c.received.Load(),
	}
	if ts := c.connectedAt.Load(); ts > 0 && c.State() != StateDisconnected {
		status.ConnectedAt = ts
	}
	return status
}

// Connect opens the streaming session: dial, authenticate, subscribe.
// An existing session is closed first (close-before-open).
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.teardownLocked()
	}

	c.state.Store(int32(StateConnecting))
	c.logger.WithField("url", c.url).Info("Connecting to news stream")

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("websocket dial: %w", err)
	}

	// Socket is open; authenticate immediately.
	cred := c.creds.Get(models.VendorNews)
	auth := authFrame{Action: "auth", Key: cred.Key, Secret: cred.Secret}
	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("failed to send auth frame: %w", err)
	}

	c.conn = conn
	c.done = make(chan struct{})
	c.state.Store(int32(StateAuthenticating))
	c.connectedAt.Store(time.Now().Unix())

	c.wg.Add(1)
	go c.readLoop(conn, c.done)

	return nil
}

// Disconnect closes the session. Frames still in flight are discarded.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// teardownLocked closes the current socket and waits for the read loop.
// Callers hold c.mu.
func (c *Client) teardownLocked() {
	if c.conn == nil {
		c.state.Store(int32(StateDisconnected))
		return
	}

	close(c.done)

	// Best-effort close handshake before dropping the socket. The read
	// loop may be mid-write (subscribe frame); WriteControl is the only
	// write method safe to call concurrently with it.
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout))
	c.conn.Close()
	c.conn = nil

	c.wg.Wait()
	c.state.Store(int32(StateDisconnected))
	c.logger.Info("News stream disconnected")
}

// readLoop consumes frames until the socket closes. It owns all state
// transitions past Authenticating.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Deliberate disconnect; state already handled.
			default:
				c.logger.WithError(err).Warn("News stream socket closed")
				c.state.Store(int32(StateDisconnected))
				c.fail(fmt.Errorf("stream socket error: %w", err))
			}
			return
		}

		for _, frame := range decodeFrames(data) {
			if err := c.dispatch(conn, frame); err != nil {
				c.logger.WithError(err).Error("News stream protocol error")
				c.state.Store(int32(StateDisconnected))
				conn.Close()
				c.fail(err)
				return
			}
		}
	}
}

// decodeFrames parses an inbound message. The vendor batches frames into
// JSON arrays; single objects are accepted too.
func decodeFrames(data []byte) []inboundFrame {
	if len(data) == 0 {
		return nil
	}

	if data[0] == '[' {
		var frames []inboundFrame
		if err := json.Unmarshal(data, &frames); err != nil {
			return nil
		}
		return frames
	}

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil
	}
	return []inboundFrame{frame}
}

// dispatch advances the state machine for one frame. Unknown frame types
// are ignored in every state.
func (c *Client) dispatch(conn *websocket.Conn, frame inboundFrame) error {
	switch frame.T {
	case "success":
		if frame.Msg == "authenticated" && c.State() == StateAuthenticating {
			sub := subscribeFrame{Action: "subscribe", News: []string{"*"}}
			conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := conn.WriteJSON(sub); err != nil {
				return fmt.Errorf("failed to send subscribe frame: %w", err)
			}
		}
		return nil

	case "subscription":
		if c.State() == StateAuthenticating {
			c.state.Store(int32(StateSubscribed))
			c.logger.Info("News stream subscribed")
		}
		return nil

	case "n":
		if c.State() != StateSubscribed {
			return nil
		}
		c.received.Add(1)
		if c.onNews != nil {
			c.onNews(normalizeFrame(frame))
		}
		return nil

	case "error":
		return fmt.Errorf("vendor stream error %d: %s", frame.Code, frame.Msg)

	default:
		return nil
	}
}

// fail surfaces a terminal error to the registered handler
func (c *Client) fail(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

// normalizeFrame maps a news frame to the shared NewsItem shape
func normalizeFrame(frame inboundFrame) models.NewsItem {
	published, _ := time.Parse(time.RFC3339, frame.CreatedAt)
	return models.NewsItem{
		ID:          frame.ID,
		Headline:    frame.Headline,
		Summary:     frame.Summary,
		Symbols:     frame.Symbols,
		Source:      frame.Source,
		URL:         frame.URL,
		PublishedAt: published,
	}
}
