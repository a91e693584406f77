package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
)

// ActivityPath is the activity stream endpoint.
const ActivityPath = "/ws/activity"

// WSClient streams wallet activity over a WebSocket.
type WSClient struct {
	url    string
	logger *events.Logger

	// Connection state
	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	closed  bool

	// Channels
	events chan models.ActivityEvent
	errors chan error
	done   chan struct{}

	// Heartbeat
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewWSClient creates a WebSocket client. http(s) URLs are rewritten
// to ws(s).
func NewWSClient(wsURL string, pingInterval time.Duration, logger *events.Logger) *WSClient {
	if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[4:]
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}

	return &WSClient{
		url:          wsURL,
		logger:       logger.WithField("component", "ws_client"),
		events:       make(chan models.ActivityEvent, 100),
		errors:       make(chan error, 10),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		pongTimeout:  10 * time.Second,
	}
}

// ActivityURL builds the activity stream URL for wallet.
func ActivityURL(base, wallet string) string {
	u := strings.TrimRight(base, "/")
	if !strings.HasSuffix(u, ActivityPath) {
		u += ActivityPath
	}
	return u + "?wallet=" + url.QueryEscape(models.NormalizeAddress(wallet))
}

// Connect establishes the WebSocket connection.
func (c *WSClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("client closed")
	}
	if c.conn != nil {
		return errors.New("already connected")
	}

	c.logger.WithField("url", c.url).Info("Connecting to WebSocket")

	headers := http.Header{}
	if id := events.GetRequestID(ctx); id != "" {
		headers.Set(RequestIDHeader, id)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connect failed: %w", err)
	}

	c.conn = conn

	go c.readLoop(conn)
	go c.pingLoop()

	c.logger.Info("WebSocket connected")
	return nil
}

// Subscribe asks the server for the activity of wallet.
func (c *WSClient) Subscribe(wallet string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return errors.New("not connected")
	}

	c.logger.WithField("wallet", wallet).Debug("Subscribing to activity")

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msg := models.SubscribeMessage{Op: "subscribe", WalletAddress: models.NormalizeAddress(wallet)}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	return nil
}

// Events returns the event channel. It is closed when the connection ends.
func (c *WSClient) Events() <-chan models.ActivityEvent {
	return c.events
}

// Errors returns the error channel.
func (c *WSClient) Errors() <-chan error {
	return c.errors
}

// Done is closed once the client is closed.
func (c *WSClient) Done() <-chan struct{} {
	return c.done
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)

	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err := c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

// readLoop decodes activity events until the connection ends.
func (c *WSClient) readLoop(conn *websocket.Conn) {
	defer func() {
		c.Close()
		close(c.events)
		close(c.errors)
	}()

	deadline := c.pongTimeout + c.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		var event models.ActivityEvent
		if err := conn.ReadJSON(&event); err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				c.logger.WithError(err).Error("WebSocket read error")
				c.errors <- fmt.Errorf("%w: %v", models.ErrConnectionLost, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))

		c.logger.WithFields(map[string]interface{}{
			"type":   event.Type,
			"wallet": event.WalletAddress,
		}).Debug("Received activity event")

		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

// pingLoop sends periodic pings.
func (c *WSClient) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				return
			}

			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.pongTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.WithError(err).Warn("Ping failed")
				return
			}

		case <-c.done:
			return
		}
	}
}
