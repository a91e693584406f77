package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rollbackwallet/rollbackctl/internal/config"
	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
)

// Transport combines HTTP and WebSocket functionality.
type Transport interface {
	// HTTP methods
	GetJSON(ctx context.Context, path string, out interface{}) error
	PostJSON(ctx context.Context, path string, payload, out interface{}) error
	PutJSON(ctx context.Context, path string, payload, out interface{}) error

	// WebSocket methods
	StreamActivity(ctx context.Context, wallet string) (<-chan models.ActivityEvent, error)

	// Lifecycle
	Close() error
}

var _ Transport = (*DefaultTransport)(nil)

// DefaultTransport implements the Transport interface.
type DefaultTransport struct {
	httpClient   *HTTPClient
	wsURL        string
	pingInterval time.Duration
	logger       *events.Logger

	mu      sync.Mutex
	streams []*WSClient
}

// NewTransport creates a transport instance.
func NewTransport(cfg *config.APIConfig, monitor *config.MonitorConfig, logger *events.Logger) *DefaultTransport {
	httpClient := NewHTTPClient(cfg, logger)

	wsURL := cfg.WSURL
	if wsURL == "" {
		wsURL = httpClient.BaseURL()
	}

	t := &DefaultTransport{
		httpClient: httpClient,
		wsURL:      wsURL,
		logger:     logger,
	}
	if monitor != nil {
		t.pingInterval = monitor.PingInterval
	}
	return t
}

// GetJSON forwards to HTTP client.
func (t *DefaultTransport) GetJSON(ctx context.Context, path string, out interface{}) error {
	return t.httpClient.GetJSON(ctx, path, out)
}

// PostJSON forwards to HTTP client.
func (t *DefaultTransport) PostJSON(ctx context.Context, path string, payload, out interface{}) error {
	return t.httpClient.PostJSON(ctx, path, payload, out)
}

// PutJSON forwards to HTTP client.
func (t *DefaultTransport) PutJSON(ctx context.Context, path string, payload, out interface{}) error {
	return t.httpClient.PutJSON(ctx, path, payload, out)
}

// StreamActivity opens an activity stream for wallet. The stream ends
// when ctx is cancelled or the server closes the connection.
func (t *DefaultTransport) StreamActivity(ctx context.Context, wallet string) (<-chan models.ActivityEvent, error) {
	ws := NewWSClient(ActivityURL(t.wsURL, wallet), t.pingInterval, t.logger)

	if err := ws.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect websocket: %w", err)
	}

	if err := ws.Subscribe(wallet); err != nil {
		ws.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	t.mu.Lock()
	t.streams = append(t.streams, ws)
	t.mu.Unlock()

	// Monitor errors in background
	go func() {
		for err := range ws.Errors() {
			t.logger.WithError(err).WithField("wallet", wallet).Error("WebSocket error")
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-ws.Done():
		}
		t.forget(ws)
	}()

	return ws.Events(), nil
}

// ActiveStreams returns the number of activity streams still open.
func (t *DefaultTransport) ActiveStreams() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

func (t *DefaultTransport) forget(ws *WSClient) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.streams {
		if s == ws {
			t.streams = append(t.streams[:i], t.streams[i+1:]...)
			return
		}
	}
}

// Close closes all connections.
func (t *DefaultTransport) Close() error {
	t.mu.Lock()
	streams := t.streams
	t.streams = nil
	t.mu.Unlock()

	var firstErr error
	for _, ws := range streams {
		if err := ws.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
