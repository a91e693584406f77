package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rollbackwallet/rollbackctl/internal/models"
)

var _ Transport = (*MockTransport)(nil)

// MockTransport provides a mock implementation for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration, keyed by "METHOD path"
	Responses map[string]interface{}
	Errors    map[string]error
	Events    map[string][]models.ActivityEvent

	// Error injection
	StreamError error

	// Request tracking
	Requests       []Request
	StreamRequests []string

	closed bool
}

// Request tracks one HTTP call.
type Request struct {
	Method  string
	Path    string
	Payload interface{}
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Responses: make(map[string]interface{}),
		Errors:    make(map[string]error),
		Events:    make(map[string][]models.ActivityEvent),
	}
}

func mockKey(method, path string) string {
	return method + " " + path
}

// GetJSON mocks HTTP GET.
func (m *MockTransport) GetJSON(ctx context.Context, path string, out interface{}) error {
	return m.do(http.MethodGet, path, nil, out)
}

// PostJSON mocks HTTP POST.
func (m *MockTransport) PostJSON(ctx context.Context, path string, payload, out interface{}) error {
	return m.do(http.MethodPost, path, payload, out)
}

// PutJSON mocks HTTP PUT.
func (m *MockTransport) PutJSON(ctx context.Context, path string, payload, out interface{}) error {
	return m.do(http.MethodPut, path, payload, out)
}

func (m *MockTransport) do(method, path string, payload, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, Request{Method: method, Path: path, Payload: payload})

	key := mockKey(method, path)
	if err, ok := m.Errors[key]; ok {
		return err
	}

	resp, ok := m.Responses[key]
	if !ok {
		return &models.APIError{
			StatusCode: http.StatusNotFound,
			Code:       models.ErrCodeNotFound,
			Message:    fmt.Sprintf("no mock response for %s", key),
		}
	}

	if out == nil {
		return nil
	}

	// Round-trip through JSON so callers see wire behaviour
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal mock response: %w", err)
	}
	return json.Unmarshal(data, out)
}

// StreamActivity replays the configured events for wallet and closes
// the channel.
func (m *MockTransport) StreamActivity(ctx context.Context, wallet string) (<-chan models.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet = models.NormalizeAddress(wallet)
	m.StreamRequests = append(m.StreamRequests, wallet)

	if m.StreamError != nil {
		return nil, m.StreamError
	}

	queued := m.Events[wallet]
	ch := make(chan models.ActivityEvent)

	go func() {
		defer close(ch)
		for _, ev := range queued {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Close mocks connection closing.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Helper methods for test setup

// AddResponse sets the response for method and path.
func (m *MockTransport) AddResponse(method, path string, response interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[mockKey(method, path)] = response
}

// AddError sets an error for method and path.
func (m *MockTransport) AddError(method, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[mockKey(method, path)] = err
}

// AddEvent queues an activity event for its wallet.
func (m *MockTransport) AddEvent(ev models.ActivityEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet := models.NormalizeAddress(ev.WalletAddress)
	m.Events[wallet] = append(m.Events[wallet], ev)
}

// LastRequest returns the most recent HTTP call.
func (m *MockTransport) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return Request{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
