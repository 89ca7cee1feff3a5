package chathub_test

import (
	"encoding/json"
	"roomchat/backend/internal/models"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// MockClient records every frame it is handed.
type MockClient struct {
	connID string

	mu     sync.Mutex
	frames []models.Frame
	closed bool
	full   bool
}

func newMockClient(connID string) *MockClient {
	return &MockClient{connID: connID}
}

func (c *MockClient) GetConnID() string { return c.connID }

func (c *MockClient) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.full {
		return false
	}
	f, err := models.DecodeFrame(frame)
	if err != nil {
		return false
	}
	c.frames = append(c.frames, f)
	return true
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *MockClient) setFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockClient) Frames() []models.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Frame(nil), c.frames...)
}

func (c *MockClient) Events() []string {
	var events []string
	for _, f := range c.Frames() {
		events = append(events, f.Event)
	}
	return events
}

func (c *MockClient) Count(event string) int {
	n := 0
	for _, f := range c.Frames() {
		if f.Event == event {
			n++
		}
	}
	return n
}

// Last returns the most recent frame of the given event.
func (c *MockClient) Last(event string) (models.Frame, bool) {
	frames := c.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == event {
			return frames[i], true
		}
	}
	return models.Frame{}, false
}

// Reset forgets the recorded frames.
func (c *MockClient) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func decodePayload[T any](t *testing.T, f models.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}

// lastPayload decodes the payload of the most recent frame of event.
func lastPayload[T any](t *testing.T, c *MockClient, event string) T {
	t.Helper()
	f, ok := c.Last(event)
	require.True(t, ok, "no %s frame received by %s", event, c.connID)
	return decodePayload[T](t, f)
}

// messagesOf decodes every message frame received by c.
func messagesOf(t *testing.T, c *MockClient) []models.ChatMessage {
	t.Helper()
	var out []models.ChatMessage
	for _, f := range c.Frames() {
		if f.Event == models.EventMessage {
			out = append(out, decodePayload[models.ChatMessage](t, f))
		}
	}
	return out
}
