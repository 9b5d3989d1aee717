package api

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// stubTransport always connects.
type stubTransport struct {
	mu        sync.Mutex
	connected bool
}

func (s *stubTransport) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *stubTransport) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubTransport) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

func (s *stubTransport) RegisterListener(gateway.Listener) {}

func (s *stubTransport) Publish(context.Context, string, []byte) error { return nil }

func (s *stubTransport) Name() string { return "stub" }

type enqueueFunc func(msg message.RawMessage) error

func (f enqueueFunc) Put(msg message.RawMessage) error { return f(msg) }
