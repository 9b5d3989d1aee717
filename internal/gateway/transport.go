package gateway

import "context"

// Listener receives events from a transport client. Implementations must
// not block for long and must never panic back into the transport.
type Listener interface {
	// OnConnectionLost is called once when an established connection drops.
	OnConnectionLost(cause error)

	// OnMessageArrived is called for every inbound payload. subData is the
	// routing key it arrived on. payload may be reused by the transport
	// after the call returns.
	OnMessageArrived(subData string, payload []byte)

	// OnDeliveryConfirmed is called when the broker acknowledges an
	// outbound publish.
	OnDeliveryConfirmed(token DeliveryToken)
}

// DeliveryToken describes an acknowledged outbound message.
type DeliveryToken struct {
	MessageID string
	Topics    []string
	Payload   []byte
}

// Transport is a client for one external message transport.
//
// Connect must return promptly when ctx is cancelled. IsConnected is the
// source of truth for connectivity and may be called from any goroutine.
// Disconnect must be safe on a transport that never connected and must
// not invoke OnConnectionLost.
type Transport interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Disconnect()
	RegisterListener(l Listener)
	Publish(ctx context.Context, subData string, payload []byte) error
	Name() string
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Factory builds a transport for a gateway.
type Factory func(gw *Gateway, logger Logger) (Transport, error)
