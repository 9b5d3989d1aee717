package gateway

import (
	"errors"
	"fmt"
)

// Domain-specific errors for gateway supervision.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectFailed is returned by Start when the first connection attempt fails.
	ErrConnectFailed = errors.New("gateway: connect failed")

	// ErrSupervisorStopped is returned when Start is called on a cancelled supervisor.
	ErrSupervisorStopped = errors.New("gateway: supervisor stopped")

	// ErrAlreadyConnected is returned when Start is called while connected or reconnecting.
	ErrAlreadyConnected = errors.New("gateway: already connected")

	// ErrNotConnected is returned when publishing through a disconnected gateway.
	ErrNotConnected = errors.New("gateway: not connected")

	// ErrGatewayNotFound is returned when a gateway ID is unknown.
	ErrGatewayNotFound = errors.New("gateway: not found")

	// ErrGatewayDisabled is returned when starting a disabled gateway.
	ErrGatewayDisabled = errors.New("gateway: disabled")

	// ErrInvalidGateway is returned when a gateway's static configuration is invalid.
	ErrInvalidGateway = errors.New("gateway: invalid configuration")

	// ErrUnsupportedNetwork is returned when no transport factory is
	// registered for a network type.
	ErrUnsupportedNetwork = errors.New("gateway: unsupported network type")

	// ErrManagerClosed is returned by Manager operations after Close.
	ErrManagerClosed = errors.New("gateway: manager closed")
)

// TransportError carries a transport-specific reason for a failed operation.
//
// Drivers wrap broker errors in a TransportError so supervisors can log a
// stable reason code without knowing the transport.
type TransportError struct {
	// Transport names the driver, e.g. "mqtt".
	Transport string

	// Op is the failed operation, e.g. "connect" or "publish".
	Op string

	// Code is the transport's reason code. Empty when the transport gives none.
	Code string

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s failed (reason %s): %v", e.Transport, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Transport, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ReasonCode extracts the transport reason code from err.
// It returns "unknown" when err carries no TransportError or no code.
func ReasonCode(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Code != "" {
		return te.Code
	}
	return "unknown"
}
