package nats

import (
	"errors"

	natsgo "github.com/nats-io/nats.go"
)

// Domain-specific errors for NATS operations.
var (
	// ErrNotConnected is returned when publishing on a disconnected transport.
	ErrNotConnected = errors.New("nats: not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("nats: connection failed")

	// ErrSubscribeFailed is returned when a subject cannot be subscribed.
	ErrSubscribeFailed = errors.New("nats: subscribe failed")

	// ErrPublishFailed is returned when a publish is not confirmed by the server.
	ErrPublishFailed = errors.New("nats: publish failed")

	// ErrInvalidSubject is returned for empty or malformed subjects.
	ErrInvalidSubject = errors.New("nats: invalid subject")

	// ErrInvalidEndpoint is returned when a gateway endpoint cannot be used.
	ErrInvalidEndpoint = errors.New("nats: invalid endpoint")
)

// reasonCode maps nats.go errors to stable reason codes.
func reasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, natsgo.ErrAuthorization), errors.Is(err, natsgo.ErrAuthExpired), errors.Is(err, natsgo.ErrAuthRevoked):
		return "authorization"
	case errors.Is(err, natsgo.ErrNoServers):
		return "no_servers"
	case errors.Is(err, natsgo.ErrTimeout):
		return "timeout"
	case errors.Is(err, natsgo.ErrConnectionClosed):
		return "connection_closed"
	case errors.Is(err, natsgo.ErrStaleConnection):
		return "stale_connection"
	case errors.Is(err, natsgo.ErrMaxPayload):
		return "max_payload"
	case errors.Is(err, natsgo.ErrBadSubject):
		return "bad_subject"
	default:
		return ""
	}
}
