package redis

import (
	"errors"
	"net"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

// Domain-specific errors for Redis operations.
var (
	// ErrNotConnected is returned when publishing on a disconnected transport.
	ErrNotConnected = errors.New("redis: not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("redis: connection failed")

	// ErrSubscribeFailed is returned when channels cannot be subscribed.
	ErrSubscribeFailed = errors.New("redis: subscribe failed")

	// ErrPublishFailed is returned when PUBLISH fails.
	ErrPublishFailed = errors.New("redis: publish failed")

	// ErrHealthCheckFailed is reported as the loss cause when the server
	// stops answering pings.
	ErrHealthCheckFailed = errors.New("redis: health check failed")

	// ErrInvalidEndpoint is returned when a gateway endpoint cannot be used.
	ErrInvalidEndpoint = errors.New("redis: invalid endpoint")
)

// reasonCode derives a stable reason code from a go-redis error. Server
// errors use their prefix (NOAUTH, WRONGPASS, ERR...).
func reasonCode(err error) string {
	if err == nil {
		return ""
	}

	var rerr goredis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		if i := strings.IndexByte(msg, ' '); i > 0 {
			return msg[:i]
		}
		return msg
	}

	if errors.Is(err, goredis.ErrClosed) {
		return "closed"
	}
	if errors.Is(err, ErrHealthCheckFailed) {
		return "health_check"
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	return ""
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
