package message

import "errors"

// Domain-specific errors for message handling.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrQueueFull is returned when a message could not be admitted because
	// the queue stayed at capacity. The message has been dropped.
	ErrQueueFull = errors.New("message: queue full, message dropped")

	// ErrQueueClosed is returned by Put after Close, and by Take once the
	// queue is closed and empty.
	ErrQueueClosed = errors.New("message: queue closed")

	// ErrInvalidCapacity is returned when a queue is configured without
	// a positive capacity.
	ErrInvalidCapacity = errors.New("message: queue capacity must be positive")

	// ErrUnknownPolicy is returned when an overflow policy string is not recognised.
	ErrUnknownPolicy = errors.New("message: unknown overflow policy")

	// ErrUnknownNetworkType is returned when a network type string is not recognised.
	ErrUnknownNetworkType = errors.New("message: unknown network type")
)
