package gateway

import (
	"context"
	"time"
)

// StatusSink receives gateway status transitions.
//
// PublishStatus is fire-and-forget: it is called while the supervisor holds
// its transition lock, so it must return quickly and must not call back
// into the supervisor.
type StatusSink interface {
	PublishStatus(t Transition)
}

// StatusSinkFunc adapts a function to StatusSink.
type StatusSinkFunc func(t Transition)

// PublishStatus implements StatusSink.
func (f StatusSinkFunc) PublishStatus(t Transition) { f(t) }

// MultiSink fans a transition out to several sinks in order.
type MultiSink []StatusSink

// PublishStatus implements StatusSink.
func (m MultiSink) PublishStatus(t Transition) {
	for _, s := range m {
		if s != nil {
			s.PublishStatus(t)
		}
	}
}

// LogSink writes transitions to a Logger. ERROR transitions are logged at
// error level, DOWN at warn and UP at info.
type LogSink struct {
	Logger Logger
}

// PublishStatus implements StatusSink.
func (s LogSink) PublishStatus(t Transition) {
	if s.Logger == nil {
		return
	}

	args := []any{
		"gateway_id", t.GatewayID,
		"gateway", t.GatewayName,
		"network", t.NetworkType,
		"previous", t.Previous,
		"status", t.Status,
		"message", t.Message,
	}

	switch t.Status {
	case StatusError:
		s.Logger.Error("gateway status", args...)
	case StatusDown:
		s.Logger.Warn("gateway status", args...)
	default:
		s.Logger.Info("gateway status", args...)
	}
}

// StatusWriter persists gateway status.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id int64, status Status, msg string, at time.Time) error
}

// defaultPersistTimeout bounds a single status write.
const defaultPersistTimeout = 2 * time.Second

// RepositorySink persists transitions so the admin view survives restarts.
// Write failures are logged and otherwise ignored.
type RepositorySink struct {
	Writer  StatusWriter
	Logger  Logger
	Timeout time.Duration
}

// PublishStatus implements StatusSink.
func (s RepositorySink) PublishStatus(t Transition) {
	if s.Writer == nil {
		return
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Writer.UpdateStatus(ctx, t.GatewayID, t.Status, t.Message, t.At); err != nil && s.Logger != nil {
		s.Logger.Warn("persisting gateway status failed",
			"gateway_id", t.GatewayID,
			"status", t.Status,
			"error", err,
		)
	}
}
