package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// Supervisor defaults.
const (
	DefaultReconnectWait = 5 * time.Second
	DefaultPollTick      = 100 * time.Millisecond
)

// Status messages published by the supervisor.
const (
	msgConnected      = "Connected"
	msgConnectionLost = "ERROR: Connection lost!"
	msgReconnected    = "Reconnected successfully..."
	msgRestored       = "Connection restored"
	msgStopped        = "Stopped"
)

// SupervisorConfig tunes the reconnect loop.
type SupervisorConfig struct {
	// ReconnectWait is the pause between reconnect attempts.
	ReconnectWait time.Duration

	// PollTick is how often the transport's connectivity is polled during
	// the wait, so a transport that reconnects on its own ends the wait early.
	PollTick time.Duration
}

// DefaultSupervisorConfig returns the default reconnect timings.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		ReconnectWait: DefaultReconnectWait,
		PollTick:      DefaultPollTick,
	}
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = DefaultReconnectWait
	}
	if c.PollTick <= 0 {
		c.PollTick = DefaultPollTick
	}
	if c.PollTick > c.ReconnectWait {
		c.PollTick = c.ReconnectWait
	}
	return c
}

// Enqueuer accepts inbound messages for ingestion.
type Enqueuer interface {
	Put(msg message.RawMessage) error
}

// SupervisorOptions holds the collaborators for a Supervisor.
type SupervisorOptions struct {
	// Gateway is the supervised gateway. Required.
	Gateway *Gateway

	// Transport is the gateway's transport client. Required.
	Transport Transport

	// Queue receives inbound messages. Required.
	Queue Enqueuer

	// Sink receives status transitions. Optional.
	Sink StatusSink

	// Logger defaults to a no-op logger.
	Logger Logger

	// Metrics is optional.
	Metrics *Metrics

	Config SupervisorConfig
}

// Supervisor owns the connection lifecycle of one gateway: the first
// connect, detection of connection loss, and the reconnect loop.
//
// At most one reconnect loop runs at a time. All status writes and sink
// publishes happen under a single transition lock, so sinks observe a
// gateway's transitions in order.
type Supervisor struct {
	gw        *Gateway
	transport Transport
	sink      StatusSink
	logger    Logger
	metrics   *Metrics
	cfg       SupervisorConfig
	adapter   *Adapter

	// ctx is the reconnect-enabled token. Cancelling it disables reconnects
	// for the lifetime of the supervisor.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex // transition lock; guards state, looping and lostDuringConnect
	state   State
	looping bool

	// lostDuringConnect holds a loss reported while Start was still
	// connecting. Start replays it once Connect returns.
	lostDuringConnect bool
	lostCause         error

	attempts atomic.Int64
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSupervisor creates a supervisor for one gateway.
//
// Parameters:
//   - opts: Gateway, transport, queue and optional sink, logger, metrics
//
// Returns:
//   - *Supervisor: Ready to Start
//   - error: If a required collaborator is missing
func NewSupervisor(opts SupervisorOptions) (*Supervisor, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("%w: gateway is required", ErrInvalidGateway)
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidGateway)
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("%w: queue is required", ErrInvalidGateway)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = MultiSink(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Supervisor{
		gw:        opts.Gateway,
		transport: opts.Transport,
		sink:      sink,
		logger:    logger,
		metrics:   opts.Metrics,
		cfg:       opts.Config.withDefaults(),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateDisconnected,
	}
	s.adapter = newAdapter(s, opts.Queue)
	return s, nil
}

// Start registers the listener and makes the first connection attempt.
//
// On success the gateway goes UP. On failure it goes to ERROR with the
// cause and the error is returned wrapping ErrConnectFailed; there is no
// automatic retry, an administrator must call Start again.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrSupervisorStopped
	}
	if s.state == StateConnected || s.state == StateConnecting || s.looping {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.lostDuringConnect = false
	s.lostCause = nil
	s.mu.Unlock()

	s.logger.Info("connecting gateway",
		"gateway_id", s.gw.ID,
		"gateway", s.gw.Name,
		"transport", s.transport.Name(),
	)

	s.transport.RegisterListener(s.adapter)
	err := s.transport.Connect(ctx)

	s.mu.Lock()
	if err != nil && s.ctx.Err() != nil {
		s.state = StateDisconnected
		s.mu.Unlock()
		return ErrSupervisorStopped
	}
	if err != nil {
		s.state = StateDisconnected
		s.transitionLocked(StatusError, err.Error())
		s.mu.Unlock()

		s.logger.Error("gateway connect failed",
			"gateway_id", s.gw.ID,
			"reason", ReasonCode(err),
			"error", err,
		)
		return fmt.Errorf("%w: gateway %d (%s): %w", ErrConnectFailed, s.gw.ID, s.gw.Name, err)
	}

	if s.ctx.Err() != nil {
		// Stopped while connecting; Stop owns the final status.
		s.state = StateDisconnected
		s.mu.Unlock()
		s.transport.Disconnect()
		return ErrSupervisorStopped
	}

	if s.lostDuringConnect || !s.transport.IsConnected() {
		// The session dropped before we could report it UP.
		cause := s.lostCause
		s.lostDuringConnect = false
		s.lostCause = nil
		s.logger.Warn("gateway connection dropped during connect",
			"gateway_id", s.gw.ID,
			"reason", ReasonCode(cause),
		)
		s.beginReconnectLocked(cause)
		s.mu.Unlock()
		return nil
	}

	s.state = StateConnected
	s.transitionLocked(StatusUp, msgConnected)
	s.mu.Unlock()
	return nil
}

// HandleConnectionLost reacts to a dropped connection by setting the
// gateway DOWN and starting the reconnect loop on its own goroutine.
//
// It returns immediately. Calls while a loop is already running, after
// Cancel, or while the gateway is not connected are ignored.
func (s *Supervisor) HandleConnectionLost(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() == nil && s.state == StateConnecting {
		s.lostDuringConnect = true
		s.lostCause = cause
		return
	}

	if s.ctx.Err() != nil || s.looping || s.state != StateConnected {
		s.logger.Debug("connection lost event ignored",
			"gateway_id", s.gw.ID,
			"state", s.state.String(),
			"looping", s.looping,
		)
		return
	}

	s.beginReconnectLocked(cause)
}

// beginReconnectLocked sets the gateway DOWN and launches the reconnect
// loop. Callers must hold s.mu.
func (s *Supervisor) beginReconnectLocked(cause error) {
	text := msgConnectionLost
	if cause != nil {
		text = msgConnectionLost + " " + cause.Error()
	}

	s.looping = true
	s.state = StateReconnectLoop
	s.transitionLocked(StatusDown, text)

	s.wg.Add(1)
	go s.reconnectLoop()
}

// reconnectLoop retries until the transport is connected or reconnects are
// disabled. Per-attempt errors are logged and never escape.
func (s *Supervisor) reconnectLoop() {
	defer s.wg.Done()

	s.logger.Info("reconnect loop started", "gateway_id", s.gw.ID, "wait", s.cfg.ReconnectWait)

	for {
		if s.ctx.Err() != nil {
			s.exitCancelled()
			return
		}

		if s.transport.IsConnected() {
			if s.exitConnected(msgRestored) {
				return
			}
		}

		attempt := s.attempts.Add(1)
		s.transport.RegisterListener(s.adapter)
		err := s.transport.Connect(s.ctx)
		s.metrics.recordAttempt(s.gw, err == nil)

		if err == nil {
			s.logger.Info("reconnect attempt succeeded", "gateway_id", s.gw.ID, "attempt", attempt)
			if s.exitConnected(msgReconnected) {
				return
			}
		} else if !errors.Is(err, context.Canceled) {
			s.logger.Warn("reconnect attempt failed",
				"gateway_id", s.gw.ID,
				"attempt", attempt,
				"reason", ReasonCode(err),
				"error", err,
			)
		}

		if !s.wait() {
			s.exitCancelled()
			return
		}
	}
}

// wait pauses for ReconnectWait. It returns false when reconnects were
// disabled during the wait, and true early if the transport reports
// itself connected.
func (s *Supervisor) wait() bool {
	timer := time.NewTimer(s.cfg.ReconnectWait)
	defer timer.Stop()
	ticker := time.NewTicker(s.cfg.PollTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-ticker.C:
			if s.transport.IsConnected() {
				return true
			}
		}
	}
}

// exitConnected ends the loop with the gateway UP. It returns false if the
// transport dropped again before the transition could be made.
func (s *Supervisor) exitConnected(msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		s.looping = false
		s.state = StateDisconnected
		return true
	}
	if !s.transport.IsConnected() {
		return false
	}

	s.looping = false
	s.state = StateConnected
	s.transitionLocked(StatusUp, msg)
	return true
}

func (s *Supervisor) exitCancelled() {
	s.mu.Lock()
	s.looping = false
	s.state = StateDisconnected
	s.mu.Unlock()

	s.logger.Info("reconnect loop cancelled", "gateway_id", s.gw.ID, "attempts", s.attempts.Load())
}

// Cancel disables reconnection. An in-progress wait ends within one tick
// and no further attempt starts. Cancel is idempotent and safe from any
// goroutine; on a connected gateway it only prevents future reconnects.
func (s *Supervisor) Cancel() {
	s.cancel()
}

// Stop cancels reconnection, waits for the loop to exit, disconnects the
// transport and sets the gateway DOWN. The supervisor cannot be restarted.
func (s *Supervisor) Stop(ctx context.Context) error {
	var err error

	s.stopOnce.Do(func() {
		// Cancelling under the lock orders us after any HandleConnectionLost
		// that already registered its loop with wg.
		s.mu.Lock()
		s.cancel()
		s.mu.Unlock()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("waiting for reconnect loop: %w", ctx.Err())
		}

		s.transport.Disconnect()

		s.mu.Lock()
		s.state = StateDisconnected
		s.looping = false
		s.transitionLocked(StatusDown, msgStopped)
		s.mu.Unlock()

		s.logger.Info("gateway stopped", "gateway_id", s.gw.ID)
	})

	return err
}

// transitionLocked records a status change and publishes it.
// Callers must hold s.mu.
func (s *Supervisor) transitionLocked(status Status, msg string) {
	now := time.Now().UTC()
	prev := s.gw.SetStatus(status, msg, now)
	s.metrics.recordTransition(s.gw, status)

	t := Transition{
		GatewayID:   s.gw.ID,
		GatewayName: s.gw.Name,
		NetworkType: s.gw.NetworkType,
		Previous:    prev,
		Status:      status,
		Message:     msg,
		At:          now,
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("status sink panicked", "gateway_id", s.gw.ID, "panic", r)
		}
	}()
	s.sink.PublishStatus(t)
}

// Publish sends payload to subData through the gateway's transport.
// An empty subData uses the endpoint's default publish key.
func (s *Supervisor) Publish(ctx context.Context, subData string, payload []byte) error {
	if subData == "" {
		subData = s.gw.Endpoint.Publish
	}
	if !s.transport.IsConnected() {
		return fmt.Errorf("%w: gateway %d", ErrNotConnected, s.gw.ID)
	}
	return s.transport.Publish(ctx, subData, payload)
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Looping reports whether a reconnect loop is running.
func (s *Supervisor) Looping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.looping
}

// Attempts returns the total number of reconnect attempts made.
func (s *Supervisor) Attempts() int64 {
	return s.attempts.Load()
}

// Stopped reports whether reconnection has been disabled.
func (s *Supervisor) Stopped() bool {
	return s.ctx.Err() != nil
}

// Gateway returns the supervised gateway.
func (s *Supervisor) Gateway() *Gateway {
	return s.gw
}

// Listener returns the listener the supervisor registers on its transport.
func (s *Supervisor) Listener() Listener {
	return s.adapter
}
