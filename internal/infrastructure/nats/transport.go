package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
)

const transportName = "nats"

// defaultFlushTimeout bounds the publish confirmation round trip when the
// caller's context has no deadline.
const defaultFlushTimeout = 5 * time.Second

// conn is the subset of *nats.Conn the transport uses.
type conn interface {
	IsConnected() bool
	Subscribe(subj string, cb natsgo.MsgHandler) (*natsgo.Subscription, error)
	QueueSubscribe(subj, queue string, cb natsgo.MsgHandler) (*natsgo.Subscription, error)
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

type dialFunc func(url string, opts ...natsgo.Option) (conn, error)

func dialNATS(url string, opts ...natsgo.Option) (conn, error) {
	nc, err := natsgo.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return nc, nil
}

// Transport is a gateway.Transport backed by nats.go core pub/sub.
//
// Reconnection is left to the gateway supervisor: connections are opened
// with nats.NoReconnect unless the endpoint sets auto_reconnect=true.
// Publishes are confirmed with a flush round trip, after which the
// listener's OnDeliveryConfirmed is called.
type Transport struct {
	settings  settings
	gatewayID int64
	logger    gateway.Logger
	dial      dialFunc

	mu        sync.RWMutex
	conn      conn
	gen       uint64
	listener  gateway.Listener
	connected bool
}

// New creates a NATS transport for gw. It does not connect.
func New(gw *gateway.Gateway, logger gateway.Logger) (*Transport, error) {
	s, err := parseSettings(gw)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Transport{
		settings:  s,
		gatewayID: gw.ID,
		logger:    logger,
		dial:      dialNATS,
	}, nil
}

// Factory adapts New to gateway.Factory.
func Factory(gw *gateway.Gateway, logger gateway.Logger) (gateway.Transport, error) {
	return New(gw, logger)
}

// Name implements gateway.Transport.
func (t *Transport) Name() string {
	return transportName
}

// RegisterListener implements gateway.Transport.
func (t *Transport) RegisterListener(l gateway.Listener) {
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()
}

func (t *Transport) getListener() gateway.Listener {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.listener
}

type dialResult struct {
	conn conn
	err  error
}

// Connect dials the server and subscribes to the endpoint's subjects.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return t.opError("connect", err)
	}

	t.mu.Lock()
	if t.conn != nil && t.connected && t.conn.IsConnected() {
		t.mu.Unlock()
		return nil
	}
	old := t.conn
	t.conn = nil
	t.connected = false
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	if old != nil {
		old.Close()
	}

	opts := buildConnectionOptions(t.settings, t, gen)
	done := make(chan dialResult, 1)
	go func() {
		c, err := t.dial(t.settings.url, opts...)
		done <- dialResult{conn: c, err: err}
	}()

	var c conn
	select {
	case r := <-done:
		if r.err != nil {
			return t.opError("connect", fmt.Errorf("%w: %w", ErrConnectionFailed, r.err))
		}
		c = r.conn
	case <-ctx.Done():
		// Close whatever the dial eventually produces.
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return t.opError("connect", ctx.Err())
	}

	if err := t.subscribeAll(c); err != nil {
		c.Close()
		return err
	}

	t.mu.Lock()
	if t.gen != gen {
		// Superseded by Disconnect or another Connect.
		t.mu.Unlock()
		c.Close()
		return t.opError("connect", context.Canceled)
	}
	t.conn = c
	// A disconnect that fired before this point was not reported; leave
	// the transport down so the caller notices.
	t.connected = c.IsConnected()
	t.mu.Unlock()

	t.logger.Debug("nats connected",
		"gateway_id", t.gatewayID,
		"url", t.settings.url,
		"subjects", len(t.settings.subjects),
	)
	return nil
}

func (t *Transport) subscribeAll(c conn) error {
	for _, subj := range t.settings.subjects {
		var err error
		if t.settings.queueGroup != "" {
			_, err = c.QueueSubscribe(subj, t.settings.queueGroup, t.handleMessage)
		} else {
			_, err = c.Subscribe(subj, t.handleMessage)
		}
		if err != nil {
			return t.opError("subscribe", fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, subj, err))
		}
	}
	return nil
}

// IsConnected implements gateway.Transport.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn != nil && t.connected && t.conn.IsConnected()
}

// Disconnect closes the connection without reporting a loss.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	c := t.conn
	t.conn = nil
	t.connected = false
	t.gen++
	t.mu.Unlock()

	if c != nil {
		c.Close()
	}
}

// Publish sends payload on subject and waits for the server round trip.
func (t *Transport) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ValidateSubject(subject, false); err != nil {
		return err
	}

	t.mu.RLock()
	c := t.conn
	t.mu.RUnlock()
	if !t.IsConnected() {
		return ErrNotConnected
	}

	if err := c.Publish(subject, payload); err != nil {
		return t.opError("publish", fmt.Errorf("%w: %w", ErrPublishFailed, err))
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFlushTimeout)
		defer cancel()
	}
	if err := c.FlushWithContext(ctx); err != nil {
		return t.opError("publish", fmt.Errorf("%w: %w", ErrPublishFailed, err))
	}

	if l := t.getListener(); l != nil {
		l.OnDeliveryConfirmed(gateway.DeliveryToken{
			MessageID: uuid.NewString(),
			Topics:    []string{subject},
			Payload:   append([]byte(nil), payload...),
		})
	}
	return nil
}

func (t *Transport) handleMessage(m *natsgo.Msg) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("NATS handler panic recovered",
				"gateway_id", t.gatewayID,
				"subject", m.Subject,
				"panic", r,
			)
		}
	}()

	if l := t.getListener(); l != nil {
		l.OnMessageArrived(m.Subject, m.Data)
	}
}

// handleDisconnect reports an unexpected drop of the current connection.
func (t *Transport) handleDisconnect(gen uint64, err error) {
	t.mu.Lock()
	if gen != t.gen || !t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = false
	l := t.listener
	t.mu.Unlock()

	if l == nil {
		return
	}
	var cause error
	if err != nil {
		cause = t.opError("connection", err)
	}
	l.OnConnectionLost(cause)
}

func (t *Transport) handleReconnect(gen uint64) {
	t.mu.Lock()
	if gen == t.gen && t.conn != nil {
		t.connected = true
	}
	t.mu.Unlock()
}

func (t *Transport) handleAsyncError(_ *natsgo.Conn, sub *natsgo.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	t.logger.Warn("nats async error",
		"gateway_id", t.gatewayID,
		"subject", subject,
		"error", err,
	)
}

func (t *Transport) opError(op string, err error) error {
	return &gateway.TransportError{Transport: transportName, Op: op, Code: reasonCode(err), Err: err}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

var _ gateway.Transport = (*Transport)(nil)
