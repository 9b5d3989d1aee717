package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
)

const transportName = "redis"

// Transport is a gateway.Transport backed by Redis pub/sub.
//
// Connect opens a client, subscribes (SUBSCRIBE for plain channels,
// PSUBSCRIBE for glob patterns) and starts a receive loop. The loop reports
// the first network failure as a lost connection and exits; go-redis's
// internal pub/sub reconnect is never exercised, so the gateway supervisor
// decides when to retry.
type Transport struct {
	settings  settings
	gatewayID int64
	logger    gateway.Logger

	mu        sync.RWMutex
	client    *goredis.Client
	pubsub    *goredis.PubSub
	cancel    context.CancelFunc
	gen       uint64
	listener  gateway.Listener
	connected bool
}

// New creates a Redis transport for gw. It does not connect.
func New(gw *gateway.Gateway, logger gateway.Logger) (*Transport, error) {
	s, err := parseSettings(gw)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Transport{settings: s, gatewayID: gw.ID, logger: logger}, nil
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

// Connect pings the server, subscribes and starts receiving.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return t.opError("connect", err)
	}

	t.mu.Lock()
	if t.client != nil && t.connected {
		t.mu.Unlock()
		return nil
	}
	t.gen++
	gen := t.gen
	t.releaseLocked()
	t.mu.Unlock()

	client := goredis.NewClient(t.settings.clientOptions())
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return t.opError("connect", fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}

	ps, err := t.subscribe(ctx, client)
	if err != nil {
		_ = client.Close()
		return err
	}

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		_ = ps.Close()
		_ = client.Close()
		return t.opError("connect", context.Canceled)
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	t.client = client
	t.pubsub = ps
	t.cancel = cancel
	t.connected = true
	go t.receiveLoop(loopCtx, gen, ps)
	t.mu.Unlock()

	t.logger.Debug("redis connected",
		"gateway_id", t.gatewayID,
		"addr", t.settings.options.Addr,
		"channels", len(t.settings.channels),
		"patterns", len(t.settings.patterns),
	)
	return nil
}

// subscribe issues SUBSCRIBE/PSUBSCRIBE and waits for every confirmation.
// Messages that race ahead of later confirmations are delivered.
func (t *Transport) subscribe(ctx context.Context, client *goredis.Client) (*goredis.PubSub, error) {
	ps := client.Subscribe(ctx)

	fail := func(err error) (*goredis.PubSub, error) {
		_ = ps.Close()
		return nil, t.opError("subscribe", fmt.Errorf("%w: %w", ErrSubscribeFailed, err))
	}

	if len(t.settings.channels) > 0 {
		if err := ps.Subscribe(ctx, t.settings.channels...); err != nil {
			return fail(err)
		}
	}
	if len(t.settings.patterns) > 0 {
		if err := ps.PSubscribe(ctx, t.settings.patterns...); err != nil {
			return fail(err)
		}
	}

	want := len(t.settings.channels) + len(t.settings.patterns)
	for confirmed := 0; confirmed < want; {
		msg, err := ps.Receive(ctx)
		if err != nil {
			return fail(err)
		}
		switch m := msg.(type) {
		case *goredis.Subscription:
			confirmed++
		case *goredis.Message:
			t.dispatch(m)
		}
	}
	return ps, nil
}

func (t *Transport) receiveLoop(ctx context.Context, gen uint64, ps *goredis.PubSub) {
	awaitingPong := false
	for {
		msg, err := ps.ReceiveTimeout(ctx, t.settings.healthInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isTimeout(err) && !awaitingPong {
				if err = ps.Ping(ctx); err == nil {
					awaitingPong = true
					continue
				}
			} else if isTimeout(err) {
				err = fmt.Errorf("%w: no reply within %v", ErrHealthCheckFailed, t.settings.healthInterval)
			}
			t.handleLost(gen, err)
			return
		}

		awaitingPong = false
		if m, ok := msg.(*goredis.Message); ok {
			t.dispatch(m)
		}
	}
}

func (t *Transport) dispatch(m *goredis.Message) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Redis handler panic recovered",
				"gateway_id", t.gatewayID,
				"channel", m.Channel,
				"panic", r,
			)
		}
	}()

	if l := t.getListener(); l != nil {
		l.OnMessageArrived(m.Channel, []byte(m.Payload))
	}
}

// handleLost reports the failure once and releases the connection.
func (t *Transport) handleLost(gen uint64, cause error) {
	t.mu.Lock()
	if gen != t.gen || !t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = false
	l := t.listener
	t.mu.Unlock()

	t.logger.Debug("redis receive loop stopped",
		"gateway_id", t.gatewayID,
		"error", cause,
	)
	if l != nil {
		l.OnConnectionLost(t.opError("receive", cause))
	}
}

// IsConnected implements gateway.Transport.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client != nil && t.connected
}

// Disconnect stops the receive loop and closes the client without
// reporting a loss.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.gen++
	t.releaseLocked()
	t.mu.Unlock()
}

// releaseLocked tears down the current connection. Callers hold t.mu and
// have already bumped t.gen.
func (t *Transport) releaseLocked() {
	if t.cancel != nil {
		t.cancel()
	}
	if t.pubsub != nil {
		_ = t.pubsub.Close()
	}
	if t.client != nil {
		_ = t.client.Close()
	}
	t.client, t.pubsub, t.cancel = nil, nil, nil
	t.connected = false
}

// Publish sends payload to channel. Redis acknowledges PUBLISH with the
// receiver count, which is logged; zero receivers still counts as delivered.
func (t *Transport) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == "" {
		return fmt.Errorf("%w: channel cannot be empty", ErrPublishFailed)
	}

	t.mu.RLock()
	client := t.client
	connected := t.connected
	t.mu.RUnlock()
	if client == nil || !connected {
		return ErrNotConnected
	}

	receivers, err := client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return t.opError("publish", fmt.Errorf("%w: %w", ErrPublishFailed, err))
	}

	t.logger.Debug("redis publish acknowledged",
		"gateway_id", t.gatewayID,
		"channel", channel,
		"receivers", receivers,
	)

	if l := t.getListener(); l != nil {
		l.OnDeliveryConfirmed(gateway.DeliveryToken{
			MessageID: uuid.NewString(),
			Topics:    []string{channel},
			Payload:   append([]byte(nil), payload...),
		})
	}
	return nil
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
