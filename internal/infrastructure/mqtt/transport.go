package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
)

// transportName identifies this driver in logs and TransportError values.
const transportName = "mqtt"

// Maximum payload size for outbound MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// failedSubscription is the SUBACK return code for a rejected filter.
const failedSubscription = 0x80

// Transport is a gateway.Transport backed by paho.mqtt.golang.
//
// Each Connect builds a fresh paho client so a half-open session from an
// earlier attempt never leaks into the next one. Paho's own reconnect is
// disabled unless the endpoint sets auto_reconnect=true; the gateway
// supervisor retries instead.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Transport struct {
	settings  settings
	gatewayID int64
	logger    gateway.Logger

	// newClient is swapped out in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	mu        sync.RWMutex
	client    pahomqtt.Client
	listener  gateway.Listener
	connected bool
	lost      bool
}

// New creates an MQTT transport for gw. It does not connect.
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
		newClient: pahomqtt.NewClient,
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

// Connect opens a session to the broker and subscribes to the endpoint's
// topic filters. It returns early with ctx's error when ctx is cancelled.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return t.opError("connect", "", err)
	}

	t.mu.Lock()
	if t.client != nil && t.connected && t.client.IsConnectionOpen() {
		t.mu.Unlock()
		return nil
	}
	old := t.client
	client := t.newClient(buildClientOptions(t.settings, t))
	t.client = client
	t.connected = false
	t.lost = false
	t.mu.Unlock()

	if old != nil {
		old.Disconnect(0)
	}

	token := client.Connect()
	if err := waitToken(ctx, token); err != nil {
		client.Disconnect(0)
		return t.opError("connect", connectReturnCode(token), err)
	}
	if err := token.Error(); err != nil {
		return t.opError("connect", connectReturnCode(token), fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}

	if err := t.subscribeAll(ctx, client); err != nil {
		client.Disconnect(0)
		return err
	}

	t.mu.Lock()
	// A concurrent Disconnect or a newer Connect wins. A session that was
	// lost while subscribing stays down so callers see IsConnected false.
	if t.client == client && !t.lost {
		t.connected = true
	}
	t.mu.Unlock()

	t.logger.Debug("mqtt connected",
		"gateway_id", t.gatewayID,
		"broker", t.settings.broker,
		"client_id", t.settings.clientID,
	)
	return nil
}

// IsConnected implements gateway.Transport. It reports an open session,
// not a reconnecting one.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client != nil && t.connected && t.client.IsConnectionOpen()
}

// Disconnect closes the session. It never fires OnConnectionLost.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	client := t.client
	t.connected = false
	t.mu.Unlock()

	if client != nil {
		client.Disconnect(defaultDisconnectQuiesce)
	}
}

// handleConnect runs on paho's goroutine after every successful
// connection, including automatic reconnects.
func (t *Transport) handleConnect() {
	t.mu.Lock()
	client := t.client
	resubscribe := t.lost && t.settings.autoReconnect
	t.lost = false
	t.connected = true
	t.mu.Unlock()

	if resubscribe && client != nil {
		if err := t.subscribeAll(context.Background(), client); err != nil {
			t.logger.Warn("mqtt resubscribe after reconnect failed",
				"gateway_id", t.gatewayID,
				"error", err,
			)
		}
	}
}

// handleConnectionLost forwards an unexpected drop to the listener once
// per established session.
func (t *Transport) handleConnectionLost(cause error) {
	t.mu.Lock()
	wasConnected := t.connected
	t.connected = false
	t.lost = true
	l := t.listener
	t.mu.Unlock()

	if !wasConnected || l == nil {
		return
	}
	l.OnConnectionLost(cause)
}

// Publish sends payload to topic with the endpoint's QoS and confirms
// delivery to the listener once the broker acknowledges it.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ValidatePublishTopic(topic); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()
	if !t.IsConnected() {
		return ErrNotConnected
	}

	token := client.Publish(topic, t.settings.qos, t.settings.retained, payload)
	if err := waitToken(ctx, token); err != nil {
		return t.opError("publish", "", err)
	}
	if err := token.Error(); err != nil {
		return t.opError("publish", "", fmt.Errorf("%w: %w", ErrPublishFailed, err))
	}

	if l := t.getListener(); l != nil {
		l.OnDeliveryConfirmed(gateway.DeliveryToken{
			MessageID: deliveryID(token, t.settings.qos),
			Topics:    []string{topic},
			Payload:   append([]byte(nil), payload...),
		})
	}
	return nil
}

func (t *Transport) subscribeAll(ctx context.Context, client pahomqtt.Client) error {
	for _, filter := range t.settings.subscribe {
		token := client.Subscribe(filter, t.settings.qos, t.handleMessage)

		waitCtx, cancel := context.WithTimeout(ctx, defaultOperationTimeout)
		err := waitToken(waitCtx, token)
		cancel()
		if err != nil {
			return t.opError("subscribe", "", fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err))
		}
		if err := token.Error(); err != nil {
			return t.opError("subscribe", "", fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err))
		}
		if code, rejected := subscribeRejected(token, filter); rejected {
			return t.opError("subscribe", strconv.Itoa(int(code)),
				fmt.Errorf("%w: %s: rejected by broker", ErrSubscribeFailed, filter))
		}
	}
	return nil
}

// handleMessage is the paho callback for every subscribed filter.
func (t *Transport) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("MQTT handler panic recovered",
				"gateway_id", t.gatewayID,
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	if l := t.getListener(); l != nil {
		l.OnMessageArrived(msg.Topic(), msg.Payload())
	}
}

func (t *Transport) opError(op, code string, err error) error {
	return &gateway.TransportError{Transport: transportName, Op: op, Code: code, Err: err}
}

// waitToken waits for token or ctx, whichever finishes first.
func waitToken(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connectReturnCode returns the CONNACK return code as a string, or "" when
// the token carries none.
func connectReturnCode(token pahomqtt.Token) string {
	rc, ok := token.(interface{ ReturnCode() byte })
	if !ok {
		return ""
	}
	select {
	case <-token.Done():
	default:
		return ""
	}
	return strconv.Itoa(int(rc.ReturnCode()))
}

func subscribeRejected(token pahomqtt.Token, filter string) (byte, bool) {
	st, ok := token.(interface{ Result() map[string]byte })
	if !ok {
		return 0, false
	}
	code, ok := st.Result()[filter]
	if ok && code == failedSubscription {
		return code, true
	}
	return 0, false
}

// deliveryID uses the packet id for QoS 1 and 2 publishes. QoS 0 has none,
// so a uuid stands in.
func deliveryID(token pahomqtt.Token, qos byte) string {
	if qos > 0 {
		if mt, ok := token.(interface{ MessageID() uint16 }); ok && mt.MessageID() != 0 {
			return strconv.Itoa(int(mt.MessageID()))
		}
	}
	return uuid.NewString()
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

var _ gateway.Transport = (*Transport)(nil)
