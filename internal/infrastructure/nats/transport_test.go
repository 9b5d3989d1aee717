package nats

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// fakeConn implements conn in memory. Options passed to the dialer are
// applied to opts so tests can fire the registered callbacks.
type fakeConn struct {
	opts natsgo.Options

	mu        sync.Mutex
	open      bool
	subErr    error
	flushErr  error
	handlers  map[string]natsgo.MsgHandler
	queues    map[string]string
	published []string
	closes    int
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Subscribe(subj string, cb natsgo.MsgHandler) (*natsgo.Subscription, error) {
	return c.QueueSubscribe(subj, "", cb)
}

func (c *fakeConn) QueueSubscribe(subj, queue string, cb natsgo.MsgHandler) (*natsgo.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return nil, c.subErr
	}
	c.handlers[subj] = cb
	c.queues[subj] = queue
	return &natsgo.Subscription{Subject: subj, Queue: queue}, nil
}

func (c *fakeConn) Publish(subj string, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return natsgo.ErrConnectionClosed
	}
	c.published = append(c.published, subj)
	return nil
}

func (c *fakeConn) FlushWithContext(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("context requires a deadline")
	}
	return c.flushErr
}

// Close mirrors nats.go: closing a connected conn fires the disconnect callback.
func (c *fakeConn) Close() {
	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.closes++
	c.mu.Unlock()

	if wasOpen && c.opts.DisconnectedErrCB != nil {
		c.opts.DisconnectedErrCB(nil, nil)
	}
}

func (c *fakeConn) deliver(filter, subject, data string) {
	c.mu.Lock()
	h := c.handlers[filter]
	c.mu.Unlock()
	h(&natsgo.Msg{Subject: subject, Data: []byte(data)})
}

// drop simulates the server going away.
func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.opts.DisconnectedErrCB(nil, err)
}

type recordingListener struct {
	mu        sync.Mutex
	lost      []error
	messages  []string
	delivered []gateway.DeliveryToken
}

func (l *recordingListener) OnConnectionLost(cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lost = append(l.lost, cause)
}

func (l *recordingListener) OnMessageArrived(subData string, payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, subData+"="+string(payload))
}

func (l *recordingListener) OnDeliveryConfirmed(token gateway.DeliveryToken) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delivered = append(l.delivered, token)
}

func testGateway(opts map[string]string) *gateway.Gateway {
	return gateway.NewGateway(3, "events", message.NetworkNATS, gateway.Endpoint{
		URL:       "nats://127.0.0.1:4222",
		Subscribe: []string{"home.>", "meter.*.power"},
		Publish:   "cmd.out",
		Options:   opts,
	})
}

type dialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	err     error
	prepare func(*fakeConn)
}

func (d *dialer) dial(_ string, opts ...natsgo.Option) (conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{
		opts:     natsgo.GetDefaultOptions(),
		open:     true,
		handlers: make(map[string]natsgo.MsgHandler),
		queues:   make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(&c.opts); err != nil {
			return nil, err
		}
	}
	if d.prepare != nil {
		d.prepare(c)
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func newFakeTransport(t *testing.T, opts map[string]string) (*Transport, *dialer, *recordingListener) {
	t.Helper()
	tr, err := New(testGateway(opts), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d := &dialer{}
	tr.dial = d.dial
	l := &recordingListener{}
	tr.RegisterListener(l)
	return tr, d, l
}

func TestTransport_ConnectAndReceive(t *testing.T) {
	tr, d, l := newFakeTransport(t, nil)

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !tr.IsConnected() {
		t.Fatal("IsConnected() = false after Connect()")
	}

	c := d.conns[0]
	if c.opts.AllowReconnect {
		t.Error("AllowReconnect = true, want NoReconnect by default")
	}
	if !strings.HasPrefix(c.opts.Name, "graylogic-gw-3-") {
		t.Errorf("Name = %q, want graylogic-gw-3- prefix", c.opts.Name)
	}

	c.deliver("home.>", "home.kitchen.temp", "21.5")
	c.deliver("meter.*.power", "meter.a.power", "120")

	want := "home.kitchen.temp=21.5,meter.a.power=120"
	if got := strings.Join(l.messages, ","); got != want {
		t.Errorf("messages = %q, want %q", got, want)
	}
}

func TestTransport_QueueGroupAndAuth(t *testing.T) {
	tr, d, _ := newFakeTransport(t, map[string]string{OptQueueGroup: "ingest", OptAutoReconnect: "true"})
	tr.settings.username = "gw"
	tr.settings.password = "secret"

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	c := d.conns[0]
	if c.queues["home.>"] != "ingest" {
		t.Errorf("queue for home.> = %q, want ingest", c.queues["home.>"])
	}
	if !c.opts.AllowReconnect {
		t.Error("AllowReconnect = false with auto_reconnect=true")
	}
	if c.opts.User != "gw" || c.opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want gw/secret", c.opts.User, c.opts.Password)
	}
}

func TestTransport_ConnectFailure(t *testing.T) {
	tr, d, _ := newFakeTransport(t, nil)
	d.err = natsgo.ErrAuthorization

	err := tr.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) || !errors.Is(err, natsgo.ErrAuthorization) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed wrapping ErrAuthorization", err)
	}
	if got := gateway.ReasonCode(err); got != "authorization" {
		t.Errorf("ReasonCode() = %q, want authorization", got)
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after failed Connect()")
	}
}

func TestTransport_ConnectCancelled(t *testing.T) {
	tr, _, _ := newFakeTransport(t, nil)
	release := make(chan struct{})
	tr.dial = func(string, ...natsgo.Option) (conn, error) {
		<-release
		return nil, natsgo.ErrNoServers
	}
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tr.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestTransport_SubscribeFailureClosesConn(t *testing.T) {
	tr, d, _ := newFakeTransport(t, nil)
	d.prepare = func(c *fakeConn) { c.subErr = natsgo.ErrBadSubject }

	err := tr.Connect(context.Background())
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Connect() error = %v, want ErrSubscribeFailed", err)
	}
	if d.conns[0].closes != 1 {
		t.Errorf("closes = %d, want 1", d.conns[0].closes)
	}
}

func TestTransport_ConnectionLost(t *testing.T) {
	tr, d, l := newFakeTransport(t, nil)

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	d.conns[0].drop(natsgo.ErrStaleConnection)
	d.conns[0].drop(natsgo.ErrStaleConnection)

	if len(l.lost) != 1 {
		t.Fatalf("lost = %d, want 1", len(l.lost))
	}
	if got := gateway.ReasonCode(l.lost[0]); got != "stale_connection" {
		t.Errorf("ReasonCode(cause) = %q, want stale_connection", got)
	}

	// A new connection ignores callbacks from the old one.
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	d.conns[0].opts.DisconnectedErrCB(nil, errors.New("late"))
	if len(l.lost) != 1 {
		t.Errorf("stale callback reported loss, lost = %d", len(l.lost))
	}
	if !tr.IsConnected() {
		t.Error("IsConnected() = false after reconnect")
	}
}

func TestTransport_DropDuringConnectLeavesTransportDown(t *testing.T) {
	tr, d, l := newFakeTransport(t, nil)
	d.prepare = func(c *fakeConn) { c.drop(natsgo.ErrStaleConnection) }

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after the connection dropped during Connect")
	}
	if len(l.lost) != 0 {
		t.Errorf("lost = %d, want 0 before the connection was established", len(l.lost))
	}
}

func TestTransport_DisconnectDoesNotReportLoss(t *testing.T) {
	tr, _, l := newFakeTransport(t, nil)
	tr.Disconnect()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	tr.Disconnect()

	if len(l.lost) != 0 {
		t.Errorf("lost = %d, want 0", len(l.lost))
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after Disconnect()")
	}
}

func TestTransport_Publish(t *testing.T) {
	tr, d, l := newFakeTransport(t, nil)

	if err := tr.Publish(context.Background(), "cmd.out", []byte("on")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() before Connect error = %v, want ErrNotConnected", err)
	}
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := tr.Publish(context.Background(), "cmd.out", []byte("on")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(l.delivered) != 1 || l.delivered[0].Topics[0] != "cmd.out" || string(l.delivered[0].Payload) != "on" {
		t.Errorf("delivered = %+v", l.delivered)
	}
	if l.delivered[0].MessageID == "" {
		t.Error("delivery MessageID is empty")
	}

	d.conns[0].flushErr = natsgo.ErrTimeout
	err := tr.Publish(context.Background(), "cmd.out", []byte("off"))
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
	if got := gateway.ReasonCode(err); got != "timeout" {
		t.Errorf("ReasonCode() = %q, want timeout", got)
	}
	if len(l.delivered) != 1 {
		t.Errorf("unconfirmed publish was reported as delivered")
	}

	if err := tr.Publish(context.Background(), "cmd.*", nil); !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("Publish(wildcard) error = %v, want ErrInvalidSubject", err)
	}
}

func TestValidateSubject(t *testing.T) {
	tests := []struct {
		subject   string
		wildcards bool
		wantErr   bool
	}{
		{"home.kitchen.temp", false, false},
		{"home.*.temp", true, false},
		{"home.>", true, false},
		{"home.*.temp", false, true},
		{"home.>.temp", true, true},
		{"home..temp", true, true},
		{"home.te*mp", true, true},
		{"home kitchen", true, true},
		{"", true, true},
	}
	for _, tt := range tests {
		err := ValidateSubject(tt.subject, tt.wildcards)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSubject(%q, %v) error = %v, wantErr %v", tt.subject, tt.wildcards, err, tt.wantErr)
		}
	}
}

func TestNew_InvalidEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*gateway.Gateway)
	}{
		{"missing url", func(g *gateway.Gateway) { g.Endpoint.URL = " " }},
		{"bad subject", func(g *gateway.Gateway) { g.Endpoint.Subscribe = []string{"a..b"} }},
		{"wildcard publish", func(g *gateway.Gateway) { g.Endpoint.Publish = "cmd.>" }},
		{"bad ping", func(g *gateway.Gateway) { g.Endpoint.Options = map[string]string{OptPingInterval: "x"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := testGateway(nil)
			tt.mutate(gw)
			if _, err := New(gw, nil); !errors.Is(err, ErrInvalidEndpoint) && !errors.Is(err, ErrInvalidSubject) {
				t.Errorf("New() error = %v, want invalid endpoint or subject", err)
			}
		})
	}
}
