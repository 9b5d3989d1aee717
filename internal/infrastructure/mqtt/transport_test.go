package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

func testGateway(opts map[string]string) *gateway.Gateway {
	return gateway.NewGateway(7, "garden-broker", message.NetworkMQTT, gateway.Endpoint{
		URL:       "tcp://127.0.0.1:1883",
		Subscribe: []string{"sensor/#", "meter/+/power"},
		Publish:   "cmd/out",
		QoS:       1,
		Options:   opts,
	})
}

// newFakeTransport returns a transport whose paho clients are fakes. Each
// Connect appends the new client to *clients.
func newFakeTransport(t *testing.T, opts map[string]string, prepare func(*fakeClient)) (*Transport, *[]*fakeClient) {
	t.Helper()

	tr, err := New(testGateway(opts), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var clients []*fakeClient
	tr.newClient = func(o *pahomqtt.ClientOptions) pahomqtt.Client {
		c := &fakeClient{opts: o}
		if prepare != nil {
			prepare(c)
		}
		clients = append(clients, c)
		return c
	}
	return tr, &clients
}

func TestTransport_ConnectSubscribesAndReceives(t *testing.T) {
	tr, clients := newFakeTransport(t, nil, nil)
	l := &recordingListener{}
	tr.RegisterListener(l)

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !tr.IsConnected() {
		t.Fatal("IsConnected() = false after Connect()")
	}

	c := (*clients)[0]
	if len(c.handlers) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(c.handlers))
	}

	c.deliver("sensor/#", "sensor/1/temp", []byte("23.5"))
	c.deliver("meter/+/power", "meter/a/power", []byte("120"))

	want := []string{"sensor/1/temp=23.5", "meter/a/power=120"}
	if strings.Join(l.messages, ",") != strings.Join(want, ",") {
		t.Errorf("messages = %v, want %v", l.messages, want)
	}
}

func TestTransport_ClientOptions(t *testing.T) {
	tr, clients := newFakeTransport(t, map[string]string{OptKeepAlive: "15"}, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	r := (*clients)[0].OptionsReader()
	if r.AutoReconnect() {
		t.Error("AutoReconnect() = true, want false by default")
	}
	if r.KeepAlive() != 15*time.Second {
		t.Errorf("KeepAlive() = %v, want 15s", r.KeepAlive())
	}
	if !strings.HasPrefix(r.ClientID(), "graylogic-gw-7-") {
		t.Errorf("ClientID() = %q, want generated graylogic-gw-7- prefix", r.ClientID())
	}
	if got := r.Servers(); len(got) != 1 || got[0].Host != "127.0.0.1:1883" {
		t.Errorf("Servers() = %v, want 127.0.0.1:1883", got)
	}
}

func TestTransport_ConnectFailureCarriesReturnCode(t *testing.T) {
	tr, _ := newFakeTransport(t, nil, func(c *fakeClient) {
		tok := newToken(errors.New("not Authorized"))
		tok.returnCode = 5
		c.connectToken = tok
	})

	err := tr.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if got := gateway.ReasonCode(err); got != "5" {
		t.Errorf("ReasonCode() = %q, want %q", got, "5")
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after failed Connect()")
	}
}

func TestTransport_ConnectHonoursContext(t *testing.T) {
	tr, clients := newFakeTransport(t, nil, func(c *fakeClient) {
		c.connectToken = &pendingToken{}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tr.Connect(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Connect() error = %v, want context.DeadlineExceeded", err)
	}
	if (*clients)[0].disconnects != 1 {
		t.Errorf("abandoned client disconnects = %d, want 1", (*clients)[0].disconnects)
	}
}

func TestTransport_SubscribeRejected(t *testing.T) {
	tr, clients := newFakeTransport(t, nil, func(c *fakeClient) {
		c.rejected = map[string]bool{"meter/+/power": true}
	})

	err := tr.Connect(context.Background())
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Connect() error = %v, want ErrSubscribeFailed", err)
	}
	if got := gateway.ReasonCode(err); got != "128" {
		t.Errorf("ReasonCode() = %q, want 128", got)
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after rejected subscription")
	}
	if (*clients)[0].disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", (*clients)[0].disconnects)
	}
}

func TestTransport_ConnectionLostFiresOnce(t *testing.T) {
	tr, clients := newFakeTransport(t, nil, nil)
	l := &recordingListener{}
	tr.RegisterListener(l)

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	cause := errors.New("EOF")
	c := (*clients)[0]
	c.dropConnection(cause)
	c.dropConnection(cause)

	if len(l.lost) != 1 || !errors.Is(l.lost[0], cause) {
		t.Errorf("lost = %v, want exactly one %v", l.lost, cause)
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}

	// Reconnect builds a fresh client.
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	if len(*clients) != 2 {
		t.Errorf("clients built = %d, want 2", len(*clients))
	}
	if !tr.IsConnected() {
		t.Error("IsConnected() = false after reconnect")
	}
}

func TestTransport_LossWhileSubscribingLeavesTransportDown(t *testing.T) {
	cause := errors.New("EOF")
	tr, _ := newFakeTransport(t, nil, func(c *fakeClient) {
		c.fireOnConnect = true
		c.dropOnSubscribe = cause
	})
	l := &recordingListener{}
	tr.RegisterListener(l)

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after the session dropped during Connect")
	}
	if len(l.lost) != 1 || !errors.Is(l.lost[0], cause) {
		t.Errorf("lost = %v, want exactly one %v", l.lost, cause)
	}
}

func TestTransport_DisconnectDoesNotReportLoss(t *testing.T) {
	tr, clients := newFakeTransport(t, nil, nil)
	l := &recordingListener{}
	tr.RegisterListener(l)

	// Safe before any Connect.
	tr.Disconnect()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	tr.Disconnect()

	// A late lost callback after a deliberate disconnect is swallowed.
	(*clients)[0].opts.OnConnectionLost((*clients)[0], errors.New("late"))

	if len(l.lost) != 0 {
		t.Errorf("lost callbacks = %d, want 0", len(l.lost))
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after Disconnect()")
	}
}

func TestTransport_PublishConfirmsDelivery(t *testing.T) {
	tr, clients := newFakeTransport(t, nil, nil)
	l := &recordingListener{}
	tr.RegisterListener(l)

	if err := tr.Publish(context.Background(), "cmd/out", []byte("on")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() before Connect error = %v, want ErrNotConnected", err)
	}

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := tr.Publish(context.Background(), "cmd/out", []byte("on")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if got := (*clients)[0].published; len(got) != 1 || got[0] != "cmd/out" {
		t.Errorf("published = %v, want [cmd/out]", got)
	}
	if len(l.delivered) != 1 {
		t.Fatalf("delivered = %d, want 1", len(l.delivered))
	}
	d := l.delivered[0]
	if d.MessageID != "1" || string(d.Payload) != "on" || len(d.Topics) != 1 || d.Topics[0] != "cmd/out" {
		t.Errorf("delivery token = %+v", d)
	}
}

func TestTransport_PublishValidation(t *testing.T) {
	tr, _ := newFakeTransport(t, nil, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), ErrInvalidTopic},
		{"wildcard topic", "cmd/+", []byte("x"), ErrInvalidTopic},
		{"oversized payload", "cmd/out", make([]byte, maxPayloadSize+1), ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tr.Publish(context.Background(), tt.topic, tt.payload); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransport_HandlerPanicRecovered(t *testing.T) {
	tr, clients := newFakeTransport(t, nil, nil)
	tr.RegisterListener(&panicListener{})

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Must not propagate into paho's router goroutine.
	(*clients)[0].deliver("sensor/#", "sensor/1", []byte("x"))
}

type panicListener struct{ recordingListener }

func (*panicListener) OnMessageArrived(string, []byte) { panic("boom") }

func TestNew_InvalidEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*gateway.Gateway)
	}{
		{"missing url", func(g *gateway.Gateway) { g.Endpoint.URL = "" }},
		{"bad qos", func(g *gateway.Gateway) { g.Endpoint.QoS = 3 }},
		{"bad filter", func(g *gateway.Gateway) { g.Endpoint.Subscribe = []string{"a/#/b"} }},
		{"wildcard publish", func(g *gateway.Gateway) { g.Endpoint.Publish = "cmd/#" }},
		{"bad keepalive", func(g *gateway.Gateway) { g.Endpoint.Options = map[string]string{OptKeepAlive: "-1"} }},
		{"bad bool option", func(g *gateway.Gateway) { g.Endpoint.Options = map[string]string{OptAutoReconnect: "sometimes"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := testGateway(nil)
			tt.mutate(gw)
			if _, err := New(gw, nil); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestNew_SchemeDefaultsToTCP(t *testing.T) {
	gw := testGateway(nil)
	gw.Endpoint.URL = "broker.local:1883"

	tr, err := New(gw, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tr.settings.broker != "tcp://broker.local:1883" {
		t.Errorf("broker = %q, want tcp://broker.local:1883", tr.settings.broker)
	}
	if tr.Name() != "mqtt" {
		t.Errorf("Name() = %q, want mqtt", tr.Name())
	}
}
