package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// fakeTransport is a scriptable Transport. Each Connect consumes the next
// entry of connectErrs; when they run out, defaultErr is returned.
type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	listener     Listener
	connectErrs  []error
	defaultErr   error
	connectCalls int
	disconnects  int
	registers    int
	published    []fakePublish
	publishErr   error

	// afterConnect runs once a Connect succeeds, before it returns.
	afterConnect func(f *fakeTransport)
}

type fakePublish struct {
	subData string
	payload []byte
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connectCalls++
	err := f.defaultErr
	if len(f.connectErrs) > 0 {
		err = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	}
	if err == nil {
		f.connected = true
	}
	hook := f.afterConnect
	f.afterConnect = nil
	f.mu.Unlock()

	if err == nil && hook != nil {
		hook(f)
	}
	return err
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeTransport) RegisterListener(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers++
	f.listener = l
}

func (f *fakeTransport) Publish(_ context.Context, subData string, payload []byte) error {
	f.mu.Lock()
	if f.publishErr != nil {
		err := f.publishErr
		f.mu.Unlock()
		return err
	}
	f.published = append(f.published, fakePublish{subData: subData, payload: payload})
	l := f.listener
	n := len(f.published)
	f.mu.Unlock()

	if l != nil {
		l.OnDeliveryConfirmed(DeliveryToken{
			MessageID: fmt.Sprintf("%d", n),
			Topics:    []string{subData},
			Payload:   payload,
		})
	}
	return nil
}

func (f *fakeTransport) Name() string { return "fake" }

// drop simulates the broker going away.
func (f *fakeTransport) drop(cause error) {
	f.mu.Lock()
	f.connected = false
	l := f.listener
	f.mu.Unlock()

	if l != nil {
		l.OnConnectionLost(cause)
	}
}

// deliver simulates an inbound message.
func (f *fakeTransport) deliver(subData, payload string) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()

	if l != nil {
		l.OnMessageArrived(subData, []byte(payload))
	}
}

func (f *fakeTransport) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

// recordingSink keeps every transition it receives.
type recordingSink struct {
	mu          sync.Mutex
	transitions []Transition
}

func (s *recordingSink) PublishStatus(t Transition) {
	s.mu.Lock()
	s.transitions = append(s.transitions, t)
	s.mu.Unlock()
}

func (s *recordingSink) all() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transition(nil), s.transitions...)
}

func (s *recordingSink) count(status Status) int {
	n := 0
	for _, t := range s.all() {
		if t.Status == status {
			n++
		}
	}
	return n
}

// recordingLogger captures log messages by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) find(msg string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// arg returns the value logged under key.
func (e logEntry) arg(key string) any {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1]
		}
	}
	return nil
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}

type testRig struct {
	gw        *Gateway
	transport *fakeTransport
	sink      *recordingSink
	logger    *recordingLogger
	queue     *message.Queue
	sup       *Supervisor
}

func newTestRig(t *testing.T, cfg SupervisorConfig, transport *fakeTransport) *testRig {
	t.Helper()

	q, err := message.NewQueue(message.QueueConfig{Capacity: 100}, nil)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	rig := &testRig{
		gw: NewGateway(7, "garden-broker", message.NetworkMQTT, Endpoint{
			URL:       "tcp://localhost:1883",
			Subscribe: []string{"sensor/#"},
			Publish:   "cmd/out",
		}),
		transport: transport,
		sink:      &recordingSink{},
		logger:    &recordingLogger{},
		queue:     q,
	}

	rig.sup, err = NewSupervisor(SupervisorOptions{
		Gateway:   rig.gw,
		Transport: transport,
		Queue:     q,
		Sink:      rig.sink,
		Logger:    rig.logger,
		Config:    cfg,
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rig.sup.Stop(ctx)
	})
	return rig
}

func fastConfig() SupervisorConfig {
	return SupervisorConfig{ReconnectWait: 20 * time.Millisecond, PollTick: 5 * time.Millisecond}
}
