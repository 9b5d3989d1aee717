package mqtt

import (
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
)

// fakeToken is an already-completed paho token.
type fakeToken struct {
	err        error
	done       chan struct{}
	returnCode byte
	messageID  uint16
	granted    map[string]byte
}

func newToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) ReturnCode() byte               { return t.returnCode }
func (t *fakeToken) MessageID() uint16              { return t.messageID }
func (t *fakeToken) Result() map[string]byte        { return t.granted }

// pendingToken never completes.
type pendingToken struct{ fakeToken }

func (t *pendingToken) Done() <-chan struct{} { return make(chan struct{}) }

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// fakeClient implements pahomqtt.Client without a network.
type fakeClient struct {
	opts *pahomqtt.ClientOptions

	mu           sync.Mutex
	open         bool
	connectToken pahomqtt.Token
	subscribeErr error
	rejected     map[string]bool
	handlers     map[string]pahomqtt.MessageHandler
	published    []string
	disconnects  int

	// fireOnConnect runs the options' OnConnect handler the way paho does
	// once the session is up.
	fireOnConnect bool
	// dropOnSubscribe, when set, drops the session during the next Subscribe.
	dropOnSubscribe error
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	if c.connectToken != nil {
		tok := c.connectToken
		c.mu.Unlock()
		return tok
	}
	c.open = true
	fire := c.fireOnConnect
	c.mu.Unlock()

	if fire && c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return newToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, _ interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, topic)
	tok := newToken(nil)
	tok.messageID = uint16(len(c.published))
	return tok
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	if cause := c.dropOnSubscribe; cause != nil {
		c.dropOnSubscribe = nil
		c.mu.Unlock()
		c.dropConnection(cause)
		c.mu.Lock()
	}
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return newToken(c.subscribeErr)
	}
	tok := newToken(nil)
	tok.granted = map[string]byte{topic: 0}
	if c.rejected[topic] {
		tok.granted[topic] = failedSubscription
		return tok
	}
	if c.handlers == nil {
		c.handlers = make(map[string]pahomqtt.MessageHandler)
	}
	c.handlers[topic] = cb
	return tok
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return newToken(errors.New("not supported"))
}

func (c *fakeClient) Unsubscribe(...string) pahomqtt.Token { return newToken(nil) }

func (c *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.NewOptionsReader(c.opts)
}

// deliver simulates an inbound message on filter.
func (c *fakeClient) deliver(filter, topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[filter]
	c.mu.Unlock()
	h(c, fakeMessage{topic: topic, payload: payload})
}

// dropConnection simulates the broker going away.
func (c *fakeClient) dropConnection(err error) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.opts.OnConnectionLost(c, err)
}

// recordingListener captures transport callbacks.
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
