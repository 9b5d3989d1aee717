package gateway

import (
	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// Adapter is the Listener a Supervisor installs on its transport. It turns
// transport callbacks into supervisor actions and queued messages.
//
// Nothing escapes an Adapter callback: errors are logged and counted and
// panics are recovered, so a fault here cannot destabilise the transport's
// delivery goroutine.
type Adapter struct {
	sup     *Supervisor
	gw      *Gateway
	queue   Enqueuer
	logger  Logger
	metrics *Metrics
}

func newAdapter(s *Supervisor, queue Enqueuer) *Adapter {
	return &Adapter{
		sup:     s,
		gw:      s.gw,
		queue:   queue,
		logger:  s.logger,
		metrics: s.metrics,
	}
}

// OnConnectionLost implements Listener.
func (a *Adapter) OnConnectionLost(cause error) {
	defer a.recoverPanic("connection lost", false)

	a.logger.Warn("gateway connection lost", "gateway_id", a.gw.ID, "error", cause)
	a.sup.HandleConnectionLost(cause)
}

// OnMessageArrived implements Listener.
func (a *Adapter) OnMessageArrived(subData string, payload []byte) {
	defer a.recoverPanic("message arrived", true)

	msg := message.New(a.gw.ID, payload, subData, a.gw.NetworkType)
	if err := a.queue.Put(msg); err != nil {
		a.metrics.recordDropped(a.gw)
		a.logger.Warn("inbound message dropped",
			"gateway_id", a.gw.ID,
			"sub_data", subData,
			"message_id", msg.ID(),
			"bytes", msg.Len(),
			"error", err,
		)
		return
	}

	a.metrics.recordReceived(a.gw)
	a.logger.Debug("inbound message queued",
		"gateway_id", a.gw.ID,
		"sub_data", subData,
		"message_id", msg.ID(),
	)
}

// OnDeliveryConfirmed implements Listener.
func (a *Adapter) OnDeliveryConfirmed(token DeliveryToken) {
	defer a.recoverPanic("delivery confirmed", false)

	a.metrics.recordDelivered(a.gw)
	a.logger.Debug("delivery confirmed",
		"gateway_id", a.gw.ID,
		"message_id", token.MessageID,
		"topics", token.Topics,
		"payload", string(token.Payload),
	)
}

func (a *Adapter) recoverPanic(event string, dropped bool) {
	if r := recover(); r != nil {
		if dropped {
			a.metrics.recordDropped(a.gw)
		}
		a.logger.Error("listener callback panicked",
			"gateway_id", a.gw.ID,
			"event", event,
			"panic", r,
		)
	}
}
