// Package gateway supervises connections from the controller to external
// message transports (MQTT brokers, NATS servers, Redis pub/sub) and turns
// their inbound traffic into queued RawMessages.
//
// # Architecture
//
//	                 ┌──────────────┐
//	  broker ◀──────▶│  Transport   │ (mqtt / nats / redis driver)
//	                 └──────┬───────┘
//	                        │ Listener callbacks
//	                 ┌──────▼───────┐     Put      ┌───────────────┐
//	                 │   Adapter    │─────────────▶│ message.Queue │
//	                 └──────┬───────┘              └───────────────┘
//	                        │ HandleConnectionLost
//	                 ┌──────▼───────┐  Transition  ┌───────────────┐
//	                 │  Supervisor  │─────────────▶│  StatusSink   │
//	                 └──────────────┘              └───────────────┘
//
// A Manager owns one Supervisor per enabled gateway, building each
// gateway's Transport from a Factory registered for its network type.
//
// # Connection Lifecycle
//
// Start makes the first connection attempt. A failure there is an operator
// problem (bad credentials, wrong host): the gateway goes to ERROR and
// nothing retries until Start is called again.
//
// A connection lost after a successful start is treated as transient. The
// gateway goes DOWN and a reconnect loop retries every ReconnectWait until
// the transport is connected again, then the gateway goes UP. While the loop
// waits it polls the transport every PollTick, so a transport that recovers
// on its own ends the wait early. Cancel or Stop ends the loop within one
// tick without a further attempt.
//
// # Thread Safety
//
// Transports call Listener methods from their own goroutines. At most one
// reconnect loop runs per gateway; repeated connection-lost events while it
// runs are ignored. Status changes are serialised by the supervisor, so a
// StatusSink sees a gateway's transitions in the order they happened.
package gateway
