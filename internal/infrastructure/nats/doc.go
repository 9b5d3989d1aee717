// Package nats is the NATS gateway transport, built on nats.go core pub/sub.
//
// Every subscribed subject (wildcards allowed) is forwarded to the gateway
// listener with the concrete subject as sub-data. Publishes are confirmed
// with a flush round trip before OnDeliveryConfirmed fires; core NATS has
// no per-message acknowledgement.
//
// Endpoint options:
//   - auto_reconnect: let nats.go reconnect on its own (default false)
//   - queue_group: subscribe in a queue group
//   - token: token authentication
//   - ping_interval: seconds between client PINGs (default 20)
package nats
