// Package mqtt is the MQTT gateway transport, built on paho.mqtt.golang.
//
// A Transport connects to one broker, subscribes to the gateway's topic
// filters and forwards every message to the registered gateway.Listener
// with the concrete topic as sub-data. Publishes confirm delivery through
// the listener once the broker acknowledges them.
//
// Endpoint options:
//   - auto_reconnect: let paho reconnect on its own (default false)
//   - keepalive: seconds between PINGREQs (default 60)
//   - clean_session: default true
//   - retained: publish retained messages (default false)
//   - insecure_skip_verify: skip broker certificate checks on ssl:// URLs
//
// Connect failures are returned as *gateway.TransportError with the CONNACK
// return code as Code, e.g. "5" for not authorised.
package mqtt
