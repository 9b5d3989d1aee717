package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NetworkType identifies the transport family that produced a message.
type NetworkType string

// Supported network types.
const (
	NetworkMQTT  NetworkType = "mqtt"
	NetworkNATS  NetworkType = "nats"
	NetworkRedis NetworkType = "redis"
)

// AllNetworkTypes returns every supported network type.
func AllNetworkTypes() []NetworkType {
	return []NetworkType{NetworkMQTT, NetworkNATS, NetworkRedis}
}

// IsValid reports whether n is a supported network type.
func (n NetworkType) IsValid() bool {
	switch n {
	case NetworkMQTT, NetworkNATS, NetworkRedis:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (n NetworkType) String() string {
	return string(n)
}

// ParseNetworkType converts a configuration string to a NetworkType.
// Matching is case-insensitive.
func ParseNetworkType(s string) (NetworkType, error) {
	n := NetworkType(strings.ToLower(strings.TrimSpace(s)))
	if !n.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownNetworkType, s)
	}
	return n, nil
}

// RawMessage is the envelope for a payload received from a gateway, before
// any protocol-specific interpretation.
//
// A RawMessage is immutable once built: all fields are unexported and the
// payload is copied on construction and on read. Values can be passed
// between goroutines without further copying.
type RawMessage struct {
	id          string
	gatewayID   int64
	data        []byte
	subData     string
	networkType NetworkType
	timestamp   time.Time
}

// New builds a RawMessage stamped with the current time.
//
// Parameters:
//   - gatewayID: The gateway that received the message
//   - data: The opaque payload (copied)
//   - subData: Secondary routing key such as an MQTT topic (may be empty)
//   - networkType: The transport family that produced the payload
func New(gatewayID int64, data []byte, subData string, networkType NetworkType) RawMessage {
	return NewAt(gatewayID, data, subData, networkType, time.Now())
}

// NewAt builds a RawMessage with an explicit creation time.
func NewAt(gatewayID int64, data []byte, subData string, networkType NetworkType, ts time.Time) RawMessage {
	payload := make([]byte, len(data))
	copy(payload, data)

	return RawMessage{
		id:          uuid.NewString(),
		gatewayID:   gatewayID,
		data:        payload,
		subData:     subData,
		networkType: networkType,
		timestamp:   ts.UTC(),
	}
}

// ID returns the unique identifier assigned at construction.
func (m RawMessage) ID() string { return m.id }

// GatewayID returns the owning gateway's identifier.
func (m RawMessage) GatewayID() int64 { return m.gatewayID }

// Data returns a copy of the payload.
func (m RawMessage) Data() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// DataString returns the payload as text.
func (m RawMessage) DataString() string { return string(m.data) }

// Len returns the payload size in bytes.
func (m RawMessage) Len() int { return len(m.data) }

// SubData returns the secondary routing key (topic, subject or channel).
func (m RawMessage) SubData() string { return m.subData }

// NetworkType returns the transport family that produced the message.
func (m RawMessage) NetworkType() NetworkType { return m.networkType }

// Timestamp returns the creation instant in UTC.
func (m RawMessage) Timestamp() time.Time { return m.timestamp }

// IsZero reports whether m is the zero value.
func (m RawMessage) IsZero() bool { return m.id == "" }

// String returns a short description suitable for logs.
func (m RawMessage) String() string {
	return fmt.Sprintf("RawMessage[gateway:%d, network:%s, subData:%s, bytes:%d]",
		m.gatewayID, m.networkType, m.subData, len(m.data))
}
