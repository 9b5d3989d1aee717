package gateway

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// Status is the externally visible connectivity status of a gateway.
type Status string

// Gateway statuses.
const (
	StatusUp    Status = "UP"
	StatusDown  Status = "DOWN"
	StatusError Status = "ERROR"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusUp, StatusDown, StatusError:
		return true
	default:
		return false
	}
}

// State is the supervisor's view of a connection. It is not persisted.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnectLoop
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnectLoop:
		return "reconnect_loop"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Endpoint holds the transport connection parameters for a gateway.
// Fields a transport does not understand are ignored by it.
type Endpoint struct {
	// URL is the broker address, e.g. "tcp://broker:1883", "nats://host:4222"
	// or "redis://host:6379/0".
	URL string `json:"url" yaml:"url"`

	// ClientID identifies this connection to the broker. Generated when empty.
	ClientID string `json:"client_id,omitempty" yaml:"client_id"`

	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"-" yaml:"password"`

	// Subscribe lists the routing keys (topics, subjects, channels) to
	// receive from.
	Subscribe []string `json:"subscribe" yaml:"subscribe"`

	// Publish is the default routing key for outbound messages.
	Publish string `json:"publish,omitempty" yaml:"publish"`

	// QoS is passed through to transports that support it.
	QoS byte `json:"qos" yaml:"qos"`

	// Options carries transport-specific settings as opaque strings.
	Options map[string]string `json:"options,omitempty" yaml:"options"`
}

// Option returns the named option, or def when it is absent.
func (e Endpoint) Option(name, def string) string {
	if v, ok := e.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// Gateway is a configured connection to an external message transport.
//
// Static fields are owned by the configuration store and must not change
// while a supervisor is running. Status fields are owned by the supervisor
// and are only reachable through SetStatus and Snapshot.
type Gateway struct {
	ID          int64
	Name        string
	NetworkType message.NetworkType
	Enabled     bool
	Endpoint    Endpoint

	mu            sync.RWMutex
	status        Status
	statusMessage string
	statusTime    time.Time
}

// NewGateway creates a gateway in DOWN status.
func NewGateway(id int64, name string, networkType message.NetworkType, endpoint Endpoint) *Gateway {
	return &Gateway{
		ID:          id,
		Name:        name,
		NetworkType: networkType,
		Enabled:     true,
		Endpoint:    endpoint,
		status:      StatusDown,
	}
}

// Validate checks the static configuration.
func (g *Gateway) Validate() error {
	var errs []string

	if g.ID <= 0 {
		errs = append(errs, "id must be positive")
	}
	if strings.TrimSpace(g.Name) == "" {
		errs = append(errs, "name is required")
	}
	if !g.NetworkType.IsValid() {
		errs = append(errs, fmt.Sprintf("unsupported network type %q", g.NetworkType))
	}
	if strings.TrimSpace(g.Endpoint.URL) == "" {
		errs = append(errs, "endpoint url is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidGateway, strings.Join(errs, "; "))
	}
	return nil
}

// SetStatus records a status transition and returns the previous status.
func (g *Gateway) SetStatus(status Status, msg string, at time.Time) Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.status
	g.status = status
	g.statusMessage = msg
	g.statusTime = at
	return prev
}

// Status returns the current status and its message.
func (g *Gateway) Status() (Status, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status, g.statusMessage
}

// Snapshot is a consistent copy of a gateway's fields.
type Snapshot struct {
	ID            int64               `json:"id"`
	Name          string              `json:"name"`
	NetworkType   message.NetworkType `json:"network_type"`
	Enabled       bool                `json:"enabled"`
	Endpoint      Endpoint            `json:"endpoint"`
	Status        Status              `json:"status"`
	StatusMessage string              `json:"status_message"`
	StatusTime    time.Time           `json:"status_time"`
}

// Snapshot returns a consistent copy of the gateway.
func (g *Gateway) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ep := g.Endpoint
	ep.Subscribe = append([]string(nil), g.Endpoint.Subscribe...)
	if g.Endpoint.Options != nil {
		ep.Options = make(map[string]string, len(g.Endpoint.Options))
		for k, v := range g.Endpoint.Options {
			ep.Options[k] = v
		}
	}

	return Snapshot{
		ID:            g.ID,
		Name:          g.Name,
		NetworkType:   g.NetworkType,
		Enabled:       g.Enabled,
		Endpoint:      ep,
		Status:        g.status,
		StatusMessage: g.statusMessage,
		StatusTime:    g.statusTime,
	}
}

// Transition is a single status change published to a StatusSink.
type Transition struct {
	GatewayID   int64               `json:"gateway_id"`
	GatewayName string              `json:"gateway_name"`
	NetworkType message.NetworkType `json:"network_type"`
	Previous    Status              `json:"previous"`
	Status      Status              `json:"status"`
	Message     string              `json:"message"`
	At          time.Time           `json:"at"`
}
