package mqtt

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
)

const (
	// defaultConnectTimeout caps a single connection attempt at the socket level.
	defaultConnectTimeout = 10 * time.Second

	// defaultOperationTimeout bounds subscribe calls made during Connect.
	defaultOperationTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	defaultKeepAlive = 60 * time.Second

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// Endpoint option names understood by this driver.
const (
	// OptAutoReconnect hands reconnection to paho instead of the gateway
	// supervisor. Off unless set to "true".
	OptAutoReconnect = "auto_reconnect"

	// OptKeepAlive is the keepalive interval in seconds.
	OptKeepAlive = "keepalive"

	// OptCleanSession controls the MQTT clean session flag. Default "true".
	OptCleanSession = "clean_session"

	// OptRetained makes outbound publishes retained.
	OptRetained = "retained"

	// OptInsecureSkipVerify disables broker certificate checks for ssl:// URLs.
	OptInsecureSkipVerify = "insecure_skip_verify"
)

// settings is the parsed, validated view of a gateway endpoint.
type settings struct {
	broker        string
	clientID      string
	username      string
	password      string
	subscribe     []string
	publish       string
	qos           byte
	autoReconnect bool
	keepAlive     time.Duration
	cleanSession  bool
	retained      bool
	skipVerify    bool
}

// parseSettings validates a gateway's endpoint for MQTT use.
func parseSettings(gw *gateway.Gateway) (settings, error) {
	ep := gw.Endpoint

	s := settings{
		broker:    strings.TrimSpace(ep.URL),
		clientID:  ep.ClientID,
		username:  ep.Username,
		password:  ep.Password,
		subscribe: append([]string(nil), ep.Subscribe...),
		publish:   ep.Publish,
		qos:       ep.QoS,
		keepAlive: defaultKeepAlive,
	}

	if s.broker == "" {
		return settings{}, fmt.Errorf("%w: broker url is required", ErrInvalidEndpoint)
	}
	if !strings.Contains(s.broker, "://") {
		s.broker = "tcp://" + s.broker
	}
	if s.qos > maxQoS {
		return settings{}, ErrInvalidQoS
	}
	for _, topic := range s.subscribe {
		if err := ValidateTopicFilter(topic); err != nil {
			return settings{}, err
		}
	}
	if s.publish != "" {
		if err := ValidatePublishTopic(s.publish); err != nil {
			return settings{}, err
		}
	}

	if s.clientID == "" {
		s.clientID = fmt.Sprintf("graylogic-gw-%d-%s", gw.ID, uuid.NewString()[:8])
	}

	var err error
	if s.autoReconnect, err = boolOption(ep, OptAutoReconnect, false); err != nil {
		return settings{}, err
	}
	if s.cleanSession, err = boolOption(ep, OptCleanSession, true); err != nil {
		return settings{}, err
	}
	if s.retained, err = boolOption(ep, OptRetained, false); err != nil {
		return settings{}, err
	}
	if s.skipVerify, err = boolOption(ep, OptInsecureSkipVerify, false); err != nil {
		return settings{}, err
	}
	if v := ep.Option(OptKeepAlive, ""); v != "" {
		secs, convErr := strconv.Atoi(v)
		if convErr != nil || secs <= 0 {
			return settings{}, fmt.Errorf("%w: %s must be a positive number of seconds", ErrInvalidEndpoint, OptKeepAlive)
		}
		s.keepAlive = time.Duration(secs) * time.Second
	}

	return s, nil
}

func boolOption(ep gateway.Endpoint, name string, def bool) (bool, error) {
	v := ep.Option(name, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: option %s: %w", ErrInvalidEndpoint, name, err)
	}
	return b, nil
}

// buildClientOptions creates paho options for one connection attempt.
// The handlers are bound to t.
func buildClientOptions(s settings, t *Transport) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(s.broker)
	opts.SetClientID(s.clientID)

	if s.username != "" {
		opts.SetUsername(s.username)
		opts.SetPassword(s.password)
	}

	opts.SetCleanSession(s.cleanSession)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(s.keepAlive)

	// The supervisor owns the retry policy unless auto_reconnect is set.
	opts.SetAutoReconnect(s.autoReconnect)
	opts.SetConnectRetry(false)
	opts.SetResumeSubs(s.autoReconnect && !s.cleanSession)

	if strings.HasPrefix(s.broker, "ssl://") || strings.HasPrefix(s.broker, "tls://") || strings.HasPrefix(s.broker, "mqtts://") {
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tlsMinVersion,
			InsecureSkipVerify: s.skipVerify, // #nosec G402 -- opt-in per gateway
		})
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		t.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.handleConnectionLost(err)
	})

	return opts
}
