package nats

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPingInterval   = 20 * time.Second
	defaultReconnectWait  = 2 * time.Second
)

// Endpoint option names understood by this driver.
const (
	// OptAutoReconnect hands reconnection to nats.go. Off unless "true".
	OptAutoReconnect = "auto_reconnect"

	// OptQueueGroup subscribes every subject in this queue group.
	OptQueueGroup = "queue_group"

	// OptToken authenticates with a token instead of user/password.
	OptToken = "token"

	// OptPingInterval is the client PING interval in seconds.
	OptPingInterval = "ping_interval"
)

type settings struct {
	url           string
	name          string
	username      string
	password      string
	token         string
	subjects      []string
	publish       string
	queueGroup    string
	autoReconnect bool
	pingInterval  time.Duration
}

func parseSettings(gw *gateway.Gateway) (settings, error) {
	ep := gw.Endpoint

	s := settings{
		url:          strings.TrimSpace(ep.URL),
		name:         ep.ClientID,
		username:     ep.Username,
		password:     ep.Password,
		token:        ep.Option(OptToken, ""),
		subjects:     append([]string(nil), ep.Subscribe...),
		publish:      ep.Publish,
		queueGroup:   ep.Option(OptQueueGroup, ""),
		pingInterval: defaultPingInterval,
	}

	if s.url == "" {
		return settings{}, fmt.Errorf("%w: server url is required", ErrInvalidEndpoint)
	}
	for _, subj := range s.subjects {
		if err := ValidateSubject(subj, true); err != nil {
			return settings{}, err
		}
	}
	if s.publish != "" {
		if err := ValidateSubject(s.publish, false); err != nil {
			return settings{}, err
		}
	}
	if s.name == "" {
		s.name = fmt.Sprintf("graylogic-gw-%d-%s", gw.ID, uuid.NewString()[:8])
	}

	if v := ep.Option(OptAutoReconnect, ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return settings{}, fmt.Errorf("%w: option %s: %w", ErrInvalidEndpoint, OptAutoReconnect, err)
		}
		s.autoReconnect = b
	}
	if v := ep.Option(OptPingInterval, ""); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return settings{}, fmt.Errorf("%w: %s must be a positive number of seconds", ErrInvalidEndpoint, OptPingInterval)
		}
		s.pingInterval = time.Duration(secs) * time.Second
	}

	return s, nil
}

// buildConnectionOptions returns the nats.go options for one connection.
// Event handlers are bound to t and tagged with the connection's
// generation so callbacks from a replaced connection are ignored.
func buildConnectionOptions(s settings, t *Transport, gen uint64) []natsgo.Option {
	opts := []natsgo.Option{
		natsgo.Name(s.name),
		natsgo.Timeout(defaultConnectTimeout),
		natsgo.PingInterval(s.pingInterval),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			t.handleDisconnect(gen, err)
		}),
		natsgo.ReconnectHandler(func(_ *natsgo.Conn) {
			t.handleReconnect(gen)
		}),
		natsgo.ErrorHandler(t.handleAsyncError),
	}

	if s.autoReconnect {
		opts = append(opts, natsgo.ReconnectWait(defaultReconnectWait), natsgo.MaxReconnects(-1))
	} else {
		opts = append(opts, natsgo.NoReconnect())
	}

	if s.username != "" {
		opts = append(opts, natsgo.UserInfo(s.username, s.password))
	}
	if s.token != "" {
		opts = append(opts, natsgo.Token(s.token))
	}

	return opts
}

// ValidateSubject checks a NATS subject. Wildcards ("*" tokens and a
// trailing ">") are only accepted when wildcards is true.
func ValidateSubject(subject string, wildcards bool) error {
	if subject == "" {
		return fmt.Errorf("%w: subject cannot be empty", ErrInvalidSubject)
	}
	if strings.ContainsAny(subject, " \t\r\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidSubject, subject)
	}

	tokens := strings.Split(subject, ".")
	for i, tok := range tokens {
		switch {
		case tok == "":
			return fmt.Errorf("%w: %q has an empty token", ErrInvalidSubject, subject)
		case tok == ">" && i != len(tokens)-1:
			return fmt.Errorf("%w: %q: '>' must be the last token", ErrInvalidSubject, subject)
		case (tok == ">" || tok == "*") && !wildcards:
			return fmt.Errorf("%w: %q: wildcards are not allowed here", ErrInvalidSubject, subject)
		case tok != ">" && tok != "*" && strings.ContainsAny(tok, "*>"):
			return fmt.Errorf("%w: %q: wildcard must be a whole token", ErrInvalidSubject, subject)
		}
	}
	return nil
}
