package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
)

const (
	defaultDialTimeout    = 5 * time.Second
	defaultHealthInterval = 15 * time.Second
)

// Endpoint option names understood by this driver.
const (
	// OptHealthInterval is the idle time in seconds before the receive
	// loop pings the server. A second idle interval without a reply is
	// treated as a lost connection.
	OptHealthInterval = "health_interval"
)

type settings struct {
	options        *goredis.Options
	channels       []string
	patterns       []string
	publish        string
	healthInterval time.Duration
}

func parseSettings(gw *gateway.Gateway) (settings, error) {
	ep := gw.Endpoint

	raw := strings.TrimSpace(ep.URL)
	if raw == "" {
		return settings{}, fmt.Errorf("%w: server url is required", ErrInvalidEndpoint)
	}
	if !strings.Contains(raw, "://") {
		raw = "redis://" + raw
	}

	opts, err := goredis.ParseURL(raw)
	if err != nil {
		return settings{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	if ep.Username != "" {
		opts.Username = ep.Username
	}
	if ep.Password != "" {
		opts.Password = ep.Password
	}

	opts.ClientName = ep.ClientID
	if opts.ClientName == "" {
		opts.ClientName = fmt.Sprintf("graylogic-gw-%d-%s", gw.ID, uuid.NewString()[:8])
	}
	opts.DialTimeout = defaultDialTimeout
	// The supervisor owns retries.
	opts.MaxRetries = -1

	s := settings{
		options:        opts,
		publish:        ep.Publish,
		healthInterval: defaultHealthInterval,
	}

	for _, ch := range ep.Subscribe {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			return settings{}, fmt.Errorf("%w: empty channel", ErrInvalidEndpoint)
		}
		if isPattern(ch) {
			s.patterns = append(s.patterns, ch)
		} else {
			s.channels = append(s.channels, ch)
		}
	}
	if s.publish != "" && isPattern(s.publish) {
		return settings{}, fmt.Errorf("%w: publish channel %q contains glob characters", ErrInvalidEndpoint, s.publish)
	}

	if v := ep.Option(OptHealthInterval, ""); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return settings{}, fmt.Errorf("%w: %s must be a positive number of seconds", ErrInvalidEndpoint, OptHealthInterval)
		}
		s.healthInterval = time.Duration(secs) * time.Second
	}

	return s, nil
}

// isPattern reports whether ch needs PSUBSCRIBE.
func isPattern(ch string) bool {
	return strings.ContainsAny(ch, "*?[")
}

// clientOptions returns a copy so each connection gets its own options.
func (s settings) clientOptions() *goredis.Options {
	o := *s.options
	return &o
}
