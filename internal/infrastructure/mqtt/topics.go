package mqtt

import (
	"fmt"
	"strings"
)

// maxTopicLength is the MQTT limit on UTF-8 encoded topic length.
const maxTopicLength = 65535

// ValidateTopicFilter checks a subscription filter.
//
// "+" must occupy a whole level and "#" must be the whole last level:
//
//	sensor/+/temp   ok
//	sensor/#        ok
//	sensor/te+mp    invalid
//	sensor/#/temp   invalid
func ValidateTopicFilter(filter string) error {
	if err := validateTopicBasics(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q: '#' must be the last level on its own", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q: '+' must occupy a whole level", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// ValidatePublishTopic checks a topic used for publishing. Wildcards are
// not allowed.
func ValidatePublishTopic(topic string) error {
	if err := validateTopicBasics(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q: wildcards are not allowed when publishing", ErrInvalidTopic, topic)
	}
	return nil
}

func validateTopicBasics(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	}
	return nil
}
