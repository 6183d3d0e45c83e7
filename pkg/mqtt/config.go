package mqtt

import (
	"strings"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up a Sink from flags. It is disabled unless -mqtt-broker
// is set.
func Configured() *Sink {
	broker := lflag.String("mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883); empty disables publishing")
	topic := lflag.String("mqtt-topic", "pvrelay/report", "MQTT topic for reports")
	clientID := lflag.String("mqtt-client-id", "pvrelay", "MQTT client id")
	username := lflag.String("mqtt-username", "", "MQTT username")
	password := lflag.String("mqtt-password", "", "MQTT password")
	timeout := lflag.Duration("mqtt-timeout", defaultTimeout, "Timeout for each MQTT operation")

	s := NewSink("", "")

	lflag.Do(func() {
		if *broker != "" && strings.TrimSpace(*topic) == "" {
			panic("mqtt-topic is required when mqtt-broker is set")
		}
		s.broker = *broker
		s.topic = *topic
		s.clientID = *clientID
		s.username = *username
		s.password = *password
		s.timeout = *timeout
	})

	return s
}
