// Package mqtt publishes reports to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pvrelay/pvrelay/pkg/log"
	"github.com/pvrelay/pvrelay/pkg/types"
)

const defaultTimeout = 10 * time.Second

var errTimeout = errors.New("timed out")

// Sink publishes each report as a retained JSON message. A Sink without a
// broker does nothing.
type Sink struct {
	broker   string
	topic    string
	clientID string
	username string
	password string
	timeout  time.Duration

	newClient func(*paho.ClientOptions) paho.Client
}

// NewSink returns a Sink publishing to topic on broker (e.g. tcp://host:1883).
func NewSink(broker, topic string) *Sink {
	return &Sink{
		broker:    broker,
		topic:     topic,
		clientID:  "pvrelay",
		timeout:   defaultTimeout,
		newClient: paho.NewClient,
	}
}

// Enabled reports whether a broker is configured.
func (s *Sink) Enabled() bool {
	return s != nil && s.broker != ""
}

// Message is the published document.
type Message struct {
	Date   string       `json:"date"`
	Report types.Report `json:"report"`
}

func buildMessage(r types.Report) ([]byte, error) {
	return json.Marshal(Message{
		Date:   types.DateKey(r.Timestamp),
		Report: r,
	})
}

// PublishReport connects, publishes r and disconnects.
func (s *Sink) PublishReport(ctx context.Context, r types.Report) error {
	if !s.Enabled() {
		return nil
	}
	payload, err := buildMessage(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(s.broker)
	opts.SetClientID(s.clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(s.timeout)
	opts.SetWriteTimeout(s.timeout)
	if s.username != "" {
		opts.SetUsername(s.username)
		opts.SetPassword(s.password)
	}

	client := s.newClient(opts)
	if err := wait(ctx, client.Connect(), s.timeout); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.broker, err)
	}
	defer client.Disconnect(250)

	if err := wait(ctx, client.Publish(s.topic, 1, true, payload), s.timeout); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.topic, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "published report", slog.String("broker", s.broker), slog.String("topic", s.topic), slog.Int("bytes", len(payload)))
	return nil
}

// wait blocks until the token completes, the timeout passes or ctx is done.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-t.C:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
