package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lorenzotomasdiez/negotiator/internal/logging"
)

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSink publishes every event of one session to
// <prefix>.<session_id>.<event>.
type NATSSink struct {
	pub  Publisher
	base string
}

func NewNATSSink(pub Publisher, prefix, sessionID string) *NATSSink {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "negotiation"
	}
	return &NATSSink{pub: pub, base: prefix + "." + sessionID}
}

// Subject returns the subject event is published on.
func (s *NATSSink) Subject(event string) string {
	return s.base + "." + event
}

func (s *NATSSink) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", event, err)
	}
	if err := s.pub.Publish(s.Subject(event), data); err != nil {
		return fmt.Errorf("events: nats publish: %w", err)
	}
	return nil
}

// ConnectNATS dials url and keeps reconnecting in the background.
func ConnectNATS(url string, log *logging.Logger) (*nats.Conn, error) {
	if log == nil {
		log = logging.Nop()
	}
	log = log.WithComponent("nats")
	nc, err := nats.Connect(url,
		nats.Name("negotiator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: nats connect: %w", err)
	}
	return nc, nil
}
