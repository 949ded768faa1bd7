// Package events delivers negotiation events to consumers: server-sent
// events, WebSocket clients and a NATS subject tree.
package events

import (
	"sync"

	"github.com/lorenzotomasdiez/negotiator/internal/logging"
	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
)

// Sink delivers one event. An error means the consumer is gone.
type Sink interface {
	Send(event string, payload any) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event string, payload any) error

func (f SinkFunc) Send(event string, payload any) error { return f(event, payload) }

// Emitter fans events out to sinks in order. A sink that fails once is
// detached and receives nothing further; the others are unaffected, and the
// negotiation itself never sees the failure.
func Emitter(log *logging.Logger, sinks ...Sink) negotiation.EmitFunc {
	if log == nil {
		log = logging.Nop()
	}
	var mu sync.Mutex
	dead := make([]bool, len(sinks))
	return func(event string, payload any) {
		mu.Lock()
		defer mu.Unlock()
		for i, s := range sinks {
			if dead[i] || s == nil {
				continue
			}
			if err := s.Send(event, payload); err != nil {
				dead[i] = true
				log.Debug("event sink detached", "event", event, "error", err)
			}
		}
	}
}
