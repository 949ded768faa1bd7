package negotiation

// Event names emitted by the engine.
const (
	EventSessionInfo = "session_info"
	EventStatus      = "status"
	EventMessage     = "message"
	EventSummary     = "summary"
	EventDone        = "done"
	EventError       = "error"
)

// PhaseThinking is the only status phase the engine emits.
const PhaseThinking = "thinking"

// SummaryRound is the round value of the status event announcing the summary.
const SummaryRound = 0

// EmitFunc receives events in order. It is called synchronously from the
// goroutine running the negotiation; transports must not block for long.
type EmitFunc func(event string, payload any)

type SessionInfo struct {
	Topic string `json:"topic"`
}

type StatusUpdate struct {
	Phase   string  `json:"phase"`
	Speaker Speaker `json:"speaker"`
	Round   int     `json:"round"`
}

type Done struct {
	SessionID string `json:"session_id"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// Terminal reports whether event ends a stream.
func Terminal(event string) bool {
	return event == EventDone || event == EventError
}
