// Package negotiation runs a scripted multi-round negotiation between two
// model-backed agents and records it in an in-memory session.
package negotiation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/lorenzotomasdiez/negotiator/internal/llm"
	"github.com/lorenzotomasdiez/negotiator/internal/logging"
)

const (
	outcomePremium     = "premium"
	outcomeDefault     = "default"
	outcomeRetry       = "retry"
	outcomePlaceholder = "placeholder"
)

// PremiumFactory builds a per-party gateway from the session access token.
type PremiumFactory func(accessToken, instanceID string) (llm.Gateway, error)

// Engine drives sessions taken from a Store.
type Engine struct {
	store      Store
	model      llm.Gateway
	premium    PremiumFactory
	summarizer Summarizer
	rounds     int
	log        *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Engine)

// WithPremium enables the per-party premium backend for sessions created
// with an access token.
func WithPremium(f PremiumFactory) Option {
	return func(e *Engine) { e.premium = f }
}

func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRounds overrides TotalRounds.
func WithRounds(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.rounds = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine using model as the default backend.
func NewEngine(store Store, model llm.Gateway, summarizer Summarizer, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		model:      model,
		summarizer: summarizer,
		rounds:     TotalRounds,
		log:        logging.Nop(),
		tracer:     defaultTracer(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithComponent("engine")
	return e
}

// speaker is one party's side of a run: its own history and gateway.
type speaker struct {
	id      Speaker
	party   Party
	premium llm.Gateway
	history []llm.Message
}

// Run executes session id to completion, reporting progress through emit.
// Every call ends with exactly one terminal event (done or error). A session
// runs at most once; later calls get ErrAlreadyStarted and leave it untouched.
func (e *Engine) Run(ctx context.Context, id string, emit EmitFunc) error {
	if emit == nil {
		emit = func(string, any) {}
	}

	s, err := e.store.Get(id)
	if err != nil {
		emit(EventError, ErrorPayload{Error: err.Error()})
		return err
	}
	if err := s.begin(); err != nil {
		emit(EventError, ErrorPayload{Error: err.Error()})
		return err
	}

	log := e.log.WithSession(s.ID)
	ctx, span := e.startRunSpan(ctx, s)
	log.Info("negotiation started", "rounds", e.rounds, "backend", s.PartyA.Backend)

	emit(EventSessionInfo, SessionInfo{Topic: s.Topic})

	if err := e.execute(ctx, s, emit, log); err != nil {
		s.fail(err.Error())
		endRunSpan(span, StatusFailed, err)
		log.Error("negotiation failed", "error", err, "messages", len(s.Messages()))
		emit(EventError, ErrorPayload{Error: err.Error()})
		return err
	}

	endRunSpan(span, StatusCompleted, nil)
	log.Info("negotiation completed", "consensus", s.Summary().ConsensusReached, "score", s.Summary().ConvergenceScore)
	emit(EventSummary, s.Summary())
	emit(EventDone, Done{SessionID: s.ID})
	return nil
}

func (e *Engine) execute(ctx context.Context, s *Session, emit EmitFunc, log *logging.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("negotiation: internal error: %v", r)
		}
	}()

	a := e.newSpeaker(s, SpeakerA, log)
	b := e.newSpeaker(s, SpeakerB, log)

	var lastA, lastB string
	for round := 1; round <= e.rounds; round++ {
		if lastA, err = e.turn(ctx, s, a, round, lastB, emit, log); err != nil {
			return err
		}
		if lastB, err = e.turn(ctx, s, b, round, lastA, emit, log); err != nil {
			return err
		}
	}

	emit(EventStatus, StatusUpdate{Phase: PhaseThinking, Speaker: SpeakerA, Round: SummaryRound})

	msgs := s.Messages()
	sctx, span := e.startSummarySpan(ctx, len(msgs))
	sum, err := e.summarizer.Summarize(sctx, SummaryInput{
		Topic:      s.Topic,
		PartyA:     s.PartyA,
		PartyB:     s.PartyB,
		Messages:   msgs,
		Structured: a.premium,
	})
	if err == nil && sum == nil {
		err = fmt.Errorf("summarizer returned no summary")
	}
	if err != nil {
		span.RecordError(err)
		span.End()
		return fmt.Errorf("negotiation: summary: %w", err)
	}
	span.End()

	s.complete(sum)
	return nil
}

func (e *Engine) newSpeaker(s *Session, id Speaker, log *logging.Logger) *speaker {
	sp := &speaker{id: id, party: s.Party(id)}
	if sp.party.Backend != BackendPremium || e.premium == nil {
		return sp
	}
	gw, err := e.premium(s.AccessToken(), sp.party.InstanceID)
	if err != nil {
		log.Warn("premium backend unavailable, using default", "speaker", id, "error", err)
		return sp
	}
	sp.premium = gw
	return sp
}

// turn produces one message for sp. Only cancellation of ctx makes it fail;
// upstream errors end in a placeholder message.
func (e *Engine) turn(ctx context.Context, s *Session, sp *speaker, round int, counterpart string, emit EmitFunc, log *logging.Logger) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("negotiation: %w", err)
	}
	emit(EventStatus, StatusUpdate{Phase: PhaseThinking, Speaker: sp.id, Round: round})

	user := UserMessage(s.Topic, counterpart, round, e.rounds)
	history := make([]llm.Message, 0, len(sp.history)+2)
	history = append(history, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(s.Topic, sp.party, round, e.rounds)})
	history = append(history, sp.history...)
	history = append(history, llm.Message{Role: llm.RoleUser, Content: user})

	tctx, span := e.startTurnSpan(ctx, sp.id, round)
	content, outcome, err := e.complete(tctx, sp, history, log.With("speaker", sp.id, "round", round))
	endTurnSpan(span, outcome)
	if err != nil {
		return "", err
	}

	now := e.now()
	msg := Message{
		ID:        newMessageID(now),
		Round:     round,
		Speaker:   sp.id,
		Content:   content,
		Timestamp: now,
	}
	s.appendMessage(msg)
	emit(EventMessage, msg)

	sp.history = append(sp.history,
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: content},
	)
	return content, nil
}

// complete applies the fallback chain: premium once, then the default
// backend with one retry, then a placeholder carrying the first error.
func (e *Engine) complete(ctx context.Context, sp *speaker, history []llm.Message, log *logging.Logger) (string, string, error) {
	if sp.premium != nil {
		out, err := sp.premium.Complete(ctx, history)
		if err == nil {
			return out, outcomePremium, nil
		}
		log.Warn("premium backend failed, falling back", "error", err)
	}

	out, firstErr := e.model.Complete(ctx, history)
	if firstErr == nil {
		return out, outcomeDefault, nil
	}
	if err := ctx.Err(); err != nil {
		return "", outcomePlaceholder, fmt.Errorf("negotiation: %w", err)
	}
	log.Warn("model call failed, retrying", "error", firstErr)

	out, err := e.model.Complete(ctx, history)
	if err == nil {
		return out, outcomeRetry, nil
	}
	if err := ctx.Err(); err != nil {
		return "", outcomePlaceholder, fmt.Errorf("negotiation: %w", err)
	}
	log.Error("model call failed twice, substituting placeholder", "error", err)
	return Placeholder(firstErr), outcomePlaceholder, nil
}

// Placeholder is the visible stand-in for a turn no backend could produce.
func Placeholder(err error) string {
	return fmt.Sprintf("[Agent temporarily unable to respond: %v]", err)
}
