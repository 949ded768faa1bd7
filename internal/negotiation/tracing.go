// Tracing instrumentation for the engine.

package negotiation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/lorenzotomasdiez/negotiator/internal/negotiation"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func (e *Engine) startRunSpan(ctx context.Context, s *Session) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "negotiation.run")
	span.SetAttributes(
		attribute.String("negotiation.session_id", s.ID),
		attribute.Int("negotiation.rounds", e.rounds),
		attribute.String("negotiation.backend", string(s.PartyA.Backend)),
	)
	return ctx, span
}

func endRunSpan(span trace.Span, status Status, err error) {
	span.SetAttributes(attribute.String("negotiation.status", string(status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) startTurnSpan(ctx context.Context, sp Speaker, round int) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "negotiation.turn")
	span.SetAttributes(
		attribute.String("turn.speaker", string(sp)),
		attribute.Int("turn.round", round),
	)
	return ctx, span
}

// endTurnSpan records which path produced the turn: premium, default,
// retry or placeholder.
func endTurnSpan(span trace.Span, outcome string) {
	span.SetAttributes(attribute.String("turn.outcome", outcome))
	if outcome == outcomePlaceholder {
		span.SetStatus(codes.Error, "placeholder substituted")
	}
	span.End()
}

func (e *Engine) startSummarySpan(ctx context.Context, messages int) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "negotiation.summary")
	span.SetAttributes(attribute.Int("summary.messages", messages))
	return ctx, span
}
