// Package summary turns a finished negotiation transcript into a structured
// outcome, tolerating models that do not return clean JSON.
package summary

import (
	"context"
	"fmt"

	"github.com/lorenzotomasdiez/negotiator/internal/llm"
	"github.com/lorenzotomasdiez/negotiator/internal/logging"
	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
)

// Generator implements negotiation.Summarizer.
type Generator struct {
	model      llm.Gateway
	structured llm.Gateway
	log        *logging.Logger
}

var _ negotiation.Summarizer = (*Generator)(nil)

type Option func(*Generator)

// WithStructured adds a JSON-constrained backend tried before the default
// free-text one.
func WithStructured(gw llm.Gateway) Option {
	return func(g *Generator) { g.structured = gw }
}

func WithLogger(l *logging.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// New returns a Generator whose last-resort backend is model.
func New(model llm.Gateway, opts ...Option) *Generator {
	g := &Generator{model: model, log: logging.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.WithComponent("summary")
	return g
}

type path struct {
	name string
	call func(ctx context.Context, prompt string) (string, error)
}

// Summarize tries the premium structured path, the configured structured
// backend and finally the default backend. A path whose reply holds no JSON
// object is skipped, except the last one, whose raw text is kept as a
// degraded summary. Only a done ctx makes it return an error.
func (g *Generator) Summarize(ctx context.Context, in negotiation.SummaryInput) (*negotiation.Summary, error) {
	prompt := BuildPrompt(in)

	var paths []path
	if in.Structured != nil {
		paths = append(paths, path{"premium", jsonCall(in.Structured)})
	}
	if g.structured != nil {
		paths = append(paths, path{"structured", jsonCall(g.structured)})
	}

	for _, p := range paths {
		raw, err := p.call(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("summary: %w", ctx.Err())
			}
			g.log.Warn("summary path failed", "path", p.name, "error", err)
			continue
		}
		if s, ok := parse(raw); ok {
			g.log.Info("summary generated", "path", p.name, "score", s.ConvergenceScore)
			return s, nil
		}
		g.log.Warn("summary path returned no JSON object", "path", p.name)
	}

	if g.model == nil {
		return Degraded("summary generation failed: no model configured"), nil
	}
	raw, err := g.model.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("summary: %w", ctx.Err())
		}
		g.log.Error("summary generation failed on every path", "error", err)
		return Degraded(fmt.Sprintf("summary generation failed: %v", err)), nil
	}

	s := Parse(raw)
	g.log.Info("summary generated", "path", "default", "score", s.ConvergenceScore)
	return s, nil
}

func jsonCall(gw llm.Gateway) func(context.Context, string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		return gw.CompleteJSON(ctx, prompt, SchemaHint)
	}
}
