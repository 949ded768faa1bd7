package main

import (
	"context"
	"fmt"

	"github.com/lorenzotomasdiez/negotiator/internal/config"
	"github.com/lorenzotomasdiez/negotiator/internal/llm"
	"github.com/lorenzotomasdiez/negotiator/internal/llm/gemini"
	"github.com/lorenzotomasdiez/negotiator/internal/llm/openai"
	"github.com/lorenzotomasdiez/negotiator/internal/llm/secondme"
	"github.com/lorenzotomasdiez/negotiator/internal/logging"
	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
	"github.com/lorenzotomasdiez/negotiator/internal/negotiation/summary"
)

// deps holds the backends shared by every command.
type deps struct {
	model      llm.Gateway
	premium    negotiation.PremiumFactory
	summarizer *summary.Generator
	closers    []func() error
}

func (d *deps) Close() {
	for _, c := range d.closers {
		c()
	}
}

func buildDeps(ctx context.Context, cfg *config.Config, log *logging.Logger) (*deps, error) {
	model := openai.NewClient(openai.Options{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout(),
		RateLimit:   cfg.LLM.RateLimit,
		// Turn retries belong to the engine.
		MaxRetries: 0,
	})

	smOpts := secondme.Options{
		BaseURL:   cfg.SecondMe.BaseURL,
		MaxTokens: cfg.SecondMe.MaxTokens,
		Timeout:   cfg.SecondMe.Timeout(),
	}
	premium := func(token, instanceID string) (llm.Gateway, error) {
		c, err := secondme.NewClient(smOpts, token, instanceID)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	d := &deps{model: model, premium: premium}
	opts := []summary.Option{summary.WithLogger(log)}
	if cfg.Gemini.APIKey != "" {
		gc, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:    cfg.Gemini.APIKey,
			Model:     cfg.Gemini.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.Timeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		d.closers = append(d.closers, gc.Close)
		opts = append(opts, summary.WithStructured(gc))
		log.Info("structured summary backend enabled", "model", cfg.Gemini.Model)
	}
	d.summarizer = summary.New(model, opts...)
	return d, nil
}

func (d *deps) engine(store negotiation.Store, log *logging.Logger) *negotiation.Engine {
	return negotiation.NewEngine(store, d.model, d.summarizer,
		negotiation.WithPremium(d.premium),
		negotiation.WithLogger(log),
	)
}
