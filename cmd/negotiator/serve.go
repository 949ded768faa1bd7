package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lorenzotomasdiez/negotiator/internal/events"
	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
	"github.com/lorenzotomasdiez/negotiator/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the negotiation HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", "", "Listen address (overrides NEGOTIATOR_LISTEN)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	opts := server.Options{
		Store:         negotiation.NewMemoryStore(),
		Summarizer:    d.summarizer,
		Premium:       d.premium,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Logger:        log,
	}
	opts.Engine = d.engine(opts.Store, log)

	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(cfg.NATS.URL, log)
		if err != nil {
			return err
		}
		defer nc.Drain()
		opts.Publisher = nc
		log.Info("mirroring events to NATS", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
