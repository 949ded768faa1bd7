package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/negotiator/internal/events"
	"github.com/lorenzotomasdiez/negotiator/internal/logging"
	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
	"github.com/lorenzotomasdiez/negotiator/internal/output"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one negotiation in the terminal",
		Long:  "Creates a session from flags, runs every round with live output, and optionally writes transcript.json, report.md and negotiation.log.",
		RunE:  runNegotiation,
	}
	cmd.Flags().String("topic", "", "What is being negotiated (required)")
	cmd.Flags().String("instance-a", "", "Instance ID of party A (required)")
	cmd.Flags().String("instance-b", "", "Instance ID of party B (required)")
	cmd.Flags().String("position-a", "", "Position of party A (required)")
	cmd.Flags().String("position-b", "", "Position of party B (required)")
	cmd.Flags().String("name-a", "", "Display name of party A")
	cmd.Flags().String("name-b", "", "Display name of party B")
	cmd.Flags().String("red-line-a", "", "Private red line of party A")
	cmd.Flags().String("red-line-b", "", "Private red line of party B")
	cmd.Flags().String("token", "", "Access token for the premium backend")
	cmd.Flags().String("out", "", "Directory for report files (a timestamped subdirectory is created)")
	return cmd
}

func runNegotiation(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	req := negotiation.CreateRequest{}
	req.Topic, _ = f.GetString("topic")
	req.InstanceAID, _ = f.GetString("instance-a")
	req.InstanceBID, _ = f.GetString("instance-b")
	req.PositionA, _ = f.GetString("position-a")
	req.PositionB, _ = f.GetString("position-b")
	req.InstanceAName, _ = f.GetString("name-a")
	req.InstanceBName, _ = f.GetString("name-b")
	req.RedLineA, _ = f.GetString("red-line-a")
	req.RedLineB, _ = f.GetString("red-line-b")
	req.AccessToken, _ = f.GetString("token")
	outBase, _ := f.GetString("out")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	view, dir, err := runSession(ctx, d, req, outBase, cmd.OutOrStdout(), log)
	if dir != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\nReport written to %s\n", dir)
	}
	if err != nil {
		return err
	}
	if view.Status != negotiation.StatusCompleted {
		return fmt.Errorf("negotiation %s: %s", view.Status, view.Error)
	}
	return nil
}

// runSession creates and runs one negotiation, printing events to out. When
// outBase is set, report files go to a fresh directory under it, whose path
// is returned.
func runSession(ctx context.Context, d *deps, req negotiation.CreateRequest, outBase string, out io.Writer, log *logging.Logger) (negotiation.View, string, error) {
	store := negotiation.NewMemoryStore()
	s, err := store.Create(req)
	if err != nil {
		return negotiation.View{}, "", err
	}
	log = log.WithSession(s.ID)

	printer := output.NewPrinter(out, s.PartyA.Name, s.PartyB.Name)
	sinks := []events.Sink{events.SinkFunc(func(event string, payload any) error {
		printer.Emit(event, payload)
		return nil
	})}

	var w *output.Writer
	if outBase != "" {
		dir, err := output.CreateOutputDir(outBase, output.GenerateSlug(s.Topic))
		if err != nil {
			return negotiation.View{}, "", err
		}
		w = output.NewWriter(dir)
		sinks = append(sinks, events.SinkFunc(func(event string, payload any) error {
			w.Log(logLine(event, payload))
			return nil
		}))
	}

	runErr := d.engine(store, log).Run(ctx, s.ID, events.Emitter(log, sinks...))
	view := s.Snapshot()
	if w == nil {
		return view, "", runErr
	}
	if err := w.WriteJSON(view); err != nil {
		return view, w.Dir(), err
	}
	if err := w.WriteMarkdown(view); err != nil {
		return view, w.Dir(), err
	}
	if err := w.WriteLog(); err != nil {
		return view, w.Dir(), err
	}
	return view, w.Dir(), runErr
}

func logLine(event string, payload any) string {
	switch p := payload.(type) {
	case negotiation.Message:
		return fmt.Sprintf("%s round=%d speaker=%s chars=%d", event, p.Round, p.Speaker, len(p.Content))
	case negotiation.StatusUpdate:
		return fmt.Sprintf("%s phase=%s speaker=%s round=%d", event, p.Phase, p.Speaker, p.Round)
	case *negotiation.Summary:
		return fmt.Sprintf("%s consensus=%t score=%d", event, p.ConsensusReached, p.ConvergenceScore)
	case negotiation.ErrorPayload:
		return fmt.Sprintf("%s %s", event, p.Error)
	default:
		return event
	}
}
