package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
	"github.com/lorenzotomasdiez/negotiator/internal/output"
)

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a saved transcript",
		Long:  "Reads a transcript.json written by 'run' (or a JSON object with topic, positions and messages) and prints its structured summary.",
		RunE:  runSummarize,
	}
	cmd.Flags().String("file", "", "Transcript JSON file, '-' for stdin (required)")
	cmd.Flags().Bool("json", false, "Print the summary as JSON")
	return cmd
}

// transcriptFile accepts both a saved session snapshot and a flat summary
// request.
type transcriptFile struct {
	Topic     string                `json:"topic"`
	PartyA    negotiation.Party     `json:"party_a"`
	PartyB    negotiation.Party     `json:"party_b"`
	PositionA string                `json:"position_a"`
	PositionB string                `json:"position_b"`
	RedLineA  string                `json:"red_line_a"`
	RedLineB  string                `json:"red_line_b"`
	Messages  []negotiation.Message `json:"messages"`
}

func (t transcriptFile) input() (negotiation.SummaryInput, error) {
	if strings.TrimSpace(t.Topic) == "" || len(t.Messages) == 0 {
		return negotiation.SummaryInput{}, fmt.Errorf("transcript: %s (topic, messages)", negotiation.ReasonMissing)
	}
	a, b := t.PartyA, t.PartyB
	if a.Name == "" {
		a.Name = "Party A"
	}
	if b.Name == "" {
		b.Name = "Party B"
	}
	a.Position, a.RedLine = t.PositionA, t.RedLineA
	b.Position, b.RedLine = t.PositionB, t.RedLineB
	return negotiation.SummaryInput{Topic: t.Topic, PartyA: a, PartyB: b, Messages: t.Messages}, nil
}

func readTranscript(path string, stdin io.Reader) (transcriptFile, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return transcriptFile{}, fmt.Errorf("transcript: %w", err)
		}
		defer f.Close()
		r = f
	}
	var t transcriptFile
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return transcriptFile{}, fmt.Errorf("transcript: decoding: %w", err)
	}
	return t, nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	asJSON, _ := cmd.Flags().GetBool("json")
	if path == "" {
		return fmt.Errorf("--file is required")
	}

	t, err := readTranscript(path, cmd.InOrStdin())
	if err != nil {
		return err
	}
	in, err := t.input()
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	d, err := buildDeps(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	sum, err := d.summarizer.Summarize(cmd.Context(), in)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	output.NewPrinter(cmd.OutOrStdout(), in.PartyA.Name, in.PartyB.Name).PrintSummary(sum)
	return nil
}
