// Package output renders negotiations to the terminal and to report files.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
	"github.com/lorenzotomasdiez/negotiator/internal/negotiation/summary"
)

const maxSlugLength = 50

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateSlug lowercases s and joins its alphanumeric runs with hyphens.
func GenerateSlug(s string) string {
	slug := strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		slug = "negotiation"
	}
	return slug
}

// CreateOutputDir creates base/<slug>-YYYYMMDD-HHMMSS.
func CreateOutputDir(base, slug string) (string, error) {
	dir := filepath.Join(base, fmt.Sprintf("%s-%s", slug, time.Now().Format("20060102-150405")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("output: %w", err)
	}
	return dir, nil
}

// Writer produces the report files of one negotiation.
type Writer struct {
	dir   string
	mu    sync.Mutex
	lines []string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Dir() string { return w.dir }

// WriteJSON writes the session snapshot to transcript.json.
func (w *Writer) WriteJSON(view negotiation.View) error {
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return w.write("transcript.json", data)
}

// WriteMarkdown writes report.md with the transcript and outcome.
func (w *Writer) WriteMarkdown(view negotiation.View) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", view.Topic)
	fmt.Fprintf(&sb, "- Status: %s\n", view.Status)
	fmt.Fprintf(&sb, "- Parties: %s (A), %s (B)\n", view.PartyA.Name, view.PartyB.Name)
	fmt.Fprintf(&sb, "- Started: %s\n\n", view.CreatedAt.Format(time.RFC3339))

	sb.WriteString("## Transcript\n\n")
	for _, m := range view.Messages {
		name := view.PartyA.Name
		if m.Speaker == negotiation.SpeakerB {
			name = view.PartyB.Name
		}
		fmt.Fprintf(&sb, "### Round %d · %s\n\n%s\n\n", m.Round, name, m.Content)
	}

	if s := view.Summary; s != nil {
		sb.WriteString("## Outcome\n\n")
		fmt.Fprintf(&sb, "- Consensus reached: %t\n", s.ConsensusReached)
		fmt.Fprintf(&sb, "- Convergence: %d/100 (%s)\n", s.ConvergenceScore, summary.TierFor(s.ConvergenceScore).Label())
		if s.FinalProposal != "" {
			fmt.Fprintf(&sb, "- Final proposal: %s\n", s.FinalProposal)
		}
		sb.WriteString("\n")
		writeSection(&sb, "Agreement terms", s.AgreementTerms)
		writeSection(&sb, view.PartyA.Name+" concessions", s.PartyAConcessions)
		writeSection(&sb, view.PartyB.Name+" concessions", s.PartyBConcessions)
		writeSection(&sb, "Unresolved disputes", s.UnresolvedDisputes)
		if s.SummaryText != "" {
			fmt.Fprintf(&sb, "%s\n", s.SummaryText)
		}
	}
	if view.Error != "" {
		fmt.Fprintf(&sb, "## Error\n\n%s\n", view.Error)
	}
	return w.write("report.md", []byte(sb.String()))
}

func writeSection(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "### %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
	sb.WriteString("\n")
}

// Log appends a timestamped line to negotiation.log right away.
func (w *Writer) Log(msg string) {
	line := fmt.Sprintf("%s %s\n", time.Now().Format(time.RFC3339), msg)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
	f, err := os.OpenFile(filepath.Join(w.dir, "negotiation.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	f.WriteString(line)
}

// WriteLog rewrites negotiation.log from every line logged so far.
func (w *Writer) WriteLog() error {
	w.mu.Lock()
	data := []byte(strings.Join(w.lines, ""))
	w.mu.Unlock()
	return w.write("negotiation.log", data)
}

func (w *Writer) write(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(w.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}
