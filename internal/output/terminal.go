package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
	"github.com/lorenzotomasdiez/negotiator/internal/negotiation/summary"
)

const defaultWidth = 88

// Printer renders a negotiation as it unfolds. Colors are dropped
// automatically when w is not a terminal.
type Printer struct {
	w     io.Writer
	names map[negotiation.Speaker]string
	width int

	round   lipgloss.Style
	speaker map[negotiation.Speaker]lipgloss.Style
	dim     lipgloss.Style
	banner  lipgloss.Style
	good    lipgloss.Style
	bad     lipgloss.Style
	score   lipgloss.Style
}

func NewPrinter(w io.Writer, nameA, nameB string) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		names: map[negotiation.Speaker]string{negotiation.SpeakerA: nameA, negotiation.SpeakerB: nameB},
		width: defaultWidth,
		round: r.NewStyle().Foreground(lipgloss.Color("3")),
		speaker: map[negotiation.Speaker]lipgloss.Style{
			negotiation.SpeakerA: r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
			negotiation.SpeakerB: r.NewStyle().Bold(true).Foreground(lipgloss.Color("5")),
		},
		dim:    r.NewStyle().Faint(true),
		banner: r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		good:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		bad:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		score:  r.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

// SetWidth sets the wrap width for message bodies. Zero disables wrapping.
func (p *Printer) SetWidth(n int) { p.width = n }

// Emit renders one engine event. It has the shape of negotiation.EmitFunc.
func (p *Printer) Emit(event string, payload any) {
	switch v := payload.(type) {
	case negotiation.SessionInfo:
		p.PrintBanner(v.Topic)
	case negotiation.StatusUpdate:
		p.PrintStatus(v)
	case negotiation.Message:
		p.PrintMessage(v)
	case *negotiation.Summary:
		p.PrintSummary(v)
	case negotiation.ErrorPayload:
		p.PrintError(v.Error)
	case negotiation.Done:
		fmt.Fprintln(p.w, p.dim.Render("session "+v.SessionID+" finished"))
	}
}

func (p *Printer) PrintBanner(topic string) {
	fmt.Fprintf(p.w, "\n%s\n\n", p.banner.Render("=== Negotiation: "+topic+" ==="))
}

func (p *Printer) PrintStatus(s negotiation.StatusUpdate) {
	if s.Round == negotiation.SummaryRound {
		fmt.Fprintln(p.w, p.dim.Render("analyzing the outcome..."))
		return
	}
	fmt.Fprintln(p.w, p.dim.Render(fmt.Sprintf("%s is thinking (round %d)...", p.names[s.Speaker], s.Round)))
}

// PrintMessage prints a turn in full, wrapped but never truncated.
func (p *Printer) PrintMessage(m negotiation.Message) {
	body := m.Content
	if p.width > 0 {
		body = wordwrap.String(body, p.width)
	}
	fmt.Fprintf(p.w, "%s %s:\n%s\n\n",
		p.round.Render(fmt.Sprintf("[Round %d]", m.Round)),
		p.speaker[m.Speaker].Render(p.names[m.Speaker]),
		body,
	)
}

func (p *Printer) PrintSummary(s *negotiation.Summary) {
	if s == nil {
		return
	}
	fmt.Fprintf(p.w, "\n%s\n\n", p.banner.Render("=== Outcome ==="))

	consensus := p.bad.Render("No")
	if s.ConsensusReached {
		consensus = p.good.Render("Yes")
	}
	fmt.Fprintf(p.w, "Consensus reached: %s\n", consensus)
	fmt.Fprintf(p.w, "Convergence: %s (%s)\n",
		p.score.Render(fmt.Sprintf("%d/100", s.ConvergenceScore)),
		summary.TierFor(s.ConvergenceScore).Label(),
	)
	if s.FinalProposal != "" {
		fmt.Fprintf(p.w, "Final proposal: %s\n", s.FinalProposal)
	}
	p.printList("Agreement terms", s.AgreementTerms)
	p.printList(p.names[negotiation.SpeakerA]+" conceded", s.PartyAConcessions)
	p.printList(p.names[negotiation.SpeakerB]+" conceded", s.PartyBConcessions)
	p.printList("Unresolved", s.UnresolvedDisputes)
	if s.SummaryText != "" {
		text := s.SummaryText
		if p.width > 0 {
			text = wordwrap.String(text, p.width)
		}
		fmt.Fprintf(p.w, "\n%s\n", text)
	}
}

func (p *Printer) printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(p.w, "%s:\n  - %s\n", title, strings.Join(items, "\n  - "))
}

func (p *Printer) PrintError(msg string) {
	fmt.Fprintf(p.w, "%s %s\n", p.bad.Render("error:"), msg)
}
