package summary

import (
	"fmt"
	"strings"

	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
)

const systemPrompt = `You are an impartial negotiation analyst. Reply with a single JSON object that follows the requested shape exactly. Do not wrap it in markdown and do not add any other text.`

// SchemaHint describes the object the analysis must return.
const SchemaHint = `{
  "consensus_reached": boolean,
  "convergence_score": integer 0-100,
  "final_proposal": string,
  "agreement_terms": [string],
  "party_a_concessions": [string],
  "party_b_concessions": [string],
  "unresolved_disputes": [string],
  "summary_text": string,
  "party_a_style": {"label": string, "description": string, "cooperativeness": integer 0-100, "flexibility": integer 0-100},
  "party_b_style": {"label": string, "description": string, "cooperativeness": integer 0-100, "flexibility": integer 0-100},
  "turning_points": [{"round": integer, "speaker": "A" | "B", "description": string, "impact": "positive" | "negative"}],
  "satisfaction_a": integer 0-100,
  "satisfaction_b": integer 0-100,
  "red_line_analysis": {"party_a_maintained": boolean, "party_b_maintained": boolean, "details": string}
}`

// Transcript renders messages one per paragraph, labelled by round and party.
func Transcript(msgs []negotiation.Message, a, b negotiation.Party) string {
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		name := a.Name
		if m.Speaker == negotiation.SpeakerB {
			name = b.Name
		}
		fmt.Fprintf(&sb, "[Round %d] %s (party %s): %s", m.Round, name, m.Speaker, m.Content)
	}
	return sb.String()
}

// BuildPrompt writes the analysis request for a finished negotiation.
func BuildPrompt(in negotiation.SummaryInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze this negotiation about %q.\n\n", in.Topic)

	writeParty(&sb, "A", in.PartyA)
	writeParty(&sb, "B", in.PartyB)

	sb.WriteString("Transcript:\n")
	sb.WriteString(Transcript(in.Messages, in.PartyA, in.PartyB))
	sb.WriteString("\n\n")

	sb.WriteString(`Instructions:
- convergence_score estimates how close the two final stances are:
  90-100 full agreement, 70-89 near consensus, 50-69 partial convergence, 30-49 wide gap, 0-29 opposed.
- final_proposal is a compromise built from both final stances, whether or not consensus was reached.
- summary_text must cover both what the parties share and where they still disagree.
- The style, turning point, satisfaction and red line fields are optional. Omit any you cannot judge.

Return JSON with this shape:
`)
	sb.WriteString(SchemaHint)
	return sb.String()
}

func writeParty(sb *strings.Builder, label string, p negotiation.Party) {
	name := p.Name
	if name == "" {
		name = "Party " + label
	}
	fmt.Fprintf(sb, "Party %s (%s) confidential position:\n%s\n", label, name, orNone(p.Position))
	if p.RedLine != "" {
		fmt.Fprintf(sb, "Party %s red line:\n%s\n", label, p.RedLine)
	}
	sb.WriteString("\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(not provided)"
	}
	return s
}
