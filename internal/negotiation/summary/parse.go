package summary

import (
	"math"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
)

// Unavailable is the single unresolved dispute of a degraded summary.
const Unavailable = "structured summary unavailable"

var objectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Parse turns a model response into a summary. It never fails: text that
// holds no JSON object becomes a degraded summary carrying the raw text.
func Parse(raw string) *negotiation.Summary {
	if s, ok := parse(raw); ok {
		return s
	}
	return Degraded(raw)
}

// parse tries the response as a whole, then the largest {...} span in it.
func parse(raw string) (*negotiation.Summary, bool) {
	trimmed := strings.TrimSpace(raw)
	if obj, ok := object(trimmed); ok {
		return decode(obj), true
	}
	if span := objectRe.FindString(raw); span != "" {
		if obj, ok := object(span); ok {
			return decode(obj), true
		}
	}
	return nil, false
}

func object(text string) (gjson.Result, bool) {
	if !gjson.Valid(text) {
		return gjson.Result{}, false
	}
	r := gjson.Parse(text)
	return r, r.IsObject()
}

// Degraded is the summary used when no structured output could be obtained.
func Degraded(text string) *negotiation.Summary {
	return &negotiation.Summary{
		ConsensusReached:   false,
		ConvergenceScore:   0,
		AgreementTerms:     []string{},
		PartyAConcessions:  []string{},
		PartyBConcessions:  []string{},
		UnresolvedDisputes: []string{Unavailable},
		SummaryText:        text,
	}
}

// decode reads fields leniently: numbers may arrive as strings or floats,
// booleans as "true", and missing lists become empty.
func decode(obj gjson.Result) *negotiation.Summary {
	s := &negotiation.Summary{
		ConsensusReached:   obj.Get("consensus_reached").Bool(),
		ConvergenceScore:   percent(obj.Get("convergence_score")),
		FinalProposal:      obj.Get("final_proposal").String(),
		AgreementTerms:     list(obj.Get("agreement_terms")),
		PartyAConcessions:  list(obj.Get("party_a_concessions")),
		PartyBConcessions:  list(obj.Get("party_b_concessions")),
		UnresolvedDisputes: list(obj.Get("unresolved_disputes")),
		SummaryText:        obj.Get("summary_text").String(),
		PartyAStyle:        style(obj.Get("party_a_style")),
		PartyBStyle:        style(obj.Get("party_b_style")),
		SatisfactionA:      optionalPercent(obj.Get("satisfaction_a")),
		SatisfactionB:      optionalPercent(obj.Get("satisfaction_b")),
	}

	if tps := obj.Get("turning_points"); tps.IsArray() {
		for _, tp := range tps.Array() {
			if !tp.IsObject() {
				continue
			}
			s.TurningPoints = append(s.TurningPoints, negotiation.TurningPoint{
				Round:       int(tp.Get("round").Int()),
				Speaker:     negotiation.Speaker(strings.ToUpper(tp.Get("speaker").String())),
				Description: tp.Get("description").String(),
				Impact:      tp.Get("impact").String(),
			})
		}
	}

	if rl := obj.Get("red_line_analysis"); rl.IsObject() {
		s.RedLineAnalysis = &negotiation.RedLineAnalysis{
			PartyAMaintained: rl.Get("party_a_maintained").Bool(),
			PartyBMaintained: rl.Get("party_b_maintained").Bool(),
			Details:          rl.Get("details").String(),
		}
	}
	return s
}

func list(r gjson.Result) []string {
	out := []string{}
	if !r.IsArray() {
		return out
	}
	for _, item := range r.Array() {
		if v := strings.TrimSpace(item.String()); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func style(r gjson.Result) *negotiation.StyleAnalysis {
	if !r.IsObject() {
		return nil
	}
	return &negotiation.StyleAnalysis{
		Label:           r.Get("label").String(),
		Description:     r.Get("description").String(),
		Cooperativeness: percent(r.Get("cooperativeness")),
		Flexibility:     percent(r.Get("flexibility")),
	}
}

// percent rounds r to an integer clamped to 0..100.
func percent(r gjson.Result) int {
	return clamp(int(math.Round(r.Float())))
}

func optionalPercent(r gjson.Result) *int {
	if r.Type != gjson.Number && r.Type != gjson.String {
		return nil
	}
	v := percent(r)
	return &v
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
