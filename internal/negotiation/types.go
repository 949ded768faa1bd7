package negotiation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lorenzotomasdiez/negotiator/internal/llm"
)

const (
	TotalRounds       = 3
	MaxTopicLength    = 200
	MaxPositionLength = 500
)

var (
	ErrSessionNotFound = errors.New("negotiation: session not found")
	ErrAlreadyStarted  = errors.New("negotiation: session already started")
)

var instanceIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Status is the lifecycle state of a session. Transitions only move forward:
// pending -> in_progress -> completed | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Speaker identifies one of the two parties.
type Speaker string

const (
	SpeakerA Speaker = "A"
	SpeakerB Speaker = "B"
)

// Backend selects which model gateway speaks for a party.
type Backend string

const (
	BackendDefault Backend = "default"
	BackendPremium Backend = "premium"
)

// Party is one side of the negotiation. Position and RedLine are confidential
// and never serialized.
type Party struct {
	Name       string  `json:"name"`
	InstanceID string  `json:"instance_id"`
	Position   string  `json:"-"`
	RedLine    string  `json:"-"`
	Backend    Backend `json:"backend"`
}

// Message is one turn of the transcript. Never mutated after creation.
type Message struct {
	ID        string    `json:"id"`
	Round     int       `json:"round"`
	Speaker   Speaker   `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// StyleAnalysis describes how a party negotiated.
type StyleAnalysis struct {
	Label           string `json:"label"`
	Description     string `json:"description"`
	Cooperativeness int    `json:"cooperativeness"`
	Flexibility     int    `json:"flexibility"`
}

// TurningPoint marks a turn that moved the negotiation.
type TurningPoint struct {
	Round       int     `json:"round"`
	Speaker     Speaker `json:"speaker"`
	Description string  `json:"description"`
	Impact      string  `json:"impact"`
}

// RedLineAnalysis reports whether each party held its red line.
type RedLineAnalysis struct {
	PartyAMaintained bool   `json:"party_a_maintained"`
	PartyBMaintained bool   `json:"party_b_maintained"`
	Details          string `json:"details"`
}

// Summary is the structured outcome of a negotiation. List fields are never
// nil once produced by the summary generator.
type Summary struct {
	ConsensusReached   bool     `json:"consensus_reached"`
	ConvergenceScore   int      `json:"convergence_score"`
	FinalProposal      string   `json:"final_proposal"`
	AgreementTerms     []string `json:"agreement_terms"`
	PartyAConcessions  []string `json:"party_a_concessions"`
	PartyBConcessions  []string `json:"party_b_concessions"`
	UnresolvedDisputes []string `json:"unresolved_disputes"`
	SummaryText        string   `json:"summary_text"`

	PartyAStyle     *StyleAnalysis   `json:"party_a_style,omitempty"`
	PartyBStyle     *StyleAnalysis   `json:"party_b_style,omitempty"`
	TurningPoints   []TurningPoint   `json:"turning_points,omitempty"`
	SatisfactionA   *int             `json:"satisfaction_a,omitempty"`
	SatisfactionB   *int             `json:"satisfaction_b,omitempty"`
	RedLineAnalysis *RedLineAnalysis `json:"red_line_analysis,omitempty"`
}

// SummaryInput is everything the summary generator sees.
type SummaryInput struct {
	Topic      string
	PartyA     Party
	PartyB     Party
	Messages   []Message
	Structured llm.Gateway // optional premium gateway for the JSON path
}

// Summarizer produces the structured summary of a finished dialogue. It only
// returns an error when ctx is done; upstream failures degrade the summary.
type Summarizer interface {
	Summarize(ctx context.Context, in SummaryInput) (*Summary, error)
}

// CreateRequest is the payload accepted when creating a session.
type CreateRequest struct {
	Topic         string `json:"topic"`
	InstanceAID   string `json:"instance_a_id"`
	InstanceAName string `json:"instance_a_name"`
	PositionA     string `json:"position_a"`
	InstanceBID   string `json:"instance_b_id"`
	InstanceBName string `json:"instance_b_name"`
	PositionB     string `json:"position_b"`
	RedLineA      string `json:"red_line_a,omitempty"`
	RedLineB      string `json:"red_line_b,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
}

const (
	ReasonMissing       = "missing required fields"
	ReasonInvalidFormat = "invalid instance ID format"
)

// ValidationError is returned for a request rejected before any session exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("negotiation: %s: %s", e.Field, e.Reason)
}

// Validate checks required fields first, then instance identifier format.
func (r CreateRequest) Validate() error {
	required := []struct{ field, value string }{
		{"topic", r.Topic},
		{"instance_a_id", r.InstanceAID},
		{"instance_b_id", r.InstanceBID},
		{"position_a", r.PositionA},
		{"position_b", r.PositionB},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.field, Reason: ReasonMissing}
		}
	}
	if !ValidInstanceID(r.InstanceAID) {
		return &ValidationError{Field: "instance_a_id", Reason: ReasonInvalidFormat}
	}
	if !ValidInstanceID(r.InstanceBID) {
		return &ValidationError{Field: "instance_b_id", Reason: ReasonInvalidFormat}
	}
	return nil
}

// ValidInstanceID reports whether id only uses letters, digits, '_' and '-'.
func ValidInstanceID(id string) bool {
	return instanceIDRe.MatchString(id)
}

// truncate cuts s to at most n characters (runes, not bytes).
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Session is the live state of one negotiation. The store hands out the same
// pointer to every caller; the mutex guards the mutable fields.
type Session struct {
	ID          string
	Topic       string
	PartyA      Party
	PartyB      Party
	CreatedAt   time.Time
	accessToken string

	mu       sync.RWMutex
	status   Status
	messages []Message
	summary  *Summary
	err      string
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Messages returns a copy of the transcript so far.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Summary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

func (s *Session) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) AccessToken() string { return s.accessToken }

// Party returns the party record for speaker.
func (s *Session) Party(sp Speaker) Party {
	if sp == SpeakerB {
		return s.PartyB
	}
	return s.PartyA
}

// begin performs the single pending -> in_progress transition.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPending {
		return fmt.Errorf("%w (status %s)", ErrAlreadyStarted, s.status)
	}
	s.status = StatusInProgress
	return nil
}

func (s *Session) appendMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

func (s *Session) complete(sum *Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusInProgress {
		return
	}
	s.summary = sum
	s.status = StatusCompleted
}

func (s *Session) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.err = msg
	s.status = StatusFailed
}

// View is the redacted, serializable form of a session.
type View struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Status    Status    `json:"status"`
	PartyA    Party     `json:"party_a"`
	PartyB    Party     `json:"party_b"`
	Messages  []Message `json:"messages"`
	Summary   *Summary  `json:"summary"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot returns a consistent view of the session without positions, red
// lines or the access token.
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return View{
		ID:        s.ID,
		Topic:     s.Topic,
		Status:    s.status,
		PartyA:    s.PartyA,
		PartyB:    s.PartyB,
		Messages:  msgs,
		Summary:   s.summary,
		Error:     s.err,
		CreatedAt: s.CreatedAt,
	}
}
