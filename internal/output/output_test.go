package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/lorenzotomasdiez/negotiator/internal/negotiation"
)

func TestGenerateSlug(t *testing.T) {
	got := GenerateSlug("Budget Split: Q3 / Marketing!")
	want := "budget-split-q3-marketing"
	if got != want {
		t.Errorf("GenerateSlug() = %q, want %q", got, want)
	}
	if got := GenerateSlug("!!!"); got != "negotiation" {
		t.Errorf("empty slug should fall back, got %q", got)
	}
}

func TestGenerateSlugMaxLength(t *testing.T) {
	long := strings.Repeat("word ", 20)
	got := GenerateSlug(long)
	if len(got) > 50 {
		t.Errorf("GenerateSlug() length = %d, want <= 50", len(got))
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("slug should not end with a hyphen: %q", got)
	}
}

func TestCreateOutputDir(t *testing.T) {
	base := t.TempDir()
	dir, err := CreateOutputDir(base, "test-topic")
	if err != nil {
		t.Fatalf("CreateOutputDir() error = %v", err)
	}
	pattern := regexp.MustCompile(`test-topic-\d{8}-\d{6}$`)
	if !pattern.MatchString(filepath.Base(dir)) {
		t.Errorf("dir base %q does not match expected pattern", filepath.Base(dir))
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("directory does not exist: %v", err)
	}
	if !info.IsDir() {
		t.Error("path is not a directory")
	}
}

func testView() negotiation.View {
	return negotiation.View{
		ID:     "s1",
		Topic:  "Budget split",
		Status: negotiation.StatusCompleted,
		PartyA: negotiation.Party{Name: "Alice", InstanceID: "alice"},
		PartyB: negotiation.Party{Name: "Bob", InstanceID: "bob"},
		Messages: []negotiation.Message{
			{ID: "m1", Round: 1, Speaker: negotiation.SpeakerA, Content: "60/40", Timestamp: time.Unix(0, 0)},
			{ID: "m2", Round: 1, Speaker: negotiation.SpeakerB, Content: "50/50", Timestamp: time.Unix(1, 0)},
		},
		Summary: &negotiation.Summary{
			ConsensusReached:   true,
			ConvergenceScore:   92,
			FinalProposal:      "55/45",
			AgreementTerms:     []string{"55/45 split"},
			PartyAConcessions:  []string{"dropped to 55"},
			PartyBConcessions:  []string{},
			UnresolvedDisputes: []string{},
			SummaryText:        "They met in the middle.",
		},
		CreatedAt: time.Unix(0, 0),
	}
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	if err := NewWriter(dir).WriteJSON(testView()); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "transcript.json"))
	if err != nil {
		t.Fatalf("reading transcript.json: %v", err)
	}
	var got negotiation.View
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if got.Topic != "Budget split" || len(got.Messages) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestWriteMarkdown(t *testing.T) {
	dir := t.TempDir()
	if err := NewWriter(dir).WriteMarkdown(testView()); err != nil {
		t.Fatalf("WriteMarkdown() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "report.md"))
	if err != nil {
		t.Fatalf("reading report.md: %v", err)
	}
	content := string(data)
	for _, check := range []string{"# Budget split", "Round 1 · Alice", "Round 1 · Bob", "92/100 (Full agreement)", "55/45 split", "Alice concessions"} {
		if !strings.Contains(content, check) {
			t.Errorf("report.md does not contain %q", check)
		}
	}
	if strings.Contains(content, "Bob concessions") {
		t.Error("empty sections should be omitted")
	}
}

func TestLogWritesImmediatelyToFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.Log("first entry")

	data, err := os.ReadFile(filepath.Join(dir, "negotiation.log"))
	if err != nil {
		t.Fatalf("negotiation.log should exist after Log(): %v", err)
	}
	if !strings.Contains(string(data), "first entry") {
		t.Error("negotiation.log should contain entry immediately after Log()")
	}

	w.Log("second entry")
	if err := w.WriteLog(); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "negotiation.log"))
	if strings.Count(string(data), "entry") != 2 {
		t.Errorf("log = %q", data)
	}
}

func TestPrinterEmit(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "Alice", "Bob")
	view := testView()

	p.Emit(negotiation.EventSessionInfo, negotiation.SessionInfo{Topic: view.Topic})
	p.Emit(negotiation.EventStatus, negotiation.StatusUpdate{Phase: "thinking", Speaker: negotiation.SpeakerB, Round: 2})
	p.Emit(negotiation.EventMessage, view.Messages[0])
	p.Emit(negotiation.EventStatus, negotiation.StatusUpdate{Phase: "thinking", Speaker: negotiation.SpeakerA, Round: 0})
	p.Emit(negotiation.EventSummary, view.Summary)
	p.Emit(negotiation.EventError, negotiation.ErrorPayload{Error: "upstream down"})

	out := buf.String()
	for _, want := range []string{
		"Negotiation: Budget split",
		"Bob is thinking (round 2)",
		"[Round 1]",
		"Alice",
		"60/40",
		"analyzing the outcome",
		"Consensus reached:",
		"Yes",
		"92/100",
		"Full agreement",
		"Alice conceded",
		"error:",
		"upstream down",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintMessageWrapsWithoutTruncating(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "Alice", "Bob")
	p.SetWidth(20)
	words := strings.Repeat("offer ", 40)
	p.PrintMessage(negotiation.Message{Round: 1, Speaker: negotiation.SpeakerA, Content: words})

	out := buf.String()
	if strings.Count(out, "offer") != 40 {
		t.Errorf("content truncated: %q", out)
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
		if len(line) > 20 {
			t.Errorf("line longer than wrap width: %q", line)
		}
	}
}
