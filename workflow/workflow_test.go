package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/richinex/longform/budget"
	"github.com/richinex/longform/checkpoint"
	"github.com/richinex/longform/config"
	"github.com/richinex/longform/llm"
	"github.com/richinex/longform/patch"
	"github.com/richinex/longform/storage"
)

const testOutlineJSON = `{
  "title": "Test Document",
  "outline": [
    {
      "title": "Alpha",
      "description": "first chapter",
      "target_share": 0.6,
      "sections": [
        {"title": "One", "description": "part one", "target_share": 0.5},
        {"title": "Two", "description": "part two", "target_share": 0.5}
      ]
    },
    {"title": "Beta", "description": "second chapter", "target_share": 0.4}
  ]
}`

// fakeModel scripts responses per role.
type fakeModel struct {
	critiques    []string
	critiqueIdx  int
	patchPayload string
	fixedPayload string
	failPolish   bool
	authorText   string

	criticPrompts []string
	qualityCalls  int
}

func (f *fakeModel) Call(ctx context.Context, role llm.Role, messages []llm.ChatMessage, maxTokens int, temperature float32) llm.Result {
	prompt := messages[len(messages)-1].Content
	switch role {
	case llm.RoleEditor:
		switch {
		case strings.Contains(prompt, "concluding chapter"):
			return llm.Ok("In sum, the matter is settled.")
		case strings.Contains(prompt, "final editing pass"):
			if f.failPolish {
				return llm.Fail(llm.ErrAPI, "polish rejected")
			}
			return llm.Ok(prompt[strings.Index(prompt, "# "):])
		default:
			return llm.Ok("Write in a direct, factual register.")
		}
	case llm.RoleCritic:
		if strings.Contains(prompt, "quality verdict") {
			f.qualityCalls++
			return llm.Ok("Strong throughout; quality verdict: good.")
		}
		f.criticPrompts = append(f.criticPrompts, prompt)
		if f.critiqueIdx >= len(f.critiques) {
			return llm.Ok("no further revisions needed")
		}
		c := f.critiques[f.critiqueIdx]
		f.critiqueIdx++
		return llm.Ok(c)
	case llm.RoleSummarizer:
		return llm.Ok("a compact summary")
	case llm.RoleAuthor, llm.RoleAuthorHeavy:
		if f.authorText != "" {
			return llm.Ok(f.authorText)
		}
		return llm.Ok("Generated prose for this section of the test document.")
	default:
		return llm.Fail(llm.ErrAPI, "unexpected role "+string(role))
	}
}

func (f *fakeModel) CallJSON(ctx context.Context, role llm.Role, messages []llm.ChatMessage, maxTokens int, temperature float32) llm.Result {
	switch role {
	case llm.RoleOutliner:
		return llm.Ok(testOutlineJSON)
	case llm.RoleAuthor:
		return llm.Ok(f.patchPayload)
	case llm.RoleJSONFixer:
		if f.fixedPayload == "" {
			return llm.Fail(llm.ErrAPI, "no repair available")
		}
		return llm.Ok(f.fixedPayload)
	default:
		return llm.Fail(llm.ErrAPI, "unexpected role "+string(role))
	}
}

type fakeResearcher struct {
	gaps  []string
	brief string
}

func (f *fakeResearcher) Run(ctx context.Context, gaps []string, docContext string) string {
	f.gaps = append(f.gaps, gaps...)
	return f.brief
}

type fakeSink struct {
	texts     []string
	kinds     []string
	retrieved []string
	entries   []storage.Entry
}

func (f *fakeSink) Add(ctx context.Context, texts []string, metadatas []storage.Metadata, ids []string) error {
	f.texts = append(f.texts, texts...)
	for _, m := range metadatas {
		f.kinds = append(f.kinds, m.Kind)
	}
	return nil
}

func (f *fakeSink) Retrieve(ctx context.Context, problem string, limit int) ([]storage.Entry, error) {
	f.retrieved = append(f.retrieved, problem)
	return f.entries, nil
}

func testSettings() config.Settings {
	return config.Settings{
		MaxIterations:       3,
		TargetChars:         300,
		MinSectionChars:     50,
		MaxChunksPerSection: 2,
		MaxChunkTokens:      100,
		OverlapChars:        50,
		ReviewBudget:        100000,
		ExternalBudget:      8000,
		SummaryBudget:       6000,
		SubsectionTail:      4000,
		StandaloneTail:      6000,
		CritiquePrev:        6000,
		ConclusionBudget:    8000,
		PolishBudget:        100000,
	}
}

func newTestController(t *testing.T, model Model, researcher Researcher, sink Experience) (*Controller, *checkpoint.Store) {
	t.Helper()
	store := checkpoint.NewStore(t.TempDir(), nil)
	c := NewController(testSettings(), model, patch.NewEngine(nil), researcher, store, sink, budget.NewApproxCounter(), nil)
	return c, store
}

func TestRunFullLoop(t *testing.T) {
	model := &fakeModel{
		critiques: []string{
			"Chapter Beta is thin.\n\n### KNOWLEDGE GAPS ###\n1. gap one\n",
		},
		patchPayload: `{"patches": [{"action": "REPLACE", "target_section": "## Beta", "new_content": "Patched body."}]}`,
		failPolish:   true,
	}
	researcher := &fakeResearcher{brief: "URL: x\nQuery: gap one\nSummary:\nfound facts\n"}
	sink := &fakeSink{}
	c, store := newTestController(t, model, researcher, sink)

	outcome, err := c.Run(context.Background(), Request{Problem: "write about testing"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, want := range []string{
		"# Test Document",
		"## Alpha", "### One", "### Two", "## Beta",
		"Patched body.",
		"## Conclusion", "In sum, the matter is settled.",
	} {
		if !strings.Contains(outcome.Document, want) {
			t.Errorf("document missing %q", want)
		}
	}

	if len(outcome.FeedbackHistory) != 2 {
		t.Errorf("feedback entries = %d, want 2", len(outcome.FeedbackHistory))
	}
	if len(outcome.Patches) != 1 {
		t.Errorf("applied patches = %d, want 1", len(outcome.Patches))
	}
	if len(outcome.ResearchBriefs) != 1 {
		t.Errorf("research briefs = %d, want 1", len(outcome.ResearchBriefs))
	}
	if outcome.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", outcome.Iterations)
	}

	if len(researcher.gaps) != 1 || researcher.gaps[0] != "gap one" {
		t.Errorf("researcher gaps = %#v", researcher.gaps)
	}
	wantKinds := []string{"feedback", "final_solution", "research_brief", "patches"}
	if len(sink.kinds) != len(wantKinds) {
		t.Fatalf("experience kinds = %#v, want %#v", sink.kinds, wantKinds)
	}
	for i, want := range wantKinds {
		if sink.kinds[i] != want {
			t.Errorf("experience kind[%d] = %q, want %q", i, sink.kinds[i], want)
		}
	}
	if !strings.Contains(sink.texts[1], "# Test Document") {
		t.Error("final document not stored in experience")
	}
	if !strings.Contains(sink.texts[2], "found facts") {
		t.Error("research brief not stored in experience")
	}
	if len(sink.retrieved) != 1 || sink.retrieved[0] != "write about testing" {
		t.Errorf("experience retrieval = %#v", sink.retrieved)
	}

	for _, p := range model.criticPrompts {
		if !strings.Contains(p, "write about testing") {
			t.Error("critique prompt missing the task statement")
		}
	}
	if model.qualityCalls != 1 {
		t.Errorf("quality report calls = %d, want 1", model.qualityCalls)
	}

	if _, ok := store.Load(); ok {
		t.Error("checkpoint should be deleted after a finished run")
	}
}

func TestRunRepairsMalformedPatchPayload(t *testing.T) {
	model := &fakeModel{
		critiques: []string{
			"Beta needs work.",
		},
		patchPayload: `{"patches": [{"action": "REPLACE", "target_section": "## Beta", "new_content": "Repaired body."},]`,
		fixedPayload: `{"patches": [{"action": "REPLACE", "target_section": "## Beta", "new_content": "Repaired body."}]}`,
		failPolish:   true,
	}
	c, _ := newTestController(t, model, nil, nil)

	outcome, err := c.Run(context.Background(), Request{Problem: "write about testing"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(outcome.Document, "Repaired body.") {
		t.Error("repaired patch payload not applied")
	}
	if len(outcome.Patches) != 1 {
		t.Errorf("applied patches = %d, want 1", len(outcome.Patches))
	}
}

func TestRunEmptyProblem(t *testing.T) {
	c, _ := newTestController(t, &fakeModel{}, nil, nil)
	if _, err := c.Run(context.Background(), Request{Problem: "  "}); err == nil {
		t.Error("expected error for empty problem")
	}
}

func TestRunResumesMatchingCheckpoint(t *testing.T) {
	model := &fakeModel{failPolish: true}
	c, store := newTestController(t, model, nil, nil)

	resumedDoc := "# Test Document\n\n## Resumed\n\nBody carried over RESUMEMARK.\n"
	err := store.Save(checkpoint.State{
		Iteration:            3, // already at the cap; loop is skipped
		CurrentSolution:      resumedDoc,
		InitialProblem:       "write about testing",
		ExternalDataChecksum: budget.Checksum(""),
		StyleGuide:           "Checkpointed style guide.",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	outcome, runErr := c.Run(context.Background(), Request{Problem: "write about testing"})
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if !strings.Contains(outcome.Document, "RESUMEMARK") {
		t.Error("resumed document content lost")
	}
	if !strings.Contains(outcome.Document, "## Conclusion") {
		t.Error("conclusion not appended to resumed document")
	}
	if len(model.criticPrompts) != 0 {
		t.Error("critic should not run past the iteration cap")
	}
}

func TestRunDiscardsForeignCheckpoint(t *testing.T) {
	model := &fakeModel{
		patchPayload: `{"patches": []}`,
		failPolish:   true,
	}
	c, store := newTestController(t, model, nil, nil)

	err := store.Save(checkpoint.State{
		Iteration:            3,
		CurrentSolution:      "# Other Document\n\n## Foreign\n\nFOREIGNMARK\n",
		InitialProblem:       "a different problem entirely",
		ExternalDataChecksum: budget.Checksum(""),
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	outcome, runErr := c.Run(context.Background(), Request{Problem: "write about testing"})
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if strings.Contains(outcome.Document, "FOREIGNMARK") {
		t.Error("foreign checkpoint content leaked into a fresh run")
	}
	if !strings.Contains(outcome.Document, "## Alpha") {
		t.Error("fresh run did not generate from the outline")
	}
}

func TestRunCallerStyleGuideWins(t *testing.T) {
	model := &fakeModel{failPolish: true}
	c, store := newTestController(t, model, nil, nil)

	err := store.Save(checkpoint.State{
		Iteration:            3,
		CurrentSolution:      "# Doc\n\n## Kept\n\nbody\n",
		InitialProblem:       "p",
		ExternalDataChecksum: budget.Checksum(""),
		StyleGuide:           "checkpointed guide",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// With an explicit style guide the checkpointed one is ignored and no
	// editor call is needed to generate one.
	if _, err := c.Run(context.Background(), Request{Problem: "p", StyleGuide: "caller guide"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestGenerateSectionCountsRunes(t *testing.T) {
	// 40 runes but 120 bytes; byte counting would overshoot a 100-char
	// allocation after one chunk and skip the continuation.
	chunk := strings.Repeat("字", 40)
	model := &fakeModel{authorText: chunk}
	c, _ := newTestController(t, model, nil, nil)

	got := c.generateSection(context.Background(), "packet", 100)
	if n := strings.Count(got, chunk); n != 2 {
		t.Errorf("chunks written = %d, want 2", n)
	}
}
