package patch

import (
	"strings"
	"testing"
)

const sampleDoc = "# Title\n\n## Introduction\n\nIntro text here.\n\n### Background\n\nBackground text.\n\n## Methods\n\nMethods text.\n"

func TestApplyReplace(t *testing.T) {
	e := NewEngine(nil)
	doc := "## A\nfoo\n## B\nbar\n"

	got, applied := e.Apply(doc, []Patch{
		{Action: ActionReplace, TargetSection: "## A", NewContent: "baz"},
	})
	want := "## A\n\nbaz\n\n## B\nbar\n"
	if got != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}
	if len(applied) != 1 {
		t.Errorf("applied = %d patches, want 1", len(applied))
	}
}

func TestApplyReplaceKeepsHeading(t *testing.T) {
	e := NewEngine(nil)
	got, _ := e.Apply(sampleDoc, []Patch{
		{Action: ActionReplace, TargetSection: "## Methods", NewContent: "New methods text."},
	})
	if !strings.Contains(got, "## Methods") {
		t.Error("replace removed the heading")
	}
	if strings.Contains(got, "Methods text.") {
		t.Error("replace kept the old body")
	}
	if !strings.Contains(got, "New methods text.") {
		t.Error("replace missing the new body")
	}
}

func TestApplyReplaceSubsectionStopsAtSibling(t *testing.T) {
	e := NewEngine(nil)
	got, _ := e.Apply(sampleDoc, []Patch{
		{Action: ActionReplace, TargetSection: "### Background", NewContent: "New background."},
	})
	// Replacing a level-3 section must not eat the following level-2 one.
	if !strings.Contains(got, "## Methods") || !strings.Contains(got, "Methods text.") {
		t.Errorf("replace of subsection damaged the next chapter: %q", got)
	}
	if strings.Contains(got, "Background text.") {
		t.Error("old subsection body survived")
	}
}

func TestApplyInsertAfter(t *testing.T) {
	e := NewEngine(nil)
	got, _ := e.Apply(sampleDoc, []Patch{
		{Action: ActionInsertAfter, TargetSection: "## Introduction", NewContent: "Appended paragraph."},
	})
	introEnd := strings.Index(got, "Appended paragraph.")
	methods := strings.Index(got, "## Methods")
	if introEnd < 0 {
		t.Fatal("inserted content missing")
	}
	if methods < introEnd {
		t.Errorf("content inserted after the wrong section: %q", got)
	}
	if !strings.Contains(got, "Intro text here.") {
		t.Error("insert removed existing content")
	}
}

func TestApplyDelete(t *testing.T) {
	e := NewEngine(nil)
	got, _ := e.Apply(sampleDoc, []Patch{
		{Action: ActionDelete, TargetSection: "## Methods"},
	})
	if strings.Contains(got, "## Methods") || strings.Contains(got, "Methods text.") {
		t.Errorf("delete left the section behind: %q", got)
	}
	if !strings.Contains(got, "## Introduction") {
		t.Error("delete removed an unrelated section")
	}
}

func TestApplyFuzzyTarget(t *testing.T) {
	e := NewEngine(nil)
	// Slight drift in the target heading should still match.
	got, applied := e.Apply(sampleDoc, []Patch{
		{Action: ActionReplace, TargetSection: "## Introductions", NewContent: "Matched anyway."},
	})
	if len(applied) != 1 {
		t.Fatalf("fuzzy target not applied, doc: %q", got)
	}
	if !strings.Contains(got, "Matched anyway.") {
		t.Error("fuzzy replace did not take effect")
	}
}

func TestApplySkipsBelowThreshold(t *testing.T) {
	e := NewEngine(nil)
	got, applied := e.Apply(sampleDoc, []Patch{
		{Action: ActionReplace, TargetSection: "## Completely Unrelated Heading Text", NewContent: "x"},
	})
	if got != sampleDoc {
		t.Errorf("below-threshold patch changed the document")
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d, want 0", len(applied))
	}
}

func TestApplySkipsUnknownAction(t *testing.T) {
	e := NewEngine(nil)
	got, applied := e.Apply(sampleDoc, []Patch{
		{Action: "MERGE", TargetSection: "## Methods", NewContent: "x"},
	})
	if got != sampleDoc || len(applied) != 0 {
		t.Error("unknown action should be skipped")
	}
}

func TestDecodeBareList(t *testing.T) {
	e := NewEngine(nil)
	payload := `[{"action": "DELETE", "target_section": "## Methods"}]`
	patches, err := e.Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(patches) != 1 || patches[0].Action != ActionDelete {
		t.Errorf("Decode = %+v", patches)
	}
}

func TestDecodeWrapper(t *testing.T) {
	e := NewEngine(nil)
	payload := "Here are the patches:\n```json\n{\"patches\": [{\"action\": \"REPLACE\", \"target_section\": \"## A\", \"new_content\": \"b\"}]}\n```"
	patches, err := e.Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(patches) != 1 || patches[0].TargetSection != "## A" {
		t.Errorf("Decode = %+v", patches)
	}
}

func TestApplyJSONBadPayload(t *testing.T) {
	e := NewEngine(nil)
	got, applied := e.ApplyJSON(sampleDoc, "not json at all")
	if got != sampleDoc {
		t.Error("undecodable payload must leave the document unchanged")
	}
	if applied != nil {
		t.Errorf("applied = %+v, want nil", applied)
	}
}

func TestExtractSection(t *testing.T) {
	section, ok := ExtractSection(sampleDoc, "## Methods")
	if !ok {
		t.Fatal("section not found")
	}
	if !strings.HasPrefix(section, "## Methods") || !strings.Contains(section, "Methods text.") {
		t.Errorf("ExtractSection = %q", section)
	}
	if strings.Contains(section, "Intro text") {
		t.Error("section includes content from another chapter")
	}

	if _, ok := ExtractSection(sampleDoc, "## Nothing Like This At All"); ok {
		t.Error("unrelated title should not match")
	}
}

func TestSimilarity(t *testing.T) {
	if got := similarity("## A", "## A"); got != 100 {
		t.Errorf("identical strings = %d, want 100", got)
	}
	if got := similarity("", ""); got != 100 {
		t.Errorf("empty strings = %d, want 100", got)
	}
	if got := similarity("## Introduction", "## Introductions"); got < SimilarityThreshold {
		t.Errorf("near-identical headings = %d, want >= %d", got, SimilarityThreshold)
	}
	if got := similarity("## Alpha", "## Omega Something Else"); got >= SimilarityThreshold {
		t.Errorf("unrelated headings = %d, want < %d", got, SimilarityThreshold)
	}
}

func TestSplitLinesRoundTrip(t *testing.T) {
	cases := []string{"", "a", "a\n", "a\nb", "a\nb\n", "\n\n"}
	for _, in := range cases {
		if got := strings.Join(splitLines(in), ""); got != in {
			t.Errorf("splitLines(%q) does not round-trip: %q", in, got)
		}
	}
}
