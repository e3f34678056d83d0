package workflow

import (
	"reflect"
	"testing"
)

func TestExtractKnowledgeGaps(t *testing.T) {
	critique := `The argument in chapter two is weak.

### KNOWLEDGE GAPS ###
1. Adoption figures for 2024 are asserted without a source.
2. The claimed latency numbers
   need verification against vendor benchmarks.

## Other notes
More criticism here.`

	got := ExtractKnowledgeGaps(critique)
	want := []string{
		"Adoption figures for 2024 are asserted without a source.",
		"The claimed latency numbers need verification against vendor benchmarks.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestExtractKnowledgeGapsBulletMarkers(t *testing.T) {
	critique := "# KNOWLEDGE GAPS\n- first gap\n* second gap\n"
	got := ExtractKnowledgeGaps(critique)
	want := []string{"first gap", "second gap"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestExtractKnowledgeGapsHeaderVariants(t *testing.T) {
	for _, header := range []string{
		"KNOWLEDGE GAPS",
		"## Knowledge Gaps",
		"### KNOWLEDGE GAPS ###",
		"**Knowledge Gaps:**",
	} {
		critique := header + "\n1. a gap\n"
		got := ExtractKnowledgeGaps(critique)
		if len(got) != 1 || got[0] != "a gap" {
			t.Errorf("header %q: got %#v", header, got)
		}
	}
}

func TestExtractKnowledgeGapsAbsent(t *testing.T) {
	if got := ExtractKnowledgeGaps("a critique with no gap section"); len(got) != 0 {
		t.Errorf("got %#v, want none", got)
	}
}

func TestExtractKnowledgeGapsStopsAtNextHeading(t *testing.T) {
	critique := "## KNOWLEDGE GAPS\n1. real gap\n## Style\n1. not a gap\n"
	got := ExtractKnowledgeGaps(critique)
	if len(got) != 1 || got[0] != "real gap" {
		t.Errorf("got %#v", got)
	}
}

func TestIsComplete(t *testing.T) {
	cases := []struct {
		critique string
		want     bool
	}{
		{"Overall: No Further Revisions Needed.", true},
		{"there is no significant room for improvement here", true},
		{"I think the document is excellent as it stands.", true},
		{"The document needs substantial work on chapter three.", false},
	}
	for _, tc := range cases {
		if got := isComplete(tc.critique); got != tc.want {
			t.Errorf("isComplete(%q) = %v, want %v", tc.critique, got, tc.want)
		}
	}
}
