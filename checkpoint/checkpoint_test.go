package checkpoint

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/richinex/longform/outline"
	"github.com/richinex/longform/patch"
)

func testState() State {
	return State{
		Iteration:             2,
		CurrentSolution:       "# Doc\n\n## A\n\nbody\n",
		FeedbackHistory:       []string{"first critique"},
		InitialProblem:        "write the doc",
		InitialSolutionTarget: 20000,
		MaxIterations:         7,
		ExternalDataChecksum:  "abc123",
		DocumentOutline: &outline.Outline{
			Title:    "Doc",
			Chapters: []*outline.Chapter{{Title: "A", AllocatedChars: 20000}},
		},
		SuccessfulPatches: []patch.Patch{
			{Action: patch.ActionReplace, TargetSection: "## A", NewContent: "x"},
		},
		ResearchBriefsHistory: []string{"brief one"},
		StyleGuide:            "plain voice",
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	if err := store.Save(testState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok := store.Load()
	if !ok {
		t.Fatal("Load returned no state")
	}

	want := testState()
	if got.Iteration != want.Iteration ||
		got.CurrentSolution != want.CurrentSolution ||
		got.InitialProblem != want.InitialProblem ||
		got.ExternalDataChecksum != want.ExternalDataChecksum ||
		got.StyleGuide != want.StyleGuide {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.SuccessfulPatches) != 1 || got.SuccessfulPatches[0].Action != patch.ActionReplace {
		t.Errorf("patches = %+v", got.SuccessfulPatches)
	}
	if got.DocumentOutline == nil || got.DocumentOutline.Chapters[0].Title != "A" {
		t.Errorf("outline = %+v", got.DocumentOutline)
	}
}

func TestLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	if _, ok := store.Load(); ok {
		t.Error("Load of missing checkpoint should report no state")
	}
}

func TestLoadCorruptDeletes(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	if err := os.WriteFile(store.Path(), []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	if _, ok := store.Load(); ok {
		t.Error("corrupt checkpoint should not load")
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("corrupt checkpoint should be deleted")
	}
}

func TestLoadIncompatibleVersionDeletes(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	env := map[string]any{
		"metadata": map[string]any{"version": 99},
		"state":    map[string]any{},
	}
	data, _ := json.Marshal(env)
	if err := os.WriteFile(store.Path(), data, 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, ok := store.Load(); ok {
		t.Error("incompatible checkpoint should not load")
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("incompatible checkpoint should be deleted")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	store.Delete() // nothing to delete; must not panic or log fatally

	if err := store.Save(testState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.Delete()
	if _, ok := store.Load(); ok {
		t.Error("state survived Delete")
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	first := testState()
	if err := store.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := testState()
	second.Iteration = 5
	if err := store.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok := store.Load()
	if !ok || got.Iteration != 5 {
		t.Errorf("Load after overwrite = %+v, %v", got, ok)
	}
}
