package cli

import (
	"testing"

	"github.com/richinex/longform/budget"
)

func TestNewLoggerLevels(t *testing.T) {
	if _, err := newLogger("info", false); err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if _, err := newLogger("not-a-level", false); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestExperienceSinkNilStore(t *testing.T) {
	if sink := experienceSink(nil); sink != nil {
		t.Errorf("nil store should yield a nil sink, got %#v", sink)
	}
}

func TestTokenCounterConstruction(t *testing.T) {
	c := budget.NewCounter()
	if c == nil {
		t.Fatal("NewCounter returned nil")
	}
	if c.Count("some text to count") <= 0 {
		t.Error("counter returned a non-positive count")
	}
}
