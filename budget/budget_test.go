package budget

import (
	"strings"
	"testing"
)

func TestCountEmpty(t *testing.T) {
	c := NewApproxCounter()
	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
}

func TestCountApproximation(t *testing.T) {
	c := NewApproxCounter()
	// 10 chars at 3 chars/token rounds up to 4.
	if got := c.Count("abcdefghij"); got != 4 {
		t.Errorf("Count = %d, want 4", got)
	}
	if got := c.Count("abc"); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestTruncateIdentityUnderBudget(t *testing.T) {
	c := NewApproxCounter()
	text := "short text"
	if got := c.Truncate(text, 100, Head); got != text {
		t.Errorf("Truncate under budget changed text: %q", got)
	}
}

func TestTruncateEmpty(t *testing.T) {
	c := NewApproxCounter()
	if got := c.Truncate("", 10, Tail); got != "" {
		t.Errorf("Truncate(\"\") = %q, want \"\"", got)
	}
	if got := c.Truncate("text", 0, Tail); got != "" {
		t.Errorf("Truncate with zero budget = %q, want \"\"", got)
	}
}

func TestTruncateStyles(t *testing.T) {
	c := NewApproxCounter()
	text := strings.Repeat("a", 300) + strings.Repeat("z", 300)

	head := c.Truncate(text, 10, Head) // 30 chars
	if !strings.HasPrefix(head, "aaa") {
		t.Errorf("Head truncation lost the beginning: %q", head)
	}
	if !strings.Contains(head, "beginning shown") {
		t.Errorf("Head truncation missing marker: %q", head)
	}

	tail := c.Truncate(text, 10, Tail)
	if !strings.HasSuffix(tail, "zzz") {
		t.Errorf("Tail truncation lost the ending: %q", tail)
	}
	if !strings.Contains(tail, "ending shown") {
		t.Errorf("Tail truncation missing marker: %q", tail)
	}

	middle := c.Truncate(text, 10, Middle)
	if !strings.HasPrefix(middle, "aaa") || !strings.HasSuffix(middle, "zzz") {
		t.Errorf("Middle truncation should keep both ends: %q", middle)
	}
	if !strings.Contains(middle, "middle content truncated") {
		t.Errorf("Middle truncation missing marker: %q", middle)
	}
}

func TestTruncateMultibyte(t *testing.T) {
	c := NewApproxCounter()
	text := strings.Repeat("日本語テキスト", 100)
	got := c.Truncate(text, 10, Head)
	// Truncation must cut on rune boundaries; the result must stay valid.
	for _, r := range got {
		if r == '�' {
			t.Fatalf("truncation produced invalid UTF-8: %q", got)
		}
	}
}

func TestChecksumStable(t *testing.T) {
	a := Checksum("some external data")
	b := Checksum("some external data")
	if a != b {
		t.Errorf("checksum not deterministic: %s vs %s", a, b)
	}
	if a == Checksum("different data") {
		t.Error("different inputs produced the same checksum")
	}
	if len(a) != 64 {
		t.Errorf("checksum length = %d, want 64", len(a))
	}
}

func TestIsBlank(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"   \n\t ", true},
		{"x", false},
		{"  x  ", false},
	}
	for _, tc := range cases {
		if got := IsBlank(tc.in); got != tc.want {
			t.Errorf("IsBlank(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
