// Package patch applies structural edits to a markdown document.
//
// Edits target level-2 and level-3 headings by title. Targets are matched
// fuzzily so that small drift between the heading a model names and the
// heading actually present in the document does not break the edit; matches
// below the similarity threshold are skipped rather than applied to the
// wrong section.
package patch

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	ijson "github.com/richinex/longform/internal/json"
)

// Patch actions.
const (
	ActionReplace     = "REPLACE"
	ActionInsertAfter = "INSERT_AFTER"
	ActionDelete      = "DELETE"
)

// SimilarityThreshold is the minimum fuzzy score (0-100) for a heading to
// count as a match for a patch target.
const SimilarityThreshold = 85

// Patch is a single structural edit.
type Patch struct {
	Action        string `json:"action"`
	TargetSection string `json:"target_section"`
	NewContent    string `json:"new_content,omitempty"`
}

// Engine applies patch lists to documents. Unknown actions and unmatched
// targets are skipped with a warning; a patch list never fails as a whole.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Decode parses a patch list from a model response. Accepts either a bare
// JSON array or an object wrapping the list under "patches".
func (e *Engine) Decode(payload string) ([]Patch, error) {
	patches, err := ijson.ExtractJSONFromResponse[[]Patch](payload)
	if err == nil {
		return patches, nil
	}

	wrapper, werr := ijson.ExtractJSONFromResponse[struct {
		Patches []Patch `json:"patches"`
	}](payload)
	if werr != nil {
		return nil, err
	}
	return wrapper.Patches, nil
}

// ApplyJSON decodes a patch payload and applies it. A payload that cannot
// be decoded leaves the document unchanged.
func (e *Engine) ApplyJSON(document, payload string) (string, []Patch) {
	patches, err := e.Decode(payload)
	if err != nil {
		e.logger.Warn("patch payload not decodable, document unchanged",
			zap.Error(err))
		return document, nil
	}
	return e.Apply(document, patches)
}

// Apply applies patches in order and returns the updated document together
// with the patches that were actually applied.
func (e *Engine) Apply(document string, patches []Patch) (string, []Patch) {
	applied := make([]Patch, 0, len(patches))
	for _, p := range patches {
		next, ok := e.applyOne(document, p)
		if !ok {
			continue
		}
		document = next
		applied = append(applied, p)
	}
	return document, applied
}

func (e *Engine) applyOne(document string, p Patch) (string, bool) {
	lines := splitLines(document)
	idx, score := locateSection(lines, p.TargetSection)
	if idx < 0 || score < SimilarityThreshold {
		e.logger.Warn("patch target not found",
			zap.String("target", p.TargetSection),
			zap.Int("best_score", score))
		return document, false
	}

	level := headingLevel(lines[idx])
	end := sectionEnd(lines, idx, level)

	var out []string
	switch p.Action {
	case ActionReplace:
		block := contentBlock(p.NewContent)
		out = make([]string, 0, idx+1+len(block)+len(lines)-end)
		out = append(out, lines[:idx+1]...)
		out = append(out, block...)
		out = append(out, lines[end:]...)
	case ActionInsertAfter:
		block := contentBlock(p.NewContent)
		out = make([]string, 0, end+len(block)+len(lines)-end)
		out = append(out, lines[:end]...)
		out = append(out, block...)
		out = append(out, lines[end:]...)
	case ActionDelete:
		out = make([]string, 0, idx+len(lines)-end)
		out = append(out, lines[:idx]...)
		out = append(out, lines[end:]...)
	default:
		e.logger.Warn("unknown patch action", zap.String("action", p.Action))
		return document, false
	}

	return strings.Join(out, ""), true
}

// ExtractSection returns the body of the section whose heading matches the
// given title, heading line included, trimmed.
func ExtractSection(document, title string) (string, bool) {
	lines := splitLines(document)
	idx, score := locateSection(lines, title)
	if idx < 0 || score < SimilarityThreshold {
		return "", false
	}
	end := sectionEnd(lines, idx, headingLevel(lines[idx]))
	return strings.TrimSpace(strings.Join(lines[idx:end], "")), true
}

// splitLines splits keeping the trailing newline on each line so that
// joining with "" reconstructs the exact original.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			return lines
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
		if s == "" {
			return lines
		}
	}
}

// locateSection finds the heading line best matching target and returns
// its index and similarity score.
func locateSection(lines []string, target string) (int, int) {
	target = strings.TrimSpace(target)
	bestIdx, bestScore := -1, -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "## ") && !strings.HasPrefix(trimmed, "### ") {
			continue
		}
		score := similarity(target, trimmed)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx, bestScore
}

// similarity is a 0-100 ratio based on levenshtein distance over runes.
func similarity(a, b string) int {
	if a == b {
		return 100
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	ratio := 100.0 * (1.0 - float64(dist)/float64(longest))
	if ratio < 0 {
		return 0
	}
	return int(ratio + 0.5)
}

func headingLevel(line string) int {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	return level
}

// sectionEnd scans from the heading to the next heading of the same or a
// shallower level, or the end of the document.
func sectionEnd(lines []string, idx, level int) int {
	for i := idx + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		if l := headingLevel(lines[i]); l > 0 && l <= level {
			return i
		}
	}
	return len(lines)
}

// contentBlock formats replacement content as lines padded with blank
// lines on both sides so headings stay visually separated.
func contentBlock(content string) []string {
	return splitLines("\n" + strings.TrimSpace(content) + "\n\n")
}
