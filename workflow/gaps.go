package workflow

import "strings"

// ExtractKnowledgeGaps pulls the gap list out of a critique. The list
// starts at a heading line reading "KNOWLEDGE GAPS" (any number of leading
// # or surrounding decoration) and ends at the next heading or the end of
// the critique. Items are numbered or bulleted lines; unmarked lines
// continue the previous item.
func ExtractKnowledgeGaps(critique string) []string {
	var gaps []string
	inSection := false
	current := ""

	flush := func() {
		if trimmed := strings.TrimSpace(current); trimmed != "" {
			gaps = append(gaps, trimmed)
		}
		current = ""
	}

	for _, line := range strings.Split(critique, "\n") {
		trimmed := strings.TrimSpace(line)

		if !inSection {
			if isGapsHeader(trimmed) {
				inSection = true
			}
			continue
		}

		// Any new heading ends the section.
		if strings.HasPrefix(trimmed, "#") {
			break
		}

		if item, ok := stripItemMarker(trimmed); ok {
			flush()
			current = item
			continue
		}
		if trimmed != "" && current != "" {
			current += " " + trimmed
		}
	}
	flush()
	return gaps
}

// isGapsHeader matches a header line whose text, stripped of markdown
// decoration, is "KNOWLEDGE GAPS".
func isGapsHeader(line string) bool {
	stripped := strings.Trim(line, "#* \t:")
	return strings.EqualFold(stripped, "KNOWLEDGE GAPS")
}

// stripItemMarker removes a leading list marker ("1.", "-", "*") and
// reports whether the line carried one.
func stripItemMarker(line string) (string, bool) {
	if strings.HasPrefix(line, "- ") {
		return line[2:], true
	}
	if strings.HasPrefix(line, "* ") {
		return line[2:], true
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:]), true
	}
	return "", false
}
