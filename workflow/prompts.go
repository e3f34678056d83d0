package workflow

import (
	"fmt"
	"strings"
)

const gapsHeader = "### KNOWLEDGE GAPS ###"

// completionPhrases signal that the critic considers the document done.
// Matching is case-insensitive substring.
var completionPhrases = []string{
	"no further revisions needed",
	"no significant room for improvement",
	"the document is excellent",
}

const authorSystemPrompt = `You are a professional author writing one part of a long document. Write flowing, substantive prose in the voice defined by the style guide. Do not include headings unless asked; do not summarize other parts of the document; do not add meta commentary. Output only the content itself.`

func styleGuidePrompt(problem string) string {
	return fmt.Sprintf(`Write a concise style guide for a long-form document addressing the task below. Cover voice, register, audience, terminology conventions, and any formatting rules. Keep it under 300 words.

Task:
%s`, problem)
}

func outlinePrompt(problem string, targetChars int, styleGuide, externalSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Design the outline for a document of about %d characters addressing the task below.

Task:
%s

Style guide:
%s
`, targetChars, problem, styleGuide)
	if externalSummary != "" {
		fmt.Fprintf(&b, "\nReference material summary:\n%s\n", externalSummary)
	}
	b.WriteString(`
Respond with a single JSON object:
{
  "title": "document title",
  "outline": [
    {
      "title": "chapter title",
      "description": "what the chapter covers",
      "target_share": 0.25,
      "sections": [
        {"title": "subsection title", "description": "...", "target_share": 0.5}
      ]
    }
  ]
}
Target shares at each level should sum to 1.0. Chapters may omit "sections" to be written as a single unit. Do not include a conclusion chapter; one is added automatically. Output only the JSON object.`)
	return b.String()
}

func critiquePrompt(problem, document, styleGuide string, feedbackHistory []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Review the document below against its task and style guide.

Task:
%s

Style guide:
%s

`, problem, styleGuide)
	if len(feedbackHistory) > 0 {
		b.WriteString("Your previous reviews, most recent last (do not repeat points already addressed):\n")
		for _, fb := range feedbackHistory {
			fmt.Fprintf(&b, "---\n%s\n", fb)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, `Document:
%s

Give specific, actionable criticism: weak arguments, missing evidence, structural problems, style violations. Where the document asserts facts you cannot verify from its own content, list them under a heading line reading exactly:
%s
as a numbered list of short gap statements.

If the document needs no more work, say so plainly using the phrase "no further revisions needed".`, document, gapsHeader)
	return b.String()
}

func patchPrompt(document, critique, researchBriefs string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Revise the document below according to the critique. Express your revision as structural patches.

Document:
%s

Critique:
%s
`, document, critique)
	if researchBriefs != "" {
		fmt.Fprintf(&b, "\nResearch briefs with material you may incorporate:\n%s\n", researchBriefs)
	}
	b.WriteString(`
Respond with a single JSON object:
{
  "patches": [
    {"action": "REPLACE", "target_section": "## Exact Heading", "new_content": "full replacement body"},
    {"action": "INSERT_AFTER", "target_section": "### Exact Heading", "new_content": "content appended after the section"},
    {"action": "DELETE", "target_section": "## Exact Heading"}
  ]
}
Rules: target_section is a level-2 or level-3 heading copied from the document, including the leading # characters. REPLACE rewrites the section body and keeps the heading. new_content never repeats the heading. Patch only sections the critique faults. Output only the JSON object.`)
	return b.String()
}

func conclusionPrompt(documentTail, styleGuide string) string {
	return fmt.Sprintf(`Write the concluding chapter for the document whose ending is shown below. Synthesize the document's arguments; do not introduce new material. Follow the style guide. Output only the conclusion body, without a heading.

Style guide:
%s

Document ending:
%s`, styleGuide, documentTail)
}

func polishPrompt(document, styleGuide string) string {
	return fmt.Sprintf(`Perform a final editing pass on the document below: fix transitions, remove repetition, tighten prose, and enforce the style guide. Preserve the heading structure and all substantive content. Output the complete polished document and nothing else.

Style guide:
%s

Document:
%s`, styleGuide, document)
}

func qualityPrompt(document, problem string) string {
	return fmt.Sprintf(`Assess the finished document below against its task. Report strengths, remaining weaknesses, and an overall quality verdict in a short paragraph. Do not propose edits.

Task:
%s

Document:
%s`, problem, document)
}

func fixJSONPrompt(payload string) string {
	return fmt.Sprintf(`The following response was supposed to be valid JSON but is not. Output the corrected JSON and nothing else. Preserve all content; fix only the syntax.

%s`, payload)
}

// isComplete reports whether a critique contains a completion phrase.
func isComplete(critique string) bool {
	lower := strings.ToLower(critique)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
