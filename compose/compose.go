// Package compose assembles the context packets handed to the writing and
// critique models.
//
// The assembler owns a two-level store keyed by chapter title and
// subsection index. Everything recorded into it is copied on the way in and
// rendered fresh on the way out; callers never see shared mutable state.
// Every packet is a sequence of bracketed sections so the consuming model
// can tell instruction, summary, and verbatim content apart.
package compose

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/richinex/longform/budget"
	"github.com/richinex/longform/outline"
	"github.com/richinex/longform/patch"
)

// summaryFailed marks a chapter whose summary call failed; downstream
// packets carry the marker instead of silently omitting the chapter.
const summaryFailed = "[summary unavailable for this chapter]"

// Summarizer produces a summary for a prompt within a token budget.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Budgets are the token ceilings for each slot of a context packet.
type Budgets struct {
	ExternalInput  int
	SummaryInput   int
	SubsectionTail int
	StandaloneTail int
	CritiquePrev   int
}

func DefaultBudgets() Budgets {
	return Budgets{
		ExternalInput:  8000,
		SummaryInput:   6000,
		SubsectionTail: 4000,
		StandaloneTail: 6000,
		CritiquePrev:   6000,
	}
}

// Assembler builds context packets from recorded chapter and subsection
// content.
type Assembler struct {
	styleGuide string
	outline    *outline.Outline
	summarizer Summarizer
	counter    *budget.Counter
	logger     *zap.Logger
	budgets    Budgets

	externalSummary string

	// chapter title -> full chapter text / summary
	chapterContent   map[string]string
	chapterSummaries map[string]string
	// chapter title -> subsection index -> text
	subsectionContent map[string]map[int]string
}

func NewAssembler(styleGuide string, o *outline.Outline, summarizer Summarizer, counter *budget.Counter, budgets Budgets, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		styleGuide:        styleGuide,
		outline:           o,
		summarizer:        summarizer,
		counter:           counter,
		logger:            logger,
		budgets:           budgets,
		chapterContent:    make(map[string]string),
		chapterSummaries:  make(map[string]string),
		subsectionContent: make(map[string]map[int]string),
	}
}

// SetOutline replaces the outline packets are built against. Used once the
// outline exists; external data is summarized before the outline does.
func (a *Assembler) SetOutline(o *outline.Outline) {
	a.outline = o
}

// SummarizeExternalData condenses externally supplied material into the
// summary slot used by every packet. Blank input leaves the slot untouched.
func (a *Assembler) SummarizeExternalData(ctx context.Context, data string) error {
	if budget.IsBlank(data) {
		return nil
	}
	truncated := a.counter.Truncate(data, a.budgets.ExternalInput, budget.Head)
	prompt := fmt.Sprintf(
		"Summarize the following reference material in 200-300 words, keeping concrete facts, figures, and terminology:\n\n%s",
		truncated)
	summary, err := a.summarizer.Summarize(ctx, prompt, 512)
	if err != nil {
		return fmt.Errorf("summarizing external data: %w", err)
	}
	a.externalSummary = strings.TrimSpace(summary)
	return nil
}

// ExternalSummary returns the current external-data summary, possibly "".
func (a *Assembler) ExternalSummary() string {
	return a.externalSummary
}

// RecordSubsection stores the generated text of one subsection.
func (a *Assembler) RecordSubsection(chapterTitle string, index int, text string) {
	subs, ok := a.subsectionContent[chapterTitle]
	if !ok {
		subs = make(map[int]string)
		a.subsectionContent[chapterTitle] = subs
	}
	subs[index] = text
}

// RecordChapter stores a completed chapter and summarizes it for use in
// later packets. A failed summary records a marker instead of failing the
// chapter.
func (a *Assembler) RecordChapter(ctx context.Context, title, text string) {
	a.chapterContent[title] = text

	truncated := a.counter.Truncate(text, a.budgets.SummaryInput, budget.Middle)
	prompt := fmt.Sprintf(
		"Summarize this chapter in 200-300 words. Preserve the main arguments and any details later chapters build on:\n\n%s",
		truncated)
	summary, err := a.summarizer.Summarize(ctx, prompt, 512)
	if err != nil || budget.IsBlank(summary) {
		a.logger.Warn("chapter summary failed", zap.String("chapter", title), zap.Error(err))
		a.chapterSummaries[title] = summaryFailed
		return
	}
	a.chapterSummaries[title] = strings.TrimSpace(summary)
}

// ChapterSummary returns the recorded summary for a chapter title.
func (a *Assembler) ChapterSummary(title string) (string, bool) {
	s, ok := a.chapterSummaries[title]
	return s, ok
}

// ContextForSubsection builds the packet for writing subsection subIdx of
// the named chapter.
func (a *Assembler) ContextForSubsection(chapterTitle string, subIdx int) (string, error) {
	chapter, chapterIdx, ok := a.outline.Chapter(chapterTitle)
	if !ok {
		return "", fmt.Errorf("unknown chapter: %q", chapterTitle)
	}
	if subIdx < 0 || subIdx >= len(chapter.Sections) {
		return "", fmt.Errorf("chapter %q has no subsection %d", chapterTitle, subIdx)
	}

	var b strings.Builder
	a.writeCommonHead(&b)

	// Tail of the chapter written immediately before, for continuity
	// across the chapter boundary.
	if chapterIdx == 0 {
		b.WriteString("[PREVIOUS CHAPTER]\nThis is the first chapter; there are no previous chapters.\n\n")
	} else {
		prevTitle := a.outline.Chapters[chapterIdx-1].Title
		prevText := a.chapterContent[prevTitle]
		if budget.IsBlank(prevText) {
			if summary, ok := a.chapterSummaries[prevTitle]; ok {
				prevText = summary
			}
		}
		tail := a.counter.Truncate(prevText, a.budgets.SubsectionTail, budget.Tail)
		fmt.Fprintf(&b, "[PREVIOUS CHAPTER]\nEnding of %q:\n%s\n\n", prevTitle, tail)
	}

	// Everything already written for this chapter, in order.
	if subIdx == 0 {
		fmt.Fprintf(&b, "[CURRENT CHAPTER]\nYou are starting chapter %q. No subsections written yet.\n\n", chapterTitle)
	} else {
		parts := make([]string, 0, subIdx)
		for i := 0; i < subIdx; i++ {
			if text, ok := a.subsectionContent[chapterTitle][i]; ok {
				parts = append(parts, text)
			}
		}
		soFar := a.counter.Truncate(strings.Join(parts, "\n\n"), a.budgets.SubsectionTail, budget.Tail)
		fmt.Fprintf(&b, "[CURRENT CHAPTER SO FAR]\nWhat chapter %q contains so far:\n%s\n\n", chapterTitle, soFar)
	}

	sub := chapter.Sections[subIdx]
	fmt.Fprintf(&b, "[CURRENT TASK]\nWrite subsection %q of chapter %q.\nDescription: %s\nTarget length: about %d characters.\n\n",
		sub.Title, chapterTitle, sub.Description, sub.AllocatedChars)

	// Forward-looking note so the section doesn't pre-empt what comes next.
	switch {
	case subIdx+1 < len(chapter.Sections):
		next := chapter.Sections[subIdx+1]
		fmt.Fprintf(&b, "[UPCOMING]\nThe next subsection will be %q: %s\nDo not cover its ground here.\n", next.Title, next.Description)
	case chapterIdx+1 < len(a.outline.Chapters):
		next := a.outline.Chapters[chapterIdx+1]
		fmt.Fprintf(&b, "[UPCOMING]\nThe next chapter will be %q: %s\nDo not cover its ground here.\n", next.Title, next.Description)
	default:
		b.WriteString("[UPCOMING]\nThis is the final chapter.\n")
	}

	return b.String(), nil
}

// ContextForStandaloneChapter builds the packet for writing a chapter with
// no subsections.
func (a *Assembler) ContextForStandaloneChapter(chapterTitle string) (string, error) {
	chapter, chapterIdx, ok := a.outline.Chapter(chapterTitle)
	if !ok {
		return "", fmt.Errorf("unknown chapter: %q", chapterTitle)
	}

	var b strings.Builder
	a.writeCommonHead(&b)

	fmt.Fprintf(&b, "[DOCUMENT STRUCTURE]\nAll chapters in order: %s\n\n",
		strings.Join(a.outline.Titles(), "; "))

	if chapterIdx == 0 {
		b.WriteString("[PREVIOUS CHAPTER]\nThis is the first chapter.\n\n")
	} else {
		prevTitle := a.outline.Chapters[chapterIdx-1].Title
		prevText := a.chapterContent[prevTitle]
		tail := a.counter.Truncate(prevText, a.budgets.StandaloneTail, budget.Tail)
		fmt.Fprintf(&b, "[PREVIOUS CHAPTER]\nEnding of %q:\n%s\n\n", prevTitle, tail)
	}

	fmt.Fprintf(&b, "[CURRENT TASK]\nWrite chapter %q.\nDescription: %s\nTarget length: about %d characters.\n\n",
		chapterTitle, chapter.Description, chapter.AllocatedChars)

	if chapterIdx+1 < len(a.outline.Chapters) {
		next := a.outline.Chapters[chapterIdx+1]
		fmt.Fprintf(&b, "[UPCOMING]\nThe next chapter will be %q: %s\nDo not cover its ground here.\n", next.Title, next.Description)
	} else {
		b.WriteString("[UPCOMING]\nThis is the final chapter.\n")
	}

	return b.String(), nil
}

// ContextForCritique builds the packet for reviewing one chapter inside the
// current document: the live chapter text verbatim, the end of the chapter
// before it, and the summary of the chapter after it.
func (a *Assembler) ContextForCritique(document, chapterTitle string) (string, error) {
	_, chapterIdx, ok := a.outline.Chapter(chapterTitle)
	if !ok {
		return "", fmt.Errorf("unknown chapter: %q", chapterTitle)
	}

	var b strings.Builder
	a.writeCommonHead(&b)

	if chapterIdx > 0 {
		prevTitle := a.outline.Chapters[chapterIdx-1].Title
		if prev, ok := patch.ExtractSection(document, "## "+prevTitle); ok {
			truncated := a.counter.Truncate(prev, a.budgets.CritiquePrev, budget.Middle)
			fmt.Fprintf(&b, "[PRECEDING CHAPTER]\n%s\n\n", truncated)
		}
	}

	section, ok := patch.ExtractSection(document, "## "+chapterTitle)
	if !ok {
		return "", fmt.Errorf("chapter %q not found in document", chapterTitle)
	}
	fmt.Fprintf(&b, "[CHAPTER UNDER REVIEW]\n%s\n\n", section)

	if chapterIdx+1 < len(a.outline.Chapters) {
		nextTitle := a.outline.Chapters[chapterIdx+1].Title
		summary, ok := a.chapterSummaries[nextTitle]
		if !ok {
			summary = summaryFailed
		}
		fmt.Fprintf(&b, "[FOLLOWING CHAPTER SUMMARY]\n%s:\n%s\n", nextTitle, summary)
	}

	return b.String(), nil
}

func (a *Assembler) writeCommonHead(b *strings.Builder) {
	fmt.Fprintf(b, "[STYLE GUIDE]\n%s\n\n", a.styleGuide)
	if a.externalSummary != "" {
		fmt.Fprintf(b, "[REFERENCE MATERIAL SUMMARY]\n%s\n\n", a.externalSummary)
	}
	fmt.Fprintf(b, "[DOCUMENT OUTLINE]\n%s\n\n", a.outline.JSON())
}
