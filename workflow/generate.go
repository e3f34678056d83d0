package workflow

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/richinex/longform/llm"
	"github.com/richinex/longform/outline"
)

// sectionFailed is recorded for a section whose generation failed outright;
// the critique pass will flag it for regeneration through a patch.
const sectionFailed = "[content generation failed for this section]"

// generateDocument writes the full first draft, walking the outline in
// order and recording every completed piece into the assembler.
func (c *Controller) generateDocument(ctx context.Context, o *outline.Outline) (string, error) {
	var doc strings.Builder
	fmt.Fprintf(&doc, "# %s\n", o.Title)

	for _, chapter := range o.Chapters {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("document generation interrupted: %w", err)
		}

		if chapter.IsLeaf() {
			packet, err := c.assembler.ContextForStandaloneChapter(chapter.Title)
			if err != nil {
				return "", err
			}
			text := c.generateSection(ctx, packet, chapter.AllocatedChars)
			fmt.Fprintf(&doc, "\n## %s\n\n%s\n", chapter.Title, text)
			c.assembler.RecordChapter(ctx, chapter.Title, text)
			continue
		}

		var parts []string
		for i, sub := range chapter.Sections {
			packet, err := c.assembler.ContextForSubsection(chapter.Title, i)
			if err != nil {
				return "", err
			}
			text := c.generateSection(ctx, packet, sub.AllocatedChars)
			c.assembler.RecordSubsection(chapter.Title, i, text)
			parts = append(parts, fmt.Sprintf("### %s\n\n%s", sub.Title, text))
		}
		body := strings.Join(parts, "\n\n")
		fmt.Fprintf(&doc, "\n## %s\n\n%s\n", chapter.Title, body)
		c.assembler.RecordChapter(ctx, chapter.Title, body)
	}

	return doc.String(), nil
}

// generateSection writes one section in chunks until the character
// allocation is met, each continuation primed with the tail of the
// previous chunk.
func (c *Controller) generateSection(ctx context.Context, packet string, allocatedChars int) string {
	var chunks []string
	written := 0

	for i := 0; i < c.settings.MaxChunksPerSection; i++ {
		remaining := allocatedChars - written
		if i > 0 && remaining < c.settings.MinSectionChars/2 {
			break
		}

		var prompt string
		role := llm.RoleAuthor
		if i == 0 {
			role = llm.RoleAuthorHeavy
			prompt = fmt.Sprintf("%s\nWrite the section now, aiming for about %d characters in this pass.", packet, remaining)
		} else {
			overlap := tailChars(chunks[len(chunks)-1], c.settings.OverlapChars)
			prompt = fmt.Sprintf("%s\n[SECTION SO FAR, ENDING]\n%s\n\nContinue the section seamlessly from that ending, aiming for about %d more characters. Do not repeat the shown text.", packet, overlap, remaining)
		}

		res := c.model.Call(ctx, role, []llm.ChatMessage{
			llm.SystemMessage(authorSystemPrompt),
			llm.UserMessage(prompt),
		}, c.settings.MaxChunkTokens, 0.7)
		if !res.OK() {
			c.logger.Warn("section chunk failed",
				zap.Int("chunk", i),
				zap.Error(res.Err))
			break
		}

		chunks = append(chunks, strings.TrimSpace(res.Text))
		written += utf8.RuneCountInString(res.Text)
	}

	if len(chunks) == 0 {
		return sectionFailed
	}
	return strings.Join(chunks, "\n\n")
}

// tailChars returns the last n characters of s on a rune boundary.
func tailChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
