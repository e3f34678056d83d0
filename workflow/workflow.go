// Package workflow drives the iterative write-critique-revise loop.
//
// Information Hiding:
// - Iteration ordering and convergence detection
// - Checkpoint compatibility rules for resuming
// - How critiques, research, and patches feed each other
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/longform/budget"
	"github.com/richinex/longform/checkpoint"
	"github.com/richinex/longform/compose"
	"github.com/richinex/longform/config"
	ijson "github.com/richinex/longform/internal/json"
	"github.com/richinex/longform/llm"
	"github.com/richinex/longform/outline"
	"github.com/richinex/longform/patch"
	"github.com/richinex/longform/storage"
)

// Model is the role-routed LLM surface the workflow calls.
type Model interface {
	Call(ctx context.Context, role llm.Role, messages []llm.ChatMessage, maxTokens int, temperature float32) llm.Result
	CallJSON(ctx context.Context, role llm.Role, messages []llm.ChatMessage, maxTokens int, temperature float32) llm.Result
}

// Researcher turns knowledge gaps into research briefs. An empty return
// means research produced nothing usable.
type Researcher interface {
	Run(ctx context.Context, gaps []string, docContext string) string
}

// Experience records what a finished run learned and recalls entries from
// earlier runs on similar problems.
type Experience interface {
	Add(ctx context.Context, texts []string, metadatas []storage.Metadata, ids []string) error
	Retrieve(ctx context.Context, problem string, limit int) ([]storage.Entry, error)
}

// Request describes one synthesis run.
type Request struct {
	Problem      string
	StyleGuide   string // optional; generated when empty
	ExternalData string // optional reference material
}

// Outcome is the result of a completed run.
type Outcome struct {
	Document        string
	FeedbackHistory []string
	ResearchBriefs  []string
	Patches         []patch.Patch
	Iterations      int
}

// Controller owns one run of the loop.
type Controller struct {
	settings    config.Settings
	model       Model
	patcher     *patch.Engine
	researcher  Researcher
	checkpoints *checkpoint.Store
	experience  Experience
	counter     *budget.Counter
	assembler   *compose.Assembler
	logger      *zap.Logger
}

func NewController(settings config.Settings, model Model, patcher *patch.Engine, researcher Researcher, checkpoints *checkpoint.Store, experience Experience, counter *budget.Counter, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		settings:    settings,
		model:       model,
		patcher:     patcher,
		researcher:  researcher,
		checkpoints: checkpoints,
		experience:  experience,
		counter:     counter,
		logger:      logger,
	}
}

// modelSummarizer adapts the role-routed model to the assembler's
// summarizer interface.
type modelSummarizer struct {
	model Model
}

func (m modelSummarizer) Summarize(ctx context.Context, prompt string, maxTokens int) (string, error) {
	res := m.model.Call(ctx, llm.RoleSummarizer,
		[]llm.ChatMessage{llm.UserMessage(prompt)}, maxTokens, 0.2)
	if !res.OK() {
		return "", res.Err
	}
	return res.Text, nil
}

// Run executes the loop to completion or to the iteration cap.
func (c *Controller) Run(ctx context.Context, req Request) (*Outcome, error) {
	if budget.IsBlank(req.Problem) {
		return nil, fmt.Errorf("empty problem statement")
	}

	externalData := req.ExternalData
	checksum := budget.Checksum(externalData)

	// A checkpoint resumes only the same problem with the same external
	// data; anything else is stale and removed.
	state, resumed := c.checkpoints.Load()
	if resumed && (state.InitialProblem != req.Problem || state.ExternalDataChecksum != checksum) {
		c.logger.Info("checkpoint belongs to a different run, discarding")
		c.checkpoints.Delete()
		state, resumed = checkpoint.State{}, false
	}
	if resumed {
		c.logger.Info("resuming from checkpoint",
			zap.Int("iteration", state.Iteration),
			zap.Int("document_chars", len(state.CurrentSolution)))
	}

	styleGuide := req.StyleGuide
	if styleGuide == "" && resumed {
		styleGuide = state.StyleGuide
	}
	if styleGuide == "" {
		res := c.model.Call(ctx, llm.RoleEditor,
			[]llm.ChatMessage{llm.UserMessage(styleGuidePrompt(req.Problem))}, 1024, 0.5)
		if !res.OK() {
			return nil, fmt.Errorf("generating style guide: %w", res.Err)
		}
		styleGuide = strings.TrimSpace(res.Text)
	}

	guide := styleGuide
	if lessons := c.recallExperience(ctx, req.Problem); lessons != "" {
		guide = styleGuide + "\n\nLessons from earlier work on similar problems:\n" + lessons
	}
	c.assembler = compose.NewAssembler(guide, &outline.Outline{}, modelSummarizer{c.model}, c.counter, c.budgets(), c.logger)
	if err := c.assembler.SummarizeExternalData(ctx, externalData); err != nil {
		c.logger.Warn("external data summary failed", zap.Error(err))
	}

	var o *outline.Outline
	if resumed && state.DocumentOutline != nil {
		o = state.DocumentOutline
	} else {
		var err error
		o, err = c.generateOutline(ctx, req.Problem, styleGuide)
		if err != nil {
			return nil, fmt.Errorf("generating outline: %w", err)
		}
	}
	c.assembler.SetOutline(o)

	doc := state.CurrentSolution
	feedback := state.FeedbackHistory
	briefs := state.ResearchBriefsHistory
	applied := state.SuccessfulPatches
	iter := state.Iteration

	for ; iter < c.settings.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted: %w", err)
		}
		c.logger.Info("iteration starting",
			zap.Int("iteration", iter+1),
			zap.Int("max", c.settings.MaxIterations))

		if doc == "" {
			var err error
			doc, err = c.generateDocument(ctx, o)
			if err != nil {
				return nil, fmt.Errorf("generating document: %w", err)
			}
		}

		review := c.counter.Truncate(doc, c.settings.ReviewBudget, budget.Middle)
		res := c.model.Call(ctx, llm.RoleCritic,
			[]llm.ChatMessage{llm.UserMessage(critiquePrompt(req.Problem, review, styleGuide, feedback))},
			2048, 0.4)
		if !res.OK() {
			if res.Err.Kind == llm.ErrCancelled {
				return nil, fmt.Errorf("critique: %w", res.Err)
			}
			c.logger.Warn("critique failed, skipping iteration", zap.Error(res.Err))
			c.save(iter+1, doc, feedback, briefs, applied, req, checksum, o, styleGuide)
			continue
		}
		critique := strings.TrimSpace(res.Text)
		feedback = append(feedback, critique)

		if isComplete(critique) {
			c.logger.Info("critic signalled completion", zap.Int("iteration", iter+1))
			iter++
			break
		}

		if gaps := ExtractKnowledgeGaps(critique); len(gaps) > 0 && c.researcher != nil {
			c.logger.Info("researching knowledge gaps", zap.Int("gaps", len(gaps)))
			brief := c.researcher.Run(ctx, gaps, review)
			if brief != "" {
				briefs = append(briefs, brief)
				externalData = foldResearch(req.ExternalData, briefs)
				checksum = budget.Checksum(externalData)
				if err := c.assembler.SummarizeExternalData(ctx, externalData); err != nil {
					c.logger.Warn("external data summary failed", zap.Error(err))
				}
			}
		}

		patchRes := c.model.CallJSON(ctx, llm.RoleAuthor,
			[]llm.ChatMessage{llm.UserMessage(patchPrompt(review, critique, lastBrief(briefs)))},
			c.settings.MaxChunkTokens, 0.5)
		if patchRes.OK() {
			var newApplied []patch.Patch
			doc, newApplied = c.applyPatches(ctx, doc, patchRes.Text)
			applied = append(applied, newApplied...)
			c.logger.Info("patches applied", zap.Int("count", len(newApplied)))
		} else {
			c.logger.Warn("patch generation failed", zap.Error(patchRes.Err))
		}

		c.save(iter+1, doc, feedback, briefs, applied, req, checksum, o, styleGuide)
	}

	if doc == "" {
		return nil, fmt.Errorf("no document produced after %d iterations", c.settings.MaxIterations)
	}

	doc = c.appendConclusion(ctx, doc, styleGuide)
	doc = c.polish(ctx, doc, styleGuide)
	c.reportQuality(ctx, doc, req.Problem)

	c.recordExperience(ctx, req.Problem, doc, feedback, briefs, applied)
	c.checkpoints.Delete()

	return &Outcome{
		Document:        doc,
		FeedbackHistory: feedback,
		ResearchBriefs:  briefs,
		Patches:         applied,
		Iterations:      iter,
	}, nil
}

func (c *Controller) budgets() compose.Budgets {
	return compose.Budgets{
		ExternalInput:  c.settings.ExternalBudget,
		SummaryInput:   c.settings.SummaryBudget,
		SubsectionTail: c.settings.SubsectionTail,
		StandaloneTail: c.settings.StandaloneTail,
		CritiquePrev:   c.settings.CritiquePrev,
	}
}

// generateOutline asks the outliner for the document structure and
// allocates the character budget over it. Outline failure is terminal;
// nothing downstream can run without a structure.
func (c *Controller) generateOutline(ctx context.Context, problem, styleGuide string) (*outline.Outline, error) {
	prompt := outlinePrompt(problem, c.settings.TargetChars, styleGuide, c.assembler.ExternalSummary())
	res := c.model.CallJSON(ctx, llm.RoleOutliner,
		[]llm.ChatMessage{llm.UserMessage(prompt)}, 2048, 0.3)
	if !res.OK() {
		return nil, res.Err
	}

	parsed, err := ijson.ExtractJSONFromResponse[outline.Outline](res.Text)
	if err != nil {
		repaired, ok := c.repairJSON(ctx, res.Text)
		if !ok {
			return nil, fmt.Errorf("parsing outline: %w", err)
		}
		parsed, err = ijson.ExtractJSONFromResponse[outline.Outline](repaired)
		if err != nil {
			return nil, fmt.Errorf("parsing outline after repair: %w", err)
		}
	}
	o := &parsed
	if err := o.Validate(); err != nil {
		return nil, err
	}
	o.AllocateChars(c.settings.TargetChars, c.settings.MinSectionChars)
	c.logger.Info("outline generated",
		zap.String("title", o.Title),
		zap.Int("chapters", len(o.Chapters)))
	return o, nil
}

// applyPatches decodes and applies a patch payload, routing undecodable
// payloads through one JSON repair attempt first.
func (c *Controller) applyPatches(ctx context.Context, doc, payload string) (string, []patch.Patch) {
	patches, err := c.patcher.Decode(payload)
	if err != nil {
		repaired, ok := c.repairJSON(ctx, payload)
		if !ok {
			c.logger.Warn("patch payload not decodable, document unchanged", zap.Error(err))
			return doc, nil
		}
		patches, err = c.patcher.Decode(repaired)
		if err != nil {
			c.logger.Warn("patch payload not decodable after repair", zap.Error(err))
			return doc, nil
		}
	}
	return c.patcher.Apply(doc, patches)
}

// repairJSON asks the fixer role to correct a malformed JSON payload.
func (c *Controller) repairJSON(ctx context.Context, payload string) (string, bool) {
	res := c.model.CallJSON(ctx, llm.RoleJSONFixer,
		[]llm.ChatMessage{llm.UserMessage(fixJSONPrompt(payload))},
		c.settings.MaxChunkTokens, 0)
	if !res.OK() {
		return "", false
	}
	return res.Text, true
}

// appendConclusion adds a concluding chapter unless one already exists.
// A failed conclusion leaves a visible placeholder rather than dropping
// the chapter silently.
func (c *Controller) appendConclusion(ctx context.Context, doc, styleGuide string) string {
	if strings.Contains(doc, "## Conclusion") {
		return doc
	}
	tail := c.counter.Truncate(doc, c.settings.ConclusionBudget, budget.Tail)
	res := c.model.Call(ctx, llm.RoleEditor,
		[]llm.ChatMessage{llm.UserMessage(conclusionPrompt(tail, styleGuide))}, 2048, 0.5)
	body := "[conclusion unavailable]"
	if res.OK() && !budget.IsBlank(res.Text) {
		body = strings.TrimSpace(res.Text)
	} else {
		c.logger.Warn("conclusion generation failed")
	}
	return doc + "\n\n## Conclusion\n\n" + body + "\n"
}

// polish runs the final editing pass, keeping the original when the
// polished version fails or comes back suspiciously short.
func (c *Controller) polish(ctx context.Context, doc, styleGuide string) string {
	truncated := c.counter.Truncate(doc, c.settings.PolishBudget, budget.Middle)
	if truncated != doc {
		// Polishing replaces the whole document; never polish a view that
		// lost content to truncation.
		c.logger.Info("document exceeds polish budget, skipping polish pass")
		return doc
	}
	res := c.model.Call(ctx, llm.RoleEditor,
		[]llm.ChatMessage{llm.UserMessage(polishPrompt(doc, styleGuide))},
		c.settings.MaxChunkTokens*2, 0.3)
	if !res.OK() {
		c.logger.Warn("polish failed, keeping original", zap.Error(res.Err))
		return doc
	}
	polished := strings.TrimSpace(res.Text)
	if len(polished) < len(doc)*8/10 {
		c.logger.Warn("polished document too short, keeping original",
			zap.Int("original", len(doc)),
			zap.Int("polished", len(polished)))
		return doc
	}
	return polished
}

// reportQuality asks the critic for a final assessment of the finished
// document. The report is logged only; it never changes the outcome.
func (c *Controller) reportQuality(ctx context.Context, doc, problem string) {
	review := c.counter.Truncate(doc, c.settings.ReviewBudget, budget.Middle)
	res := c.model.Call(ctx, llm.RoleCritic,
		[]llm.ChatMessage{llm.UserMessage(qualityPrompt(review, problem))}, 1024, 0.3)
	if !res.OK() {
		c.logger.Warn("quality report failed", zap.Error(res.Err))
		return
	}
	c.logger.Info("final quality report", zap.String("report", strings.TrimSpace(res.Text)))
}

func (c *Controller) save(iteration int, doc string, feedback, briefs []string, applied []patch.Patch, req Request, checksum string, o *outline.Outline, styleGuide string) {
	err := c.checkpoints.Save(checkpoint.State{
		Iteration:             iteration,
		CurrentSolution:       doc,
		FeedbackHistory:       feedback,
		InitialProblem:        req.Problem,
		InitialSolutionTarget: c.settings.TargetChars,
		MaxIterations:         c.settings.MaxIterations,
		ExternalDataChecksum:  checksum,
		DocumentOutline:       o,
		SuccessfulPatches:     applied,
		ResearchBriefsHistory: briefs,
		StyleGuide:            styleGuide,
	})
	if err != nil {
		c.logger.Warn("checkpoint save failed", zap.Error(err))
	}
}

// recallExperience pulls critique lessons from earlier runs on similar
// problems. Absence of the store, or any error, disables recall silently.
func (c *Controller) recallExperience(ctx context.Context, problem string) string {
	if c.experience == nil {
		return ""
	}
	entries, err := c.experience.Retrieve(ctx, problem, 3)
	if err != nil {
		c.logger.Warn("experience retrieval failed", zap.Error(err))
		return ""
	}

	var lessons []string
	for _, e := range entries {
		if e.Metadata.Kind != "feedback" {
			continue
		}
		lessons = append(lessons, c.counter.Truncate(e.Text, 500, budget.Head))
	}
	return strings.Join(lessons, "\n---\n")
}

// recordExperience persists what this run learned: the critique history,
// the finished document, every research brief, and the applied patches.
// Failure is logged and ignored; experience is an optimization, not an
// output.
func (c *Controller) recordExperience(ctx context.Context, problem, doc string, feedback, briefs []string, applied []patch.Patch) {
	if c.experience == nil {
		return
	}
	date := time.Now().UTC().Format(time.RFC3339)

	var texts []string
	var metadatas []storage.Metadata
	add := func(text, kind string) {
		texts = append(texts, text)
		metadatas = append(metadatas, storage.Metadata{
			Kind:    kind,
			Problem: problem,
			Date:    date,
		})
	}

	if len(feedback) > 0 {
		add(strings.Join(feedback, "\n---\n"), "feedback")
	}
	add(doc, "final_solution")
	for _, brief := range briefs {
		add(brief, "research_brief")
	}
	if len(applied) > 0 {
		if data, err := json.Marshal(applied); err == nil {
			add(string(data), "patches")
		}
	}

	if err := c.experience.Add(ctx, texts, metadatas, nil); err != nil {
		c.logger.Warn("recording experience failed", zap.Error(err))
	}
}

func foldResearch(externalData string, briefs []string) string {
	parts := make([]string, 0, len(briefs)+1)
	if !budget.IsBlank(externalData) {
		parts = append(parts, externalData)
	}
	parts = append(parts, briefs...)
	return strings.Join(parts, "\n\n")
}

func lastBrief(briefs []string) string {
	if len(briefs) == 0 {
		return ""
	}
	return briefs[len(briefs)-1]
}
