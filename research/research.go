// Package research turns knowledge gaps into research briefs.
//
// For each gap the coordinator generates web queries, searches, fetches the
// results concurrently under a bounded group, summarizes each page, and
// joins the summaries into a single brief string for the next writing pass.
// Every failure here degrades to an empty contribution; research never
// fails an iteration.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/richinex/longform/budget"
	ijson "github.com/richinex/longform/internal/json"
	"github.com/richinex/longform/llm"
)

const briefDelimiter = "\n\n===== RESEARCH BRIEF =====\n\n"

// SearchResult is one hit from a web search.
type SearchResult struct {
	Link    string
	Title   string
	Snippet string
}

// Searcher runs a web query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Model is the slice of the LLM surface research needs.
type Model interface {
	Call(ctx context.Context, role llm.Role, messages []llm.ChatMessage, maxTokens int, temperature float32) llm.Result
}

// Config bounds the research fan-out.
type Config struct {
	MaxQueriesPerGap int
	MaxResults       int
	FetchTimeout     time.Duration
	MaxConcurrent    int
	ContextTokens    int
	PageTokens       int
	UserAgent        string
}

func DefaultConfig() Config {
	return Config{
		MaxQueriesPerGap: 3,
		MaxResults:       3,
		FetchTimeout:     30 * time.Second,
		MaxConcurrent:    8,
		ContextTokens:    1000,
		PageTokens:       6000,
		UserAgent:        "Mozilla/5.0 (compatible; longform-research/1.0)",
	}
}

// Coordinator drives the gap -> queries -> fetch -> summarize pipeline.
type Coordinator struct {
	model    Model
	searcher Searcher
	fetcher  *Fetcher
	counter  *budget.Counter
	cfg      Config
	logger   *zap.Logger
}

func NewCoordinator(model Model, searcher Searcher, counter *budget.Counter, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		model:    model,
		searcher: searcher,
		fetcher:  NewFetcher(cfg.FetchTimeout, cfg.UserAgent),
		counter:  counter,
		cfg:      cfg,
		logger:   logger,
	}
}

type fetchTask struct {
	gap    string
	query  string
	result SearchResult
}

// Run researches every gap and returns the combined briefs, or "" when
// nothing useful came back. Brief order is deterministic: tasks are indexed
// before the fan-out and results reassembled by index.
func (c *Coordinator) Run(ctx context.Context, gaps []string, docContext string) string {
	if len(gaps) == 0 {
		return ""
	}

	var tasks []fetchTask
	seen := make(map[string]bool)
	for _, gap := range gaps {
		queries := c.generateQueries(ctx, gap, docContext)
		for _, q := range queries {
			results, err := c.searcher.Search(ctx, q, c.cfg.MaxResults)
			if err != nil {
				c.logger.Warn("search failed", zap.String("query", q), zap.Error(err))
				continue
			}
			for _, r := range results {
				if r.Link == "" || seen[r.Link] {
					continue
				}
				seen[r.Link] = true
				tasks = append(tasks, fetchTask{gap: gap, query: q, result: r})
			}
		}
	}
	if len(tasks) == 0 {
		return ""
	}

	briefs := make([]string, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrent)
	for i, task := range tasks {
		g.Go(func() error {
			briefs[i] = c.fetchAndSummarize(gctx, task)
			return nil
		})
	}
	// Workers never return errors; Wait only surfaces context cancellation.
	_ = g.Wait()

	var kept []string
	for _, b := range briefs {
		if !budget.IsBlank(b) {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, briefDelimiter)
}

// generateQueries asks the researcher role for search queries targeting one
// gap. On any failure the gap text itself is the query.
func (c *Coordinator) generateQueries(ctx context.Context, gap, docContext string) []string {
	truncated := c.counter.Truncate(docContext, c.cfg.ContextTokens, budget.Middle)
	prompt := fmt.Sprintf(
		"A document in progress has this knowledge gap:\n\n%s\n\nDocument context:\n%s\n\nWrite up to %d web search queries that would fill the gap. Respond with a JSON array of strings only.",
		gap, truncated, c.cfg.MaxQueriesPerGap)

	res := c.model.Call(ctx, llm.RoleResearcher,
		[]llm.ChatMessage{llm.UserMessage(prompt)}, 512, 0.3)
	if !res.OK() {
		c.logger.Warn("query generation failed", zap.String("gap", gap), zap.Error(res.Err))
		return []string{gap}
	}

	queries, err := ijson.ExtractJSONFromResponse[[]string](res.Text)
	if err != nil || len(queries) == 0 {
		return []string{gap}
	}
	out := queries
	if len(out) > c.cfg.MaxQueriesPerGap {
		out = out[:c.cfg.MaxQueriesPerGap]
	}
	return out
}

// fetchAndSummarize downloads one result and summarizes it with respect to
// the gap and the query that found it. Empty string on any failure.
func (c *Coordinator) fetchAndSummarize(ctx context.Context, task fetchTask) string {
	text, err := c.fetcher.Fetch(ctx, task.result.Link)
	if err != nil {
		c.logger.Debug("fetch failed", zap.String("url", task.result.Link), zap.Error(err))
		return ""
	}
	if budget.IsBlank(text) {
		return ""
	}
	text = c.counter.Truncate(text, c.cfg.PageTokens, budget.Head)

	prompt := fmt.Sprintf(
		"Summarize the following page with respect to the knowledge gap %q and the query %q. Keep concrete facts and figures; omit navigation and boilerplate.\n\n%s",
		task.gap, task.query, text)
	res := c.model.Call(ctx, llm.RoleSummarizer,
		[]llm.ChatMessage{llm.UserMessage(prompt)}, 768, 0.2)
	if !res.OK() || budget.IsBlank(res.Text) {
		return ""
	}

	return fmt.Sprintf("URL: %s\nQuery: %s\nSummary:\n%s\n",
		task.result.Link, task.query, strings.TrimSpace(res.Text))
}
