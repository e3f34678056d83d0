// Role-routed call wrapper with bounded retries.
//
// Information Hiding:
// - Per-role model selection
// - Retry policy and backoff schedule
// - Reasoning-block stripping for reasoner-style models

package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Role identifies a prompting role. Each role is routed to a configured
// model; several roles may share one model.
type Role string

const (
	// RoleAuthor drafts chapter and sub-chapter content.
	RoleAuthor Role = "author"
	// RoleAuthorHeavy drafts content demanding deeper reasoning.
	RoleAuthorHeavy Role = "author_heavy"
	// RoleCritic reviews the current document.
	RoleCritic Role = "critic"
	// RoleSummarizer condenses chapters and reference material.
	RoleSummarizer Role = "summarizer"
	// RoleResearcher generates search queries for knowledge gaps.
	RoleResearcher Role = "researcher"
	// RoleOutliner produces the document outline as JSON.
	RoleOutliner Role = "outliner"
	// RoleEditor writes the style guide and performs the final polish.
	RoleEditor Role = "editor"
	// RoleJSONFixer repairs malformed JSON output.
	RoleJSONFixer Role = "json_fixer"
)

// RetryPolicy bounds automatic retries on transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy matches the API retry defaults: three attempts with
// exponential backoff from two seconds, capped at one minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseWait:    2 * time.Second,
		MaxWait:     60 * time.Second,
	}
}

// thinkBlock matches the chain-of-thought block reasoner models prepend.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Caller routes role-specific calls to a provider, retrying transient
// failures and empty-after-stripping responses with capped exponential
// backoff. Results are tagged, never sentinel strings.
type Caller struct {
	provider Provider
	models   map[Role]string
	retry    RetryPolicy
	logger   *zap.Logger
	sleep    func(time.Duration) // test seam
}

// NewCaller creates a caller. Roles missing from models fall back to the
// provider's default model.
func NewCaller(provider Provider, models map[Role]string, retry RetryPolicy, logger *zap.Logger) *Caller {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		provider: provider,
		models:   models,
		retry:    retry,
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// ModelFor returns the model a role resolves to.
func (c *Caller) ModelFor(role Role) string {
	if m, ok := c.models[role]; ok && m != "" {
		return m
	}
	return c.provider.Model()
}

// Call sends a chat completion for the given role.
func (c *Caller) Call(ctx context.Context, role Role, messages []ChatMessage, maxTokens int, temperature float32) Result {
	return c.call(ctx, role, messages, CallOptions{
		Model:       c.ModelFor(role),
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
}

// CallJSON sends a chat completion requesting a JSON object response.
func (c *Caller) CallJSON(ctx context.Context, role Role, messages []ChatMessage, maxTokens int, temperature float32) Result {
	return c.call(ctx, role, messages, CallOptions{
		Model:       c.ModelFor(role),
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Format:      NewJSONObjectFormat(),
	})
}

func (c *Caller) call(ctx context.Context, role Role, messages []ChatMessage, opts CallOptions) Result {
	var lastErr error
	sawEmpty := false

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			c.logger.Warn("retrying llm call",
				zap.String("role", string(role)),
				zap.String("model", opts.Model),
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait))
			c.sleep(wait)
		}
		if err := ctx.Err(); err != nil {
			return Failf(ErrCancelled, "%v", err)
		}

		start := time.Now()
		resp, err := c.provider.Chat(ctx, messages, opts)
		if err != nil {
			if ctx.Err() != nil {
				return Failf(ErrCancelled, "%v", ctx.Err())
			}
			kind := classify(err)
			if kind != ErrTransient {
				return Failf(kind, "%v", err)
			}
			lastErr = err
			continue
		}

		content := strings.TrimSpace(thinkBlock.ReplaceAllString(resp.Content, ""))
		if content == "" {
			// Reasoner models occasionally burn the whole budget on the
			// reasoning block; a fresh attempt usually recovers.
			c.logger.Warn("blank content after reasoning-block stripping",
				zap.String("role", string(role)),
				zap.String("model", opts.Model))
			sawEmpty = true
			continue
		}

		c.logger.Debug("llm call succeeded",
			zap.String("role", string(role)),
			zap.String("model", opts.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("chars", len(content)))
		return Ok(content)
	}

	if lastErr != nil {
		return Failf(ErrTransient, "retries exhausted: %v", lastErr)
	}
	if sawEmpty {
		return Fail(ErrEmpty, "model returned blank output on every attempt")
	}
	return Fail(ErrTransient, "retries exhausted")
}

// backoff returns the capped exponential wait before the given attempt.
func (c *Caller) backoff(attempt int) time.Duration {
	wait := c.retry.BaseWait
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= c.retry.MaxWait {
			return c.retry.MaxWait
		}
	}
	if wait > c.retry.MaxWait {
		return c.retry.MaxWait
	}
	return wait
}

// classify maps a provider error to an error kind. Rate limits, server
// errors, and transport failures are retryable; other API rejections are not.
func classify(err error) ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCancelled
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return ErrTransient
		}
		return ErrAPI
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ErrTransient
	}

	// Unrecognized errors are assumed to be transport-level and retryable.
	return ErrTransient
}
