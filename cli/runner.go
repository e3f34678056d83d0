// Command execution for CLI commands.
//
// Information Hiding:
// - Provider and role-model wiring hidden
// - Session directory layout hidden
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/longform/budget"
	"github.com/richinex/longform/checkpoint"
	"github.com/richinex/longform/config"
	"github.com/richinex/longform/llm"
	"github.com/richinex/longform/patch"
	"github.com/richinex/longform/research"
	"github.com/richinex/longform/storage"
	"github.com/richinex/longform/workflow"
)

// Options holds CLI execution options.
type Options struct {
	Provider      string
	Session       string
	MaxIterations int
	TargetChars   int
	StyleGuide    string
	ExternalData  string
	NoResearch    bool
	Verbose       bool
}

// Run executes one synthesis run and writes the result into the session
// directory.
func Run(ctx context.Context, problem string, opts Options) error {
	settings := config.New(opts.Provider)
	if opts.MaxIterations > 0 {
		settings.MaxIterations = opts.MaxIterations
	}
	if opts.TargetChars > 0 {
		settings.TargetChars = opts.TargetChars
	}
	if opts.NoResearch {
		settings.ResearchEnabled = false
	}

	logger, err := newLogger(settings.LogLevel, opts.Verbose)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	sessionDir := opts.Session
	if sessionDir == "" {
		sessionDir = filepath.Join(settings.SessionDir, time.Now().UTC().Format("20060102-150405"))
	}
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	logger.Info("session started", zap.String("dir", sessionDir))

	provider, err := createProvider(settings)
	if err != nil {
		return err
	}

	caller := llm.NewCaller(provider, roleModels(settings), llm.RetryPolicy{
		MaxAttempts: settings.RetryMaxAttempts,
		BaseWait:    settings.RetryBaseWait,
		MaxWait:     settings.RetryMaxWait,
	}, logger)

	counter := budget.NewCounter()

	var researcher workflow.Researcher
	if settings.ResearchEnabled && settings.GoogleAPIKey != "" && settings.GoogleEngineID != "" {
		searcher := research.NewGoogleSearcher(settings.GoogleAPIKey, settings.GoogleEngineID, settings.FetchTimeout)
		researcher = research.NewCoordinator(caller, searcher, counter, research.Config{
			MaxQueriesPerGap: settings.MaxQueriesPerGap,
			MaxResults:       settings.MaxSearchResults,
			FetchTimeout:     settings.FetchTimeout,
			MaxConcurrent:    settings.MaxFetchConcurrent,
			ContextTokens:    settings.QueryContextTokens,
			PageTokens:       settings.PageTokens,
			UserAgent:        research.DefaultConfig().UserAgent,
		}, logger)
	} else {
		logger.Info("web research disabled")
	}

	experience, err := storage.OpenExperience(settings.ExperienceDB)
	if err != nil {
		logger.Warn("experience store unavailable", zap.Error(err))
		experience = nil
	}
	if experience != nil {
		defer experience.Close()
	}

	controller := workflow.NewController(
		settings,
		caller,
		patch.NewEngine(logger),
		researcher,
		checkpoint.NewStore(sessionDir, logger),
		experienceSink(experience),
		counter,
		logger,
	)

	outcome, err := controller.Run(ctx, workflow.Request{
		Problem:      problem,
		StyleGuide:   opts.StyleGuide,
		ExternalData: opts.ExternalData,
	})
	if err != nil {
		return err
	}

	docPath := filepath.Join(sessionDir, "document.md")
	if err := os.WriteFile(docPath, []byte(outcome.Document), 0o644); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	logger.Info("run finished",
		zap.Int("iterations", outcome.Iterations),
		zap.Int("document_chars", len(outcome.Document)),
		zap.Int("patches_applied", len(outcome.Patches)),
		zap.String("document", docPath))

	fmt.Println(outcome.Document)
	return nil
}

// experienceSink hides the nil-store case behind the workflow interface.
func experienceSink(store *storage.ExperienceStore) workflow.Experience {
	if store == nil {
		return nil
	}
	return store
}

func createProvider(settings config.Settings) (llm.Provider, error) {
	pt, err := llm.ParseProviderType(settings.Provider)
	if err != nil {
		return nil, err
	}
	return llm.NewProviderBuilder(pt).
		MaxTokens(uint32(settings.MaxChunkTokens)).
		FromEnv()
}

// roleModels maps configured role models; empty entries fall back to the
// provider default inside the caller.
func roleModels(settings config.Settings) map[llm.Role]string {
	return map[llm.Role]string{
		llm.RoleAuthor:      settings.AuthorModel,
		llm.RoleAuthorHeavy: settings.HeavyModel,
		llm.RoleCritic:      settings.CriticModel,
		llm.RoleSummarizer:  settings.SummarizerModel,
		llm.RoleResearcher:  settings.ResearcherModel,
		llm.RoleOutliner:    settings.OutlinerModel,
		llm.RoleEditor:      settings.EditorModel,
		llm.RoleJSONFixer:   settings.JSONFixerModel,
	}
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	if verbose {
		level = "debug"
	}
	parsed, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = parsed
	return cfg.Build()
}
