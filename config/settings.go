// Package config centralizes runtime settings.
//
// Settings come from environment variables with sensible defaults; a
// .env file loaded at startup feeds the same variables during local
// development.
package config

import (
	"os"
	"strconv"
	"time"
)

// Settings holds everything the workflow, research, and LLM layers need.
type Settings struct {
	// Provider and role models. Empty role models fall back to the
	// provider default.
	Provider        string
	AuthorModel     string
	HeavyModel      string
	CriticModel     string
	SummarizerModel string
	ResearcherModel string
	OutlinerModel   string
	EditorModel     string
	JSONFixerModel  string

	// Iteration control.
	MaxIterations       int
	TargetChars         int
	MinSectionChars     int
	MaxChunksPerSection int
	MaxChunkTokens      int
	OverlapChars        int

	// Context budgets (tokens).
	ReviewBudget     int
	ExternalBudget   int
	SummaryBudget    int
	SubsectionTail   int
	StandaloneTail   int
	CritiquePrev     int
	ConclusionBudget int
	PolishBudget     int

	// Research.
	ResearchEnabled    bool
	GoogleAPIKey       string
	GoogleEngineID     string
	MaxQueriesPerGap   int
	MaxSearchResults   int
	FetchTimeout       time.Duration
	MaxFetchConcurrent int
	QueryContextTokens int
	PageTokens         int

	// Retry.
	RetryMaxAttempts int
	RetryBaseWait    time.Duration
	RetryMaxWait     time.Duration

	// Paths.
	SessionDir   string
	ExperienceDB string
	LogLevel     string
}

// New builds Settings from the environment.
func New(provider string) Settings {
	if provider == "" {
		provider = getEnv("LONGFORM_PROVIDER", "openai")
	}
	return Settings{
		Provider:        provider,
		AuthorModel:     os.Getenv("LONGFORM_AUTHOR_MODEL"),
		HeavyModel:      os.Getenv("LONGFORM_HEAVY_MODEL"),
		CriticModel:     os.Getenv("LONGFORM_CRITIC_MODEL"),
		SummarizerModel: os.Getenv("LONGFORM_SUMMARIZER_MODEL"),
		ResearcherModel: os.Getenv("LONGFORM_RESEARCHER_MODEL"),
		OutlinerModel:   os.Getenv("LONGFORM_OUTLINER_MODEL"),
		EditorModel:     os.Getenv("LONGFORM_EDITOR_MODEL"),
		JSONFixerModel:  os.Getenv("LONGFORM_JSON_FIXER_MODEL"),

		MaxIterations:       getEnvInt("LONGFORM_MAX_ITERATIONS", 7),
		TargetChars:         getEnvInt("LONGFORM_TARGET_CHARS", 20000),
		MinSectionChars:     getEnvInt("LONGFORM_MIN_SECTION_CHARS", 100),
		MaxChunksPerSection: getEnvInt("LONGFORM_MAX_CHUNKS_PER_SECTION", 20),
		MaxChunkTokens:      getEnvInt("LONGFORM_MAX_CHUNK_TOKENS", 4096),
		OverlapChars:        getEnvInt("LONGFORM_OVERLAP_CHARS", 800),

		ReviewBudget:     getEnvInt("LONGFORM_REVIEW_BUDGET", 30000),
		ExternalBudget:   getEnvInt("LONGFORM_EXTERNAL_BUDGET", 8000),
		SummaryBudget:    getEnvInt("LONGFORM_SUMMARY_BUDGET", 6000),
		SubsectionTail:   getEnvInt("LONGFORM_SUBSECTION_TAIL", 4000),
		StandaloneTail:   getEnvInt("LONGFORM_STANDALONE_TAIL", 6000),
		CritiquePrev:     getEnvInt("LONGFORM_CRITIQUE_PREV", 6000),
		ConclusionBudget: getEnvInt("LONGFORM_CONCLUSION_BUDGET", 8000),
		PolishBudget:     getEnvInt("LONGFORM_POLISH_BUDGET", 28000),

		ResearchEnabled:    getEnvBool("LONGFORM_RESEARCH_ENABLED", true),
		GoogleAPIKey:       os.Getenv("GOOGLE_API_KEY"),
		GoogleEngineID:     os.Getenv("GOOGLE_SEARCH_ENGINE_ID"),
		MaxQueriesPerGap:   getEnvInt("LONGFORM_MAX_QUERIES_PER_GAP", 3),
		MaxSearchResults:   getEnvInt("LONGFORM_MAX_SEARCH_RESULTS", 3),
		FetchTimeout:       getEnvDuration("LONGFORM_FETCH_TIMEOUT", 30*time.Second),
		MaxFetchConcurrent: getEnvInt("LONGFORM_MAX_FETCH_CONCURRENT", 8),
		QueryContextTokens: getEnvInt("LONGFORM_QUERY_CONTEXT_TOKENS", 1000),
		PageTokens:         getEnvInt("LONGFORM_PAGE_TOKENS", 6000),

		RetryMaxAttempts: getEnvInt("LONGFORM_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseWait:    getEnvDuration("LONGFORM_RETRY_BASE_WAIT", 2*time.Second),
		RetryMaxWait:     getEnvDuration("LONGFORM_RETRY_MAX_WAIT", 60*time.Second),

		SessionDir:   getEnv("LONGFORM_SESSION_DIR", "sessions"),
		ExperienceDB: getEnv("LONGFORM_EXPERIENCE_DB", "sessions/experience.db"),
		LogLevel:     getEnv("LONGFORM_LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
