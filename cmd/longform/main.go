// Package main provides the longform CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/richinex/longform/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider string
	session  string
	maxIter  int
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "longform",
		Short: "Iterative long-form document synthesis",
		Long: `Generates long-form documents through an iterative loop:
outline, draft chapter by chapter, critique, research knowledge gaps,
and revise through structural patches until the critic is satisfied.

Runs are checkpointed per session and resume where they stopped.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVarP(&session, "session", "s", "", "Session directory (default: sessions/<timestamp>)")
	rootCmd.PersistentFlags().IntVarP(&maxIter, "max-iter", "m", 0, "Maximum revision iterations")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(writeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func writeCmd() *cobra.Command {
	var (
		targetChars    int
		styleGuidePath string
		dataPath       string
		noResearch     bool
	)

	cmd := &cobra.Command{
		Use:   "write [task]",
		Short: "Write a document for the given task",
		Long: `Write a long-form document addressing the task.

The task is the problem statement: what the document should cover and
for whom. Supply --style-guide to pin the voice, and --data to provide
reference material the document should draw on.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.Options{
				Provider:      provider,
				Session:       session,
				MaxIterations: maxIter,
				TargetChars:   targetChars,
				NoResearch:    noResearch,
				Verbose:       verbose,
			}

			var err error
			if opts.StyleGuide, err = readOptionalFile(styleGuidePath); err != nil {
				return err
			}
			if opts.ExternalData, err = readOptionalFile(dataPath); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cli.Run(ctx, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&targetChars, "target-chars", 0, "Target document length in characters")
	cmd.Flags().StringVar(&styleGuidePath, "style-guide", "", "Path to a style guide file")
	cmd.Flags().StringVar(&dataPath, "data", "", "Path to reference material")
	cmd.Flags().BoolVar(&noResearch, "no-research", false, "Disable web research")
	return cmd
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
