// Package cmd implements the lodestone command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lodestone-ai/lodestone/internal/app"
	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/log"
)

var (
	projectID string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "lodestone",
	Short: "Lodestone - hybrid semantic and keyword search over your files",
	Long: `Lodestone indexes your project files into a hybrid search index
combining embeddings with keyword (BM25) matching, keeps the index in
sync as files change, and answers queries with rank-fused results.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectID, "project", "default", "project identifier scoping the index")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// setup loads configuration and wires the application.
func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up application: %w", err)
	}
	return a, nil
}
