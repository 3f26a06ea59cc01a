package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lodestone-ai/lodestone/internal/index"
)

var reindexWatch bool

var reindexCmd = &cobra.Command{
	Use:   "reindex [paths...]",
	Short: "Delete the project's index and rebuild it from scratch",
	Long: `Reindex tears down the project's on-disk index, clears all tracked
file hashes, and indexes the given paths again. Use it to recover from
a corrupted or stale index.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().BoolVarP(&reindexWatch, "watch", "w", false, "keep watching for file changes after indexing")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	idx, err := a.Registry.Get(projectID)
	if err != nil {
		return fmt.Errorf("getting indexer: %w", err)
	}

	if err := idx.ClearAndReindex(ctx, args, reindexWatch); err != nil {
		return err
	}

	p, err := waitUntilSettled(ctx, idx)
	if err != nil {
		return err
	}
	fmt.Printf("Reindexed %d/%d files (%d chunks)\n", p.FilesIndexed, p.FilesTotal, idx.ChunkCount())

	if reindexWatch && p.Status == index.StatusWatching {
		fmt.Println("Watching for changes. Press Ctrl+C to stop.")
		<-ctx.Done()
		fmt.Println("Stopping.")
	}
	return nil
}
