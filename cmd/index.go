package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lodestone-ai/lodestone/internal/index"
)

var watchFiles bool

var indexCmd = &cobra.Command{
	Use:   "index [paths...]",
	Short: "Index files or directories into the project's search index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&watchFiles, "watch", "w", false, "keep watching for file changes after indexing")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
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

	if err := idx.EnsureIndexed(args, watchFiles); err != nil {
		return err
	}

	p, err := waitUntilSettled(ctx, idx)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d/%d files (%d chunks)\n", p.FilesIndexed, p.FilesTotal, idx.ChunkCount())

	if watchFiles && p.Status == index.StatusWatching {
		fmt.Println("Watching for changes. Press Ctrl+C to stop.")
		<-ctx.Done()
		fmt.Println("Stopping.")
	}
	return nil
}

// waitUntilSettled polls progress until indexing finishes or the
// context is cancelled.
func waitUntilSettled(ctx context.Context, idx *index.Indexer) (index.Progress, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		p := idx.Progress()
		switch p.Status {
		case index.StatusReady, index.StatusWatching:
			return p, nil
		case index.StatusFailed:
			return p, fmt.Errorf("indexing failed: %s", p.Err)
		}

		select {
		case <-ctx.Done():
			return p, nil
		case <-ticker.C:
		}
	}
}
