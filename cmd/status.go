package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the project's index status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	idx, err := a.Registry.Get(projectID)
	if err != nil {
		return fmt.Errorf("getting indexer: %w", err)
	}

	p := idx.Progress()
	fmt.Printf("Project:  %s\n", projectID)
	fmt.Printf("Status:   %s\n", p.Status)
	fmt.Printf("Chunks:   %d embedded\n", idx.ChunkCount())
	if kw, err := idx.KeywordCount(cmd.Context()); err == nil {
		fmt.Printf("          %d keyword-indexed\n", kw)
	}
	if p.FilesTotal > 0 {
		fmt.Printf("Files:    %d/%d\n", p.FilesIndexed, p.FilesTotal)
	}
	if p.Err != "" {
		fmt.Printf("Error:    %s\n", p.Err)
	}
	fmt.Printf("Data dir: %s\n", a.Config.Storage.IndexDir(projectID))
	return nil
}
