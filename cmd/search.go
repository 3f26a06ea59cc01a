package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lodestone-ai/lodestone/internal/store"
)

var (
	searchLimit  int
	searchNoGate bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the project's index with hybrid retrieval",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (0 uses the configured default)")
	searchCmd.Flags().BoolVar(&searchNoGate, "no-gate", false, "skip the intent gate and always retrieve")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	query := strings.Join(args, " ")

	var results []store.ScoredChunk
	if searchNoGate {
		hybrid, err := a.Hybrid(projectID)
		if err != nil {
			return err
		}
		results, err = hybrid.Retrieve(ctx, query, searchLimit)
		if err != nil {
			return err
		}
	} else {
		coordinator, err := a.Coordinator(projectID)
		if err != nil {
			return err
		}
		results, err = coordinator.Retrieve(ctx, query, nil, searchLimit)
		if err != nil {
			return err
		}
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. %s#%d  score=%.4f\n", i+1, r.FilePath, r.ChunkIndex, r.Score)
		fmt.Printf("    %s\n", preview(r.Text, 120))
	}
	return nil
}

// preview returns a single-line excerpt of the chunk text.
func preview(text string, maxRunes int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}
