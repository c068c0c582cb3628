package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DreamCats/briefly/internal/pipeline"
	"github.com/DreamCats/briefly/internal/progress"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		k           int
		minScore    float64
		jsonOutput  bool
		showSources bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Example: `  briefly ask "When did the accident happen?"
  briefly ask "Who treated the plaintiff?" --k 5 --sources`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if cmd.Flags().Changed("min-score") && (minScore < 0 || minScore > 1) {
				return fmt.Errorf("--min-score must be within [0, 1], got %v", minScore)
			}
			eng, err := a.engine(false)
			if err != nil {
				return err
			}
			defer eng.Close()

			var opts []pipeline.AskOption
			if cmd.Flags().Changed("k") {
				opts = append(opts, pipeline.WithK(k))
			}
			if cmd.Flags().Changed("min-score") {
				opts = append(opts, pipeline.WithMinScore(minScore))
			}

			stop := progress.StartSpinner(!jsonOutput && progress.DefaultEnabled(), "thinking")
			ans, err := eng.Ask(cmd.Context(), query, opts...)
			stop()
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(ans)
			}
			fmt.Println(ans.Text)
			if showSources {
				fmt.Println()
				for _, s := range ans.Sources {
					fmt.Printf("  %.3f  %s\n", s.Score, s.ID)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 0, "number of chunks to retrieve (default retrieval.top_k)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "relevance floor in [0,1]; 0 disables (default retrieval.min_score)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the answer and sources as JSON")
	cmd.Flags().BoolVar(&showSources, "sources", false, "list the chunk ids the answer used")
	return cmd
}
