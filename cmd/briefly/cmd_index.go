package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DreamCats/briefly/cmd/briefly/internal"
	"github.com/DreamCats/briefly/internal/indexer"
)

func newIndexCmd(a *app) *cobra.Command {
	var (
		reset      bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "index <folder>",
		Short: "Index the PDFs in a folder",
		Long: `Load every PDF under the folder, split pages into overlapping chunks and
embed the chunks that are not in the collection yet. Re-running on an unchanged
folder inserts nothing.`,
		Example: `  briefly index ./case-files
  briefly index ./case-files --reset`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, err := internal.ResolveFolder(args[0])
			if err != nil {
				return err
			}
			eng, err := a.engine(!jsonOutput)
			if err != nil {
				return err
			}
			defer eng.Close()

			var opts []indexer.BuildOption
			if reset {
				opts = append(opts, indexer.Reset())
			}
			a.log.Info("building index", "folder", folder, "collection", a.cfg.Store.Collection, "reset", reset)
			res, err := eng.BuildIndex(cmd.Context(), folder, opts...)
			if err != nil {
				return fmt.Errorf("index %s: %w", folder, err)
			}

			if jsonOutput {
				return printJSON(res)
			}
			fmt.Printf("Indexed %s into %q\n", folder, a.cfg.Store.Collection)
			fmt.Printf("  Documents: %6d pages\n", res.Documents)
			fmt.Printf("  Chunks:    %6d\n", res.Chunks)
			fmt.Printf("  Inserted:  %6d\n", res.Inserted)
			fmt.Printf("  Skipped:   %6d\n", res.Skipped)
			fmt.Printf("  Duration:  %v\n", res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop the collection and rebuild it from scratch")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	return cmd
}
