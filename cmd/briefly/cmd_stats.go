package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine(false)
			if err != nil {
				return err
			}
			defer eng.Close()

			st, err := eng.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(st)
			}

			fmt.Printf("Store:      %s (%.1f KB)\n", st.Path, float64(st.SizeBytes)/1024)
			fmt.Printf("Collection: %s\n", st.Collection)
			if !st.Built {
				fmt.Println("            not built yet, run: briefly index <folder>")
			} else {
				fmt.Printf("Entries:    %d\n", st.Entries)
			}
			fmt.Printf("Embedding:  %s\n", st.Binding)
			if len(st.Collections) > 1 {
				fmt.Println("\nAll collections:")
				for _, c := range st.Collections {
					fmt.Printf("  %-20s %6d  %s\n", c.Name, c.Count, c.Binding)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print statistics as JSON")
	return cmd
}
