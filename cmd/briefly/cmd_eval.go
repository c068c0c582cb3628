package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DreamCats/briefly/internal/pipeline"
)

func newEvalCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "eval <cases.yaml>",
		Short: "Check answers against expected responses with the model as judge",
		Example: `  # cases.yaml
  # - question: When did the accident happen?
  #   expected: March 2, 2023
  briefly eval cases.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := pipeline.LoadEvalCases(args[0])
			if err != nil {
				return err
			}
			eng, err := a.engine(false)
			if err != nil {
				return err
			}
			defer eng.Close()

			report, err := eng.Evaluate(cmd.Context(), cases)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				for _, r := range report.Results {
					status := "PASS"
					switch {
					case r.Err != nil:
						status = "ERROR"
					case !r.Passed:
						status = "FAIL"
					}
					fmt.Printf("[%s] %s\n", status, r.Question)
					if status != "PASS" {
						fmt.Printf("       expected: %s\n       actual:   %s\n", r.Expected, r.Actual)
					}
					if r.Err != nil {
						fmt.Printf("       error:    %v\n", r.Err)
					}
				}
				fmt.Printf("\n%d/%d passed\n", report.Passed(), len(report.Results))
			}

			if failed := len(report.Results) - report.Passed(); failed > 0 {
				return fmt.Errorf("%d of %d eval cases did not pass", failed, len(report.Results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print verdicts as JSON")
	return cmd
}
