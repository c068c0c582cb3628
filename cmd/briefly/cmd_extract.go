package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DreamCats/briefly/internal/extract"
	"github.com/DreamCats/briefly/internal/pipeline"
	"github.com/DreamCats/briefly/internal/progress"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		fieldsFile string
		only       []string
		workers    int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the configured case fields from the indexed documents",
		Long: `Run one retrieval and one completion per field. A field whose retrieval or
generation fails is reported with its error; the other fields are unaffected.`,
		Example: `  briefly extract
  briefly extract --fields fields.yaml --workers 4 --json
  briefly extract --only Plaintiff,DOB`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fieldsFile != "" {
				a.cfg.Extraction.FieldsFile = fieldsFile
			}
			eng, err := a.engine(false)
			if err != nil {
				return err
			}
			defer eng.Close()

			spec, err := eng.FieldSpec()
			if err != nil {
				return err
			}
			if spec, err = spec.Select(only); err != nil {
				return err
			}

			stop := progress.StartSpinner(!jsonOutput && progress.DefaultEnabled(),
				fmt.Sprintf("extracting %d fields", len(spec)))
			report, err := eng.Extract(cmd.Context(), spec, pipeline.WithWorkers(workers))
			stop()
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(report)
			}
			printReport(report)
			if n := report.Failed(); n > 0 {
				a.log.Warn("some fields failed", "failed", n, "total", len(report.Fields))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fieldsFile, "fields", "", "YAML field spec (default extraction.fields_file or the built-in set)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "extract only these fields")
	cmd.Flags().IntVar(&workers, "workers", 0, "fields processed concurrently (default extraction.workers)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func printReport(r *extract.Report) {
	for _, f := range r.Fields {
		switch {
		case f.Failed():
			fmt.Printf("%s: [error: %v]\n", f.Name, f.Err)
		case strings.Contains(f.Answer, "\n"):
			fmt.Printf("%s:\n  %s\n", f.Name, strings.ReplaceAll(f.Answer, "\n", "\n  "))
		default:
			fmt.Printf("%s: %s\n", f.Name, f.Answer)
		}
	}
	fmt.Printf("\n%d fields, %d failed, %v\n", len(r.Fields), r.Failed(), r.Duration.Round(time.Millisecond))
}
