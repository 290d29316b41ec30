package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"paperflow/internal/application/citations"
	"paperflow/internal/ports"
)

var (
	citeBib    string
	citeJSON   bool
	citeQuick  bool
	citeStrict bool
)

var citeCmd = &cobra.Command{
	Use:   "cite [path...]",
	Short: "Check the citations of LaTeX sources against the library",
	Long: `Check every \cite key in the given .tex files or directories (default:
the current directory). Keys missing from the bibliography fail the check.
Unless --quick is given, each citation of a paper in the library is also
verified against the paper's text.

Suitable as a pre-commit hook: the exit status is non-zero when a key is
missing, and with --strict also when a claim is not supported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			paths = []string{"."}
		}
		bib := citeBib
		if bib == "" {
			bib = cfg.Citations.Bibliography
		}

		store, err := deps.Artifacts()
		if err != nil {
			return err
		}
		var verifier ports.Summarizer
		if !citeQuick {
			if verifier, err = deps.Summarizer(cmd.Context()); err != nil {
				return err
			}
		}

		checker := citations.NewChecker(store, verifier, cfg.Citations.MinConfidence, cfg.Pipeline.Workers)
		report, err := checker.Check(cmd.Context(), paths, bib, citeQuick || verifier == nil)
		if err != nil {
			return err
		}

		if citeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(os.Stdout, report)
		}

		block := citeStrict || cfg.Citations.BlockOnLowConfidence
		if !block && report.Flagged() > 0 {
			fmt.Fprintf(os.Stderr, "Warning: %d claim(s) need attention (not blocking)\n", report.Flagged())
		}
		return report.Err(block)
	},
}

func printReport(w io.Writer, report *citations.Report) {
	for _, r := range report.Results {
		switch {
		case r.Status == citations.StatusMissing:
			fmt.Fprintf(w, "MISSING  %s:%d  %s\n", r.File, r.Line, r.Key)
		case r.Outcome == citations.OutcomeUnchecked:
			continue
		default:
			fmt.Fprintf(w, "%-8s %s:%d  %s (confidence %.0f%%)\n", r.Outcome, r.File, r.Line, r.Key, r.Confidence*100)
			if r.Notes != "" {
				fmt.Fprintf(w, "         %s\n", r.Notes)
			}
		}
	}
	fmt.Fprintf(w, "%d citation(s) in %d file(s), %d bibliography entries, %d missing key(s), %d flagged\n",
		len(report.Results), len(report.Files), report.BibEntries, len(report.MissingKeys()), report.Flagged())
}

func init() {
	citeCmd.Flags().StringVar(&citeBib, "bib", "", "bibliography file (default citations.bibliography)")
	citeCmd.Flags().BoolVar(&citeJSON, "json", false, "print the report as JSON")
	citeCmd.Flags().BoolVar(&citeQuick, "quick", false, "only check keys against the bibliography")
	citeCmd.Flags().BoolVar(&citeStrict, "strict", false, "fail when a claim is not supported")
	rootCmd.AddCommand(citeCmd)
}
