package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"paperflow/internal/application/commands"
	"paperflow/internal/domain"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List papers that finished processing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := deps.Ledger(cmd.Context())
		if err != nil {
			return err
		}
		store, err := deps.Artifacts()
		if err != nil {
			return err
		}

		entries, err := commands.NewListPapersCommand(ledger, store).Execute(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No papers yet. Drop PDFs into", cfg.Paths.Papers, "and run paperflow watch.")
			return nil
		}

		for _, e := range entries {
			mark := " "
			if e.HasSummary {
				mark = "*"
			}
			fmt.Printf("%s %s\n", mark, e.Record.ID)
		}
		fmt.Printf("\n%d papers (* has summary)\n", len(entries))
		return nil
	},
}

var statusStages []string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every ledger record with its stage and last error",
	Long: `Show every paper the pipeline knows about, whatever its stage.

Examples:
  paperflow status
  paperflow status --stage failed
  paperflow status --stage converting --stage summarizing`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var stages []domain.Stage
		for _, s := range statusStages {
			st := domain.ParseStage(s)
			if st == domain.StageUnknown {
				return fmt.Errorf("unknown stage %q", s)
			}
			stages = append(stages, st)
		}

		ledger, err := deps.Ledger(cmd.Context())
		if err != nil {
			return err
		}
		store, err := deps.Artifacts()
		if err != nil {
			return err
		}

		entries, err := commands.NewStatusCommand(ledger, store, stages...).Execute(cmd.Context())
		if err != nil {
			return err
		}

		now := time.Now()
		for _, e := range entries {
			fmt.Println(statusLine(e, now))
		}
		return nil
	},
}

func statusLine(e commands.PaperEntry, now time.Time) string {
	rec := e.Record
	line := fmt.Sprintf("%-28s %-12s", rec.ID, rec.Stage)
	var notes []string
	if rec.Attempts > 0 {
		notes = append(notes, fmt.Sprintf("attempts=%d", rec.Attempts))
	}
	if !rec.NextAttemptAt.IsZero() && rec.NextAttemptAt.After(now) {
		notes = append(notes, "retry in "+rec.NextAttemptAt.Sub(now).Round(time.Second).String())
	}
	if rec.LastError != "" {
		notes = append(notes, rec.LastError)
	}
	if len(notes) == 0 {
		return strings.TrimRight(line, " ")
	}
	return line + " " + strings.Join(notes, "  ")
}

func init() {
	statusCmd.Flags().StringSliceVar(&statusStages, "stage", nil, "only show records in these stages")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
}
