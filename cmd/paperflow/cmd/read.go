package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"paperflow/internal/adapters/editor"
	"paperflow/internal/adapters/viewer"
	"paperflow/internal/application/commands"
)

var (
	readSection string
	readEdit    bool
	readOpen    bool
	summaryEdit bool
)

var readCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Print the converted markdown of a paper",
	Long: `Print the converted markdown of a paper, or one section of it.
The ID may be any unique part of the paper's ID.

Examples:
  paperflow read vaswani2017
  paperflow read vaswani --section results
  paperflow read vaswani2017 --edit
  paperflow read vaswani2017 --open`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := deps.Ledger(cmd.Context())
		if err != nil {
			return err
		}
		store, err := deps.Artifacts()
		if err != nil {
			return err
		}

		if readOpen {
			id, err := commands.ResolveID(cmd.Context(), ledger, args[0])
			if err != nil {
				return err
			}
			rec, err := ledger.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return viewer.NewOpener(cfg.Paths.Papers).Open(rec.SourcePath)
		}

		res, err := commands.NewReadPaperCommand(ledger, store, args[0], readSection).Execute(cmd.Context())
		if err != nil {
			return err
		}
		return show(res, readEdit)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <id>",
	Short: "Print the summary of a paper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := deps.Ledger(cmd.Context())
		if err != nil {
			return err
		}
		store, err := deps.Artifacts()
		if err != nil {
			return err
		}

		res, err := commands.NewSummaryCommand(ledger, store, args[0]).Execute(cmd.Context())
		if err != nil {
			return err
		}
		return show(res, summaryEdit)
	},
}

// show prints an artifact, or opens its file in $EDITOR
func show(res *commands.ReadResult, edit bool) error {
	if res.Matched {
		fmt.Fprintf(os.Stderr, "Matched %s\n", res.DocumentID)
	}
	if edit {
		return editor.NewOpener().OpenFile(res.Path)
	}
	fmt.Println(res.Content)
	return nil
}

func init() {
	readCmd.Flags().StringVarP(&readSection, "section", "s", "", "only print the section whose heading contains this text")
	readCmd.Flags().BoolVarP(&readEdit, "edit", "e", false, "open the markdown in $EDITOR")
	readCmd.Flags().BoolVar(&readOpen, "open", false, "open the source PDF in the system viewer")
	readCmd.MarkFlagsMutuallyExclusive("edit", "open")
	readCmd.MarkFlagsMutuallyExclusive("section", "open")
	summaryCmd.Flags().BoolVarP(&summaryEdit, "edit", "e", false, "open the summary in $EDITOR")

	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(summaryCmd)
}
