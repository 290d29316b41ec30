package cmd

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"paperflow/internal/adapters/editor"
	"paperflow/internal/adapters/tui"
)

var dashRefresh time.Duration

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Live view of the pipeline ledger",
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

		model := tui.NewApp(ledger, store, editor.NewOpener(), dashRefresh)
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		_, err = p.Run()
		return err
	},
}

func init() {
	dashCmd.Flags().DurationVar(&dashRefresh, "refresh", 2*time.Second, "how often to reload the ledger")
	rootCmd.AddCommand(dashCmd)
}
