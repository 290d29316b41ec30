package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"paperflow/internal/application/commands"
)

var (
	resetPurge bool
	resetForce bool
)

var resetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Send a failed paper back through the pipeline",
	Long: `Move a paper back to Detected so the next watch run processes it
again. Only failed papers are reset unless --force is given; --purge
also deletes its converted text and summary.`,
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

		res, err := commands.NewResetCommand(ledger, store, args[0], resetPurge, resetForce).Execute(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetPurge, "purge", false, "also delete the converted text and summary")
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "reset even if the paper has not failed")
	rootCmd.AddCommand(resetCmd)
}
