package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"paperflow/internal/application/commands"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [id...]",
	Short: "Push local papers missing from the remote index",
	Long: `Push converted papers to the remote index when the index does not
already hold them at their current fingerprint. Without arguments every
paper with converted text is considered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := deps.Ledger(cmd.Context())
		if err != nil {
			return err
		}
		store, err := deps.Artifacts()
		if err != nil {
			return err
		}
		indexer, err := deps.Indexer(cmd.Context())
		if err != nil {
			return err
		}

		res, err := commands.NewUploadCommand(ledger, store, indexer, args...).Execute(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range res.Uploaded {
			fmt.Println("uploaded", id)
		}
		for id, ferr := range res.Failed {
			fmt.Printf("failed   %s: %v\n", id, ferr)
		}
		fmt.Println(res.Message)
		return res.Err()
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
