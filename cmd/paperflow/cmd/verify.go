package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"paperflow/internal/application/commands"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <id> <claim>",
	Short: "Check whether a paper supports a claim",
	Long: `Ask the language model whether a paper supports a claim.

Example:
  paperflow verify vaswani2017 "The Transformer reaches 28.4 BLEU on WMT 2014 English-German"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := deps.Ledger(cmd.Context())
		if err != nil {
			return err
		}
		store, err := deps.Artifacts()
		if err != nil {
			return err
		}
		verifier, err := deps.Summarizer(cmd.Context())
		if err != nil {
			return err
		}

		claim := strings.Join(args[1:], " ")
		res, err := commands.NewVerifyCommand(ledger, store, verifier, args[0], claim).Execute(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println(res.Message)
		if v := res.Verification; v.Quote != "" {
			fmt.Printf("\n> %s\n", v.Quote)
		}
		if v := res.Verification; v.Notes != "" {
			fmt.Printf("\n%s\n", v.Notes)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
