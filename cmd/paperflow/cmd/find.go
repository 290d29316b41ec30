package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"paperflow/internal/application/commands"
)

var (
	findTop      int
	findIn       string
	findPassages int
)

var findCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Search the remote index for relevant papers",
	Long: `Rank indexed papers by relevance to a query, or with --in, pull the
most relevant passages out of one paper.

Examples:
  paperflow find "attention mechanisms for translation"
  paperflow find "BLEU on WMT14" --in vaswani2017`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		indexer, err := deps.Indexer(cmd.Context())
		if err != nil {
			return err
		}

		if findIn != "" {
			ledger, err := deps.Ledger(cmd.Context())
			if err != nil {
				return err
			}
			passages, err := commands.NewSearchInPaperCommand(ledger, indexer, findIn, query, findPassages).Execute(cmd.Context())
			if err != nil {
				return err
			}
			if len(passages) == 0 {
				fmt.Println("No matching passages.")
			}
			for i, p := range passages {
				fmt.Printf("[%d] %s\n\n", i+1, p)
			}
			return nil
		}

		hits, err := commands.NewFindCommand(indexer, query, findTop).Execute(cmd.Context())
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println("No relevant papers.")
		}
		for _, h := range hits {
			fmt.Printf("%3.0f%%  %s\n", h.Score*100, h.DocumentID)
			if h.Snippet != "" {
				fmt.Printf("      %s\n", h.Snippet)
			}
		}
		return nil
	},
}

func init() {
	findCmd.Flags().IntVarP(&findTop, "top", "n", commands.DefaultTopK, "number of papers to return")
	findCmd.Flags().StringVar(&findIn, "in", "", "search inside one paper instead")
	findCmd.Flags().IntVar(&findPassages, "passages", 3, "passages to return with --in")
	rootCmd.AddCommand(findCmd)
}
