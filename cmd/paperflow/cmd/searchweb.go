package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"paperflow/internal/application/commands"
	"paperflow/internal/ports"
)

var (
	searchWebLimit int
	searchWebJSON  bool
)

var searchWebCmd = &cobra.Command{
	Use:   "search-web {arxiv|scholar|brave|brave-academic} <query>",
	Short: "Search arXiv, Semantic Scholar or Brave for papers",
	Long: `Search public paper indexes. Semantic Scholar honours S2_API_KEY for
higher rate limits; Brave needs BRAVE_API_KEY. brave-academic restricts
results to paper sites and PDFs.

Pair with download to pull a hit into the library:
  paperflow search-web arxiv "vision transformer"
  paperflow download arxiv 2010.11929`,
	Args:      cobra.MinimumNArgs(2),
	ValidArgs: []string{"arxiv", "scholar", "brave", "brave-academic"},
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args[1:], " ")
		results, err := commands.NewWebSearchCommand(deps.Web(), strings.ToLower(args[0]), query, searchWebLimit).Execute(cmd.Context())
		if err != nil {
			return err
		}

		if searchWebJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		if len(results) == 0 {
			fmt.Println("No results found.")
		}
		for i, r := range results {
			printWebResult(i+1, r)
		}
		return nil
	},
}

func printWebResult(n int, r ports.WebResult) {
	fmt.Printf("%2d. %s\n", n, r.Title)
	var meta []string
	if r.Authors != "" {
		meta = append(meta, r.Authors)
	}
	if r.Year != 0 {
		meta = append(meta, fmt.Sprint(r.Year))
	}
	if r.Citations > 0 {
		meta = append(meta, fmt.Sprintf("%d citations", r.Citations))
	}
	if r.ArxivID != "" {
		meta = append(meta, "arXiv:"+r.ArxivID)
	}
	if len(meta) > 0 {
		fmt.Printf("    %s\n", strings.Join(meta, " | "))
	}
	fmt.Printf("    %s\n", r.URL)
	if r.PDFURL != "" {
		fmt.Printf("    pdf: %s\n", r.PDFURL)
	}
	if r.Abstract != "" {
		fmt.Printf("    %s\n", r.Abstract)
	}
	fmt.Println()
}

func init() {
	searchWebCmd.Flags().IntVarP(&searchWebLimit, "limit", "n", 10, "number of results")
	searchWebCmd.Flags().BoolVar(&searchWebJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchWebCmd)
}
