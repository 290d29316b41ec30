package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"paperflow/internal/application/commands"
)

var downloadName string

var downloadCmd = &cobra.Command{
	Use:   "download {url|arxiv|doi|scholar} <reference>",
	Short: "Fetch a paper into the watched papers folder",
	Long: `Resolve a reference to an open access PDF and save it in paths.papers.
The file is renamed into place once complete, so a running watch picks
it up and processes it like any dropped PDF.

Examples:
  paperflow download url https://arxiv.org/pdf/1706.03762.pdf
  paperflow download url https://example.com/paper.pdf --name smith2024
  paperflow download arxiv 1706.03762
  paperflow download doi 10.48550/arXiv.1706.03762
  paperflow download scholar 649def34f8be52c8b66281af98ae884c09aef38b`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: commands.DownloadSources,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := commands.NewDownloadCommand(deps.Web(), cfg.Paths.Papers, strings.ToLower(args[0]), args[1])
		c.Name = downloadName

		res, err := c.Execute(cmd.Context())
		if err != nil {
			return err
		}
		if res.Title != "" {
			fmt.Println(res.Title)
		}
		fmt.Println(res.Message)
		if !res.Existed {
			fmt.Println("A running `paperflow watch` will process it as", res.DocumentID)
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadName, "name", "n", "", "file name to save under (without .pdf)")
	rootCmd.AddCommand(downloadCmd)
}
