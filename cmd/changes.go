package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/oakcellar/pricewatch-cli/pkg/priceapi"
)

var (
	changesPage  int
	changesQuery string
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List recent price changes",
	Long:  "List price changes from the past week, largest swings first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := priceapi.NewClient(cfg.API.AccessToken,
			priceapi.WithBaseURL(cfg.API.BaseURL))

		resp, err := client.PriceChanges(cmd.Context(), changesPage, changesQuery)
		if err != nil {
			return eris.Wrap(err, "changes")
		}

		if len(resp.Results) == 0 {
			fmt.Println("no price changes")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STORE\tNAME\tWAS\tNOW\tDELTA")
		for _, c := range resp.Results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				c.Store.Key,
				c.Name,
				dollars(c.Previous.Price),
				dollars(c.Price),
				dollars(c.Delta()),
			)
		}
		if err := w.Flush(); err != nil {
			return eris.Wrap(err, "changes: flush output")
		}

		if resp.Rel.NextPage != nil {
			fmt.Printf("\nmore results: --page %d\n", *resp.Rel.NextPage)
		}
		return nil
	},
}

func dollars(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func init() {
	changesCmd.Flags().IntVar(&changesPage, "page", 1, "result page")
	changesCmd.Flags().StringVar(&changesQuery, "query", "", "filter by bottle name substring")
	rootCmd.AddCommand(changesCmd)
}
