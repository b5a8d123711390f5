package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent layer builds",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewLayerClient(viper.GetString("url"), viper.GetString("token"))

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		resp, err := client.ListBuilds(limit, offset)
		if err != nil {
			return err
		}

		if len(resp.Builds) == 0 {
			if offset > 0 {
				cmd.Println("No more builds found.")
			} else {
				cmd.Println("No builds found.")
			}
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "BUILD ID\tLAYER\tPYTHON\tSTATUS\tSIZE\tSTARTED\tPACKAGES")
		for _, b := range resp.Builds {
			packages := strings.Join(b.Packages, ",")
			if len(packages) > 40 {
				packages = packages[:37] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				b.ID,
				b.LayerName,
				b.RuntimeVersion,
				b.Status,
				b.ArtifactSize,
				b.StartedAt.Format(time.RFC3339),
				packages,
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "l", 20, "Number of builds to show")
	historyCmd.Flags().IntP("offset", "o", 0, "Offset for pagination")
}
