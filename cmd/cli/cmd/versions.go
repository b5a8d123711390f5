package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List the Python runtimes the server can build for",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewLayerClient(viper.GetString("url"), viper.GetString("token"))

		versions, err := client.ListVersions()
		if err != nil {
			return err
		}
		for _, v := range versions {
			cmd.Println(v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionsCmd)
}
