package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "layerctl",
	Short: "layerctl builds AWS Lambda Python layers through a layerplane server",
	Long: `layerctl is the command-line client for layerplane.

layerplane turns a Python version, a layer name and a list of PyPI packages
into a Lambda layer archive. The server validates the request, installs the
packages inside a throwaway Docker image that matches the Lambda runtime and
returns the zipped python/ tree.

Common workflows:

  List the supported runtimes:
    layerctl versions

  Build a layer and save it as MyLayer.zip:
    layerctl generate --python 3.11 --name MyLayer -r requests -r boto3

  Build from a requirements file:
    layerctl generate --python 3.12 --name Deps --requirements-file requirements.txt

  Show recent builds:
    layerctl history --limit 10

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    LAYERPLANE_URL      API endpoint (default: http://localhost:8000)
    LAYERPLANE_TOKEN    API token, when the server requires one`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".layerctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".layerctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "LAYERPLANE_VARNAME"
	viper.SetEnvPrefix("LAYERPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.layerctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8000", "layerplane server URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
