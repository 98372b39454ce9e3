package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "docctl",
	Short: "Docctl is a command line tool for interacting with the docforge platform",
	Long: `docctl is the command-line interface for the DocForge document generation platform.

DocForge runs long document generation jobs through a staged pipeline:
an outline pass, parallel section drafts, and a final refine pass that
produces the finished document. Jobs survive worker restarts and every
stage streams its output live.

Common workflows:

  Create a job from a template:
    docctl create --template "product-brief" --answer topic="billing revamp"

  Fill in answers the template still needs:
    docctl answers <job-id> --answer audience="engineering leads"

  Check job status:
    docctl status <job-id>

  Stream generation output live:
    docctl watch <job-id>

Configuration:
  Set the API endpoint and owner via environment variables or a config file:
    DOCFORGE_API_URL    API endpoint (default: http://localhost:6161)
    DOCFORGE_OWNER      Owner identifier sent with every request

For more information, visit: https://github.com/docforge/docforge`,
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

		// Search config in home directory with name ".docctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".docctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "DOCFORGE_VARNAME"
	viper.SetEnvPrefix("DOCFORGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.docctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "DocForge Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("owner", "o", "", "Owner identifier sent with every request")
	viper.BindPFlag("owner", rootCmd.PersistentFlags().Lookup("owner"))
}
