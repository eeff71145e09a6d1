// Package cmd wires the ensemble CLI: running a turn under a conversation
// mode, listing the mode roster, and serving the mock model backend.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ensemble-chat/ensemble/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Multi-model conversation orchestrator",
	Long: `Ensemble sends one question to several model instances at once and
combines their responses under a conversation mode: parallel answers,
elections, tournaments, debates, consensus building, and more.`,
}

// v is the CLI's viper instance, initialized before any command runs.
var v = viper.New()

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is .ensemble.yaml in . or $HOME)")
}

func initConfig() {
	config.Init(v)

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	// Missing config file is fine: defaults plus env cover everything but
	// the instance roster, and commands that need a roster say so.
	_ = v.ReadInConfig()
}
