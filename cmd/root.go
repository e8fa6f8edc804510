// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	lookupEngineFlag = "lookup-engine"
	lookupEngineConf = "lookup.engine"
	lookupURIFlag    = "lookup-uri"
	lookupURIConf    = "lookup.uri"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with ECHOTREE, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("ECHOTREE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/echotree", "$HOME/.echotree", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetDefault(lookupEngineFlag, "")
	viper.SetDefault(lookupURIFlag, "")
	err := viper.ReadInConfig()
	if err == nil {
		viper.SetDefault(lookupEngineFlag, viper.Get(lookupEngineConf))
		viper.SetDefault(lookupURIFlag, viper.Get(lookupURIConf))
	}

	return &cobra.Command{
		Use:   "echotree",
		Short: "Builds word association trees and streams them to live subscribers",
		Long: `Builds word association trees and streams them to live subscribers.

Producers submit a root word (or a precomputed tree) to the ingest server. The tree of the most
frequent followers of that word is built from the lookup store and pushed to every client
connected to the subscribe server.`,
	}
}
