package main

import (
	"os"

	"github.com/echotree/echotree/cmd"
	"github.com/echotree/echotree/cmd/load"
	"github.com/echotree/echotree/cmd/migrate"
	"github.com/echotree/echotree/cmd/push"
	"github.com/echotree/echotree/cmd/run"
	"github.com/echotree/echotree/cmd/sequences"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	runCmd := run.NewRunCommand()
	rootCmd.AddCommand(runCmd)

	migrateCmd := migrate.NewMigrateCommand()
	rootCmd.AddCommand(migrateCmd)

	loadCmd := load.NewLoadCommand()
	rootCmd.AddCommand(loadCmd)

	pushCmd := push.NewPushCommand()
	rootCmd.AddCommand(pushCmd)

	sequencesCmd := sequences.NewSequencesCommand()
	rootCmd.AddCommand(sequencesCmd)

	versionCmd := cmd.NewVersionCommand()
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
