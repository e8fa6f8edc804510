package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/echotree/echotree/internal/build"
)

// NewVersionCommand returns the command to get the echotree version
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Return the echotree version",
		Long:  "Return the echotree version.",
		RunE:  version,
		Args:  cobra.NoArgs,
	}

	return cmd
}

// print out the built version
func version(_ *cobra.Command, _ []string) error {
	log.Printf("echotree Version %s Date %s commit id %s ", build.Version, build.Date, build.Commit)
	return nil
}
