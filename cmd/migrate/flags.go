package migrate

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/echotree/echotree/cmd/util"
)

// bindRunFlagsFunc binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(command *cobra.Command, args []string) {
		util.MustBindPFlag(lookupEngineFlag, flags.Lookup(lookupEngineFlag))
		util.MustBindEnv(lookupEngineFlag, "ECHOTREE_LOOKUP_ENGINE")

		util.MustBindPFlag(lookupURIFlag, flags.Lookup(lookupURIFlag))
		util.MustBindEnv(lookupURIFlag, "ECHOTREE_LOOKUP_URI")

		util.MustBindPFlag(lookupUsernameFlag, flags.Lookup(lookupUsernameFlag))
		util.MustBindEnv(lookupUsernameFlag, "ECHOTREE_LOOKUP_USERNAME")

		util.MustBindPFlag(lookupPasswordFlag, flags.Lookup(lookupPasswordFlag))
		util.MustBindEnv(lookupPasswordFlag, "ECHOTREE_LOOKUP_PASSWORD")

		util.MustBindPFlag(versionFlag, flags.Lookup(versionFlag))
		util.MustBindEnv(versionFlag, "ECHOTREE_VERSION")

		util.MustBindPFlag(timeoutFlag, flags.Lookup(timeoutFlag))
		util.MustBindEnv(timeoutFlag, "ECHOTREE_TIMEOUT")

		util.MustBindPFlag(verboseMigrationFlag, flags.Lookup(verboseMigrationFlag))
		util.MustBindEnv(verboseMigrationFlag, "ECHOTREE_VERBOSE")

		util.MustBindPFlag(logFormatFlag, flags.Lookup(logFormatFlag))
		util.MustBindEnv(logFormatFlag, "ECHOTREE_LOG_FORMAT")

		util.MustBindPFlag(logLevelFlag, flags.Lookup(logLevelFlag))
		util.MustBindEnv(logLevelFlag, "ECHOTREE_LOG_LEVEL")

		util.MustBindPFlag(logTimestampFormatFlag, flags.Lookup(logTimestampFormatFlag))
		util.MustBindEnv(logTimestampFormatFlag, "ECHOTREE_LOG_TIMESTAMP_FORMAT")
	}
}
