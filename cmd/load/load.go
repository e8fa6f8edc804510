// Package load contains the command to import follower counts into a lookup store.
package load

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/echotree/echotree/cmd/util"
	"github.com/echotree/echotree/pkg/logger"
	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/sqlcommon"
)

const (
	lookupEngineFlag = "lookup-engine"
	lookupURIFlag    = "lookup-uri"
	batchSizeFlag    = "batch-size"
	headerFlag       = "header"
	logFormatFlag    = "log-format"
	logLevelFlag     = "log-level"
)

func NewLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <file.csv|->",
		Short: "Import word,follower,count rows into the lookup store",
		Long: `The load command reads CSV rows of the form 'word,follower,count' and adds the counts to the
lookup store. Loading the same pair twice accumulates its count. Use '-' to read from stdin.
SQL stores must be migrated first.`,
		RunE: runLoad,
		Args: cobra.ExactArgs(1),
	}

	flags := cmd.Flags()

	flags.String(lookupEngineFlag, "sqlite", "the lookup store engine ('sqlite', 'postgres', 'mysql', 'badger')")
	flags.String(lookupURIFlag, "file:echotree.db", "the connection uri (or badger directory) of the lookup store")
	flags.Int(batchSizeFlag, sqlcommon.DefaultMaxRowsPerWrite, "the number of rows written per transaction")
	flags.Bool(headerFlag, false, "skip the first CSV record")
	flags.String(logFormatFlag, "text", "the log format to output logs in ('text' or 'json')")
	flags.String(logLevelFlag, "info", "the log level to use")

	cmd.PreRun = bindRunFlagsFunc(flags)

	return cmd
}

func bindRunFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(command *cobra.Command, args []string) {
		util.MustBindPFlag(lookupEngineFlag, flags.Lookup(lookupEngineFlag))
		util.MustBindEnv(lookupEngineFlag, "ECHOTREE_LOOKUP_ENGINE")

		util.MustBindPFlag(lookupURIFlag, flags.Lookup(lookupURIFlag))
		util.MustBindEnv(lookupURIFlag, "ECHOTREE_LOOKUP_URI")

		util.MustBindPFlag(batchSizeFlag, flags.Lookup(batchSizeFlag))
		util.MustBindPFlag(headerFlag, flags.Lookup(headerFlag))
		util.MustBindPFlag(logFormatFlag, flags.Lookup(logFormatFlag))
		util.MustBindPFlag(logLevelFlag, flags.Lookup(logLevelFlag))
	}
}

func runLoad(cmd *cobra.Command, args []string) error {
	engine := viper.GetString(lookupEngineFlag)
	batchSize := viper.GetInt(batchSizeFlag)
	if batchSize <= 0 {
		return fmt.Errorf("'%s' must be positive", batchSizeFlag)
	}

	log, err := logger.NewLogger(viper.GetString(logFormatFlag), viper.GetString(logLevelFlag), "Unix")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	in := cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ds, err := util.OpenDatastore(engine, viper.GetString(lookupURIFlag), sqlcommon.NewConfig(
		sqlcommon.WithLogger(log),
		sqlcommon.WithMaxRowsPerWrite(batchSize),
	))
	if err != nil {
		return err
	}
	defer ds.Close()

	total, err := Load(cmd.Context(), ds, in, batchSize, viper.GetBool(headerFlag))
	if err != nil {
		return err
	}

	log.Info("load done", zap.String("engine", engine), zap.Int("rows", total))
	return nil
}

// Load writes the word,follower,count records read from r in batches of batchSize and returns
// the number of rows written. Blank follower words are skipped.
func Load(ctx context.Context, w storage.FollowerWriter, r io.Reader, batchSize int, header bool) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	if header {
		if _, err := reader.Read(); err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read header: %w", err)
		}
	}

	total := 0
	batch := make([]storage.Row, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.WriteFollowers(ctx, batch); err != nil {
			return fmt.Errorf("write rows %d-%d: %w", total+1, total+len(batch), err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}

		line, _ := reader.FieldPos(0)

		count, err := strconv.ParseInt(strings.TrimSpace(record[2]), 10, 64)
		if err != nil {
			return total, fmt.Errorf("line %d: invalid count %q", line, record[2])
		}

		row := storage.Row{
			Word:     strings.TrimSpace(record[0]),
			Follower: strings.TrimSpace(record[1]),
			Count:    count,
		}
		if row.Follower == "" {
			continue
		}
		if err := storage.ValidateRow(row); err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}

		batch = append(batch, row)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}

	return total, flush()
}
