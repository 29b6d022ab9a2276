package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandonfcohen1/gnarmap/internal/objectstore"
	"github.com/brandonfcohen1/gnarmap/internal/remotezarr"
	"github.com/brandonfcohen1/gnarmap/internal/timeseries"
	"github.com/brandonfcohen1/gnarmap/internal/zarrstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var debug bool
	var logger *zap.SugaredLogger

	cmd := &cobra.Command{
		Use:          "gnarmap",
		Short:        "SNODAS COG-to-Zarr accumulation pipeline",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var z *zap.Logger
			var err error
			if debug {
				z, err = zap.NewDevelopment()
			} else {
				z, err = zap.NewProduction()
			}
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			logger = z.Sugar()
			return nil
		},
	}
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newBuildZarrCommand(&logger),
		newExtractTimeseriesCommand(&logger),
		newBackfillCommand(),
		newDailyCommand(),
	)
	return cmd
}

func newBuildZarrCommand(logger **zap.SugaredLogger) *cobra.Command {
	var cogDir, output string
	var appendMode bool

	cmd := &cobra.Command{
		Use:   "build-zarr",
		Short: "accumulate a directory of SNODAS snow_depth COGs into a Zarr v3 store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dest, err := parseDestination(output)
			if err != nil {
				return err
			}

			switch dest.kind {
			case destLocal:
				var acc *zarrstore.Accumulator
				if appendMode {
					if _, err := os.Stat(dest.path); err == nil {
						acc, err = zarrstore.Open(dest.path, *logger)
						if err != nil {
							return fmt.Errorf("open existing store: %w", err)
						}
					}
				}
				if acc == nil {
					acc, err = zarrstore.Create(dest.path, *logger)
					if err != nil {
						return fmt.Errorf("create store: %w", err)
					}
				}
				processed, err := acc.ProcessCOGs(ctx, cogDir, appendMode)
				if err != nil {
					return fmt.Errorf("process cogs: %w", err)
				}
				(*logger).Infof("complete: %d dates processed, %d total dates in store", processed, acc.DatesCount())
				return nil

			case destRemote:
				creds, ok := objectstore.R2CredentialsFromEnv()
				if !ok {
					return fmt.Errorf("remote destination requires R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY")
				}
				store, err := objectstore.NewS3Store(ctx, dest.bucket, dest.prefix, creds)
				if err != nil {
					return fmt.Errorf("connect to remote store: %w", err)
				}
				processed, err := remotezarr.ProcessRemote(ctx, cogDir, store, ".", *logger)
				if err != nil {
					return fmt.Errorf("process remote: %w", err)
				}
				(*logger).Infof("complete: %d dates processed", processed)
				return nil
			}
			return fmt.Errorf("unreachable destination kind")
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cogDir, "cog-dir", "", "directory of input snow_depth COGs")
	flags.StringVar(&output, "output", "", "local path, or r2://bucket/prefix, or s3://bucket/prefix")
	flags.BoolVar(&appendMode, "append", false, "append to an existing store instead of rebuilding")
	cmd.MarkFlagRequired("cog-dir")
	cmd.MarkFlagRequired("output")

	return cmd
}

func newExtractTimeseriesCommand(logger **zap.SugaredLogger) *cobra.Command {
	var cogDir, output string
	var resolution float64

	cmd := &cobra.Command{
		Use:   "extract-timeseries",
		Short: "sample a directory of SNODAS COGs at a coarse lat/lng grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			extractor := timeseries.NewExtractor(resolution, nil, *logger)
			if err := extractor.ProcessCOGs(cmd.Context(), cogDir); err != nil {
				return fmt.Errorf("process cogs: %w", err)
			}
			if err := extractor.WriteOutput(output); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			(*logger).Infof("complete: %d grid points, %d data points",
				extractor.GridPointCount(), extractor.DataPointCount())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cogDir, "cog-dir", "", "directory of input COGs")
	flags.StringVar(&output, "output", "", "output directory for timeseries/")
	flags.Float64Var(&resolution, "resolution", 0.1, "grid resolution in degrees")
	cmd.MarkFlagRequired("cog-dir")
	cmd.MarkFlagRequired("output")

	return cmd
}

// newBackfillCommand and newDailyCommand complete the CLI surface
// spec.md §6 names but delegate to the out-of-scope fetch/unpack/
// envi_to_cog collaborators (HTTP download, tar/gzip unwrapping,
// gdal_translate invocation), none of which this repository
// implements.
func newBackfillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "download and convert a historical date range (not implemented in this build)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("backfill requires the external fetch/unpack/convert collaborators, not implemented in this build")
		},
	}
}

func newDailyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "download and convert the latest day (not implemented in this build)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("daily requires the external fetch/unpack/convert collaborators, not implemented in this build")
		},
	}
}

type destKind int

const (
	destLocal destKind = iota
	destRemote
)

type destination struct {
	kind   destKind
	path   string
	bucket string
	prefix string
}

// parseDestination implements the Destination DSL of spec.md §6:
// "r2://bucket/prefix" or "s3://bucket/prefix" or a local filesystem
// path.
func parseDestination(output string) (destination, error) {
	for _, scheme := range []string{"r2://", "s3://"} {
		if strings.HasPrefix(output, scheme) {
			rest := strings.TrimPrefix(output, scheme)
			parts := strings.SplitN(rest, "/", 2)
			bucket := parts[0]
			prefix := ""
			if len(parts) == 2 {
				prefix = parts[1]
			}
			if bucket == "" {
				return destination{}, fmt.Errorf("invalid destination %q: missing bucket", output)
			}
			return destination{kind: destRemote, bucket: bucket, prefix: prefix}, nil
		}
	}
	return destination{kind: destLocal, path: output}, nil
}
