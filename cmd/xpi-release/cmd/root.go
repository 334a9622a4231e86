package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/xpi-release/internal/buildinfo"
	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/service/release"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimum level of printed log messages.
	logLevel string

	// rootCmd represents the base command when called without any subcommands.
	rootCmd = &cobra.Command{
		Use:           "xpi-release",
		Short:         "Build, sign and publish browser extension archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
	}
)

// Execute runs the xpi-release CLI and exits with non-zero status on error.
func Execute() {
	buildinfo.AttachCobraVersionCommand(rootCmd)

	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		logger.ErrorKV(ctx, "xpi-release failed", "error", err)
		os.Exit(1)
	}
}

// releaseOptions are the task options built from the global flags.
func releaseOptions() *release.Options {
	return &release.Options{
		ConfigPath: configPath,
		Env:        config.OSEnvironment{},
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(
		buildCmd,
		publishCmd,
		bumpCmd,
		fixturesCmd,
		updateDescriptorCmd,
		describeCmd,
	)
}
