package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/manifest"
	"github.com/oshokin/xpi-release/internal/service/fixture"
)

var (
	// descriptorOutput is where update-descriptor writes, stdout when empty.
	descriptorOutput string

	fixturesCmd = &cobra.Command{
		Use:   "fixtures",
		Short: "Sync the fixture archives used by integration tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			return fixture.Sync(cmd.Context(), &fixture.Options{
				Install: cfg.Test.XPIs.Install,
				Sources: cfg.Test.XPIs.Download,
				Env:     config.OSEnvironment{},
			})
		},
	}

	updateDescriptorCmd = &cobra.Command{
		Use:   "update-descriptor <link>",
		Short: "Render the update descriptor announcing link as download location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			data, err := manifest.NewEditor(cfg.Manifest).UpdateDescriptor(args[0], cfg.Changelog)
			if err != nil {
				return err
			}

			if descriptorOutput == "" {
				_, err = cmd.OutOrStdout().Write(data)

				return err
			}

			return os.WriteFile(descriptorOutput, data, config.DefaultFilePermissions)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	updateDescriptorCmd.Flags().StringVarP(&descriptorOutput, "output", "o", "", "write the descriptor to this file")
}
