package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/service/release"
)

var (
	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build the archive for the resolved version and sign it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := release.Build(cmd.Context(), releaseOptions())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", result.Archive, result.Version, result.Signing)

			return err
		},
	}

	publishCmd = &cobra.Command{
		Use:   "publish",
		Short: "Copy the built archive and its update descriptor to the publish directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := release.Publish(cmd.Context(), releaseOptions())
			if err != nil || result == nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Link)

			return err
		},
	}

	bumpCmd = &cobra.Command{
		Use:       "bump [major|minor|patch]",
		Short:     "Increment the release version, commit and tag it",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(xpi.BumpMajor), string(xpi.BumpMinor), string(xpi.BumpPatch)},
		RunE: func(cmd *cobra.Command, args []string) error {
			level := xpi.BumpPatch
			if len(args) > 0 {
				level = xpi.BumpLevel(args[0])
			}

			next, err := release.Bump(cmd.Context(), releaseOptions(), level)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), next)

			return err
		},
	}

	describeCmd = &cobra.Command{
		Use:   "describe",
		Short: "Print the resolved release, branch and build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			description, err := release.Describe(cmd.Context(), releaseOptions())
			if err != nil {
				return err
			}

			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			if err = encoder.Encode(description); err != nil {
				return err
			}

			return encoder.Close()
		},
	}
)
