package app

import (
	"fmt"

	"github.com/LeoCommon/efiboot/internal/client"
	"github.com/LeoCommon/efiboot/internal/client/config"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Export the boot state and its mutations on the message bus",
		Long:  "serve keeps a boot state snapshot and exports it on the configured bus until it receives SIGINT or SIGTERM. It reports readiness to systemd when started as a notify service.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *client.App) error {
				return a.Serve(cmd.Context())
			})
		},
	}
}

func newSampleConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sample-config [path]",
		Short: "Write a config file populated with the defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigFile
			if len(args) == 1 {
				path = args[0]
			}

			if err := config.WriteSample(path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sample config written to %s\n", path)
			return nil
		},
	}
}
