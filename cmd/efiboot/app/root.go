package app

import (
	"context"

	"github.com/LeoCommon/efiboot/internal/client"
	"github.com/LeoCommon/efiboot/internal/client/config"
	"github.com/spf13/cobra"
)

// SetupFunc builds the app for one command invocation
type SetupFunc func(flags config.CLIFlags) (*client.App, error)

type options struct {
	flags config.CLIFlags
	setup SetupFunc
}

// withApp runs fn on a freshly set up app and shuts it down afterwards
func (o *options) withApp(fn func(a *client.App) error) error {
	a, err := o.setup(o.flags)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	return fn(a)
}

func NewEfibootCommand(ctx context.Context) *cobra.Command {
	return newRootCommand(ctx, client.Setup)
}

func newRootCommand(ctx context.Context, setup SetupFunc) *cobra.Command {
	opts := &options{setup: setup}

	cmd := &cobra.Command{
		Use:           config.ProductName,
		Short:         "Inspect and divert the next UEFI boot",
		Long:          "efiboot reads the firmware boot manager state through efibootmgr and bootctl and lets you pick the entry the machine boots into next, or reboot into the firmware setup.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetContext(ctx)

	config.AddFlags(cmd.PersistentFlags(), &opts.flags)

	cmd.AddCommand(
		newStatusCommand(opts),
		newNextCommand(opts),
		newClearNextCommand(opts),
		newFirmwareCommand(opts),
		newResetCommand(opts),
		newServeCommand(opts),
		newSampleConfigCommand(),
	)

	return cmd
}
