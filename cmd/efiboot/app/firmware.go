package app

import (
	"errors"
	"fmt"

	"github.com/LeoCommon/efiboot/internal/client"
	"github.com/LeoCommon/efiboot/internal/efiboot"
	"github.com/LeoCommon/efiboot/pkg/misc"
	"github.com/spf13/cobra"
)

func newFirmwareCommand(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:       "firmware <on|off>",
		Short:     "Reboot into the firmware setup on the next boot",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{misc.StateON, misc.StateOFF},
		RunE: func(cmd *cobra.Command, args []string) error {
			enable, err := misc.ParseOnOffState(args[0])
			if err != nil {
				return err
			}

			return opts.withApp(func(a *client.App) error {
				if *enable && !force {
					if err := refreshFirmware(cmd, a); err != nil {
						return err
					}
					if !a.Reconciler.State().FirmwareRebootSupported {
						return fmt.Errorf("%w, use --force to try anyway", efiboot.ErrFirmwareUnsupported)
					}
				}

				err := a.Reconciler.SetFirmwareReboot(cmd.Context(), *enable)
				fmt.Fprintln(cmd.OutOrStdout(), a.Reconciler.State().Summary())
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "try even if the firmware does not report support")

	return cmd
}

func newResetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear a pending next boot and the firmware setup request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *client.App) error {
				if err := refreshFirmware(cmd, a); err != nil {
					return err
				}

				err := a.Reconciler.Reset(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), a.Reconciler.State().Summary())
				return err
			})
		},
	}
}

// refreshFirmware refreshes and only fails if the firmware flag could not be
// read. A broken efibootmgr must not block bootctl.
func refreshFirmware(cmd *cobra.Command, a *client.App) error {
	err := a.Reconciler.Refresh(cmd.Context())
	if err == nil {
		return nil
	}

	if errors.Is(err, efiboot.ErrFirmwareStateUnknown) || cmd.Context().Err() != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	return nil
}
