package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/LeoCommon/efiboot/internal/client"
	"github.com/LeoCommon/efiboot/internal/efiboot"
	"github.com/spf13/cobra"
)

const clearArgument = "clear"

// parseTarget accepts an entry number as printed by efibootmgr, "clear" or the clear request number
func parseTarget(arg string) (efiboot.Target, error) {
	if strings.EqualFold(strings.TrimSpace(arg), clearArgument) {
		return efiboot.ClearPendingBoot(), nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return efiboot.Target{}, fmt.Errorf("%w: %q is neither a boot entry number nor %q", efiboot.ErrInvalidTarget, arg, clearArgument)
	}

	return efiboot.TargetFromNumber(n)
}

func newNextCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "next <number|clear>",
		Short: "Boot the given entry once on the next reboot, or clear the pending one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0])
			if err != nil {
				return err
			}

			return opts.withApp(func(a *client.App) error {
				return setNext(cmd, a, target)
			})
		},
	}
}

func newClearNextCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-next",
		Short: "Remove a pending next boot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *client.App) error {
				return setNext(cmd, a, efiboot.ClearPendingBoot())
			})
		},
	}
}

func setNext(cmd *cobra.Command, a *client.App, target efiboot.Target) error {
	if target.Kind == efiboot.TargetSpecific {
		// Warn early, efibootmgr is the one that rejects unknown entries
		if err := a.Reconciler.Refresh(cmd.Context()); err == nil {
			if _, ok := a.Reconciler.State().Entries.Lookup(target.Number); !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: no boot entry %04d is known\n", target.Number)
			}
		}
	}

	err := a.Reconciler.SetNextBoot(cmd.Context(), target)
	fmt.Fprintln(cmd.OutOrStdout(), a.Reconciler.State().Summary())
	return err
}
