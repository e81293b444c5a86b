package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/LeoCommon/efiboot/internal/client"
	"github.com/LeoCommon/efiboot/internal/efiboot"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

const maxPathWidth = 60

type statusView struct {
	Summary                 string              `json:"summary"`
	Current                 int                 `json:"current"`
	Next                    int                 `json:"next"`
	HasPendingNext          bool                `json:"pending"`
	Order                   []int               `json:"order"`
	FirmwareRebootSupported bool                `json:"firmware_reboot_supported"`
	FirmwareRebootActive    bool                `json:"firmware_reboot_active"`
	Entries                 []efiboot.BootEntry `json:"entries"`
}

func newStatusView(s efiboot.BootState) statusView {
	return statusView{
		Summary:                 s.Summary(),
		Current:                 s.Current,
		Next:                    s.Next,
		HasPendingNext:          s.HasPendingNext,
		Order:                   s.Order,
		FirmwareRebootSupported: s.FirmwareRebootSupported,
		FirmwareRebootActive:    s.FirmwareRebootActive,
		Entries:                 s.OrderedEntries(),
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current boot, the pending next boot and all entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *client.App) error {
				// Print what could be read even when a tool failed
				err := a.Reconciler.Refresh(cmd.Context())
				state := a.Reconciler.State()

				var printErr error
				if asJSON {
					printErr = printJSON(cmd.OutOrStdout(), state)
				} else {
					printTable(cmd.OutOrStdout(), state)
				}

				if err != nil {
					return err
				}
				return printErr
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the boot state as json")

	return cmd
}

func printJSON(w io.Writer, state efiboot.BootState) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newStatusView(state))
}

func printTable(w io.Writer, state efiboot.BootState) {
	header := uitable.New()
	header.AddRow("Boot:", state.Summary())
	header.AddRow("Current:", numberOrUnknown(state.Current))
	header.AddRow("Next:", state.Pending().String())
	header.AddRow("Firmware setup:", firmwareLabel(state))
	fmt.Fprintln(w, header)
	fmt.Fprintln(w)

	table := uitable.New()
	table.MaxColWidth = maxPathWidth
	table.Wrap = true
	table.AddRow("", "NUMBER", "NAME", "PATH")
	for _, e := range state.OrderedEntries() {
		table.AddRow(entryMarker(state, e), fmt.Sprintf("%04d", e.Number), e.Name, e.Path)
	}
	fmt.Fprintln(w, table)
}

func entryMarker(state efiboot.BootState, e efiboot.BootEntry) string {
	switch {
	case state.Pending() == efiboot.SpecificTarget(e.Number):
		return ">"
	case e.Number == state.Current:
		return "*"
	}
	return ""
}

func numberOrUnknown(n int) string {
	if n == efiboot.Unknown {
		return "unknown"
	}
	return fmt.Sprint(n)
}

func firmwareLabel(state efiboot.BootState) string {
	switch {
	case !state.FirmwareRebootSupported:
		return "not supported"
	case state.FirmwareRebootActive:
		return "on next boot"
	}
	return "off"
}
