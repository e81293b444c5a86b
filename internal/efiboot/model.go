package efiboot

import (
	"fmt"
	"slices"
)

// Unknown marks a boot number that could not be determined
const Unknown = -1

// BootEntry is a single UEFI boot variable as listed by efibootmgr
type BootEntry struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Path   string `json:"path"`
}

const (
	sentinelName  = "efibootmgr err"
	sentinelPath  = "err://"
	unmatchedName = "ERR"
)

// sentinelEntry stands in for the whole entry list when no entry line was found
var sentinelEntry = BootEntry{Number: Unknown, Name: sentinelName, Path: sentinelPath}

// IsSentinel reports whether this is the placeholder for a failed entry parse
func (e BootEntry) IsSentinel() bool {
	return e.Number == Unknown
}

// Entries maps boot numbers to their entry
type Entries map[int]BootEntry

// Lookup returns the entry for number n, ok is false if there is none
func (e Entries) Lookup(n int) (BootEntry, bool) {
	entry, ok := e[n]
	return entry, ok
}

// BootState is one reconciled snapshot of the firmware boot configuration.
// Snapshots are never modified after they have been published.
type BootState struct {
	Entries Entries `json:"entries"`

	// Current is the entry the running system booted from, Unknown if not determinable
	Current int `json:"current"`

	// Next is the pending one-shot BootNext entry, Unknown if none is set
	Next           int  `json:"next"`
	HasPendingNext bool `json:"has_pending_next"`

	// Order is the firmware BootOrder, it may reference numbers missing in Entries
	Order []int `json:"order"`

	FirmwareRebootSupported bool `json:"firmware_reboot_supported"`
	FirmwareRebootActive    bool `json:"firmware_reboot_active"`
}

func newBootState() BootState {
	return BootState{
		Entries: Entries{},
		Current: Unknown,
		Next:    Unknown,
	}
}

// Clone returns a deep copy that shares nothing with s
func (s BootState) Clone() BootState {
	c := s
	c.Entries = make(Entries, len(s.Entries))
	for k, v := range s.Entries {
		c.Entries[k] = v
	}
	c.Order = slices.Clone(s.Order)
	return c
}

// Known is false when the snapshot only carries placeholders
func (s BootState) Known() bool {
	if s.Current == Unknown {
		return false
	}
	_, failed := s.Entries.Lookup(Unknown)
	return !failed
}

// Pending returns the pending next boot as a tagged target
func (s BootState) Pending() Target {
	if !s.HasPendingNext || s.Next < 0 {
		return NoPendingBoot()
	}
	return SpecificTarget(s.Next)
}

// Diverted is true if the next boot will not follow the regular boot order
func (s BootState) Diverted() bool {
	return s.Pending().Kind == TargetSpecific || s.FirmwareRebootActive
}

// Summary renders the state the way the panel header shows it:
// "1", "1 -> 5" for a pending BootNext, "1 -> EFI" when booting into the firmware
func (s BootState) Summary() string {
	str := fmt.Sprint(s.Current)
	if s.Next >= 0 {
		str = fmt.Sprintf("%d -> %d", s.Current, s.Next)
	}
	if s.FirmwareRebootActive {
		str = fmt.Sprintf("%d -> EFI", s.Current)
	}
	return str
}

// OrderedEntries returns the entries in boot order.
// Order numbers without a parsed entry are skipped.
func (s BootState) OrderedEntries() []BootEntry {
	out := make([]BootEntry, 0, len(s.Order))
	for _, n := range s.Order {
		if entry, ok := s.Entries.Lookup(n); ok {
			out = append(out, entry)
		}
	}
	return out
}
