package efiboot

import (
	"fmt"
	"strconv"
)

// ClearRequestNumber is the numeric spelling of a clear request at the CLI and bus boundary
const ClearRequestNumber = -100

type TargetKind int

const (
	// TargetNone means no BootNext is pending
	TargetNone TargetKind = iota
	// TargetClear requests removal of a pending BootNext
	TargetClear
	// TargetSpecific points at one boot entry
	TargetSpecific
)

// Target is a next boot value, either observed in a snapshot or requested by a caller
type Target struct {
	Kind   TargetKind
	Number int
}

func NoPendingBoot() Target {
	return Target{Kind: TargetNone, Number: Unknown}
}

func ClearPendingBoot() Target {
	return Target{Kind: TargetClear, Number: Unknown}
}

func SpecificTarget(n int) Target {
	return Target{Kind: TargetSpecific, Number: n}
}

// TargetFromNumber maps the numeric boundary form onto a target,
// -100 clears and any non-negative number selects that entry
func TargetFromNumber(n int) (Target, error) {
	switch {
	case n == ClearRequestNumber:
		return ClearPendingBoot(), nil
	case n >= 0:
		return SpecificTarget(n), nil
	}
	return Target{}, fmt.Errorf("%w: %d", ErrInvalidTarget, n)
}

func (t Target) String() string {
	switch t.Kind {
	case TargetClear:
		return "clear"
	case TargetSpecific:
		return strconv.Itoa(t.Number)
	}
	return "none"
}

// efibootmgrArgs returns the efibootmgr arguments that apply the target
func (t Target) efibootmgrArgs() ([]string, error) {
	switch t.Kind {
	case TargetClear:
		return []string{"-N"}, nil
	case TargetSpecific:
		if t.Number < 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidTarget, t.Number)
		}
		return []string{"-n", strconv.Itoa(t.Number)}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, t)
}
