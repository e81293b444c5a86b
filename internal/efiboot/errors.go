package efiboot

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTarget        = errors.New("invalid next boot target")
	ErrRefreshInProgress    = errors.New("refresh already in progress")
	ErrFirmwareUnsupported  = errors.New("reboot to firmware is not supported")
	ErrFirmwareStateUnknown = errors.New("reboot to firmware state could not be read")
)

// ToolFailedError is returned when a tool ran but reported an unsuccessful exit
type ToolFailedError struct {
	Program  string
	ExitCode int
	Stderr   string
}

func (t *ToolFailedError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d: %s", t.Program, t.ExitCode, strings.TrimSpace(t.Stderr))
}

func (t *ToolFailedError) Is(e error) bool {
	_, ok := e.(*ToolFailedError)
	return ok
}
