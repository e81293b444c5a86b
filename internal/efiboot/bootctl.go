package efiboot

import (
	"strings"

	"github.com/LeoCommon/efiboot/pkg/log"
	"go.uber.org/zap"
)

const (
	markerActive       = "active"
	markerNotSupported = "not supported"
)

// ParseFirmwareReboot reads "bootctl reboot-to-firmware" output.
// "active" on either stream means supported and active, otherwise the
// feature counts as supported unless some stream says "not supported".
func ParseFirmwareReboot(out Output) (supported, active bool) {
	switch {
	case strings.Contains(out.Stdout, markerActive) || strings.Contains(out.Stderr, markerActive):
		supported, active = true, true
	case !strings.Contains(out.Stdout, markerNotSupported) && !strings.Contains(out.Stderr, markerNotSupported):
		supported = true
	}

	log.Debug("reboot to firmware", zap.Bool("supported", supported), zap.Bool("active", active))
	return supported, active
}
