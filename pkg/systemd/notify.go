package systemd

import (
	"errors"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/LeoCommon/efiboot/pkg/log"
	"go.uber.org/zap"
)

var ErrNoNotifySocket = errors.New("systemd-notify socket was not available")

// EntertainWatchdog sends a notification to the systemd watchdog
func EntertainWatchdog() error {
	log.Debug("Notifying systemd watchdog")
	return Notify(NotifyWatchdog)
}

// Ready tells the service manager that startup is complete
func Ready() error {
	return Notify(NotifyReady)
}

// Reloading tells the service manager that the service is re-establishing
// its state. Ready ends it.
func Reloading() error {
	return Notify(NotifyReloading)
}

// Stopping tells the service manager that shutdown has begun
func Stopping() error {
	return Notify(NotifyStopping)
}

// Status publishes a free-form status line, shown by systemctl status
func Status(status string) error {
	return Notify(NotifyStatusKeyPrefix + status)
}

// WatchdogInterval returns how often the watchdog must be entertained, which
// is half of the configured timeout. ok is false when no watchdog is set up.
func WatchdogInterval() (interval time.Duration, ok bool) {
	raw := os.Getenv(WatchdogUsecEnvVar)
	if raw == "" {
		return 0, false
	}

	usec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || usec <= 0 {
		log.Warn("ignoring invalid watchdog timeout", zap.String("value", raw))
		return 0, false
	}

	return time.Duration(usec) * time.Microsecond / 2, true
}

// Notify sends the provided msg to the systemd socket
func Notify(msg string) error {
	name := os.Getenv(NotifySocketEnvVar)
	if name == "" {
		return ErrNoNotifySocket
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Net: "unixgram", Name: name})
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write([]byte(msg))
	return err
}
