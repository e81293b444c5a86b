package systemd

const (
	NotifySocketEnvVar    = "NOTIFY_SOCKET"
	WatchdogUsecEnvVar    = "WATCHDOG_USEC"
	NotifyWatchdog        = "WATCHDOG=1"
	NotifyReloading       = "RELOADING=1"
	NotifyStopping        = "STOPPING=1"
	NotifyReady           = "READY=1"
	NotifyStatusKeyPrefix = "STATUS="
)
