package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// The message bus the serve daemon registers on
type BusType string

const (
	// Keep these names synced up with the toml ServiceConfig below
	BusSystem  BusType = "system"
	BusSession BusType = "session"
)

// SupportedOptions lists the options for the config parser
func (b BusType) SupportedOptions() []BusType {
	return []BusType{
		BusSystem,
		BusSession,
	}
}

type ServiceConfig struct {
	Bus             BusType      `toml:"bus" comment:"system or session"`
	Name            string       `toml:"name" comment:"well-known bus name requested by the daemon"`
	RefreshInterval TOMLDuration `toml:"refresh_interval" comment:"periodic refresh while serving, 0s disables it"`
	AllowedUsers    []uint32     `toml:"allowed_users,omitempty" comment:"uids besides root that may change the boot state over the bus"`
}

type ServiceConfigManager struct {
	BaseConfigManager[ServiceConfig]
}

// Verify verifies the "hard" conditions that the rest of the code relies on
func (a *ServiceConfigManager) Verify() error {
	if !slices.Contains(a.conf.Bus.SupportedOptions(), a.conf.Bus) {
		return fmt.Errorf("unsupported bus %q", a.conf.Bus)
	}

	if a.conf.Name == "" {
		return errors.New("service name must not be empty")
	}

	if a.conf.RefreshInterval.Value() < 0 {
		return errors.New("refresh interval must not be negative")
	}

	return nil
}

func NewServiceConfigManager(config *ServiceConfig, mgr *Manager) *ServiceConfigManager {
	j := ServiceConfigManager{}
	j.conf = config
	j.mgr = mgr

	return &j
}

type TOMLDuration time.Duration

func (d *TOMLDuration) UnmarshalText(b []byte) error {
	x, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = TOMLDuration(x)
	return nil
}

func (c TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(c).String()), nil
}

func (c TOMLDuration) Value() time.Duration {
	return time.Duration(c)
}
