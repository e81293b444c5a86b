package config

import (
	"errors"
	"strings"
)

// ToolsConfig names the boot manager programs, either on $PATH or absolute
type ToolsConfig struct {
	Efibootmgr string `toml:"efibootmgr" comment:"efibootmgr binary used to read and set BootNext"`
	Bootctl    string `toml:"bootctl" comment:"bootctl binary used for reboot-to-firmware"`
}

type ToolsConfigManager struct {
	BaseConfigManager[ToolsConfig]
}

// Verify verifies the "hard" conditions that the rest of the code relies on
func (a *ToolsConfigManager) Verify() error {
	if strings.TrimSpace(a.conf.Efibootmgr) == "" {
		return errors.New("tools.efibootmgr must not be empty")
	}

	if strings.TrimSpace(a.conf.Bootctl) == "" {
		return errors.New("tools.bootctl must not be empty")
	}

	return nil
}

func NewToolsConfigManager(config *ToolsConfig, mgr *Manager) *ToolsConfigManager {
	j := ToolsConfigManager{}
	j.conf = config
	j.mgr = mgr

	return &j
}

// ElevationConfig describes how mutations gain root privileges
type ElevationConfig struct {
	Tool     string   `toml:"tool" comment:"privilege elevation tool prefixed to every mutation"`
	Flags    []string `toml:"flags" comment:"flags passed to the elevation tool before the command"`
	Disabled bool     `toml:"disabled" comment:"run mutations directly, e.g. when already running as root"`
}

type ElevationConfigManager struct {
	BaseConfigManager[ElevationConfig]
}

// Verify verifies the "hard" conditions that the rest of the code relies on
func (a *ElevationConfigManager) Verify() error {
	if !a.conf.Disabled && strings.TrimSpace(a.conf.Tool) == "" {
		return errors.New("elevation enabled but no elevation tool specified")
	}

	return nil
}

func NewElevationConfigManager(config *ElevationConfig, mgr *Manager) *ElevationConfigManager {
	j := ElevationConfigManager{}
	j.conf = config
	j.mgr = mgr

	return &j
}
