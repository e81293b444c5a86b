package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/LeoCommon/efiboot/pkg/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	ProductName  = "efiboot"
	ConfigFolder = "/etc/" + ProductName + "/"
	ConfigFile   = "config.toml"

	DefaultConfigPath = ConfigFolder + ConfigFile

	DefaultEfibootmgr    = "efibootmgr"
	DefaultBootctl       = "bootctl"
	DefaultElevationTool = "pkexec"

	DefaultBusName         = "io.github.leocommon.EFIBoot"
	DefaultRefreshInterval = time.Duration(0)

	DefaultDebugModeValue = false
)

// DefaultElevationFlags keeps pkexec from spawning its own text agent
var DefaultElevationFlags = []string{"--disable-internal-agent"}

type CLIFlags struct {
	ConfigPath string
	Debug      bool
}

type MainConfig struct {
	Client    ClientConfig    `toml:"client"`
	Tools     ToolsConfig     `toml:"tools"`
	Elevation ElevationConfig `toml:"elevation"`
	Service   ServiceConfig   `toml:"service"`
}

type ConfigManager interface {
	lock()
	unlock()
	Verify() error
}

type ConfigManagerKey string

const (
	CMClient    ConfigManagerKey = "client"
	CMTools     ConfigManagerKey = "tools"
	CMElevation ConfigManagerKey = "elevation"
	CMService   ConfigManagerKey = "service"
)

type ConfigManagerStore map[ConfigManagerKey]ConfigManager

type Manager struct {
	mu sync.RWMutex

	// The actual config, never share this with other code
	config *MainConfig

	// The config manager store (pointers)
	store ConfigManagerStore

	// The config path
	path string
}

func (m *Manager) Client() *ClientConfigManager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[CMClient].(*ClientConfigManager)
	if !ok {
		log.Panic("implementation mistake, no CMClient found")
		return nil
	}
	return cm
}

func (m *Manager) Tools() *ToolsConfigManager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[CMTools].(*ToolsConfigManager)
	if !ok {
		log.Panic("implementation mistake, no CMTools found")
		return nil
	}
	return cm
}

func (m *Manager) Elevation() *ElevationConfigManager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[CMElevation].(*ElevationConfigManager)
	if !ok {
		log.Panic("implementation mistake, no CMElevation found")
		return nil
	}
	return cm
}

func (m *Manager) Service() *ServiceConfigManager {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.store[CMService].(*ServiceConfigManager)
	if !ok {
		log.Panic("implementation mistake, no CMService found")
		return nil
	}
	return cm
}

// Path returns the file the config was loaded from
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// Load reads path on top of the defaults. A missing file is only an error
// when acceptEmptyConfig is false, a malformed one always is.
func (m *Manager) Load(path string, acceptEmptyConfig bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, m.config); err != nil {
			log.Error("failed to unmarshal config file", zap.String("path", path), zap.Error(err))
			return fmt.Errorf("config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && acceptEmptyConfig:
		log.Debug("no config file found, using defaults", zap.String("path", path))
	default:
		return err
	}

	// Store the load path
	m.path = path

	// Verify all configs contain the mandatory values
	for key, value := range m.store {
		if err := value.Verify(); err != nil {
			return fmt.Errorf("config section %s: %w", key, err)
		}
	}

	// Debug log output
	log.Debug("active config", zap.Any("config", m.config), zap.String("path", m.path))

	return nil
}

// Save locks all configs and writes it to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Lock all config managers
	for _, value := range m.store {
		value.lock()
	}

	// Unlock the config managers when we are done
	defer func() {
		for _, value := range m.store {
			value.unlock()
		}
	}()

	if m.path == "" {
		return errors.New("config was never loaded, no path to save to")
	}

	return writeConfig(m.path, m.config)
}

// WriteSample writes the default configuration to path
func WriteSample(path string) error {
	return writeConfig(path, New())
}

func writeConfig(path string, conf *MainConfig) error {
	// Marshal the config, does not use getters, so no locking => safe
	configData, err := toml.Marshal(conf)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, configData, 0644); err != nil {
		log.Error("failed to write config file", zap.String("path", path), zap.Error(err))
		return err
	}

	return nil
}

// New returns the default configuration
func New() *MainConfig {
	return &MainConfig{
		Client: ClientConfig{
			Debug: DefaultDebugModeValue,
		},
		Tools: ToolsConfig{
			Efibootmgr: DefaultEfibootmgr,
			Bootctl:    DefaultBootctl,
		},
		Elevation: ElevationConfig{
			Tool:  DefaultElevationTool,
			Flags: append([]string(nil), DefaultElevationFlags...),
		},
		Service: ServiceConfig{
			Bus:             BusSystem,
			Name:            DefaultBusName,
			RefreshInterval: TOMLDuration(DefaultRefreshInterval),
		},
	}
}

func NewManager() *Manager {
	m := &Manager{
		config: New(),
	}

	// Each config section manager gets his own locking primitive
	m.store = ConfigManagerStore{
		CMClient:    NewClientConfigManager(&m.config.Client, m),
		CMTools:     NewToolsConfigManager(&m.config.Tools, m),
		CMElevation: NewElevationConfigManager(&m.config.Elevation, m),
		CMService:   NewServiceConfigManager(&m.config.Service, m),
	}

	return m
}

// AddFlags registers the global flags shared by every command
func AddFlags(flagSet *pflag.FlagSet, flags *CLIFlags) {
	flagSet.StringVar(&flags.ConfigPath, "config", DefaultConfigPath, "relative or absolute path to the config file")
	flagSet.BoolVar(&flags.Debug, "debug", DefaultDebugModeValue, "true if the debug logging should be enabled")
}
