package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LeoCommon/efiboot/pkg/log"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	log.Init(true)

	m := NewManager()
	path := filepath.Join(t.TempDir(), "missing.toml")
	require.NoError(t, m.Load(path, true))

	assert.Equal(t, DefaultEfibootmgr, m.Tools().C().Efibootmgr)
	assert.Equal(t, DefaultBootctl, m.Tools().C().Bootctl)
	assert.Equal(t, "pkexec", m.Elevation().C().Tool)
	assert.Equal(t, []string{"--disable-internal-agent"}, m.Elevation().C().Flags)
	assert.Equal(t, BusSystem, m.Service().C().Bus)
	assert.Equal(t, time.Duration(0), m.Service().C().RefreshInterval.Value())
	assert.Equal(t, path, m.Path())

	assert.Error(t, NewManager().Load(path, false))
}

func TestLoadOverridesDefaults(t *testing.T) {
	log.Init(true)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[client]
debug = true

[tools]
efibootmgr = "/usr/sbin/efibootmgr"

[elevation]
disabled = true

[service]
bus = "session"
refresh_interval = "30s"
allowed_users = [1000]
`), 0644))

	m := NewManager()
	require.NoError(t, m.Load(path, false))

	assert.True(t, m.Client().C().Debug)
	assert.Equal(t, "/usr/sbin/efibootmgr", m.Tools().C().Efibootmgr)
	// Untouched keys keep their defaults
	assert.Equal(t, DefaultBootctl, m.Tools().C().Bootctl)
	assert.True(t, m.Elevation().C().Disabled)
	assert.Equal(t, BusSession, m.Service().C().Bus)
	assert.Equal(t, DefaultBusName, m.Service().C().Name)
	assert.Equal(t, 30*time.Second, m.Service().C().RefreshInterval.Value())
	assert.Equal(t, []uint32{1000}, m.Service().C().AllowedUsers)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	log.Init(true)

	dir := t.TempDir()
	tests := map[string]string{
		"malformed":        "[tools\nefibootmgr = ",
		"bad bus":          "[service]\nbus = \"satellite\"\n",
		"bad duration":     "[service]\nrefresh_interval = \"soon\"\n",
		"negative":         "[service]\nrefresh_interval = \"-5s\"\n",
		"empty efibootmgr": "[tools]\nefibootmgr = \"\"\n",
		"no elevation":     "[elevation]\ntool = \"\"\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			assert.Error(t, NewManager().Load(path, true))
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	log.Init(true)

	path := filepath.Join(t.TempDir(), "config.toml")
	m := NewManager()
	require.NoError(t, m.Load(path, true))

	m.Tools().Set(func(c *ToolsConfig) {
		c.Bootctl = "/usr/bin/bootctl"
	})
	require.NoError(t, m.Tools().Save())

	reloaded := NewManager()
	require.NoError(t, reloaded.Load(path, false))
	assert.Equal(t, "/usr/bin/bootctl", reloaded.Tools().C().Bootctl)
}

func TestSaveWithoutLoad(t *testing.T) {
	log.Init(true)
	assert.Error(t, NewManager().Save())
}

func TestWriteSample(t *testing.T) {
	log.Init(true)

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, WriteSample(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[elevation]")
	assert.Contains(t, string(data), "efibootmgr")

	m := NewManager()
	require.NoError(t, m.Load(path, false))
	assert.Equal(t, *New(), *m.config)
}

func TestAddFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := CLIFlags{}
	AddFlags(fs, &flags)

	require.NoError(t, fs.Parse([]string{"--config", "/tmp/x.toml", "--debug"}))
	assert.Equal(t, "/tmp/x.toml", flags.ConfigPath)
	assert.True(t, flags.Debug)

	defaults := CLIFlags{}
	AddFlags(pflag.NewFlagSet("defaults", pflag.ContinueOnError), &defaults)
	assert.Equal(t, DefaultConfigPath, defaults.ConfigPath)
	assert.False(t, defaults.Debug)
}
