package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devports/kdcdash/pkg/log"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "http://localhost:4444", cfg.RegistryURL())
	assert.Equal(t, "http://localhost:7777", cfg.PMCtlURL())
}

func TestLoadOverlaysDefinedKeysOnly(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
host = "kdc.lan"
pmctl_port = 8777

[reconcile]
interval = "250ms"
max_attempts = 4

[log]
level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kdc.lan", cfg.Host)
	assert.Equal(t, 4444, cfg.RegistryPort)
	assert.Equal(t, 8777, cfg.PMCtlPort)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconcile.Interval)
	assert.Equal(t, time.Second, cfg.Reconcile.InitialDelay)
	assert.Equal(t, 4, cfg.Reconcile.MaxAttempts)
	assert.Equal(t, log.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.RefreshInterval)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad port":     "registry_port = 70000\n",
		"bad duration": "refresh_interval = \"soon\"\n",
		"zero bound":   "[reconcile]\nmax_attempts = 0\n",
		"bad level":    "[log]\nlevel = \"loud\"\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvHost, "10.0.0.5")
	t.Setenv(EnvLogLevel, "error")

	cfg := Default()
	ApplyEnv(&cfg)
	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, log.LevelError, cfg.LogLevel)
}
