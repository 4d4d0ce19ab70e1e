package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/devports/kdcdash/pkg/log"
)

const (
	EnvHost     = "KDCDASH_HOST"
	EnvLogLevel = "KDCDASH_LOG_LEVEL"
	EnvConfig   = "KDCDASH_CONFIG"
)

// Config is the runtime configuration of the dashboard
type Config struct {
	Host            string
	RegistryPort    int
	PMCtlPort       int
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	Reconcile       ReconcileConfig
	LogLevel        log.LogLevel
	LogFile         string
}

// ReconcileConfig bounds the convergence poll loop
type ReconcileConfig struct {
	InitialDelay     time.Duration
	Interval         time.Duration
	MaxAttempts      int
	BulkRefreshDelay time.Duration
}

// Default returns the well-known deployment settings
func Default() Config {
	return Config{
		Host:            "localhost",
		RegistryPort:    4444,
		PMCtlPort:       7777,
		RefreshInterval: 5 * time.Second,
		RequestTimeout:  5 * time.Second,
		Reconcile: ReconcileConfig{
			InitialDelay:     time.Second,
			Interval:         time.Second,
			MaxAttempts:      10,
			BulkRefreshDelay: 1500 * time.Millisecond,
		},
		LogLevel: log.LevelInfo,
	}
}

// RegistryURL is the base URL of the port registry service
func (c Config) RegistryURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.RegistryPort)
}

// PMCtlURL is the base URL of the process manager service
func (c Config) PMCtlURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.PMCtlPort)
}

// duration decodes TOML strings such as "1.5s"
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// config.toml key mapping
type fileConfig struct {
	Host            string   `toml:"host"`
	RegistryPort    int      `toml:"registry_port"`
	PMCtlPort       int      `toml:"pmctl_port"`
	RefreshInterval duration `toml:"refresh_interval"`
	RequestTimeout  duration `toml:"request_timeout"`
	Reconcile       struct {
		InitialDelay     duration `toml:"initial_delay"`
		Interval         duration `toml:"interval"`
		MaxAttempts      int      `toml:"max_attempts"`
		BulkRefreshDelay duration `toml:"bulk_refresh_delay"`
	} `toml:"reconcile"`
	Log struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"log"`
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to load config (%s): %w", path, err)
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("registry_port") {
		cfg.RegistryPort = raw.RegistryPort
	}
	if meta.IsDefined("pmctl_port") {
		cfg.PMCtlPort = raw.PMCtlPort
	}
	if meta.IsDefined("refresh_interval") {
		cfg.RefreshInterval = raw.RefreshInterval.Duration
	}
	if meta.IsDefined("request_timeout") {
		cfg.RequestTimeout = raw.RequestTimeout.Duration
	}
	if meta.IsDefined("reconcile", "initial_delay") {
		cfg.Reconcile.InitialDelay = raw.Reconcile.InitialDelay.Duration
	}
	if meta.IsDefined("reconcile", "interval") {
		cfg.Reconcile.Interval = raw.Reconcile.Interval.Duration
	}
	if meta.IsDefined("reconcile", "max_attempts") {
		cfg.Reconcile.MaxAttempts = raw.Reconcile.MaxAttempts
	}
	if meta.IsDefined("reconcile", "bulk_refresh_delay") {
		cfg.Reconcile.BulkRefreshDelay = raw.Reconcile.BulkRefreshDelay.Duration
	}
	if meta.IsDefined("log", "level") {
		lvl, ok := log.ParseLevel(raw.Log.Level)
		if !ok {
			return Config{}, fmt.Errorf("config parse failed (%s): unknown log level %q", path, raw.Log.Level)
		}
		cfg.LogLevel = lvl
	}
	if meta.IsDefined("log", "file") {
		cfg.LogFile = strings.TrimSpace(raw.Log.File)
	}
	for _, key := range meta.Undecoded() {
		log.Warn("unknown config key", "file", path, "key", key.String())
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config (%s): %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment overrides
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvHost)); v != "" {
		cfg.Host = v
	}
	if lvl, ok := log.ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.LogLevel = lvl
	}
}

// Validate checks ranges that would otherwise break the poll loop or the clients
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("host is required")
	}
	for name, port := range map[string]int{"registry_port": cfg.RegistryPort, "pmctl_port": cfg.PMCtlPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if cfg.Reconcile.InitialDelay < 0 || cfg.Reconcile.Interval <= 0 || cfg.Reconcile.BulkRefreshDelay < 0 {
		return fmt.Errorf("reconcile delays must not be negative and interval must be positive")
	}
	if cfg.Reconcile.MaxAttempts < 1 {
		return fmt.Errorf("reconcile.max_attempts must be at least 1")
	}
	return nil
}
