package models

import (
	"os"
	"path/filepath"
)

// ConfigPaths provides paths for config and log files
type ConfigPaths struct {
	ConfigDir  string
	ConfigFile string
	LogFile    string
}

// GetConfigPaths returns paths for kdcdash configuration
func GetConfigPaths() (ConfigPaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return ConfigPaths{}, err
	}

	configDir := filepath.Join(home, ".config", "kdcdash")
	return ConfigPaths{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, "config.toml"),
		LogFile:    filepath.Join(configDir, "kdcdash.log"),
	}, nil
}

// EnsureDirs creates necessary configuration directories
func (cp ConfigPaths) EnsureDirs() error {
	dirs := []string{cp.ConfigDir, filepath.Dir(cp.LogFile)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
