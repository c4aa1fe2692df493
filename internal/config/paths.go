package config

import (
	"os"
	"path/filepath"
)

const (
	projectDirName = ".stagefile"
	configFileName = "config.yml"
	legacyFileName = "config.json"
)

// UserConfigPath returns stagefile/config.yml under os.UserConfigDir. That is
// $XDG_CONFIG_HOME on Linux and ~/Library/Application Support on macOS.
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stagefile", configFileName), nil
}

// ProjectConfigDir is the per-project state directory, relative to the
// working directory. It holds the config and the execution history.
func ProjectConfigDir() string { return projectDirName }

// ProjectConfigPath returns .stagefile/config.yml.
func ProjectConfigPath() string { return filepath.Join(projectDirName, configFileName) }

// LegacyProjectConfigPath returns the JSON config read before YAML was supported.
func LegacyProjectConfigPath() string { return filepath.Join(projectDirName, legacyFileName) }
