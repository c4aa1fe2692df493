// stagefile - Reproducible stage files
// Author: Ariel Frischer
// Source: https://github.com/ariel-frischer/stagefile

// Package config provides hierarchical configuration management for stagefile using koanf.
// Configuration is loaded with priority: environment variables > project config (.stagefile/config.yml)
// > user config (~/.config/stagefile/config.yml) > defaults. A legacy JSON project config
// (.stagefile/config.json) is still read, with a migration warning.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ariel-frischer/stagefile/internal/backend"
	"github.com/ariel-frischer/stagefile/internal/logging"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nested keys: STAGEFILE_REMOTES__S3__REGION -> remotes.s3.region.
const EnvPrefix = "STAGEFILE_"

// Configuration represents the stagefile configuration
type Configuration struct {
	// CacheDir is the root of the content-addressable output cache.
	CacheDir string `koanf:"cache_dir" yaml:"cache_dir" validate:"required"`
	// StrictSchema rejects unknown keys in stage files.
	StrictSchema bool `koanf:"strict_schema" yaml:"strict_schema"`
	// Jobs bounds concurrent status checks.
	Jobs int `koanf:"jobs" yaml:"jobs" validate:"min=1,max=256"`
	// Timeout limits each stage command, in seconds. 0 disables it.
	Timeout int `koanf:"timeout" yaml:"timeout" validate:"min=0"`
	// Shell runs stage commands with "-c".
	Shell string `koanf:"shell" yaml:"shell" validate:"required"`

	Log     LogConfig     `koanf:"log" yaml:"log"`
	History HistoryConfig `koanf:"history" yaml:"history"`
	Remotes RemotesConfig `koanf:"remotes" yaml:"remotes"`
}

// HistoryConfig controls the record of stage executions.
type HistoryConfig struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	// MaxEntries bounds the history file. 0 keeps every entry.
	MaxEntries int `koanf:"max_entries" yaml:"max_entries" validate:"min=0"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level   string `koanf:"level" yaml:"level" validate:"oneof=debug info warn error disabled"`
	Format  string `koanf:"format" yaml:"format" validate:"oneof=console json"`
	NoColor bool   `koanf:"no_color" yaml:"no_color"`
}

// RemotesConfig lists the remote storages stages may reference.
type RemotesConfig struct {
	S3  S3Remote  `koanf:"s3" yaml:"s3"`
	SSH SSHRemote `koanf:"ssh" yaml:"ssh"`
}

// S3Remote configures s3:// paths.
type S3Remote struct {
	Enabled        bool   `koanf:"enabled" yaml:"enabled"`
	Region         string `koanf:"region" yaml:"region" validate:"required_if=Enabled true"`
	Endpoint       string `koanf:"endpoint" yaml:"endpoint"`
	AccessKey      string `koanf:"access_key" yaml:"access_key"`
	SecretKey      string `koanf:"secret_key" yaml:"secret_key"`
	ForcePathStyle bool   `koanf:"force_path_style" yaml:"force_path_style"`
}

// SSHRemote configures ssh:// paths.
type SSHRemote struct {
	Enabled    bool   `koanf:"enabled" yaml:"enabled"`
	Host       string `koanf:"host" yaml:"host" validate:"required_if=Enabled true"`
	Port       int    `koanf:"port" yaml:"port" validate:"min=0,max=65535"`
	User       string `koanf:"user" yaml:"user" validate:"required_if=Enabled true"`
	Password   string `koanf:"password" yaml:"password"`
	KeyFile    string `koanf:"key_file" yaml:"key_file"`
	KnownHosts string `koanf:"known_hosts" yaml:"known_hosts"`
}

// LoadOptions configures how configuration is loaded
type LoadOptions struct {
	// ProjectConfigPath overrides the project config path (default: .stagefile/config.yml)
	ProjectConfigPath string
	// SkipUserConfig ignores the user-level config file
	SkipUserConfig bool
	// WarningWriter receives deprecation warnings (default: os.Stderr)
	WarningWriter io.Writer
	// SkipWarnings suppresses deprecation warnings
	SkipWarnings bool
}

// Load loads configuration from user, project, and environment sources.
// Priority: Environment variables > Project config > User config > Defaults
func Load(projectConfigPath string) (*Configuration, error) {
	return LoadWithOptions(LoadOptions{ProjectConfigPath: projectConfigPath})
}

// LoadWithOptions loads configuration with custom options
func LoadWithOptions(opts LoadOptions) (*Configuration, error) {
	k := koanf.New(".")
	warningWriter := getWarningWriter(opts.WarningWriter)

	loadDefaults(k)

	if !opts.SkipUserConfig {
		if err := loadUserConfig(k); err != nil {
			return nil, err
		}
	}

	if err := loadProjectConfig(k, opts.ProjectConfigPath, warningWriter, opts.SkipWarnings); err != nil {
		return nil, err
	}

	if err := loadEnvironmentConfig(k); err != nil {
		return nil, err
	}

	return finalizeConfig(k, configLabel(opts.ProjectConfigPath))
}

func configLabel(customPath string) string {
	if customPath != "" {
		return customPath
	}
	return "config"
}

// getWarningWriter returns the warning writer or defaults to stderr
func getWarningWriter(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}

// loadDefaults applies default configuration values
func loadDefaults(k *koanf.Koanf) {
	for key, value := range GetDefaults() {
		k.Set(key, value)
	}
}

// loadUserConfig loads ~/.config/stagefile/config.yml when present.
func loadUserConfig(k *koanf.Koanf) error {
	userPath, err := UserConfigPath()
	if err != nil || !fileExists(userPath) {
		return nil
	}
	if err := loadYAMLConfig(k, userPath, "user"); err != nil {
		return fmt.Errorf("loading user YAML config: %w", err)
	}
	return nil
}

// loadProjectConfig loads project-level config (YAML preferred, legacy JSON supported).
// Warns if both exist (YAML used, JSON ignored) or if only legacy JSON exists.
func loadProjectConfig(k *koanf.Koanf, customPath string, warningWriter io.Writer, skipWarnings bool) error {
	projectYAMLPath := ProjectConfigPath()
	legacyProjectPath := LegacyProjectConfigPath()
	if customPath != "" {
		projectYAMLPath = customPath
		legacyProjectPath = filepath.Join(filepath.Dir(customPath), "config.json")
	}

	projectYAMLExists := fileExists(projectYAMLPath)
	legacyProjectExists := fileExists(legacyProjectPath)

	if projectYAMLExists {
		if err := loadYAMLConfig(k, projectYAMLPath, "project"); err != nil {
			return fmt.Errorf("loading project YAML config: %w", err)
		}
		warnLegacyExists(warningWriter, legacyProjectPath, projectYAMLPath, legacyProjectExists, skipWarnings)
	} else if legacyProjectExists {
		if err := loadLegacyJSONConfig(k, legacyProjectPath, warningWriter, skipWarnings); err != nil {
			return fmt.Errorf("loading legacy project JSON config: %w", err)
		}
	}
	return nil
}

// loadYAMLConfig validates and loads a YAML config file
func loadYAMLConfig(k *koanf.Koanf, path, configType string) error {
	if err := ValidateYAMLSyntax(path); err != nil {
		return fmt.Errorf("validating YAML syntax for %s config: %w", configType, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("loading %s config %s: %w", configType, path, err)
	}
	return nil
}

// loadLegacyJSONConfig loads legacy JSON and warns about migration
func loadLegacyJSONConfig(k *koanf.Koanf, path string, warningWriter io.Writer, skipWarnings bool) error {
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return fmt.Errorf("loading legacy config %s: %w", path, err)
	}
	if !skipWarnings {
		fmt.Fprintf(warningWriter, "Warning: Using deprecated JSON config at %s\n", path)
		fmt.Fprintf(warningWriter, "  Run 'stagefile config migrate' to migrate to YAML format.\n\n")
	}
	return nil
}

// warnLegacyExists warns if legacy JSON exists alongside new YAML
func warnLegacyExists(warningWriter io.Writer, legacyPath, yamlPath string, legacyExists, skipWarnings bool) {
	if legacyExists && !skipWarnings {
		fmt.Fprintf(warningWriter, "Warning: Legacy JSON config found at %s (ignored, using %s)\n", legacyPath, yamlPath)
		fmt.Fprintf(warningWriter, "  Run 'stagefile config migrate' to remove the legacy file.\n\n")
	}
}

// loadEnvironmentConfig loads environment variable overrides
func loadEnvironmentConfig(k *koanf.Koanf) error {
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return fmt.Errorf("loading environment config: %w", err)
	}
	return nil
}

// finalizeConfig unmarshals, validates, and applies final transformations
func finalizeConfig(k *koanf.Koanf, label string) (*Configuration, error) {
	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := ValidateConfigValues(&cfg, label); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.CacheDir = expandHomePath(cfg.CacheDir)
	cfg.Remotes.SSH.KeyFile = expandHomePath(cfg.Remotes.SSH.KeyFile)
	cfg.Remotes.SSH.KnownHosts = expandHomePath(cfg.Remotes.SSH.KnownHosts)

	return &cfg, nil
}

// fileExists returns true if the file exists and is readable
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// envTransform converts environment variable names to config keys
// Example: STAGEFILE_LOG__LEVEL -> log.level, STAGEFILE_CACHE_DIR -> cache_dir
func envTransform(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// expandHomePath expands ~ to the user's home directory
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// Redacted returns a copy of c with secrets masked, for display.
func (c *Configuration) Redacted() *Configuration {
	r := *c
	if r.Remotes.S3.SecretKey != "" {
		r.Remotes.S3.SecretKey = redactedValue
	}
	if r.Remotes.SSH.Password != "" {
		r.Remotes.SSH.Password = redactedValue
	}
	return &r
}

const redactedValue = "********"

// Logging returns the logger configuration.
func (c *Configuration) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, NoColor: c.Log.NoColor}
}

// BackendOptions returns the storages enabled by the configuration.
func (c *Configuration) BackendOptions() backend.Options {
	var opts backend.Options
	if s3 := c.Remotes.S3; s3.Enabled {
		opts.S3 = &backend.S3Config{
			Region:         s3.Region,
			Endpoint:       s3.Endpoint,
			AccessKey:      s3.AccessKey,
			SecretKey:      s3.SecretKey,
			ForcePathStyle: s3.ForcePathStyle,
		}
	}
	if ssh := c.Remotes.SSH; ssh.Enabled {
		opts.SSH = &backend.SSHConfig{
			Host:       ssh.Host,
			Port:       ssh.Port,
			User:       ssh.User,
			Password:   ssh.Password,
			KeyFile:    ssh.KeyFile,
			KnownHosts: ssh.KnownHosts,
		}
	}
	return opts
}
