package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MigrationResult describes the outcome of a migration operation
type MigrationResult struct {
	SourcePath string
	TargetPath string
	Success    bool
	DryRun     bool
	// BackupPath is where the JSON file was moved, if it was.
	BackupPath string
	Message    string
}

// MigrateJSONToYAML converts a legacy JSON config file to YAML.
// An existing YAML file is never overwritten. Unless dryRun is set, the JSON
// file is renamed to <name>.bak once the YAML file is written.
func MigrateJSONToYAML(jsonPath, yamlPath string, dryRun bool) (*MigrationResult, error) {
	result := &MigrationResult{
		SourcePath: jsonPath,
		TargetPath: yamlPath,
		DryRun:     dryRun,
	}

	jsonData, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			result.Message = fmt.Sprintf("No JSON config found at %s", jsonPath)
			return result, nil
		}
		return nil, fmt.Errorf("reading JSON config: %w", err)
	}

	var configData map[string]interface{}
	if err := json.Unmarshal(jsonData, &configData); err != nil {
		return nil, fmt.Errorf("parsing JSON config: %w", err)
	}

	if _, err := os.Stat(yamlPath); err == nil {
		result.Message = fmt.Sprintf("YAML config already exists at %s (skipped)", yamlPath)
		return result, nil
	}

	if dryRun {
		result.Success = true
		result.Message = fmt.Sprintf("Would migrate %s → %s", jsonPath, yamlPath)
		return result, nil
	}

	yamlData, err := yaml.Marshal(configData)
	if err != nil {
		return nil, fmt.Errorf("converting to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(yamlPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	header := "# stagefile configuration\n# Migrated from JSON format\n\n"
	if err := os.WriteFile(yamlPath, []byte(header+string(yamlData)), 0o644); err != nil {
		return nil, fmt.Errorf("writing YAML config: %w", err)
	}

	bakPath := jsonPath + ".bak"
	if err := os.Rename(jsonPath, bakPath); err != nil {
		return nil, fmt.Errorf("backing up legacy config: %w", err)
	}

	result.Success = true
	result.BackupPath = bakPath
	result.Message = fmt.Sprintf("Migrated %s → %s (backup: %s)", jsonPath, yamlPath, bakPath)
	return result, nil
}

// MigrateProjectConfig migrates the project-level config from JSON to YAML.
func MigrateProjectConfig(dryRun bool) (*MigrationResult, error) {
	return MigrateJSONToYAML(LegacyProjectConfigPath(), ProjectConfigPath(), dryRun)
}

// WriteDefaultConfig writes the commented default template to path unless
// a file already exists there. It returns false when nothing was written.
func WriteDefaultConfig(path string) (bool, error) {
	if fileExists(path) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GetDefaultConfigTemplate()), 0o644); err != nil {
		return false, fmt.Errorf("writing config: %w", err)
	}
	return true, nil
}
