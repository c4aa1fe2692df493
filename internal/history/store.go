// Package history records stage executions in a YAML file next to the
// project config.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// HistoryFileName is the name of the history file inside the state directory.
const HistoryFileName = "history.yaml"

// Outcomes recorded for a stage execution.
const (
	OutcomeRan       = "ran"
	OutcomeSkipped   = "skipped"
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
)

// HistoryFile is the on-disk history document.
type HistoryFile struct {
	Entries []HistoryEntry `yaml:"entries"`
}

// HistoryEntry is one recorded command.
type HistoryEntry struct {
	Timestamp time.Time `yaml:"timestamp"`
	// Command is the stagefile command that ran the stage (run, repro, commit).
	Command  string `yaml:"command"`
	Stage    string `yaml:"stage"`
	Outcome  string `yaml:"outcome"`
	ExitCode int    `yaml:"exit_code"`
	Duration string `yaml:"duration"`
	// MD5 is the stage checksum after a successful run.
	MD5 string `yaml:"md5,omitempty"`
}

// HistoryPath returns the history file path inside stateDir.
func HistoryPath(stateDir string) string {
	return filepath.Join(stateDir, HistoryFileName)
}

// LoadHistory reads the history in stateDir. A missing file is an empty history.
func LoadHistory(stateDir string) (*HistoryFile, error) {
	data, err := os.ReadFile(HistoryPath(stateDir))
	if errors.Is(err, os.ErrNotExist) {
		return &HistoryFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	var h HistoryFile
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	return &h, nil
}

// SaveHistory writes h to stateDir through a temporary file and rename.
func SaveHistory(stateDir string, h *HistoryFile) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	tmp, err := os.CreateTemp(stateDir, ".history-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, HistoryPath(stateDir)); err != nil {
		return fmt.Errorf("replacing history: %w", err)
	}
	return nil
}

// Last returns up to n of the most recent entries, oldest first. When stage
// is set only that stage's entries are considered.
func (h *HistoryFile) Last(n int, stage string) []HistoryEntry {
	var out []HistoryEntry
	for _, e := range h.Entries {
		if stage == "" || e.Stage == stage {
			out = append(out, e)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Prune drops the oldest entries so at most limit remain. limit <= 0 keeps all.
func (h *HistoryFile) Prune(limit int) {
	if limit > 0 && len(h.Entries) > limit {
		h.Entries = h.Entries[len(h.Entries)-limit:]
	}
}
