package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/ariel-frischer/stagefile/internal/logging"
)

// Writer appends entries to the history file of one state directory.
// Writes are serialized, and the file is pruned to MaxEntries after each one.
// A nil *Writer discards entries.
type Writer struct {
	StateDir string
	// MaxEntries bounds the file; 0 keeps everything.
	MaxEntries int
	Log        *logging.Logger

	mu sync.Mutex
}

// NewWriter returns a writer for the history file in stateDir keeping at
// most maxEntries entries.
func NewWriter(stateDir string, maxEntries int) *Writer {
	return &Writer{StateDir: stateDir, MaxEntries: maxEntries}
}

// LogEntry records entry. Failures are logged as warnings; recording
// history never fails the command that ran the stage.
func (w *Writer) LogEntry(entry HistoryEntry) {
	if w == nil {
		return
	}
	if err := w.append(entry); err != nil {
		logging.OrNop(w.Log).Warn("failed to record history", map[string]interface{}{
			"error":            err.Error(),
			logging.FieldStage: entry.Stage,
		})
	}
}

func (w *Writer) append(entry HistoryEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	h, err := LoadHistory(w.StateDir)
	if err != nil {
		return err
	}
	h.Entries = append(h.Entries, entry)
	h.Prune(w.MaxEntries)

	if err := SaveHistory(w.StateDir, h); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// LogStage records one stage execution, timestamped now.
func (w *Writer) LogStage(command, stage, outcome string, exitCode int, duration time.Duration, md5 string) {
	w.LogEntry(HistoryEntry{
		Timestamp: time.Now(),
		Command:   command,
		Stage:     stage,
		Outcome:   outcome,
		ExitCode:  exitCode,
		Duration:  duration.Round(time.Millisecond).String(),
		MD5:       md5,
	})
}
