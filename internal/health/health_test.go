// Package health tests the doctor checks for shell, cache, git and remotes.
// Related: internal/health/health.go
// Tags: health, dependencies, doctor

package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariel-frischer/stagefile/internal/backend"
	"github.com/ariel-frischer/stagefile/internal/config"
)

func TestCheckShell(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		shell      string
		wantPassed bool
	}{
		"sh is found":         {shell: "sh", wantPassed: true},
		"unknown shell fails": {shell: "no-such-shell-xyz", wantPassed: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			result := CheckShell(tt.shell)
			assert.Equal(t, "Shell", result.Name)
			assert.Equal(t, tt.wantPassed, result.Passed)
			assert.NotEmpty(t, result.Message)
		})
	}
}

func TestCheckCacheDir(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "cache")
		result := CheckCacheDir(dir)
		assert.True(t, result.Passed)
		assert.DirExists(t, dir)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "write-check file is removed")
	})

	t.Run("blocked by a file", func(t *testing.T) {
		t.Parallel()

		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		result := CheckCacheDir(filepath.Join(blocker, "cache"))
		assert.False(t, result.Passed)
		assert.Contains(t, result.Message, "cannot create")
	})
}

func TestCheckRepository(t *testing.T) {
	t.Parallel()

	t.Run("outside a repository", func(t *testing.T) {
		t.Parallel()

		result := CheckRepository(t.TempDir(), nil)
		assert.True(t, result.Passed)
		assert.Contains(t, result.Message, "not a git repository")
	})

	t.Run("inside a repository", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		_, err := git.PlainInit(dir, false)
		require.NoError(t, err)
		sub := filepath.Join(dir, "sub")
		require.NoError(t, os.MkdirAll(sub, 0o755))

		result := CheckRepository(sub, nil)
		assert.True(t, result.Passed)
		assert.Contains(t, result.Message, filepath.Base(dir))
	})
}

func TestCheckRemotes_NoneEnabled(t *testing.T) {
	t.Parallel()

	result := CheckRemotes(context.Background(), backend.Options{}, nil)
	assert.True(t, result.Passed)
	assert.Equal(t, "none enabled", result.Message)
}

func TestRunHealthChecks(t *testing.T) {
	t.Parallel()

	cfg := &config.Configuration{Shell: "sh", CacheDir: filepath.Join(t.TempDir(), "cache")}
	report := RunHealthChecks(context.Background(), cfg, t.TempDir(), nil)
	require.Len(t, report.Checks, 4)
	assert.True(t, report.Passed)

	names := make([]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Shell", "Cache", "Git", "Remotes"}, names)

	cfg.Shell = "no-such-shell-xyz"
	report = RunHealthChecks(context.Background(), cfg, t.TempDir(), nil)
	assert.False(t, report.Passed)
}
