// Package scm tests the git output guard and .gitignore maintenance.
// Tags: scm, git, gitignore

package scm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *git.Worktree) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return dir, wt
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestOpen(t *testing.T) {
	t.Parallel()

	dir, _ := initRepo(t)
	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	r, err := Open(sub, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, r.Root())
}

func TestOpen_NotRepository(t *testing.T) {
	t.Parallel()

	_, err := Open(t.TempDir(), nil)
	require.ErrorIs(t, err, ErrNotRepository)
}

func TestIsTracked(t *testing.T) {
	t.Parallel()

	dir, wt := initRepo(t)
	writeFile(t, filepath.Join(dir, "tracked.txt"), "x")
	writeFile(t, filepath.Join(dir, "data", "part.csv"), "x")
	writeFile(t, filepath.Join(dir, "untracked.txt"), "x")
	_, err := wt.Add("tracked.txt")
	require.NoError(t, err)
	_, err = wt.Add("data/part.csv")
	require.NoError(t, err)

	r, err := Open(dir, nil)
	require.NoError(t, err)

	tests := map[string]struct {
		path string
		want bool
	}{
		"tracked file":           {path: "tracked.txt", want: true},
		"directory with tracked": {path: "data", want: true},
		"untracked file":         {path: "untracked.txt", want: false},
		"missing file":           {path: "nothing.bin", want: false},
		"name prefix only":       {path: "dat", want: false},
		"outside repository":     {path: "../elsewhere", want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := r.IsTracked(filepath.Join(dir, tt.path))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckOutputs(t *testing.T) {
	t.Parallel()

	dir, wt := initRepo(t)
	writeFile(t, filepath.Join(dir, "model.bin"), "x")
	_, err := wt.Add("model.bin")
	require.NoError(t, err)

	r, err := Open(dir, nil)
	require.NoError(t, err)

	require.NoError(t, r.CheckOutputs(filepath.Join(dir, "fresh.bin")))

	err = r.CheckOutputs(filepath.Join(dir, "fresh.bin"), filepath.Join(dir, "model.bin"))
	require.ErrorIs(t, err, ErrTrackedBySCM)
	var tracked *TrackedError
	require.ErrorAs(t, err, &tracked)
	assert.Equal(t, []string{filepath.Join(dir, "model.bin")}, tracked.Paths)
}

func TestIgnore(t *testing.T) {
	t.Parallel()

	dir, _ := initRepo(t)
	writeFile(t, filepath.Join(dir, "sub", ".gitignore"), "*.log")
	out := filepath.Join(dir, "sub", "model.bin")
	writeFile(t, out, "x")

	r, err := Open(dir, nil)
	require.NoError(t, err)

	ignored, err := r.IsIgnored(out)
	require.NoError(t, err)
	assert.False(t, ignored)

	changed, err := r.Ignore(out)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.Ignore(out)
	require.NoError(t, err)
	assert.False(t, changed, "entry is added once")

	data, err := os.ReadFile(filepath.Join(dir, "sub", ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "*.log\n/model.bin\n", string(data))

	ignored, err = r.IsIgnored(out)
	require.NoError(t, err)
	assert.True(t, ignored)
}

func TestOutsideRepository(t *testing.T) {
	t.Parallel()

	dir, _ := initRepo(t)
	outside := filepath.Join(t.TempDir(), "model.bin")
	writeFile(t, outside, "x")

	r, err := Open(dir, nil)
	require.NoError(t, err)

	tracked, err := r.IsTracked(outside)
	require.NoError(t, err)
	assert.False(t, tracked)

	require.NoError(t, r.CheckOutputs(outside, filepath.Join(dir, "fresh.bin")))

	ignored, err := r.IsIgnored(outside)
	require.NoError(t, err)
	assert.False(t, ignored)

	changed, err := r.Ignore(outside)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(outside), GitignoreFile))
}
