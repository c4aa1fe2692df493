package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariel-frischer/stagefile/internal/logging"
)

func TestWatcher_Relevant(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "data.csv")
	tree := filepath.Join(dir, "images")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "sub"), 0o755))

	w, err := New([]string{file, tree, filepath.Join(dir, "later.txt")}, 0, logging.Nop())
	require.NoError(t, err)
	defer w.Close()

	tests := map[string]struct {
		name string
		want bool
	}{
		"watched file":         {name: file, want: true},
		"not yet created file": {name: filepath.Join(dir, "later.txt"), want: true},
		"sibling file":         {name: filepath.Join(dir, "other.csv"), want: false},
		"tree root":            {name: tree, want: true},
		"file in tree":         {name: filepath.Join(tree, "sub", "a.png"), want: true},
		"prefix is not inside": {name: tree + "-old", want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, w.Relevant(tt.name))
		})
	}
}

func TestWatcher_ReportsChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0o644))

	w, err := New([]string{file}, 20*time.Millisecond, logging.Nop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changes := make(chan []string, 1)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(paths []string) {
			select {
			case changes <- paths:
			default:
			}
		})
	}()

	// Unrelated files in the same directory are filtered out.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "noise.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(file, []byte("b"), 0o644))

	select {
	case paths := <-changes:
		assert.Equal(t, []string{file}, paths)
	case <-ctx.Done():
		t.Fatal("no change reported")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcher_CloseTwice(t *testing.T) {
	t.Parallel()

	w, err := New(nil, 0, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
