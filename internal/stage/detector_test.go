package stage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ariel-frischer/stagefile/internal/backend"
)

type fixture struct {
	dir   string
	path  string
	det   *Detector
	cache *backend.LocalCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	local := backend.NewLocalStorage(backend.NewFingerprints())
	cache := backend.NewLocalCache(filepath.Join(t.TempDir(), "cache"), local, nil)

	return &fixture{
		dir:   dir,
		path:  filepath.Join(dir, "test.stage.yaml"),
		det:   NewDetector(backend.NewRegistry(local), cache, nil),
		cache: cache,
	}
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// committed builds, executes by hand, commits and dumps the canonical stage.
func (f *fixture) committed(t *testing.T) *Stage {
	t.Helper()

	f.write(t, "bar", "bar")
	s := New("echo test > foo", "", []Dependency{Dep("bar")}, []Output{Out("foo", true)})
	s.Path = f.path
	f.write(t, "foo", "test\n")

	require.NoError(t, f.det.Commit(context.Background(), s))
	require.NoError(t, Dump(s, f.path))
	return s
}

func reasonKinds(r Report) []ReasonKind {
	kinds := make([]ReasonKind, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		kinds = append(kinds, reason.Kind)
	}
	return kinds
}

func TestDetector_FreshlyCommitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.committed(t)
	ctx := context.Background()

	assert.NotEmpty(t, s.MD5)
	assert.Equal(t, Checksum(s), s.MD5)
	require.NotNil(t, s.Deps[0].Checksum)
	require.NotNil(t, s.Outs[0].Checksum)

	assert.False(t, f.det.Changed(ctx, s))
	assert.Equal(t, StateVerified, f.det.State(ctx, s))

	loaded, err := Load(f.path)
	require.NoError(t, err)
	assert.False(t, f.det.Changed(ctx, loaded))
}

func TestDetector_OmittedWdirReload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.committed(t)

	data, err := os.ReadFile(f.path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Equal(t, ".", raw["wdir"])

	delete(raw, "wdir")
	edited, err := yaml.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.path, edited, 0o644))

	loaded, err := Load(f.path)
	require.NoError(t, err)
	assert.Equal(t, ".", loaded.Wdir)
	assert.False(t, f.det.Changed(context.Background(), loaded))
}

func TestDetector_Changes(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mutate func(t *testing.T, f *fixture, s *Stage)
		want   []ReasonKind
	}{
		"dependency content": {
			mutate: func(t *testing.T, f *fixture, _ *Stage) { f.write(t, "bar", "changed") },
			want:   []ReasonKind{ReasonDepChanged},
		},
		"dependency removed": {
			mutate: func(t *testing.T, f *fixture, _ *Stage) {
				require.NoError(t, os.Remove(filepath.Join(f.dir, "bar")))
			},
			want: []ReasonKind{ReasonDepMissing},
		},
		"output content": {
			mutate: func(t *testing.T, f *fixture, _ *Stage) { f.write(t, "foo", "tampered") },
			want:   []ReasonKind{ReasonOutChanged},
		},
		"output removed": {
			mutate: func(t *testing.T, f *fixture, _ *Stage) {
				require.NoError(t, os.Remove(filepath.Join(f.dir, "foo")))
			},
			want: []ReasonKind{ReasonOutMissing},
		},
		"output evicted from cache": {
			mutate: func(t *testing.T, f *fixture, s *Stage) {
				require.NoError(t, os.Remove(f.cache.PathFor(*s.Outs[0].Checksum)))
			},
			want: []ReasonKind{ReasonOutNotCached},
		},
		"hand edited md5": {
			mutate: func(_ *testing.T, _ *fixture, s *Stage) { s.MD5 = "11111111111111111111111111111111" },
			want:   []ReasonKind{ReasonMD5Changed},
		},
		"command edited": {
			mutate: func(_ *testing.T, _ *fixture, s *Stage) { s.Cmd = StringPtr("echo other > foo") },
			want:   []ReasonKind{ReasonMD5Changed},
		},
		"unsupported scheme": {
			mutate: func(_ *testing.T, _ *fixture, s *Stage) {
				s.Deps = append(s.Deps, Dependency{Path: "hdfs://cluster/x", Checksum: StringPtr("x")})
			},
			want: []ReasonKind{ReasonCheckFailed, ReasonMD5Changed},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			s := f.committed(t)
			tt.mutate(t, f, s)

			r := f.det.Status(context.Background(), s)
			assert.Equal(t, tt.want, reasonKinds(r))
			assert.True(t, r.Changed())
			assert.True(t, f.det.Changed(context.Background(), s))
			assert.Equal(t, StateStale, r.State)
		})
	}
}

func TestDetector_UncommittedStage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "bar", "bar")
	s := New("cmd", "", []Dependency{Dep("bar")}, []Output{Out("foo", false)})
	s.Path = f.path

	r := f.det.Status(context.Background(), s)
	assert.Equal(t, StateUnknown, r.State)
	assert.Equal(t, []ReasonKind{ReasonDepUnresolved, ReasonOutMissing, ReasonMD5Missing}, reasonKinds(r))
	assert.Equal(t, "stage checksum missing", r.Reasons[2].String())
}

func TestDetector_CheckInputs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "present", "x")
	s := New("cmd", "", []Dependency{Dep("present"), Dep("gone"), Dep("also-gone")}, nil)
	s.Path = f.path

	err := f.det.CheckInputs(context.Background(), s)
	var missing *MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"gone", "also-gone"}, missing.Paths)
	assert.Contains(t, err.Error(), "gone, also-gone")

	f.write(t, "gone", "x")
	f.write(t, "also-gone", "x")
	require.NoError(t, f.det.CheckInputs(context.Background(), s))
}

func TestDetector_Resolve(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "a", "hello")
	s := New("cmd", "", []Dependency{Dep("a"), Dep("missing"), {Path: "pinned", Checksum: StringPtr("keep")}}, nil)
	s.Path = f.path
	ctx := context.Background()

	require.NoError(t, f.det.Resolve(ctx, s, false))
	require.NotNil(t, s.Deps[0].Checksum)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", *s.Deps[0].Checksum)
	assert.Nil(t, s.Deps[1].Checksum)
	assert.Equal(t, "keep", *s.Deps[2].Checksum)

	err := f.det.Resolve(ctx, s, true)
	var missing *MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"missing"}, missing.Paths)
}

func TestDetector_CommitMissingOutput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "bar", "bar")
	s := New("cmd", "", []Dependency{Dep("bar")}, []Output{Out("never-written", true)})
	s.Path = f.path

	err := f.det.Commit(context.Background(), s)
	var missing *MissingOutputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"never-written"}, missing.Paths)
	assert.Empty(t, s.MD5, "failed commit leaves the stage untouched")
	assert.Nil(t, s.Deps[0].Checksum)
}

func TestDetector_CommitDirectoryOutput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "in.txt", "in")
	f.write(t, "model/a.bin", "a")
	f.write(t, "model/b/c.bin", "c")
	s := New("cmd", "", []Dependency{Dep("in.txt")}, []Output{Out("model", true)})
	s.Path = f.path
	ctx := context.Background()

	require.NoError(t, f.det.Commit(ctx, s))
	require.NotNil(t, s.Outs[0].Checksum)
	assert.True(t, backend.IsDirChecksum(*s.Outs[0].Checksum))

	cached, err := f.cache.IsCached(ctx, *s.Outs[0].Checksum)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.False(t, f.det.Changed(ctx, s))

	f.write(t, "model/b/c.bin", "changed")
	assert.True(t, f.det.Changed(ctx, s))
}

func TestDetector_WorkingDirectory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "src/in.txt", "in")
	f.write(t, "src/out.txt", "out")
	s := New("cmd", "src", []Dependency{Dep("in.txt")}, []Output{Out("out.txt", false)})
	s.Path = f.path

	require.NoError(t, f.det.Commit(context.Background(), s))
	assert.False(t, f.det.Changed(context.Background(), s))
}

func TestDetector_ConcurrentStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.committed(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.det.Changed(ctx, s)
		}(i)
	}
	wg.Wait()

	for _, changed := range results {
		assert.False(t, changed)
	}
}

func TestReason_String(t *testing.T) {
	t.Parallel()

	r := Reason{Kind: ReasonDepChanged, Path: "a", Recorded: "1", Current: "2"}
	assert.Equal(t, "dependency changed: a (1 -> 2)", r.String())
	assert.Equal(t, "stale", StateStale.String())
	assert.Equal(t, "unknown", StateUnknown.String())
}
