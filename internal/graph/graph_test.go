package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariel-frischer/stagefile/internal/backend"
	"github.com/ariel-frischer/stagefile/internal/stage"
)

func mkStage(dir, name string, deps []string, outs []string) *stage.Stage {
	ds := make([]stage.Dependency, 0, len(deps))
	for _, d := range deps {
		ds = append(ds, stage.Dep(d))
	}
	outputs := make([]stage.Output, 0, len(outs))
	for _, o := range outs {
		outputs = append(outputs, stage.Out(o, true))
	}
	s := stage.New("run "+name, "", ds, outputs)
	s.Path = filepath.Join(dir, name+".stage.yaml")
	return s
}

func names(stages []*stage.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = filepath.Base(s.Path)
	}
	return out
}

func TestBuild_Order(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	evaluate := mkStage(dir, "evaluate", []string{"model.bin", "test.csv"}, []string{"metrics.json"})
	train := mkStage(dir, "train", []string{"features"}, []string{"model.bin"})
	prepare := mkStage(dir, "prepare", []string{"raw.csv"}, []string{"features", "test.csv"})

	g, err := Build([]*stage.Stage{evaluate, train, prepare})
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"prepare.stage.yaml", "train.stage.yaml", "evaluate.stage.yaml"},
		names(g.Order()))
	assert.Equal(t, []string{"train.stage.yaml", "prepare.stage.yaml"}, names(g.Upstream(evaluate)))
	assert.Empty(t, g.Upstream(prepare))
	assert.Len(t, g.Stages(), 3)
}

func TestBuild_DirectoryOutputFeedsFileDependency(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	producer := mkStage(dir, "produce", nil, []string{"data"})
	consumer := mkStage(dir, "consume", []string{"data/part-0.csv"}, []string{"report"})

	g, err := Build([]*stage.Stage{consumer, producer})
	require.NoError(t, err)
	assert.Equal(t, []string{"produce.stage.yaml"}, names(g.Upstream(consumer)))
}

func TestBuild_OutputConflicts(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		a, b        []string
		wantOverlap bool
	}{
		"same path":         {a: []string{"out.txt"}, b: []string{"out.txt"}},
		"same path cleaned": {a: []string{"out.txt"}, b: []string{"./sub/../out.txt"}},
		"nested output":     {a: []string{"data"}, b: []string{"data/x.csv"}, wantOverlap: true},
		"parent output":     {a: []string{"data/x.csv"}, b: []string{"data"}, wantOverlap: true},
		"same remote":       {a: []string{"s3://b/k"}, b: []string{"s3://b/k"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			first := mkStage(dir, "first", nil, tt.a)
			second := mkStage(dir, "second", nil, tt.b)

			_, err := Build([]*stage.Stage{first, second})
			var conflict *OutputConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, tt.wantOverlap, conflict.Overlap)
			assert.Equal(t, first.Name(), conflict.First)
			assert.Equal(t, second.Name(), conflict.Second)
		})
	}
}

func TestBuild_SiblingPathsDoNotConflict(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Build([]*stage.Stage{
		mkStage(dir, "a", nil, []string{"data"}),
		mkStage(dir, "b", nil, []string{"data2"}),
		mkStage(dir, "c", nil, []string{"s3://b/k"}),
		mkStage(dir, "d", nil, []string{"s3://b/k2"}),
	})
	require.NoError(t, err)
}

func TestBuild_Cycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := mkStage(dir, "a", []string{"c.out"}, []string{"a.out"})
	b := mkStage(dir, "b", []string{"a.out"}, []string{"b.out"})
	c := mkStage(dir, "c", []string{"b.out"}, []string{"c.out"})

	_, err := Build([]*stage.Stage{a, b, c})
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	require.Len(t, cycle.Path, 4)
	assert.Equal(t, cycle.Path[0], cycle.Path[3])
	assert.Contains(t, err.Error(), "dependency cycle detected")
}

func TestBuild_SelfDependencyIsNotACycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Build([]*stage.Stage{mkStage(dir, "self", []string{"x"}, []string{"x"})})
	require.NoError(t, err)
}

func TestBuild_ReportsAllErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := mkStage(dir, "a", []string{"b.out"}, []string{"a.out", "shared"})
	b := mkStage(dir, "b", []string{"a.out"}, []string{"b.out", "shared"})

	_, err := Build([]*stage.Stage{a, b})
	var conflict *OutputConflictError
	var cycle *CycleError
	assert.ErrorAs(t, err, &conflict)
	assert.ErrorAs(t, err, &cycle)
}

func TestStatusAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw.csv"), []byte("raw"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clean.csv"), []byte("clean"), 0o644))

	local := backend.NewLocalStorage(backend.NewFingerprints())
	det := stage.NewDetector(backend.NewRegistry(local), nil, nil)
	ctx := context.Background()

	clean := mkStage(dir, "clean", []string{"raw.csv"}, []string{"clean.csv"})
	require.NoError(t, det.Commit(ctx, clean))
	pending := mkStage(dir, "pending", []string{"clean.csv"}, []string{"summary.txt"})

	g, err := Build([]*stage.Stage{clean, pending})
	require.NoError(t, err)

	reports, err := StatusAll(ctx, g, det, 4)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Same(t, clean, reports[0].Stage)
	assert.False(t, reports[0].Changed())
	assert.Equal(t, stage.StateVerified, reports[0].State)
	assert.True(t, reports[1].Changed())
	assert.Equal(t, stage.StateUnknown, reports[1].State)
}

func TestStatusAll_Cancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	det := stage.NewDetector(backend.NewRegistry(backend.NewLocalStorage(nil)), nil, nil)
	g, err := Build([]*stage.Stage{mkStage(dir, "a", nil, []string{"a.out"})})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = StatusAll(ctx, g, det, 0)
	require.ErrorIs(t, err, context.Canceled)
}
