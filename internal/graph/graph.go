// Package graph validates a set of stages as a whole: no two stages may
// write the same output, and the dependencies between stages must be
// acyclic. A validated graph can be checked for changes in parallel.
package graph

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ariel-frischer/stagefile/internal/backend"
	"github.com/ariel-frischer/stagefile/internal/stage"
)

// Graph is a validated set of stages.
type Graph struct {
	stages []*stage.Stage
	// upstream[i] lists the stages producing a dependency of stage i.
	upstream [][]int
}

type producer struct {
	stage int
	path  string
	key   string
}

// Build validates stages and links each one to the stages producing its
// dependencies. All conflicts and the first cycle found are returned joined.
func Build(stages []*stage.Stage) (*Graph, error) {
	g := &Graph{stages: stages, upstream: make([][]int, len(stages))}

	producers, errs := collectOutputs(stages)

	for i, s := range stages {
		seen := make(map[int]bool)
		for _, dep := range s.Deps {
			key := pathKey(s.ResolvePath(dep.Path))
			for _, p := range producers {
				if p.stage == i || seen[p.stage] {
					continue
				}
				if key == p.key || isWithin(key, p.key) {
					g.upstream[i] = append(g.upstream[i], p.stage)
					seen[p.stage] = true
				}
			}
		}
		sort.Ints(g.upstream[i])
	}

	if cycle := g.findCycle(); cycle != nil {
		errs = append(errs, &CycleError{Path: cycle})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

func collectOutputs(stages []*stage.Stage) ([]producer, []error) {
	var (
		producers []producer
		errs      []error
	)
	for i, s := range stages {
		for _, out := range s.Outs {
			cur := producer{stage: i, path: out.Path, key: pathKey(s.ResolvePath(out.Path))}
			for _, prev := range producers {
				switch {
				case prev.key == cur.key:
					errs = append(errs, &OutputConflictError{
						Path: out.Path, First: stages[prev.stage].Name(), Second: s.Name(),
					})
				case isWithin(cur.key, prev.key) || isWithin(prev.key, cur.key):
					errs = append(errs, &OutputConflictError{
						Path: prev.path, First: stages[prev.stage].Name(),
						OtherPath: out.Path, Second: s.Name(), Overlap: true,
					})
				}
			}
			producers = append(producers, cur)
		}
	}
	return producers, errs
}

// findCycle runs a DFS over upstream edges and returns the first cycle as
// stage names, closing on the repeated stage.
func (g *Graph) findCycle() []string {
	visited := make([]bool, len(g.stages))
	onStack := make([]bool, len(g.stages))

	var path []int
	var visit func(i int) []int
	visit = func(i int) []int {
		visited[i] = true
		onStack[i] = true
		path = append(path, i)

		for _, up := range g.upstream[i] {
			if !visited[up] {
				if cycle := visit(up); cycle != nil {
					return cycle
				}
			} else if onStack[up] {
				return buildCyclePath(path, up)
			}
		}

		onStack[i] = false
		path = path[:len(path)-1]
		return nil
	}

	for i := range g.stages {
		if visited[i] {
			continue
		}
		if cycle := visit(i); cycle != nil {
			names := make([]string, len(cycle))
			for j, idx := range cycle {
				names[j] = g.stages[idx].Name()
			}
			return names
		}
	}
	return nil
}

func buildCyclePath(path []int, start int) []int {
	for i, idx := range path {
		if idx == start {
			cycle := append([]int(nil), path[i:]...)
			return append(cycle, start)
		}
	}
	return append(append([]int(nil), path...), start)
}

// Stages returns the stages in input order.
func (g *Graph) Stages() []*stage.Stage { return g.stages }

// Upstream returns the stages producing dependencies of s.
func (g *Graph) Upstream(s *stage.Stage) []*stage.Stage {
	for i, cur := range g.stages {
		if cur != s {
			continue
		}
		ups := make([]*stage.Stage, 0, len(g.upstream[i]))
		for _, u := range g.upstream[i] {
			ups = append(ups, g.stages[u])
		}
		return ups
	}
	return nil
}

// Order returns the stages so that every stage follows the stages it depends
// on. Ties keep input order.
func (g *Graph) Order() []*stage.Stage {
	done := make([]bool, len(g.stages))
	order := make([]*stage.Stage, 0, len(g.stages))

	var visit func(i int)
	visit = func(i int) {
		if done[i] {
			return
		}
		done[i] = true
		for _, up := range g.upstream[i] {
			visit(up)
		}
		order = append(order, g.stages[i])
	}
	for i := range g.stages {
		visit(i)
	}
	return order
}

// StatusAll checks every stage concurrently with at most jobs checks in
// flight. Reports are returned in input order.
func StatusAll(ctx context.Context, g *Graph, det *stage.Detector, jobs int) ([]stage.Report, error) {
	if jobs < 1 {
		jobs = 1
	}
	reports := make([]stage.Report, len(g.stages))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(jobs)

	for i, s := range g.stages {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("checking %s: %w", s.Name(), err)
			}
			reports[i] = det.Status(ctx, s)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func pathKey(p string) string {
	if backend.IsRemote(p) {
		return strings.TrimSuffix(p, "/")
	}
	p = strings.TrimPrefix(p, "file://")
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// isWithin reports whether child lies strictly inside parent.
func isWithin(child, parent string) bool {
	if backend.IsRemote(parent) {
		return strings.HasPrefix(child, parent+"/")
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
