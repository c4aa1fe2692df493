package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariel-frischer/stagefile/internal/backend"
	"github.com/ariel-frischer/stagefile/internal/logging"
)

// State is the lifecycle position of a stage.
type State int

const (
	// StateUnknown means no stage checksum has been committed.
	StateUnknown State = iota
	// StateVerified means the stored checksum matches and nothing changed.
	StateVerified
	// StateStale means the stage must be executed again.
	StateStale
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateVerified:
		return "verified"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// ReasonKind classifies why a stage is considered changed.
type ReasonKind int

const (
	ReasonDepMissing ReasonKind = iota + 1
	ReasonDepChanged
	ReasonDepUnresolved
	ReasonOutMissing
	ReasonOutChanged
	ReasonOutUnresolved
	ReasonOutNotCached
	ReasonMD5Missing
	ReasonMD5Changed
	// ReasonCheckFailed records a backend error while checking an entry.
	ReasonCheckFailed
)

var reasonNames = map[ReasonKind]string{
	ReasonDepMissing:    "dependency missing",
	ReasonDepChanged:    "dependency changed",
	ReasonDepUnresolved: "dependency has no recorded checksum",
	ReasonOutMissing:    "output missing",
	ReasonOutChanged:    "output changed",
	ReasonOutUnresolved: "output has no recorded checksum",
	ReasonOutNotCached:  "output not in cache",
	ReasonMD5Missing:    "stage checksum missing",
	ReasonMD5Changed:    "stage checksum changed",
	ReasonCheckFailed:   "check failed",
}

// String returns a human readable description.
func (k ReasonKind) String() string {
	if name, ok := reasonNames[k]; ok {
		return name
	}
	return "unknown reason"
}

// Reason is one cause of a stage being changed.
type Reason struct {
	Kind ReasonKind
	// Path is the entry path as written in the stage; empty for stage-level reasons.
	Path     string
	Recorded string
	Current  string
	Err      error
}

// String renders the reason for status output.
func (r Reason) String() string {
	msg := r.Kind.String()
	if r.Path != "" {
		msg += ": " + r.Path
	}
	switch {
	case r.Err != nil:
		msg += fmt.Sprintf(" (%v)", r.Err)
	case r.Recorded != "" && r.Current != "":
		msg += fmt.Sprintf(" (%s -> %s)", r.Recorded, r.Current)
	}
	return msg
}

// Report is the result of a status check.
type Report struct {
	Stage   *Stage
	State   State
	Reasons []Reason
	// Computed is the stage checksum over the recorded entries.
	Computed string
}

// Changed reports whether any reason was found.
func (r Report) Changed() bool { return len(r.Reasons) > 0 }

// Detector decides whether stages changed by comparing recorded checksums
// against the storage backends.
type Detector struct {
	Registry *backend.Registry
	// Cache is consulted for outputs with the cache flag. Nil skips the check.
	Cache backend.Cache
	Log   *logging.Logger
}

// NewDetector creates a detector.
func NewDetector(reg *backend.Registry, cache backend.Cache, log *logging.Logger) *Detector {
	return &Detector{Registry: reg, Cache: cache, Log: logging.OrNop(log).WithComponent("detector")}
}

func (d *Detector) log() *logging.Logger {
	return logging.OrNop(d.Log)
}

// Status recomputes the current checksum of every entry and reports each
// difference. Backend errors become ReasonCheckFailed and are never returned.
func (d *Detector) Status(ctx context.Context, s *Stage) Report {
	r := Report{Stage: s, Computed: Checksum(s)}

	for _, dep := range s.Deps {
		current, err := d.current(ctx, s, dep.Path)
		switch {
		case errors.Is(err, backend.ErrNotFound):
			r.Reasons = append(r.Reasons, Reason{Kind: ReasonDepMissing, Path: dep.Path})
		case err != nil:
			r.Reasons = append(r.Reasons, Reason{Kind: ReasonCheckFailed, Path: dep.Path, Err: err})
		case dep.Checksum == nil:
			r.Reasons = append(r.Reasons, Reason{Kind: ReasonDepUnresolved, Path: dep.Path, Current: current})
		case *dep.Checksum != current:
			r.Reasons = append(r.Reasons, Reason{Kind: ReasonDepChanged, Path: dep.Path, Recorded: *dep.Checksum, Current: current})
		}
	}

	for _, out := range s.Outs {
		current, err := d.current(ctx, s, out.Path)
		switch {
		case errors.Is(err, backend.ErrNotFound):
			r.Reasons = append(r.Reasons, Reason{Kind: ReasonOutMissing, Path: out.Path})
		case err != nil:
			r.Reasons = append(r.Reasons, Reason{Kind: ReasonCheckFailed, Path: out.Path, Err: err})
		case out.Checksum == nil:
			r.Reasons = append(r.Reasons, Reason{Kind: ReasonOutUnresolved, Path: out.Path, Current: current})
		case *out.Checksum != current:
			r.Reasons = append(r.Reasons, Reason{Kind: ReasonOutChanged, Path: out.Path, Recorded: *out.Checksum, Current: current})
		case out.Cache && d.Cache != nil && !backend.IsRemote(out.Path):
			cached, err := d.Cache.IsCached(ctx, current)
			if err != nil {
				r.Reasons = append(r.Reasons, Reason{Kind: ReasonCheckFailed, Path: out.Path, Err: err})
			} else if !cached {
				r.Reasons = append(r.Reasons, Reason{Kind: ReasonOutNotCached, Path: out.Path, Current: current})
			}
		}
	}

	switch {
	case s.MD5 == "":
		r.Reasons = append(r.Reasons, Reason{Kind: ReasonMD5Missing})
	case s.MD5 != r.Computed:
		r.Reasons = append(r.Reasons, Reason{Kind: ReasonMD5Changed, Recorded: s.MD5, Current: r.Computed})
	}

	switch {
	case s.MD5 == "":
		r.State = StateUnknown
	case r.Changed():
		r.State = StateStale
	default:
		r.State = StateVerified
	}

	for _, reason := range r.Reasons {
		d.log().Debug("stage changed", map[string]interface{}{
			logging.FieldStage:  s.Name(),
			logging.FieldReason: reason.String(),
		})
	}
	return r
}

// Changed reports whether s must be executed again. It never fails: a missing
// path or backend error counts as changed.
func (d *Detector) Changed(ctx context.Context, s *Stage) bool {
	return d.Status(ctx, s).Changed()
}

// State returns the lifecycle state of s.
func (d *Detector) State(ctx context.Context, s *Stage) State {
	return d.Status(ctx, s).State
}

// CheckInputs verifies every dependency exists before execution.
func (d *Detector) CheckInputs(ctx context.Context, s *Stage) error {
	var missing []string
	for _, dep := range s.Deps {
		p := s.ResolvePath(dep.Path)
		store, err := d.Registry.For(p)
		if err != nil {
			return err
		}
		ok, err := store.Exists(ctx, p)
		if err != nil {
			return fmt.Errorf("checking dependency %s: %w", dep.Path, err)
		}
		if !ok {
			missing = append(missing, dep.Path)
		}
	}
	if len(missing) > 0 {
		return &MissingInputError{Stage: s.Name(), Paths: missing}
	}
	return nil
}

// Resolve records current checksums for dependencies that have none. With
// mustExist a missing dependency is a *MissingInputError; otherwise it stays
// unresolved.
func (d *Detector) Resolve(ctx context.Context, s *Stage, mustExist bool) error {
	var missing []string
	for i := range s.Deps {
		dep := &s.Deps[i]
		if dep.Checksum != nil {
			continue
		}
		sum, err := d.current(ctx, s, dep.Path)
		if errors.Is(err, backend.ErrNotFound) {
			if mustExist {
				missing = append(missing, dep.Path)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("resolving dependency %s: %w", dep.Path, err)
		}
		dep.Checksum = &sum
	}
	if len(missing) > 0 {
		return &MissingInputError{Stage: s.Name(), Paths: missing}
	}
	return nil
}

// Commit records the current checksum of every entry after a successful
// execution, registers cached outputs, and stores the new stage checksum.
// On error s is left unchanged.
func (d *Detector) Commit(ctx context.Context, s *Stage) error {
	c := s.Clone()
	Normalize(c)

	var missingDeps, missingOuts []string
	for i := range c.Deps {
		sum, err := d.current(ctx, c, c.Deps[i].Path)
		if errors.Is(err, backend.ErrNotFound) {
			missingDeps = append(missingDeps, c.Deps[i].Path)
			continue
		}
		if err != nil {
			return fmt.Errorf("committing dependency %s: %w", c.Deps[i].Path, err)
		}
		c.Deps[i].Checksum = &sum
	}
	if len(missingDeps) > 0 {
		return &MissingInputError{Stage: c.Name(), Paths: missingDeps}
	}

	for i := range c.Outs {
		sum, err := d.current(ctx, c, c.Outs[i].Path)
		if errors.Is(err, backend.ErrNotFound) {
			missingOuts = append(missingOuts, c.Outs[i].Path)
			continue
		}
		if err != nil {
			return fmt.Errorf("committing output %s: %w", c.Outs[i].Path, err)
		}
		c.Outs[i].Checksum = &sum
	}
	if len(missingOuts) > 0 {
		return &MissingOutputError{Stage: c.Name(), Paths: missingOuts}
	}

	if d.Cache != nil {
		for _, out := range c.Outs {
			if !out.Cache {
				continue
			}
			// Remote outputs stay where they were produced.
			if backend.IsRemote(out.Path) {
				continue
			}
			if err := d.Cache.Register(ctx, c.ResolvePath(out.Path), *out.Checksum); err != nil {
				return fmt.Errorf("caching output %s: %w", out.Path, err)
			}
		}
	}

	c.MD5 = Checksum(c)
	*s = *c

	d.log().Info("stage committed", map[string]interface{}{
		logging.FieldStage:    s.Name(),
		logging.FieldChecksum: s.MD5,
	})
	return nil
}

func (d *Detector) current(ctx context.Context, s *Stage, p string) (string, error) {
	resolved := s.ResolvePath(p)
	store, err := d.Registry.For(resolved)
	if err != nil {
		return "", err
	}
	return store.Checksum(ctx, resolved)
}
