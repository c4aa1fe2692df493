// Package stage implements the stage abstraction: a command together with
// its ordered dependencies and outputs, the document form it is persisted in,
// and the checksum-based change detection that decides whether the command
// must run again.
package stage

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/ariel-frischer/stagefile/internal/backend"
)

// DefaultWdir is the canonical working directory.
const DefaultWdir = "."

// Stage is one reproducible unit of computation.
type Stage struct {
	// Cmd is the shell command. Nil means the document had no command.
	Cmd *string
	// Wdir is relative to the directory holding the stage file.
	Wdir string
	Deps []Dependency
	Outs []Output
	// MD5 is the last committed stage checksum. Empty means unknown.
	MD5 string

	// Path is where the stage was loaded from. It is not serialized.
	Path string
}

// Dependency is a read-only input of a stage.
type Dependency struct {
	Path     string
	Checksum *string
}

// Output is an artifact produced by a stage.
type Output struct {
	Path     string
	Checksum *string
	// Cache marks the output as managed by the content-addressable cache.
	Cache bool
}

// Key identifies an entry by path and recorded checksum.
type Key struct {
	Path     string
	Checksum string
	Known    bool
}

// Key returns the identity of the dependency.
func (d Dependency) Key() Key { return entryKey(d.Path, d.Checksum) }

// Equal reports whether two dependencies share path and checksum.
func (d Dependency) Equal(o Dependency) bool { return d.Key() == o.Key() }

// Key returns the identity of the output.
func (o Output) Key() Key { return entryKey(o.Path, o.Checksum) }

// Equal reports whether two outputs share path and checksum.
func (o Output) Equal(other Output) bool { return o.Key() == other.Key() }

func entryKey(p string, sum *string) Key {
	if sum == nil {
		return Key{Path: p}
	}
	return Key{Path: p, Checksum: *sum, Known: true}
}

// Dep returns a dependency on p with no recorded checksum.
func Dep(p string) Dependency { return Dependency{Path: p} }

// Out returns an output at p with no recorded checksum.
func Out(p string, cache bool) Output { return Output{Path: p, Cache: cache} }

// New constructs a normalized stage for a freshly registered unit of work.
func New(cmd, wdir string, deps []Dependency, outs []Output) *Stage {
	s := &Stage{
		Cmd:  &cmd,
		Wdir: wdir,
		Deps: append([]Dependency(nil), deps...),
		Outs: append([]Output(nil), outs...),
	}
	Normalize(s)
	return s
}

// Normalize puts s into canonical form. It is the only place defaults are
// applied and is idempotent.
func Normalize(s *Stage) {
	s.Wdir = NormalizeWdir(s.Wdir)
	if s.Deps == nil {
		s.Deps = []Dependency{}
	}
	if s.Outs == nil {
		s.Outs = []Output{}
	}
}

// NormalizeWdir returns the canonical, slash-separated form of wdir.
func NormalizeWdir(wdir string) string {
	wdir = strings.TrimSpace(wdir)
	if wdir == "" {
		return DefaultWdir
	}
	return path.Clean(filepath.ToSlash(wdir))
}

// Clone returns a deep copy of s.
func (s *Stage) Clone() *Stage {
	c := *s
	if s.Cmd != nil {
		cmd := *s.Cmd
		c.Cmd = &cmd
	}
	c.Deps = make([]Dependency, len(s.Deps))
	for i, d := range s.Deps {
		d.Checksum = cloneString(d.Checksum)
		c.Deps[i] = d
	}
	c.Outs = make([]Output, len(s.Outs))
	for i, o := range s.Outs {
		o.Checksum = cloneString(o.Checksum)
		c.Outs[i] = o
	}
	return &c
}

// Command returns the command or "" when there is none.
func (s *Stage) Command() string {
	if s.Cmd == nil {
		return ""
	}
	return *s.Cmd
}

// Name returns a short identifier for logs and reports.
func (s *Stage) Name() string {
	if s.Path == "" {
		return "<unsaved>"
	}
	return s.Path
}

// Dir returns the directory containing the stage file.
func (s *Stage) Dir() string {
	if s.Path == "" {
		return "."
	}
	return filepath.Dir(s.Path)
}

// WorkDir returns the directory the command executes in.
func (s *Stage) WorkDir() string {
	wdir := filepath.FromSlash(NormalizeWdir(s.Wdir))
	if filepath.IsAbs(wdir) {
		return wdir
	}
	return filepath.Join(s.Dir(), wdir)
}

// ResolvePath resolves an entry path against the stage working directory.
// Absolute paths and URLs are returned unchanged.
func (s *Stage) ResolvePath(p string) string {
	if backend.IsRemote(p) || strings.HasPrefix(strings.ToLower(p), "file://") {
		return p
	}
	local := filepath.FromSlash(p)
	if filepath.IsAbs(local) {
		return local
	}
	return filepath.Join(s.WorkDir(), local)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }
