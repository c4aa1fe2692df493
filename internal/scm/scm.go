// Package scm integrates stages with the git repository they live in. It
// refuses outputs that git already tracks and keeps cached outputs out of
// version control through .gitignore entries. It uses go-git only; no git
// binary is required.
package scm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/ariel-frischer/stagefile/internal/logging"
)

// GitignoreFile is the name of the ignore file entries are written to.
const GitignoreFile = ".gitignore"

var (
	// ErrNotRepository is returned by Open outside a git repository.
	ErrNotRepository = errors.New("not a git repository")
	// ErrTrackedBySCM is wrapped by TrackedError.
	ErrTrackedBySCM = errors.New("output is tracked by git")
)

// TrackedError names outputs that git already tracks.
type TrackedError struct {
	Paths []string
}

// Error implements the error interface.
func (e *TrackedError) Error() string {
	return fmt.Sprintf("%s: %s; remove them with 'git rm -r --cached' first",
		ErrTrackedBySCM, strings.Join(e.Paths, ", "))
}

// Unwrap returns ErrTrackedBySCM.
func (e *TrackedError) Unwrap() error { return ErrTrackedBySCM }

// Repo is an open git repository.
type Repo struct {
	repo *git.Repository
	wt   *git.Worktree
	root string
	log  *logging.Logger
}

// Open finds the repository containing path, searching parent directories.
// An empty path means the current working directory.
func Open(path string, log *logging.Logger) (*Repo, error) {
	log = logging.OrNop(log).WithComponent("scm")

	if path == "" {
		var err error
		path, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
	}

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("opening repository at %s: %w", path, ErrNotRepository)
		}
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}

	root := wt.Filesystem.Root()
	log.Debug("repository opened", map[string]interface{}{"root": root})
	return &Repo{repo: repo, wt: wt, root: root, log: log}, nil
}

// Root returns the absolute repository root.
func (r *Repo) Root() string { return r.root }

// rel returns path relative to the root in slash form. ok is false for
// paths outside the repository.
func (r *Repo) rel(path string) (rel string, ok bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false, fmt.Errorf("resolving %s: %w", path, err)
	}
	root := r.root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}

	rel, err = filepath.Rel(root, abs)
	if err != nil {
		return "", false, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false, nil
	}
	return filepath.ToSlash(rel), true, nil
}

// IsTracked reports whether git tracks path, or any file below it when path
// is a directory. Paths outside the repository are untracked.
func (r *Repo) IsTracked(path string) (bool, error) {
	rel, ok, err := r.rel(path)
	if err != nil || !ok {
		return false, err
	}

	idx, err := r.repo.Storer.Index()
	if err != nil {
		return false, fmt.Errorf("reading index: %w", err)
	}
	for _, e := range idx.Entries {
		if e.Name == rel || rel == "." || strings.HasPrefix(e.Name, rel+"/") {
			return true, nil
		}
	}
	return false, nil
}

// CheckOutputs returns a *TrackedError listing every tracked path.
func (r *Repo) CheckOutputs(paths ...string) error {
	var tracked []string
	for _, p := range paths {
		ok, err := r.IsTracked(p)
		if err != nil {
			return err
		}
		if ok {
			tracked = append(tracked, p)
		}
	}
	if len(tracked) > 0 {
		return &TrackedError{Paths: tracked}
	}
	return nil
}

// IsIgnored reports whether the repository's ignore rules match path.
func (r *Repo) IsIgnored(path string) (bool, error) {
	rel, ok, err := r.rel(path)
	if err != nil || !ok {
		return false, err
	}
	patterns, err := gitignore.ReadPatterns(r.wt.Filesystem, nil)
	if err != nil {
		return false, fmt.Errorf("reading ignore patterns: %w", err)
	}

	isDir := false
	if info, err := os.Stat(path); err == nil {
		isDir = info.IsDir()
	}
	return gitignore.NewMatcher(patterns).Match(strings.Split(rel, "/"), isDir), nil
}

// Ignore adds an anchored entry for path to the .gitignore next to it.
// Existing entries are left alone. It returns true when the file changed.
// Paths outside the repository are skipped.
func (r *Repo) Ignore(path string) (bool, error) {
	if _, ok, err := r.rel(path); err != nil || !ok {
		return false, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolving %s: %w", path, err)
	}
	ignorePath := filepath.Join(filepath.Dir(abs), GitignoreFile)
	entry := "/" + filepath.Base(abs)

	existing, err := os.ReadFile(ignorePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading %s: %w", ignorePath, err)
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == entry {
			return false, nil
		}
	}
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		entry = "\n" + entry
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", ignorePath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, entry); err != nil {
		return false, fmt.Errorf("writing %s: %w", ignorePath, err)
	}

	r.log.Info("added gitignore entry", map[string]interface{}{
		logging.FieldPath: ignorePath,
		"entry":           strings.TrimSpace(entry),
	})
	return true, nil
}
