// Package backend defines the storage and cache contracts stage change
// detection is built on, along with the implementations selected by
// configuration: local filesystem, S3 object store and SFTP.
//
// A Storage resolves content checksums and existence for paths of one URL
// scheme. A Cache is a content-addressable store keyed by checksum that
// holds managed output artifacts. The Registry maps schemes to storages so
// callers never inspect concrete types.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound is wrapped by backends when a path does not exist.
	ErrNotFound = errors.New("path not found")
	// ErrUnsupported is wrapped when a backend cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported")
)

// Storage resolves content checksums for artifact paths.
type Storage interface {
	// Scheme is the URL scheme this storage serves; "" for local paths.
	Scheme() string
	// Checksum returns the content checksum of path.
	// A missing path returns an error wrapping ErrNotFound.
	Checksum(ctx context.Context, path string) (string, error)
	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// Cache is a content-addressable store for output artifacts.
type Cache interface {
	// IsCached reports whether content with checksum is present in the cache.
	IsCached(ctx context.Context, checksum string) (bool, error)
	// Register stores the artifact at path under checksum.
	Register(ctx context.Context, path, checksum string) error
}

// UnsupportedSchemeError is returned for paths whose scheme has no configured backend.
type UnsupportedSchemeError struct {
	Scheme string
	Path   string
	// Configured lists the schemes that do have a backend.
	Configured []string
}

// Error implements the error interface.
func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("no storage backend configured for scheme %q (path %s); configured: [%s]",
		e.Scheme, e.Path, strings.Join(e.Configured, ", "))
}

// SchemeOf returns the lowercased URL scheme of path, or "" for plain
// filesystem paths. "file://" paths are treated as local.
func SchemeOf(path string) string {
	idx := strings.Index(path, "://")
	if idx <= 0 {
		return ""
	}
	scheme := strings.ToLower(path[:idx])
	if scheme == "file" {
		return ""
	}
	return scheme
}

// IsRemote reports whether path is served by a non-local backend.
func IsRemote(path string) bool {
	return SchemeOf(path) != ""
}

// Registry maps URL schemes to storage backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Storage
}

// NewRegistry creates a registry holding the given storages.
func NewRegistry(stores ...Storage) *Registry {
	r := &Registry{backends: make(map[string]Storage)}
	for _, s := range stores {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the storage for its scheme.
func (r *Registry) Register(s Storage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[s.Scheme()] = s
}

// For returns the storage serving path.
func (r *Registry) For(path string) (Storage, error) {
	scheme := SchemeOf(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.backends[scheme]; ok {
		return s, nil
	}
	return nil, &UnsupportedSchemeError{Scheme: scheme, Path: path, Configured: r.schemesLocked()}
}

// Schemes returns the configured schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemesLocked()
}

func (r *Registry) schemesLocked() []string {
	schemes := make([]string, 0, len(r.backends))
	for s := range r.backends {
		if s == "" {
			s = "file"
		}
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}
