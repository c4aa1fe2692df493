package backend

import (
	"io/fs"
	"sync"
)

// Fingerprint identifies a version of a file without reading its content.
type Fingerprint struct {
	ModTime int64
	Size    int64
}

// FingerprintOf returns the fingerprint of a stat result.
func FingerprintOf(info fs.FileInfo) Fingerprint {
	return Fingerprint{ModTime: info.ModTime().UnixNano(), Size: info.Size()}
}

type fingerprintEntry struct {
	fp       Fingerprint
	checksum string
}

// Fingerprints memoizes file checksums keyed by absolute path and fingerprint.
// An entry is dropped as soon as a lookup presents a different fingerprint.
// Safe for concurrent use.
type Fingerprints struct {
	mu      sync.RWMutex
	entries map[string]fingerprintEntry
}

// NewFingerprints creates an empty memo.
func NewFingerprints() *Fingerprints {
	return &Fingerprints{entries: make(map[string]fingerprintEntry)}
}

// Lookup returns the memoized checksum of path if it was stored with fp.
func (f *Fingerprints) Lookup(path string, fp Fingerprint) (string, bool) {
	f.mu.RLock()
	entry, ok := f.entries[path]
	f.mu.RUnlock()

	if !ok {
		return "", false
	}
	if entry.fp != fp {
		f.mu.Lock()
		if cur, ok := f.entries[path]; ok && cur.fp != fp {
			delete(f.entries, path)
		}
		f.mu.Unlock()
		return "", false
	}
	return entry.checksum, true
}

// Store records the checksum of path at fingerprint fp.
func (f *Fingerprints) Store(path string, fp Fingerprint, checksum string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[path] = fingerprintEntry{fp: fp, checksum: checksum}
}

// Len returns the number of memoized entries.
func (f *Fingerprints) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}
