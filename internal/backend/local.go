package backend

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirSuffix marks checksums computed over a directory manifest.
const DirSuffix = ".dir"

// ManifestEntry is one file of a directory artifact.
type ManifestEntry struct {
	RelPath string `json:"relpath"`
	MD5     string `json:"md5"`
}

// IsDirChecksum reports whether checksum identifies a directory manifest.
func IsDirChecksum(checksum string) bool {
	return strings.HasSuffix(checksum, DirSuffix)
}

// LocalStorage serves plain filesystem paths. File checksums are the md5 of
// their content; directories hash their sorted manifest.
type LocalStorage struct {
	memo *Fingerprints
}

// NewLocalStorage creates a local storage. A nil memo disables memoization.
func NewLocalStorage(memo *Fingerprints) *LocalStorage {
	return &LocalStorage{memo: memo}
}

// Scheme implements Storage.
func (l *LocalStorage) Scheme() string { return "" }

// Exists implements Storage.
func (l *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(localPath(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", path, err)
}

// Checksum implements Storage.
func (l *LocalStorage) Checksum(ctx context.Context, path string) (string, error) {
	p := localPath(path)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("checksumming %s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("checksumming %s: %w", path, err)
	}

	if !info.IsDir() {
		return l.fileChecksum(p, info)
	}

	entries, err := l.manifest(ctx, p)
	if err != nil {
		return "", fmt.Errorf("checksumming %s: %w", path, err)
	}
	return manifestChecksum(entries)
}

// Manifest returns the sorted file listing of a local directory.
func (l *LocalStorage) Manifest(ctx context.Context, path string) ([]ManifestEntry, error) {
	p := localPath(path)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("listing %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("listing %s: not a directory", path)
	}
	return l.manifest(ctx, p)
}

func (l *LocalStorage) manifest(ctx context.Context, root string) ([]ManifestEntry, error) {
	var entries []ManifestEntry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := l.fileChecksum(p, info)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		entries = append(entries, ManifestEntry{RelPath: filepath.ToSlash(rel), MD5: sum})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	return entries, nil
}

func (l *LocalStorage) fileChecksum(p string, info fs.FileInfo) (string, error) {
	key := p
	if abs, err := filepath.Abs(p); err == nil {
		key = abs
	}
	fp := FingerprintOf(info)
	if l.memo != nil {
		if sum, ok := l.memo.Lookup(key, fp); ok {
			return sum, nil
		}
	}

	sum, err := fileMD5(p)
	if err != nil {
		return "", err
	}
	if l.memo != nil {
		l.memo.Store(key, fp, sum)
	}
	return sum, nil
}

func fileMD5(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return readerMD5(f)
}

func readerMD5(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func encodeManifest(entries []ManifestEntry) ([]byte, error) {
	if entries == nil {
		entries = []ManifestEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}

func manifestChecksum(entries []ManifestEntry) (string, error) {
	data, err := encodeManifest(entries)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]) + DirSuffix, nil
}

func localPath(path string) string {
	if strings.HasPrefix(strings.ToLower(path), "file://") {
		return filepath.FromSlash(path[len("file://"):])
	}
	return path
}
