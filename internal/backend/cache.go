package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ariel-frischer/stagefile/internal/logging"
)

// LocalCache is a content-addressable cache on the local filesystem.
// Content with checksum "abcdef..." lives at <dir>/ab/cdef...
type LocalCache struct {
	dir     string
	storage *LocalStorage
	log     *logging.Logger
}

// NewLocalCache creates a cache rooted at dir. The directory is created lazily.
func NewLocalCache(dir string, storage *LocalStorage, log *logging.Logger) *LocalCache {
	if storage == nil {
		storage = NewLocalStorage(nil)
	}
	return &LocalCache{
		dir:     dir,
		storage: storage,
		log:     logging.OrNop(log).WithComponent("cache"),
	}
}

// Dir returns the cache root.
func (c *LocalCache) Dir() string { return c.dir }

// PathFor returns the location of checksum inside the cache.
func (c *LocalCache) PathFor(checksum string) string {
	if len(checksum) < 3 {
		return filepath.Join(c.dir, checksum)
	}
	return filepath.Join(c.dir, checksum[:2], checksum[2:])
}

// IsCached implements Cache. A directory checksum is cached only when its
// manifest and every file it lists are present.
func (c *LocalCache) IsCached(_ context.Context, checksum string) (bool, error) {
	if checksum == "" {
		return false, nil
	}
	ok, err := c.present(checksum)
	if err != nil || !ok || !IsDirChecksum(checksum) {
		return ok, err
	}

	entries, err := c.readManifest(checksum)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		ok, err := c.present(e.MD5)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Register implements Cache. Only local paths can be registered.
func (c *LocalCache) Register(ctx context.Context, path, checksum string) error {
	if IsRemote(path) {
		return fmt.Errorf("registering %s: %w", path, ErrUnsupported)
	}
	if checksum == "" {
		return fmt.Errorf("registering %s: empty checksum", path)
	}

	src := localPath(path)
	if !IsDirChecksum(checksum) {
		if err := c.store(src, checksum); err != nil {
			return fmt.Errorf("registering %s: %w", path, err)
		}
		c.log.Debug("registered file", map[string]interface{}{
			logging.FieldPath:     path,
			logging.FieldChecksum: checksum,
		})
		return nil
	}

	entries, err := c.storage.Manifest(ctx, src)
	if err != nil {
		return fmt.Errorf("registering %s: %w", path, err)
	}
	for _, e := range entries {
		if err := c.store(filepath.Join(src, filepath.FromSlash(e.RelPath)), e.MD5); err != nil {
			return fmt.Errorf("registering %s: %w", path, err)
		}
	}
	data, err := encodeManifest(entries)
	if err != nil {
		return fmt.Errorf("registering %s: %w", path, err)
	}
	if err := c.writeAtomic(checksum, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return fmt.Errorf("registering %s: %w", path, err)
	}

	c.log.Debug("registered directory", map[string]interface{}{
		logging.FieldPath:     path,
		logging.FieldChecksum: checksum,
		"files":               len(entries),
	})
	return nil
}

func (c *LocalCache) present(checksum string) (bool, error) {
	_, err := os.Stat(c.PathFor(checksum))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking cache entry %s: %w", checksum, err)
}

func (c *LocalCache) readManifest(checksum string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(c.PathFor(checksum))
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", checksum, err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", checksum, err)
	}
	return entries, nil
}

func (c *LocalCache) store(src, checksum string) error {
	if ok, err := c.present(checksum); err != nil || ok {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()

	return c.writeAtomic(checksum, func(w io.Writer) error {
		_, err := io.Copy(w, f)
		return err
	})
}

// writeAtomic writes an entry through a temp file and rename.
func (c *LocalCache) writeAtomic(checksum string, write func(io.Writer) error) error {
	dst := c.PathFor(checksum)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming cache entry: %w", err)
	}
	return nil
}
