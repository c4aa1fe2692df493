package stage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ariel-frischer/stagefile/internal/schema"
)

// FileSuffix is the conventional stage file extension.
const FileSuffix = ".stage.yaml"

// document field order is the dump key order.
type document struct {
	Cmd  *string    `yaml:"cmd,omitempty"`
	Wdir string     `yaml:"wdir"`
	Deps []depEntry `yaml:"deps,omitempty"`
	Outs []outEntry `yaml:"outs,omitempty"`
	MD5  string     `yaml:"md5,omitempty"`
}

type depEntry struct {
	Path     string  `yaml:"path"`
	Checksum *string `yaml:"checksum,omitempty"`
}

type outEntry struct {
	Path     string  `yaml:"path"`
	Checksum *string `yaml:"checksum,omitempty"`
	Cache    bool    `yaml:"cache"`
}

// rawDocument mirrors document for decoding, keeping absence observable.
type rawDocument struct {
	Cmd  *string    `yaml:"cmd"`
	Wdir *string    `yaml:"wdir"`
	Deps []rawEntry `yaml:"deps"`
	Outs []rawEntry `yaml:"outs"`
	MD5  *string    `yaml:"md5"`
}

type rawEntry struct {
	Path     string  `yaml:"path"`
	Checksum *string `yaml:"checksum"`
	Cache    *bool   `yaml:"cache"`
}

// Parse validates data and decodes it into a normalized stage.
// Errors are *schema.ParseError or *schema.FormatError.
func Parse(data []byte, opts ...schema.Option) (*Stage, error) {
	node, err := schema.Parse(data, opts...)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(node, opts...); err != nil {
		return nil, err
	}

	var raw rawDocument
	if root := schema.Resolve(node); schema.Classify(root) == schema.KindMapping {
		if err := root.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding stage document: %w", err)
		}
	}

	s := &Stage{Cmd: raw.Cmd}
	if raw.Wdir != nil {
		s.Wdir = *raw.Wdir
	}
	if raw.MD5 != nil {
		s.MD5 = *raw.MD5
	}
	for _, e := range raw.Deps {
		s.Deps = append(s.Deps, Dependency{Path: e.Path, Checksum: e.Checksum})
	}
	for _, e := range raw.Outs {
		cache := true
		if e.Cache != nil {
			cache = *e.Cache
		}
		s.Outs = append(s.Outs, Output{Path: e.Path, Checksum: e.Checksum, Cache: cache})
	}

	Normalize(s)
	return s, nil
}

// Load reads and parses the stage file at path. A missing file returns an
// error wrapping fs.ErrNotExist.
func Load(path string, opts ...schema.Option) (*Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stage file: %w", err)
	}

	opts = append([]schema.Option{schema.WithFile(path)}, opts...)
	s, err := Parse(data, opts...)
	if err != nil {
		return nil, err
	}
	s.Path = path
	return s, nil
}

// Marshal renders s in block style with a fixed key order. The md5 field is
// written as held; it is never recomputed here.
func Marshal(s *Stage) ([]byte, error) {
	doc := document{
		Cmd:  s.Cmd,
		Wdir: NormalizeWdir(s.Wdir),
		MD5:  s.MD5,
	}
	for _, d := range s.Deps {
		doc.Deps = append(doc.Deps, depEntry{Path: d.Path, Checksum: d.Checksum})
	}
	for _, o := range s.Outs {
		doc.Outs = append(doc.Outs, outEntry{Path: o.Path, Checksum: o.Checksum, Cache: o.Cache})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encoding stage: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding stage: %w", err)
	}
	return buf.Bytes(), nil
}

// Dump writes s to path atomically.
func Dump(s *Stage, path string) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	if err := atomicWriteToFile(path, data); err != nil {
		return fmt.Errorf("writing stage file: %w", err)
	}
	return nil
}

func atomicWriteToFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Best effort cleanup
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
