package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariel-frischer/stagefile/internal/logging"
)

// Options selects the storages a Registry is built with. Local storage is
// always present; S3 and SSH are added when their config is non-nil.
type Options struct {
	S3  *S3Config
	SSH *SSHConfig
	// Memo is shared by the local storage and the cache. Nil creates one.
	Memo *Fingerprints
}

// Backends is the set of storages and the cache a command works with.
type Backends struct {
	Registry *Registry
	Local    *LocalStorage

	closers []func() error
}

// Setup dials the configured remotes and returns the resulting registry.
func Setup(ctx context.Context, opts Options, log *logging.Logger) (*Backends, error) {
	log = logging.OrNop(log).WithComponent("backend")

	memo := opts.Memo
	if memo == nil {
		memo = NewFingerprints()
	}
	local := NewLocalStorage(memo)
	b := &Backends{Registry: NewRegistry(local), Local: local}

	if opts.S3 != nil {
		s3, err := DialS3(ctx, *opts.S3)
		if err != nil {
			return nil, fmt.Errorf("setting up s3 storage: %w", err)
		}
		b.Registry.Register(s3)
		log.Debug("s3 storage enabled", map[string]interface{}{"region": opts.S3.Region})
	}

	if opts.SSH != nil {
		sf, err := DialSFTP(*opts.SSH, log)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("setting up ssh storage: %w", err)
		}
		b.Registry.Register(sf)
		b.closers = append(b.closers, sf.Close)
		log.Debug("ssh storage enabled", map[string]interface{}{"host": opts.SSH.Host})
	}

	return b, nil
}

// Close releases remote sessions.
func (b *Backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
