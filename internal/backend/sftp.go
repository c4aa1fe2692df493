package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ariel-frischer/stagefile/internal/logging"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// RemoteFS is the subset of an SFTP session used for checksums.
type RemoteFS interface {
	Stat(path string) (fs.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	Close() error
}

// SSHConfig holds SFTP connection settings.
type SSHConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	KeyFile    string
	KnownHosts string
}

func (c SSHConfig) port() int {
	if c.Port == 0 {
		return 22
	}
	return c.Port
}

// HostMismatchError is returned for ssh:// paths naming a host other than
// the one the session is connected to.
type HostMismatchError struct {
	Path       string
	Configured string
}

// Error implements the error interface.
func (e *HostMismatchError) Error() string {
	return fmt.Sprintf("ssh path %s does not match the configured remote %s", e.Path, e.Configured)
}

// SFTPStorage serves ssh://host/path paths for a single configured host.
// Checksums are the md5 of the remote content, streamed over SFTP.
type SFTPStorage struct {
	fs  RemoteFS
	cfg SSHConfig
}

// NewSFTPStorage wraps an open remote filesystem connected to cfg.Host.
func NewSFTPStorage(rfs RemoteFS, cfg SSHConfig) *SFTPStorage {
	return &SFTPStorage{fs: rfs, cfg: cfg}
}

// DialSFTP connects to the configured host. Host keys are verified against
// KnownHosts, or ~/.ssh/known_hosts when that is unset and present.
func DialSFTP(cfg SSHConfig, log *logging.Logger) (*SFTPStorage, error) {
	var auth []ssh.AuthMethod
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	hostKey, err := hostKeyCallback(cfg.KnownHosts, defaultKnownHosts(), log)
	if err != nil {
		return nil, err
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.port())), &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing ssh: %w", err)
	}

	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("creating sftp client: %w", err)
	}
	return NewSFTPStorage(&sftpFS{client: client, sftp: sc}, cfg), nil
}

func defaultKnownHosts() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

// hostKeyCallback loads configured, falling back to fallback when configured
// is empty. With neither available host keys are accepted unverified.
func hostKeyCallback(configured, fallback string, log *logging.Logger) (ssh.HostKeyCallback, error) {
	file := configured
	if file == "" && fallback != "" {
		if _, err := os.Stat(fallback); err == nil {
			file = fallback
		}
	}
	if file == "" {
		logging.OrNop(log).Warn("ssh host keys are not verified; set remotes.ssh.known_hosts")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("loading known hosts: %w", err)
	}
	return cb, nil
}

// Scheme implements Storage.
func (s *SFTPStorage) Scheme() string { return "ssh" }

// Checksum implements Storage.
func (s *SFTPStorage) Checksum(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	remote, err := s.remotePath(path)
	if err != nil {
		return "", err
	}

	info, err := s.fs.Stat(remote)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("checksumming %s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("checksumming %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("checksumming %s: remote directories: %w", path, ErrUnsupported)
	}

	f, err := s.fs.Open(remote)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sum, err := readerMD5(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return sum, nil
}

// Exists implements Storage.
func (s *SFTPStorage) Exists(_ context.Context, path string) (bool, error) {
	remote, err := s.remotePath(path)
	if err != nil {
		return false, err
	}
	_, err = s.fs.Stat(remote)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", path, err)
}

// Close releases the SFTP session.
func (s *SFTPStorage) Close() error {
	return s.fs.Close()
}

// remotePath extracts the absolute remote path from ssh://[user@]host[:port]/path.
// Host, and port and user when given, must match the configured remote.
func (s *SFTPStorage) remotePath(path string) (string, error) {
	if SchemeOf(path) != "ssh" {
		return "", fmt.Errorf("not an ssh url: %s", path)
	}
	u, err := url.Parse(path)
	if err != nil || u.Host == "" || u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("invalid ssh url %q: expected ssh://host/path", path)
	}

	configured := s.cfg.Host + ":" + strconv.Itoa(s.cfg.port())
	if !strings.EqualFold(u.Hostname(), s.cfg.Host) {
		return "", &HostMismatchError{Path: path, Configured: configured}
	}
	if p := u.Port(); p != "" && p != strconv.Itoa(s.cfg.port()) {
		return "", &HostMismatchError{Path: path, Configured: configured}
	}
	if u.User != nil && s.cfg.User != "" && u.User.Username() != s.cfg.User {
		return "", &HostMismatchError{Path: path, Configured: s.cfg.User + "@" + configured}
	}
	return u.Path, nil
}

type sftpFS struct {
	client *ssh.Client
	sftp   *sftp.Client
}

func (f *sftpFS) Stat(path string) (fs.FileInfo, error) {
	return f.sftp.Stat(path)
}

func (f *sftpFS) Open(path string) (io.ReadCloser, error) {
	return f.sftp.Open(path)
}

func (f *sftpFS) Close() error {
	f.sftp.Close()
	return f.client.Close()
}
