// Package certstore manages on-disk certificate material using the
// conventional live-directory layout: one directory per primary domain
// containing fullchain.pem and privkey.pem. The store is the only writer
// of certificate files; every other component treats them as read-only.
package certstore

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	chainFileName = "fullchain.pem"
	keyFileName   = "privkey.pem"
)

// CertificateRef points at an installed certificate pair.
type CertificateRef struct {
	// Primary is the domain the certificate directory is keyed by.
	Primary string

	// CertFile is the path to the PEM certificate chain.
	CertFile string

	// KeyFile is the path to the PEM private key.
	KeyFile string
}

// Config holds certificate store configuration with environment variable support.
type Config struct {
	Dir string `env:"CERT_DIR" envDefault:"/etc/letsencrypt/live"`
}

// Store provides certificate file operations rooted at a single directory.
type Store struct {
	dir string
}

// New creates a Store, ensuring the root directory exists.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, ErrDirRequired
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create certificate directory: %w", err)
	}
	return &Store{dir: cfg.Dir}, nil
}

// Lookup returns the certificate reference for the primary domain, or
// (nil, nil) when no usable certificate is installed. Absence is an
// expected state, not a failure: a missing directory, a missing file or
// an empty file all report "no certificate".
func (s *Store) Lookup(primary string) (*CertificateRef, error) {
	if primary == "" {
		return nil, nil
	}

	ref := &CertificateRef{
		Primary:  primary,
		CertFile: filepath.Join(s.dir, primary, chainFileName),
		KeyFile:  filepath.Join(s.dir, primary, keyFileName),
	}

	for _, path := range []string{ref.CertFile, ref.KeyFile} {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", path, err)
		}
		if info.Size() == 0 {
			return nil, nil
		}
	}

	return ref, nil
}

// Install atomically writes the certificate pair for the primary domain
// and returns its reference. Both files are fully written to temporary
// paths and moved into place, so a concurrent reader never observes a
// partial certificate.
func (s *Store) Install(primary string, certPEM, keyPEM []byte) (*CertificateRef, error) {
	if primary == "" {
		return nil, ErrPrimaryRequired
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		return nil, ErrEmptyMaterial
	}

	dir := filepath.Join(s.dir, primary)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create certificate directory for %s: %w", primary, err)
	}

	ref := &CertificateRef{
		Primary:  primary,
		CertFile: filepath.Join(dir, chainFileName),
		KeyFile:  filepath.Join(dir, keyFileName),
	}

	if err := writeFileAtomic(ref.KeyFile, keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("write private key for %s: %w", primary, err)
	}
	if err := writeFileAtomic(ref.CertFile, certPEM, 0o644); err != nil {
		return nil, fmt.Errorf("write certificate for %s: %w", primary, err)
	}

	return ref, nil
}

// List returns the primary domains that have a certificate installed,
// sorted by directory order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}

	var primaries []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ref, err := s.Lookup(entry.Name())
		if err != nil {
			return nil, err
		}
		if ref != nil {
			primaries = append(primaries, entry.Name())
		}
	}
	return primaries, nil
}

// ReadChain reads the PEM certificate chain for the primary domain.
func (s *Store) ReadChain(primary string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, primary, chainFileName))
	if err != nil {
		return nil, fmt.Errorf("read certificate chain for %s: %w", primary, err)
	}
	return data, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // Best effort cleanup
		return err
	}
	return nil
}
