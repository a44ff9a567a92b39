package acme

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// probeSignal checks process existence without delivering a signal.
var probeSignal = syscall.Signal(0)

// =============================================================================
// Certificate Storage
// =============================================================================

// Storage is the on-disk certificate store. Exactly one process may hold the
// write lock at a time; readers that only serve certificates do not lock.
//
// Layout under the root directory:
//
//	account.key              ACME account private key
//	.lock                    writer lock file
//	<domain>/cert.pem        certificate chain
//	<domain>/key.pem         certificate private key
type Storage struct {
	root   string
	locked bool
}

// NewStorage creates a storage rooted at dir, creating it if needed.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, NewCertError("NewStorage", "", err)
	}
	return &Storage{root: dir}, nil
}

// Lock takes the exclusive writer lock. It fails if another live process
// holds it; a lock left by a dead process is broken and re-taken.
func (s *Storage) Lock() error {
	lockPath := filepath.Join(s.root, ".lock")

	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return NewCertError("Lock", "", err)
		}
		if s.lockHolderAlive(lockPath) {
			return NewCertError("Lock", "", ErrStorageLocked)
		}
		// Stale lock from a dead process.
		if err := os.Remove(lockPath); err != nil {
			return NewCertError("Lock", "", err)
		}
		f, err = os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return NewCertError("Lock", "", ErrStorageLocked)
		}
	}
	defer f.Close()

	fmt.Fprintf(f, "%d\n", os.Getpid())
	s.locked = true
	return nil
}

// Unlock releases the writer lock.
func (s *Storage) Unlock() error {
	if !s.locked {
		return nil
	}
	s.locked = false
	return os.Remove(filepath.Join(s.root, ".lock"))
}

func (s *Storage) lockHolderAlive(lockPath string) bool {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil || pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	sigErr := proc.Signal(probeSignal)
	// EPERM still proves the process exists.
	return sigErr == nil || errors.Is(sigErr, syscall.EPERM)
}

// AccountKey loads the ACME account key, generating one on first use.
func (s *Storage) AccountKey() (*ecdsa.PrivateKey, error) {
	keyPath := filepath.Join(s.root, "account.key")

	if data, err := os.ReadFile(keyPath); err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, NewCertError("AccountKey", "", fmt.Errorf("malformed PEM in %s", keyPath))
		}
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, NewCertError("AccountKey", "", err)
		}
		return key, nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, NewCertError("AccountKey", "", err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, NewCertError("AccountKey", "", err)
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		return nil, NewCertError("AccountKey", "", err)
	}

	return key, nil
}

// SaveCertificate writes a certificate chain and its key for a domain.
// Requires the writer lock. Writes go through temp files and rename so a
// concurrent reader never sees a partial file.
func (s *Storage) SaveCertificate(domain string, derCerts [][]byte, key *ecdsa.PrivateKey) error {
	if !s.locked {
		return NewCertError("SaveCertificate", domain, ErrStorageLocked)
	}

	certDir := filepath.Join(s.root, domain)
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return NewCertError("SaveCertificate", domain, err)
	}

	var certPEM []byte
	for _, der := range derCerts {
		certPEM = append(certPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}

	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return NewCertError("SaveCertificate", domain, err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	if err := writeFileAtomic(filepath.Join(certDir, "cert.pem"), certPEM); err != nil {
		return NewCertError("SaveCertificate", domain, err)
	}
	if err := writeFileAtomic(filepath.Join(certDir, "key.pem"), keyPEM); err != nil {
		return NewCertError("SaveCertificate", domain, err)
	}

	return nil
}

// LoadCertificate loads a domain's certificate and key as a tls.Certificate
// with the parsed leaf attached.
func (s *Storage) LoadCertificate(domain string) (*tls.Certificate, error) {
	certDir := filepath.Join(s.root, domain)

	certPEM, err := os.ReadFile(filepath.Join(certDir, "cert.pem"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewCertError("LoadCertificate", domain, ErrNoCertificate)
		}
		return nil, NewCertError("LoadCertificate", domain, err)
	}
	keyPEM, err := os.ReadFile(filepath.Join(certDir, "key.pem"))
	if err != nil {
		return nil, NewCertError("LoadCertificate", domain, err)
	}

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, NewCertError("LoadCertificate", domain, err)
	}

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, NewCertError("LoadCertificate", domain, err)
	}
	pair.Leaf = leaf

	return &pair, nil
}

// HasCertificate reports whether a certificate exists on disk for the domain.
func (s *Storage) HasCertificate(domain string) bool {
	_, err := os.Stat(filepath.Join(s.root, domain, "cert.pem"))
	return err == nil
}

// Domains lists the domains that have stored certificates.
func (s *Storage) Domains() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, NewCertError("Domains", "", err)
	}
	var domains []string
	for _, e := range entries {
		if e.IsDir() && s.HasCertificate(e.Name()) {
			domains = append(domains, e.Name())
		}
	}
	return domains, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
