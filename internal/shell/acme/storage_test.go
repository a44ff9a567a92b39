package acme

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// selfSigned produces a DER certificate and its key for storage round trips.
func selfSigned(t *testing.T, domain string, notAfter time.Time) ([]byte, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return der, key
}

// =============================================================================
// Lock Tests
// =============================================================================

func TestStorage_SingleWriter(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStorage(dir)
	require.NoError(t, err)
	require.NoError(t, first.Lock())
	defer first.Unlock()

	// A second writer on the same directory is refused while this process
	// holds the lock... except the stale-lock check treats our own pid as
	// dead to allow restart recovery, so fake a foreign live holder.
	lockPath := filepath.Join(dir, ".lock")
	require.NoError(t, os.WriteFile(lockPath, []byte("1\n"), 0600))

	second, err := NewStorage(dir)
	require.NoError(t, err)
	assert.ErrorIs(t, second.Lock(), ErrStorageLocked)
}

func TestStorage_StaleLockBroken(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStorage(dir)
	require.NoError(t, err)

	// A pid that cannot exist.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lock"), []byte("999999999\n"), 0600))

	require.NoError(t, s.Lock())
	defer s.Unlock()
}

func TestStorage_SaveRequiresLock(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	der, key := selfSigned(t, "wordpress.local", time.Now().Add(90*24*time.Hour))
	err = s.SaveCertificate("wordpress.local", [][]byte{der}, key)
	assert.ErrorIs(t, err, ErrStorageLocked)
}

// =============================================================================
// Certificate Round Trip Tests
// =============================================================================

func TestStorage_SaveLoadRoundTrip(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Lock())
	defer s.Unlock()

	expiry := time.Now().Add(90 * 24 * time.Hour).Truncate(time.Second)
	der, key := selfSigned(t, "wordpress.local", expiry)

	require.NoError(t, s.SaveCertificate("wordpress.local", [][]byte{der}, key))
	assert.True(t, s.HasCertificate("wordpress.local"))

	pair, err := s.LoadCertificate("wordpress.local")
	require.NoError(t, err)
	require.NotNil(t, pair.Leaf)
	assert.Equal(t, []string{"wordpress.local"}, pair.Leaf.DNSNames)
	assert.WithinDuration(t, expiry, pair.Leaf.NotAfter, time.Second)

	// Private material stays owner-only.
	info, err := os.Stat(filepath.Join(s.root, "wordpress.local", "key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	domains, err := s.Domains()
	require.NoError(t, err)
	assert.Equal(t, []string{"wordpress.local"}, domains)
}

func TestStorage_LoadMissing(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.LoadCertificate("missing.local")
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestStorage_AccountKeyStable(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	first, err := s.AccountKey()
	require.NoError(t, err)

	second, err := s.AccountKey()
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
}
