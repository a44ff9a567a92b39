package acme

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/acme"

	"github.com/pressedge/pressedge/internal/core/cert"
	"github.com/pressedge/pressedge/internal/shell/store"
)

// =============================================================================
// Certificate Manager
// =============================================================================

// LetsEncryptDirectory is the production ACME directory.
const LetsEncryptDirectory = "https://acme-v02.api.letsencrypt.org/directory"

// Config configures the certificate manager.
type Config struct {
	DirectoryURL  string        // ACME directory, defaults to Let's Encrypt production
	Email         string        // account contact, optional
	Domains       []string      // issuance allow-list
	RenewalWindow time.Duration // time before expiry to renew, default 30 days
	Storage       *Storage
	Store         store.Store // lifecycle records, may be nil
	Logger        *slog.Logger
}

// domainState is the tracked lifecycle of one domain's certificate.
type domainState struct {
	state       cert.State
	notAfter    time.Time
	failures    int
	lastAttempt time.Time
	lastError   string
}

// Manager drives the certificate lifecycle: ordering, HTTP-01 challenges,
// storage, and renewal. All issuance goes through a single mutex so only one
// order is in flight at a time.
type Manager struct {
	client        *acme.Client
	policy        *cert.Policy
	storage       *Storage
	store         store.Store
	logger        *slog.Logger
	email         string
	renewalWindow time.Duration

	httpTokens sync.Map // map[token]keyAuth for HTTP-01 challenges
	certCache  sync.Map // map[domain]*tls.Certificate

	mu     sync.Mutex
	states map[string]*domainState
}

// NewManager creates a certificate manager, takes the storage writer lock,
// registers the ACME account, and loads existing certificates.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Storage == nil {
		return nil, NewCertError("NewManager", "", fmt.Errorf("storage is required"))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DirectoryURL == "" {
		cfg.DirectoryURL = LetsEncryptDirectory
	}
	if cfg.RenewalWindow <= 0 {
		cfg.RenewalWindow = cert.DefaultRenewalWindow
	}

	if err := cfg.Storage.Lock(); err != nil {
		return nil, err
	}

	accountKey, err := cfg.Storage.AccountKey()
	if err != nil {
		cfg.Storage.Unlock()
		return nil, err
	}

	m := &Manager{
		client: &acme.Client{
			Key:          accountKey,
			DirectoryURL: cfg.DirectoryURL,
			HTTPClient: &http.Client{
				Timeout: 30 * time.Second,
			},
		},
		policy:        cert.NewPolicy(cfg.Domains),
		storage:       cfg.Storage,
		store:         cfg.Store,
		logger:        cfg.Logger.With("component", "cert"),
		email:         cfg.Email,
		renewalWindow: cfg.RenewalWindow,
		states:        make(map[string]*domainState),
	}

	if err := m.registerAccount(); err != nil {
		cfg.Storage.Unlock()
		return nil, err
	}

	if err := m.loadExisting(); err != nil {
		cfg.Storage.Unlock()
		return nil, err
	}

	return m, nil
}

// Close releases the storage writer lock.
func (m *Manager) Close() error {
	return m.storage.Unlock()
}

func (m *Manager) registerAccount() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	acct := &acme.Account{}
	if m.email != "" {
		acct.Contact = []string{"mailto:" + m.email}
	}

	_, err := m.client.Register(ctx, acct, acme.AcceptTOS)
	if err != nil && !errors.Is(err, acme.ErrAccountAlreadyExists) {
		return NewCertError("registerAccount", "", err)
	}

	m.logger.Info("acme account registered", "directory", m.client.DirectoryURL)
	return nil
}

// loadExisting loads stored certificates into the cache and rebuilds their
// lifecycle states.
func (m *Manager) loadExisting() error {
	domains, err := m.storage.Domains()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, domain := range domains {
		pair, err := m.storage.LoadCertificate(domain)
		if err != nil {
			m.logger.Warn("skipping unreadable certificate", "domain", domain, "error", err)
			continue
		}

		state := cert.StateActive
		switch {
		case cert.Expired(pair.Leaf.NotAfter, now):
			state = cert.StateExpired
		case cert.RenewalDue(pair.Leaf.NotAfter, now, m.renewalWindow):
			state = cert.StateRenewalDue
		}
		// Expired certificates are not served, renewal-due ones still are.
		if state != cert.StateExpired {
			m.certCache.Store(domain, pair)
		}

		m.states[domain] = &domainState{state: state, notAfter: pair.Leaf.NotAfter}
		m.logger.Info("loaded certificate", "domain", domain, "state", string(state), "expires", pair.Leaf.NotAfter)
	}

	return nil
}

// =============================================================================
// TLS Integration
// =============================================================================

// GetCertificate returns the certificate for the SNI hostname. Used as the
// GetCertificate callback of a tls.Config.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	domain := hello.ServerName
	if !m.policy.Allows(domain) {
		return nil, NewCertError("GetCertificate", domain, ErrPolicyDenied)
	}

	if cached, ok := m.certCache.Load(domain); ok {
		return cached.(*tls.Certificate), nil
	}

	pair, err := m.storage.LoadCertificate(domain)
	if err != nil {
		return nil, err
	}
	m.certCache.Store(domain, pair)
	return pair, nil
}

// HTTPChallenge returns the key authorization for an outstanding HTTP-01
// challenge token, for serving under /.well-known/acme-challenge/.
func (m *Manager) HTTPChallenge(token string) (string, bool) {
	if keyAuth, ok := m.httpTokens.Load(token); ok {
		return keyAuth.(string), true
	}
	return "", false
}

// =============================================================================
// Issuance
// =============================================================================

// Obtain runs a full ACME order for the domain: authorize, answer the
// HTTP-01 challenge, finalize, and store the certificate. Issuance for
// domains outside the policy is refused. Repeated failures back off
// exponentially.
func (m *Manager) Obtain(ctx context.Context, domain string) error {
	if !m.policy.Allows(domain) {
		return NewCertError("Obtain", domain, ErrPolicyDenied)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ds := m.stateFor(domain)
	if ds.state == cert.StateActive {
		return nil
	}

	if wait := cert.Backoff(ds.failures); wait > 0 && time.Since(ds.lastAttempt) < wait {
		return NewCertError("Obtain", domain, ErrBackoffActive)
	}
	ds.lastAttempt = time.Now()

	if err := m.transition(ctx, domain, ds, cert.EventRequest); err != nil {
		return err
	}

	m.logger.Info("starting certificate order", "domain", domain, "attempt", ds.failures+1)

	if err := m.order(ctx, domain, ds); err != nil {
		ds.failures++
		ds.lastError = err.Error()
		if terr := m.transition(ctx, domain, ds, cert.EventChallengeFailed); terr != nil {
			// Failure past the challenge stage, restart from scratch.
			ds.state = cert.StateNone
			m.record(ctx, domain, ds)
		}
		m.logger.Error("certificate order failed",
			"domain", domain,
			"failures", ds.failures,
			"retry_after", cert.Backoff(ds.failures),
			"error", err)
		return err
	}

	ds.failures = 0
	ds.lastError = ""
	m.logger.Info("certificate issued", "domain", domain, "expires", ds.notAfter)
	return nil
}

// order runs the ACME protocol steps for one domain. Called with mu held and
// the domain in pending state.
func (m *Manager) order(ctx context.Context, domain string, ds *domainState) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	order, err := m.client.AuthorizeOrder(ctx, acme.DomainIDs(domain))
	if err != nil {
		return NewCertError("AuthorizeOrder", domain, err)
	}

	for _, authzURL := range order.AuthzURLs {
		authz, err := m.client.GetAuthorization(ctx, authzURL)
		if err != nil {
			return NewCertError("GetAuthorization", domain, err)
		}
		if authz.Status == acme.StatusValid {
			continue
		}

		var challenge *acme.Challenge
		for _, c := range authz.Challenges {
			if c.Type == "http-01" {
				challenge = c
				break
			}
		}
		if challenge == nil {
			return NewCertError("Obtain", domain, fmt.Errorf("no http-01 challenge offered"))
		}

		keyAuth, err := m.client.HTTP01ChallengeResponse(challenge.Token)
		if err != nil {
			return NewCertError("HTTP01ChallengeResponse", domain, err)
		}

		m.httpTokens.Store(challenge.Token, keyAuth)
		defer m.httpTokens.Delete(challenge.Token)

		if _, err := m.client.Accept(ctx, challenge); err != nil {
			return NewCertError("Accept", domain, err)
		}

		if _, err := m.client.WaitAuthorization(ctx, authz.URI); err != nil {
			return NewCertError("WaitAuthorization", domain, ErrChallengeFailed)
		}
	}

	if err := m.transition(ctx, domain, ds, cert.EventChallengePassed); err != nil {
		return err
	}

	if _, err := m.client.WaitOrder(ctx, order.URI); err != nil {
		return NewCertError("WaitOrder", domain, err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return NewCertError("Obtain", domain, err)
	}

	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: domain},
		DNSNames: []string{domain},
	}, key)
	if err != nil {
		return NewCertError("CreateCertificateRequest", domain, err)
	}

	derCerts, _, err := m.client.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return NewCertError("CreateOrderCert", domain, err)
	}

	if err := m.storage.SaveCertificate(domain, derCerts, key); err != nil {
		return err
	}

	leaf, err := x509.ParseCertificate(derCerts[0])
	if err != nil {
		return NewCertError("Obtain", domain, err)
	}

	ds.notAfter = leaf.NotAfter
	m.certCache.Delete(domain)

	return m.transition(ctx, domain, ds, cert.EventStored)
}

// =============================================================================
// Renewal
// =============================================================================

// RenewLoop periodically checks tracked certificates and re-orders those in
// the renewal window. Runs until ctx is cancelled.
func (m *Manager) RenewLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkRenewals(ctx)
		}
	}
}

func (m *Manager) checkRenewals(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var due []string
	for domain, ds := range m.states {
		switch ds.state {
		case cert.StateActive:
			if cert.Expired(ds.notAfter, now) {
				m.transition(ctx, domain, ds, cert.EventExpired)
				m.certCache.Delete(domain)
			} else if cert.RenewalDue(ds.notAfter, now, m.renewalWindow) {
				m.transition(ctx, domain, ds, cert.EventRenewalWindow)
				due = append(due, domain)
			}
		case cert.StateRenewalDue:
			if cert.Expired(ds.notAfter, now) {
				m.transition(ctx, domain, ds, cert.EventExpired)
				m.certCache.Delete(domain)
			} else {
				due = append(due, domain)
			}
		case cert.StateExpired, cert.StateNone:
			due = append(due, domain)
		}
	}
	m.mu.Unlock()

	for _, domain := range due {
		if err := m.Obtain(ctx, domain); err != nil && !errors.Is(err, ErrBackoffActive) {
			m.logger.Warn("renewal attempt failed", "domain", domain, "error", err)
		}
	}
}

// =============================================================================
// State Tracking
// =============================================================================

// Status is a snapshot of one domain's certificate lifecycle for the admin
// API.
type Status struct {
	Domain    string    `json:"domain"`
	State     string    `json:"state"`
	NotAfter  time.Time `json:"not_after,omitzero"`
	Failures  int       `json:"failures,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Statuses returns the lifecycle snapshot of every tracked domain.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.states))
	for domain, ds := range m.states {
		out = append(out, Status{
			Domain:    domain,
			State:     string(ds.state),
			NotAfter:  ds.notAfter,
			Failures:  ds.failures,
			LastError: ds.lastError,
		})
	}
	return out
}

// stateFor returns the tracked state for a domain, creating it at none.
func (m *Manager) stateFor(domain string) *domainState {
	ds, ok := m.states[domain]
	if !ok {
		ds = &domainState{state: cert.StateNone}
		m.states[domain] = ds
	}
	return ds
}

// transition applies a lifecycle event and records the result. Illegal
// transitions leave the state unchanged and are reported.
func (m *Manager) transition(ctx context.Context, domain string, ds *domainState, event cert.Event) error {
	next, err := cert.Next(ds.state, event)
	if err != nil {
		return NewCertError("transition", domain, err)
	}
	ds.state = next
	m.record(ctx, domain, ds)
	return nil
}

// record persists the lifecycle state if a store is configured.
func (m *Manager) record(ctx context.Context, domain string, ds *domainState) {
	if m.store == nil {
		return
	}

	rec := &store.CertificateRecord{
		Domain:    domain,
		State:     string(ds.state),
		Resolver:  "letsencrypt",
		Failures:  ds.failures,
		LastError: ds.lastError,
	}
	if !ds.notAfter.IsZero() {
		notAfter := ds.notAfter
		rec.NotAfter = &notAfter
	}
	if !ds.lastAttempt.IsZero() {
		lastAttempt := ds.lastAttempt
		rec.LastAttempt = &lastAttempt
	}

	if err := m.store.UpsertCertificate(ctx, rec); err != nil {
		m.logger.Warn("failed to persist certificate record", "domain", domain, "error", err)
	}
}
