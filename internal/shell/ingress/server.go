// Package ingress implements the edge HTTP servers: the proxy listeners on
// ports 80 and 443 and the admin API on port 8080.
package ingress

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/pressedge/pressedge/internal/core/route"
	"github.com/pressedge/pressedge/internal/shell/acme"
)

const acmeChallengePrefix = "/.well-known/acme-challenge/"

// Config holds edge server configuration.
type Config struct {
	HTTPAddress  string        // plain listener, e.g., "0.0.0.0:80"
	HTTPSAddress string        // TLS listener, e.g., "0.0.0.0:443"
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout
	IdleTimeout  time.Duration // HTTP idle timeout
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		HTTPAddress:  "0.0.0.0:80",
		HTTPSAddress: "0.0.0.0:443",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server terminates edge traffic: it answers ACME challenges, redirects
// plain requests for TLS routes, and proxies everything else to backend
// containers via the route table.
type Server struct {
	table  *route.Table
	certs  *acme.Manager
	logger *slog.Logger
	config Config
}

// NewServer creates an edge server. The certificate manager may be nil when
// TLS is disabled.
func NewServer(cfg Config, table *route.Table, certs *acme.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		table:  table,
		certs:  certs,
		logger: logger.With("component", "ingress"),
		config: cfg,
	}
}

// StartHTTP starts the plain listener (non-blocking).
func (s *Server) StartHTTP() *http.Server {
	srv := &http.Server{
		Addr:         s.config.HTTPAddress,
		Handler:      http.HandlerFunc(s.serveHTTP),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		s.logger.Info("starting http listener", "address", s.config.HTTPAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http listener error", "error", err)
		}
	}()

	return srv
}

// StartHTTPS starts the TLS listener (non-blocking). Certificates come from
// the manager per SNI hostname.
func (s *Server) StartHTTPS() *http.Server {
	srv := &http.Server{
		Addr:         s.config.HTTPSAddress,
		Handler:      http.HandlerFunc(s.serveHTTPS),
		TLSConfig:    s.TLSConfig(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		s.logger.Info("starting https listener", "address", s.config.HTTPSAddress)
		if err := srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("https listener error", "error", err)
		}
	}()

	return srv
}

// TLSConfig builds the listener TLS configuration backed by the certificate
// manager.
func (s *Server) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: s.certs.GetCertificate,
	}
}

// serveHTTP handles requests on the plain listener: ACME challenges first,
// then redirect-or-proxy depending on the matched route's TLS posture.
func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, acmeChallengePrefix) {
		s.serveChallenge(w, r)
		return
	}

	target, err := s.table.Resolve(r.Host, r.URL.Path, false)
	if err != nil {
		s.serveError(w, r, err)
		return
	}

	// A TLS route answered over plain HTTP redirects to HTTPS.
	if target.TLS {
		redirect := "https://" + route.StripPort(r.Host) + r.URL.RequestURI()
		s.logger.Debug("redirecting to https", "host", r.Host, "path", r.URL.Path)
		http.Redirect(w, r, redirect, http.StatusMovedPermanently)
		return
	}

	s.proxyRequest(w, r, target)
}

// serveHTTPS handles requests on the TLS listener.
func (s *Server) serveHTTPS(w http.ResponseWriter, r *http.Request) {
	target, err := s.table.Resolve(r.Host, r.URL.Path, true)
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.proxyRequest(w, r, target)
}

// serveChallenge answers ACME HTTP-01 challenges.
func (s *Server) serveChallenge(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, acmeChallengePrefix)
	if s.certs == nil {
		http.NotFound(w, r)
		return
	}

	keyAuth, ok := s.certs.HTTPChallenge(token)
	if !ok {
		s.logger.Warn("unknown acme challenge token", "token", token)
		http.NotFound(w, r)
		return
	}

	s.logger.Info("serving acme challenge", "host", r.Host)
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(keyAuth))
}

func (s *Server) proxyRequest(w http.ResponseWriter, r *http.Request, target route.Target) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	reverseProxy := httputil.NewSingleHostReverseProxy(target.URL())

	originalDirector := reverseProxy.Director
	reverseProxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = r.Host
		req.Header.Set("X-Forwarded-Host", r.Host)
		req.Header.Set("X-Forwarded-Proto", scheme)
		req.Header.Set("X-Real-IP", getRealIP(r))
	}

	reverseProxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Error("upstream error",
			"host", r.Host,
			"service", target.Service,
			"upstream", target.URL().String(),
			"error", err,
		)
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	}

	start := time.Now()
	reverseProxy.ServeHTTP(w, r)
	s.logger.Debug("proxied request",
		"host", r.Host,
		"path", r.URL.Path,
		"method", r.Method,
		"service", target.Service,
		"duration", time.Since(start),
	)
}

func (s *Server) serveError(w http.ResponseWriter, r *http.Request, err error) {
	var resolveErr route.ResolveError
	if errors.As(err, &resolveErr) {
		s.logger.Warn("unroutable request",
			"host", resolveErr.Host,
			"path", r.URL.Path,
			"status", resolveErr.StatusCode,
		)
		http.Error(w, resolveErr.Message, resolveErr.StatusCode)
		return
	}

	s.logger.Error("resolution failed", "host", r.Host, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// getRealIP extracts the real client IP from the request.
func getRealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	return r.RemoteAddr
}
