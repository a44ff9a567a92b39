package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/pressedge/pressedge/internal/core/route"
	"github.com/pressedge/pressedge/internal/shell/acme"
	"github.com/pressedge/pressedge/internal/shell/discovery"
	"github.com/pressedge/pressedge/internal/shell/docker"
	"github.com/pressedge/pressedge/internal/shell/ingress"
	"github.com/pressedge/pressedge/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess       = 0
	ExitConfigError   = 1
	ExitDatabaseError = 2
	ExitDockerError   = 3
	ExitCertError     = 4
	ExitServerError   = 5
)

// =============================================================================
// Server
// =============================================================================

// Server is the pressedge daemon: route table, container discovery,
// certificate management and the edge listeners.
type Server struct {
	config *Config
	logger *slog.Logger

	store   store.Store
	docker  docker.Client
	table   *route.Table
	certs   *acme.Manager
	watcher *discovery.Watcher
	edge    *ingress.Server
	admin   *ingress.Admin

	httpServer  *http.Server
	httpsServer *http.Server
	adminServer *http.Server

	synced atomic.Bool
}

// NewServer wires the daemon from configuration.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Connect to database
	st, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	// Connect to Docker
	d, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		st.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDockerError}
	}
	if err := d.Ping(); err != nil {
		st.Close()
		d.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDockerError}
	}

	// Certificate manager, only when domains are configured
	var certs *acme.Manager
	if cfg.ACME.Enabled() {
		storage, err := acme.NewStorage(cfg.ACME.StorageDir)
		if err != nil {
			st.Close()
			d.Close()
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitCertError}
		}
		certs, err = acme.NewManager(acme.Config{
			DirectoryURL:  cfg.ACME.DirectoryURL,
			Email:         cfg.ACME.Email,
			Domains:       cfg.ACME.Domains,
			RenewalWindow: cfg.ACME.RenewalWindow,
			Storage:       storage,
			Store:         st,
			Logger:        logger,
		})
		if err != nil {
			st.Close()
			d.Close()
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitCertError}
		}
		logger.Info("certificate management enabled", "domains", cfg.ACME.Domains)
	} else {
		logger.Info("certificate management disabled, no domains configured")
	}

	table := route.NewTable()

	watcher := discovery.NewWatcher(discovery.Config{
		Source:           d,
		Table:            table,
		IngressNetworks:  cfg.Discovery.Networks,
		Store:            st,
		Logger:           logger,
		ReconnectBackoff: cfg.Discovery.ReconnectBackoff,
	})

	edge := ingress.NewServer(ingress.Config{
		HTTPAddress:  cfg.Server.HTTPAddress,
		HTTPSAddress: cfg.Server.HTTPSAddress,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, table, certs, logger)

	srv := &Server{
		config:  cfg,
		logger:  logger,
		store:   st,
		docker:  d,
		table:   table,
		certs:   certs,
		watcher: watcher,
		edge:    edge,
	}

	srv.admin = ingress.NewAdmin(ingress.AdminConfig{
		Address:      cfg.Server.AdminAddress,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, table, certs, st, srv.synced.Load, logger)

	return srv, nil
}

// Start runs the daemon and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Populate the route table before accepting traffic.
	if err := s.watcher.Sync(); err != nil {
		s.logger.Error("initial container sync failed", "error", err)
	} else {
		s.synced.Store(true)
	}
	go func() {
		s.watcher.Run(ctx)
	}()

	// Request any missing certificates and keep them renewed.
	if s.certs != nil {
		go s.obtainInitialCertificates(ctx)
		go s.certs.RenewLoop(ctx, s.config.ACME.RenewInterval)
	}

	s.httpServer = s.edge.StartHTTP()
	if s.certs != nil {
		s.httpsServer = s.edge.StartHTTPS()
	}
	s.adminServer = s.admin.Start()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	cancel()
	return s.Shutdown(context.Background())
}

// obtainInitialCertificates requests certificates for every configured
// domain that lacks one. Failures are retried by the renewal loop.
func (s *Server) obtainInitialCertificates(ctx context.Context) {
	for _, domain := range s.config.ACME.Domains {
		if err := s.certs.Obtain(ctx, domain); err != nil {
			s.logger.Warn("initial certificate request failed", "domain", domain, "error", err)
		}
	}
}

// Shutdown gracefully shuts down the daemon.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	for _, srv := range []*http.Server{s.httpServer, s.httpsServer, s.adminServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("listener shutdown error", "address", srv.Addr, "error", err)
		}
	}

	if s.certs != nil {
		if err := s.certs.Close(); err != nil {
			s.logger.Error("certificate manager close error", "error", err)
		}
	}

	if err := s.docker.Close(); err != nil {
		s.logger.Error("docker client close error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
