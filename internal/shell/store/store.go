// Package store provides persistence for certificate and deployment records.
package store

import (
	"context"
	"time"
)

// =============================================================================
// Record Types
// =============================================================================

// CertificateRecord tracks the lifecycle of one domain's certificate. The
// certificate material itself lives on disk; this row carries metadata and
// the current lifecycle state for the admin API and renewal scheduling.
type CertificateRecord struct {
	Domain      string     `db:"domain" json:"domain"`
	State       string     `db:"state" json:"state"`
	Resolver    string     `db:"resolver" json:"resolver"`
	SerialHex   string     `db:"serial_hex" json:"serial_hex,omitempty"`
	NotBefore   *time.Time `db:"not_before" json:"not_before,omitempty"`
	NotAfter    *time.Time `db:"not_after" json:"not_after,omitempty"`
	Failures    int        `db:"failures" json:"failures"`
	LastError   string     `db:"last_error" json:"last_error,omitempty"`
	LastAttempt *time.Time `db:"last_attempt" json:"last_attempt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// DeploymentRecord tracks one stack deployment.
type DeploymentRecord struct {
	ID        string     `db:"id" json:"id"`
	StackName string     `db:"stack_name" json:"stack_name"`
	Hostname  string     `db:"hostname" json:"hostname"`
	Status    string     `db:"status" json:"status"`
	Spec      string     `db:"spec" json:"spec,omitempty"` // rendered YAML at deploy time
	Error     string     `db:"error_message" json:"error,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt *time.Time `db:"started_at" json:"started_at,omitempty"`
	StoppedAt *time.Time `db:"stopped_at" json:"stopped_at,omitempty"`
}

// Deployment status values.
const (
	DeploymentStatusPending  = "pending"
	DeploymentStatusRunning  = "running"
	DeploymentStatusFailed   = "failed"
	DeploymentStatusStopped  = "stopped"
	DeploymentStatusRemoving = "removing"
)

// RouteEvent is an audit entry for a route table change.
type RouteEvent struct {
	ID          int64     `db:"id" json:"id"`
	Action      string    `db:"action" json:"action"` // "add" or "remove"
	Rule        string    `db:"rule" json:"rule"`
	Service     string    `db:"service" json:"service"`
	ContainerID string    `db:"container_id" json:"container_id"`
	Address     string    `db:"address" json:"address"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Route event actions.
const (
	RouteEventAdd    = "add"
	RouteEventRemove = "remove"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface.
type Store interface {
	// Certificate records, keyed by domain
	UpsertCertificate(ctx context.Context, rec *CertificateRecord) error
	GetCertificate(ctx context.Context, domain string) (*CertificateRecord, error)
	ListCertificates(ctx context.Context, opts ListOptions) ([]CertificateRecord, error)
	DeleteCertificate(ctx context.Context, domain string) error

	// Deployment records
	CreateDeployment(ctx context.Context, rec *DeploymentRecord) error
	GetDeployment(ctx context.Context, id string) (*DeploymentRecord, error)
	UpdateDeployment(ctx context.Context, rec *DeploymentRecord) error
	DeleteDeployment(ctx context.Context, id string) error
	ListDeployments(ctx context.Context, opts ListOptions) ([]DeploymentRecord, error)

	// Route audit trail
	AppendRouteEvent(ctx context.Context, ev *RouteEvent) error
	ListRouteEvents(ctx context.Context, opts ListOptions) ([]RouteEvent, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
