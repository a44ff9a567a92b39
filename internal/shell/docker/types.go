// Package docker provides a Docker client for container lifecycle management.
package docker

import (
	"context"
	"io"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name          string
	Image         string
	Command       []string
	Entrypoint    []string
	Env           map[string]string
	Labels        map[string]string
	Ports         []PortBinding
	Volumes       []VolumeMount
	Networks      map[string]NetworkAttachment // network name → attachment
	WorkingDir    string
	User          string
	RestartPolicy RestartPolicy
	HealthCheck   *HealthCheck
}

// NetworkAttachment configures how a container joins a network.
type NetworkAttachment struct {
	IPv4Address string   // static address, empty for DHCP-style assignment
	Aliases     []string // DNS aliases on the network (service name)
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// VolumeMount defines a volume mount.
type VolumeMount struct {
	Source   string // Volume name or host path
	Target   string // Container path
	ReadOnly bool
}

// RestartPolicy defines the container restart policy.
type RestartPolicy struct {
	Name              string // "no", "always", "on-failure", "unless-stopped"
	MaximumRetryCount int
}

// HealthCheck defines container health check configuration.
type HealthCheck struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// =============================================================================
// Container Info
// =============================================================================

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID         string
	Name       string
	Image      string
	Status     ContainerStatus
	State      string // "running", "exited", "created", etc.
	Health     string // "healthy", "unhealthy", "starting", ""
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Ports      []PortBinding
	Networks   map[string]string // network name → IPv4 address
	Labels     map[string]string
	Restarts   int
	ExitCode   int
}

// =============================================================================
// Network Types
// =============================================================================

// NetworkSpec defines the specification for creating a network.
type NetworkSpec struct {
	Name     string
	Driver   string // "bridge", "overlay", etc.
	Internal bool   // no external connectivity
	Subnet   string // IPAM subnet in CIDR, e.g. "10.5.0.0/24"
	Gateway  string // IPAM gateway address
	Labels   map[string]string
}

// =============================================================================
// Volume Types
// =============================================================================

// VolumeSpec defines the specification for creating a volume.
type VolumeSpec struct {
	Name   string
	Driver string
	Labels map[string]string
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool              // Include stopped containers
	Filters map[string]string // e.g., {"label": "com.pressedge.stack=wordpress"}
}

// LogOptions defines options for container logs.
type LogOptions struct {
	Follow     bool
	Tail       string // "all" or number
	Since      time.Time
	Until      time.Time
	Timestamps bool
}

// PullOptions defines options for pulling images.
type PullOptions struct {
	Platform string // e.g., "linux/amd64"
}

// =============================================================================
// Events
// =============================================================================

// EventAction is a container lifecycle action reported by the daemon.
type EventAction string

const (
	EventActionStart EventAction = "start"
	EventActionDie   EventAction = "die"
	EventActionStop  EventAction = "stop"
	EventActionKill  EventAction = "kill"
)

// Event is a container lifecycle event.
type Event struct {
	Action      EventAction
	ContainerID string
	Name        string
	Labels      map[string]string
	Time        time.Time
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the Docker client interface.
type Client interface {
	// Container operations
	CreateContainer(spec ContainerSpec) (containerID string, err error)
	StartContainer(containerID string) error
	StopContainer(containerID string, timeout *time.Duration) error
	RemoveContainer(containerID string, opts RemoveOptions) error
	InspectContainer(containerID string) (*ContainerInfo, error)
	ListContainers(opts ListOptions) ([]ContainerInfo, error)
	ContainerLogs(containerID string, opts LogOptions) (io.ReadCloser, error)

	// Event stream
	Events(ctx context.Context, filters map[string]string) (<-chan Event, <-chan error)

	// Network operations
	CreateNetwork(spec NetworkSpec) (networkID string, err error)
	RemoveNetwork(networkID string) error
	ConnectNetwork(networkID, containerID string) error
	DisconnectNetwork(networkID, containerID string, force bool) error

	// Volume operations
	CreateVolume(spec VolumeSpec) (volumeName string, err error)
	RemoveVolume(volumeName string, force bool) error

	// Image operations
	PullImage(image string, opts PullOptions) error
	ImageExists(image string) (bool, error)

	// Health operations
	Ping() error
	Close() error
}

// =============================================================================
// Label Constants
// =============================================================================

const (
	LabelManaged = "com.pressedge.managed"
	LabelStack   = "com.pressedge.stack"
	LabelService = "com.pressedge.service"
)
