package stack

// =============================================================================
// Stack - Main Type
// =============================================================================

// Stack represents the full topology of an edge stack.
// This is the pressedge-specific representation, decoupled from compose-go types.
type Stack struct {
	Name     string    `json:"name"`
	Hostname string    `json:"hostname"`
	Ingress  string    `json:"ingress"` // name of the ingress service
	Services []Service `json:"services"`
	Networks []Network `json:"networks,omitempty"`
	Volumes  []Volume  `json:"volumes,omitempty"`
}

// Service returns the service with the given name, or nil.
func (s *Stack) Service(name string) *Service {
	for i := range s.Services {
		if s.Services[i].Name == name {
			return &s.Services[i]
		}
	}
	return nil
}

// Network returns the network with the given name, or nil.
func (s *Stack) Network(name string) *Network {
	for i := range s.Networks {
		if s.Networks[i].Name == name {
			return &s.Networks[i]
		}
	}
	return nil
}

// =============================================================================
// Service Types
// =============================================================================

// Service represents a single service definition.
type Service struct {
	Name        string                    `json:"name"`
	Image       string                    `json:"image"`
	Command     []string                  `json:"command,omitempty"`
	Environment map[string]string         `json:"environment,omitempty"`
	Labels      map[string]string         `json:"labels,omitempty"`
	Ports       []Port                    `json:"ports,omitempty"`
	Volumes     []VolumeMount             `json:"volumes,omitempty"`
	Networks    map[string]ServiceNetwork `json:"networks,omitempty"`
	DependsOn   map[string]Condition      `json:"depends_on,omitempty"`
	Restart     RestartPolicy             `json:"restart,omitempty"`
	HealthCheck *HealthCheck              `json:"healthcheck,omitempty"`
}

// ServiceNetwork represents a service's attachment to a network.
type ServiceNetwork struct {
	// IPv4Address is a static address on the network, or "" for dynamic.
	IPv4Address string `json:"ipv4_address,omitempty"`
}

// Condition gates a dependent service's startup on the state of a dependency.
type Condition string

const (
	// ConditionStarted waits for the dependency's container to be running.
	ConditionStarted Condition = "service_started"
	// ConditionHealthy waits for the dependency's healthcheck to pass.
	ConditionHealthy Condition = "service_healthy"
)

// Port represents a port mapping.
type Port struct {
	Target    uint32 `json:"target"`              // Container port
	Published uint32 `json:"published,omitempty"` // Host port (0 = dynamic)
	Protocol  string `json:"protocol,omitempty"`  // tcp, udp
}

// VolumeMount represents a volume mount in a service.
type VolumeMount struct {
	Source   string `json:"source"` // Volume name or host path
	Target   string `json:"target"` // Container path
	ReadOnly bool   `json:"readonly"`
}

// IsBind reports whether the mount is a host path bind rather than a named volume.
func (m VolumeMount) IsBind() bool {
	return len(m.Source) > 0 && (m.Source[0] == '/' || m.Source[0] == '.' || m.Source[0] == '~')
}

// RestartPolicy represents the restart policy.
type RestartPolicy string

const (
	RestartNo            RestartPolicy = "no"
	RestartAlways        RestartPolicy = "always"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
)

// HealthCheck represents a container liveness probe: a command, an interval
// and a retry count. Dependents gated with ConditionHealthy start only after
// the probe reports healthy.
type HealthCheck struct {
	Test        []string `json:"test"`
	Interval    string   `json:"interval,omitempty"`
	Timeout     string   `json:"timeout,omitempty"`
	Retries     int      `json:"retries,omitempty"`
	StartPeriod string   `json:"start_period,omitempty"`
}

// =============================================================================
// Network Types
// =============================================================================

// Network represents an isolated bridge segment. Services join zero or more
// networks; a service's reachability is the union of shared membership.
type Network struct {
	Name     string `json:"name"`
	Driver   string `json:"driver,omitempty"`
	Internal bool   `json:"internal"`
	Subnet   string `json:"subnet,omitempty"`
	Gateway  string `json:"gateway,omitempty"`
}

// =============================================================================
// Volume Types
// =============================================================================

// Volume represents a named persistent storage region. It outlives container
// restarts and is destroyed only by explicit operator action.
type Volume struct {
	Name     string `json:"name"`
	External bool   `json:"external"`
}
