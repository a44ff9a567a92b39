package stack

// =============================================================================
// Health Aggregation (Pure Functions)
// =============================================================================

// HealthStatus represents the health of a container or a whole stack.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// ContainerState is the observed runtime state of one service's container.
type ContainerState struct {
	Service  string
	Status   string // "running", "exited", "created", ...
	Health   string // "healthy", "unhealthy", "starting", ""
	Restarts int
}

// ContainerHealth maps a container's state to a health status.
func ContainerHealth(state ContainerState) HealthStatus {
	if state.Status != "running" {
		return HealthStatusUnhealthy
	}
	if state.Health == "unhealthy" {
		return HealthStatusUnhealthy
	}
	if state.Restarts > 3 {
		return HealthStatusDegraded
	}
	if state.Health == "starting" {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

// AggregateHealth determines overall stack health from container states.
func AggregateHealth(states []ContainerState) HealthStatus {
	if len(states) == 0 {
		return HealthStatusUnknown
	}

	unhealthy := 0
	degraded := 0
	for _, state := range states {
		switch ContainerHealth(state) {
		case HealthStatusUnhealthy:
			unhealthy++
		case HealthStatusDegraded, HealthStatusUnknown:
			degraded++
		}
	}

	if unhealthy == len(states) {
		return HealthStatusUnhealthy
	}
	if unhealthy > 0 || degraded > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

// GateSatisfied reports whether a dependency gate holds for the observed
// state of the dependency's container: a started gate needs a running
// container, a healthy gate needs a passing healthcheck.
func GateSatisfied(cond Condition, state ContainerState) bool {
	switch cond {
	case ConditionHealthy:
		return state.Status == "running" && state.Health == "healthy"
	default:
		return state.Status == "running"
	}
}

// ReadyToStart reports whether all of a service's dependency gates are
// satisfied by the observed container states, keyed by service name.
func ReadyToStart(svc Service, states map[string]ContainerState) bool {
	for dep, cond := range svc.DependsOn {
		state, ok := states[dep]
		if !ok || !GateSatisfied(cond, state) {
			return false
		}
	}
	return true
}
