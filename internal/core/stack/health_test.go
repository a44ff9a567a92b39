package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerHealth(t *testing.T) {
	tests := []struct {
		name  string
		state ContainerState
		want  HealthStatus
	}{
		{"running healthy", ContainerState{Status: "running", Health: "healthy"}, HealthStatusHealthy},
		{"running no healthcheck", ContainerState{Status: "running"}, HealthStatusHealthy},
		{"exited", ContainerState{Status: "exited"}, HealthStatusUnhealthy},
		{"failing healthcheck", ContainerState{Status: "running", Health: "unhealthy"}, HealthStatusUnhealthy},
		{"starting", ContainerState{Status: "running", Health: "starting"}, HealthStatusDegraded},
		{"restart loop", ContainerState{Status: "running", Restarts: 7}, HealthStatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainerHealth(tt.state))
		})
	}
}

func TestAggregateHealth(t *testing.T) {
	running := ContainerState{Status: "running", Health: "healthy"}
	down := ContainerState{Status: "exited"}

	assert.Equal(t, HealthStatusUnknown, AggregateHealth(nil))
	assert.Equal(t, HealthStatusHealthy, AggregateHealth([]ContainerState{running, running}))
	assert.Equal(t, HealthStatusDegraded, AggregateHealth([]ContainerState{running, down}))
	assert.Equal(t, HealthStatusUnhealthy, AggregateHealth([]ContainerState{down, down}))
}

func TestGateSatisfied(t *testing.T) {
	runningHealthy := ContainerState{Status: "running", Health: "healthy"}
	runningStarting := ContainerState{Status: "running", Health: "starting"}
	exited := ContainerState{Status: "exited"}

	assert.True(t, GateSatisfied(ConditionStarted, runningStarting))
	assert.False(t, GateSatisfied(ConditionStarted, exited))
	assert.True(t, GateSatisfied(ConditionHealthy, runningHealthy))
	assert.False(t, GateSatisfied(ConditionHealthy, runningStarting))
}

func TestReadyToStart(t *testing.T) {
	app := Service{
		Name: "app",
		DependsOn: map[string]Condition{
			"db":    ConditionHealthy,
			"cache": ConditionStarted,
		},
	}

	states := map[string]ContainerState{
		"db":    {Status: "running", Health: "healthy"},
		"cache": {Status: "running"},
	}
	assert.True(t, ReadyToStart(app, states))

	states["db"] = ContainerState{Status: "running", Health: "starting"}
	assert.False(t, ReadyToStart(app, states))

	delete(states, "cache")
	assert.False(t, ReadyToStart(app, states))

	assert.True(t, ReadyToStart(Service{Name: "db"}, nil))
}
