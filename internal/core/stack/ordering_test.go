package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(services []Service) []string {
	out := make([]string, len(services))
	for i, svc := range services {
		out[i] = svc.Name
	}
	return out
}

func indexOf(list []string, name string) int {
	for i, n := range list {
		if n == name {
			return i
		}
	}
	return -1
}

func TestStartOrder_DefaultStack(t *testing.T) {
	s := DefaultStack(Params{})
	ordered := names(StartOrder(s.Services))
	require.Len(t, ordered, len(s.Services))

	// Dependencies come before dependents.
	assert.Less(t, indexOf(ordered, ServiceDB), indexOf(ordered, ServiceApp))
	assert.Less(t, indexOf(ordered, ServiceCache), indexOf(ordered, ServiceApp))
	assert.Less(t, indexOf(ordered, ServiceApp), indexOf(ordered, ServiceWeb))
}

func TestStartOrder_Chain(t *testing.T) {
	services := []Service{
		{Name: "web", DependsOn: map[string]Condition{"app": ConditionStarted}},
		{Name: "app", DependsOn: map[string]Condition{"db": ConditionStarted}},
		{Name: "db"},
	}
	assert.Equal(t, []string{"db", "app", "web"}, names(StartOrder(services)))
}

func TestStartOrder_CycleFallback(t *testing.T) {
	services := []Service{
		{Name: "a", DependsOn: map[string]Condition{"b": ConditionStarted}},
		{Name: "b", DependsOn: map[string]Condition{"a": ConditionStarted}},
	}
	// Cyclic services are still all returned.
	assert.Len(t, StartOrder(services), 2)
}

func TestStartOrder_Deterministic(t *testing.T) {
	s := DefaultStack(Params{})
	first := names(StartOrder(s.Services))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, names(StartOrder(s.Services)))
	}
}

func TestStopOrder_ReversesStart(t *testing.T) {
	services := []Service{
		{Name: "web", DependsOn: map[string]Condition{"app": ConditionStarted}},
		{Name: "app", DependsOn: map[string]Condition{"db": ConditionStarted}},
		{Name: "db"},
	}
	assert.Equal(t, []string{"web", "app", "db"}, names(StopOrder(services)))
}

func TestStartOrder_Empty(t *testing.T) {
	assert.Empty(t, StartOrder(nil))
}
