package docker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func skipIfNoDocker(t *testing.T) Client {
	t.Helper()
	cli, err := NewDockerClient("")
	if err != nil {
		t.Skip("Docker not available:", err)
	}
	if err := cli.Ping(); err != nil {
		cli.Close()
		t.Skip("Docker not reachable:", err)
	}
	return cli
}

func cleanupContainer(t *testing.T, cli Client, containerID string) {
	t.Helper()
	timeout := 5 * time.Second
	cli.StopContainer(containerID, &timeout)
	cli.RemoveContainer(containerID, RemoveOptions{Force: true, RemoveVolumes: true})
}

// Test container name prefix to identify test containers
const testPrefix = "pressedge-test-"

// =============================================================================
// Connection Tests
// =============================================================================

func TestNewDockerClient_Success(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	assert.NotNil(t, cli)
}

// =============================================================================
// Container Tests
// =============================================================================

func TestContainerLifecycle(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	name := testPrefix + "lifecycle"
	require.NoError(t, cli.PullImage("alpine:latest", PullOptions{}))

	id, err := cli.CreateContainer(ContainerSpec{
		Name:    name,
		Image:   "alpine:latest",
		Command: []string{"sleep", "30"},
		Labels: map[string]string{
			LabelManaged: "true",
			LabelStack:   "test",
		},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, id)

	require.NoError(t, cli.StartContainer(id))

	info, err := cli.InspectContainer(id)
	require.NoError(t, err)
	assert.Equal(t, name, info.Name)
	assert.Equal(t, ContainerStatusRunning, info.Status)
	assert.Equal(t, "true", info.Labels[LabelManaged])
	assert.NotEmpty(t, info.Networks)
}

func TestInspectContainer_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	_, err := cli.InspectContainer("does-not-exist-xyz")
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestListContainers_LabelFilter(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	containers, err := cli.ListContainers(ListOptions{
		All:     true,
		Filters: map[string]string{"label": LabelStack + "=no-such-stack"},
	})
	require.NoError(t, err)
	assert.Empty(t, containers)
}

// =============================================================================
// Network Tests
// =============================================================================

func TestCreateNetwork_WithSubnet(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	id, err := cli.CreateNetwork(NetworkSpec{
		Name:    testPrefix + "subnet",
		Driver:  "bridge",
		Subnet:  "10.99.0.0/24",
		Gateway: "10.99.0.1",
	})
	require.NoError(t, err)
	defer cli.RemoveNetwork(id)

	// Second creation conflicts.
	_, err = cli.CreateNetwork(NetworkSpec{Name: testPrefix + "subnet"})
	assert.ErrorIs(t, err, ErrNetworkAlreadyExists)
}

func TestStaticAddressAttachment(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	netName := testPrefix + "static"
	netID, err := cli.CreateNetwork(NetworkSpec{
		Name:    netName,
		Subnet:  "10.98.0.0/24",
		Gateway: "10.98.0.1",
	})
	require.NoError(t, err)
	defer cli.RemoveNetwork(netID)

	require.NoError(t, cli.PullImage("alpine:latest", PullOptions{}))
	id, err := cli.CreateContainer(ContainerSpec{
		Name:    testPrefix + "static-addr",
		Image:   "alpine:latest",
		Command: []string{"sleep", "30"},
		Networks: map[string]NetworkAttachment{
			netName: {IPv4Address: "10.98.0.100", Aliases: []string{"web"}},
		},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, id)

	require.NoError(t, cli.StartContainer(id))

	info, err := cli.InspectContainer(id)
	require.NoError(t, err)
	assert.Equal(t, "10.98.0.100", info.Networks[netName])
}

// =============================================================================
// Event Tests
// =============================================================================

func TestEvents_ContainerStart(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events, errs := cli.Events(ctx, map[string]string{"label": LabelStack + "=events-test"})

	require.NoError(t, cli.PullImage("alpine:latest", PullOptions{}))
	id, err := cli.CreateContainer(ContainerSpec{
		Name:    testPrefix + "events",
		Image:   "alpine:latest",
		Command: []string{"sleep", "5"},
		Labels:  map[string]string{LabelStack: "events-test"},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, id)
	require.NoError(t, cli.StartContainer(id))

	select {
	case ev := <-events:
		assert.Equal(t, EventActionStart, ev.Action)
		assert.Equal(t, id, ev.ContainerID)
	case err := <-errs:
		t.Fatalf("event stream error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for start event")
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestDockerError_Format(t *testing.T) {
	err := NewDockerError("StartContainer", "container", "abc123", "container not found", ErrContainerNotFound)
	assert.Equal(t, "StartContainer container abc123: container not found", err.Error())
	assert.ErrorIs(t, err, ErrContainerNotFound)

	err = NewDockerError("Ping", "", "", "connection refused", ErrConnectionFailed)
	assert.Equal(t, "Ping: connection refused", err.Error())
}
