package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressedge/pressedge/internal/core/labels"
	"github.com/pressedge/pressedge/internal/core/route"
	"github.com/pressedge/pressedge/internal/shell/docker"
)

// =============================================================================
// Fake Container Source
// =============================================================================

type fakeSource struct {
	containers map[string]*docker.ContainerInfo
	events     chan docker.Event
	errs       chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		containers: make(map[string]*docker.ContainerInfo),
		events:     make(chan docker.Event, 16),
		errs:       make(chan error, 1),
	}
}

func (f *fakeSource) ListContainers(opts docker.ListOptions) ([]docker.ContainerInfo, error) {
	var out []docker.ContainerInfo
	for _, c := range f.containers {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeSource) InspectContainer(id string) (*docker.ContainerInfo, error) {
	c, ok := f.containers[id]
	if !ok {
		return nil, docker.ErrContainerNotFound
	}
	return c, nil
}

func (f *fakeSource) Events(ctx context.Context, filters map[string]string) (<-chan docker.Event, <-chan error) {
	return f.events, f.errs
}

func webContainer(id string) *docker.ContainerInfo {
	webLabels := labels.GenerateLabels(labels.LabelParams{
		Router:    "web",
		Hostname:  "wordpress.local",
		Port:      80,
		EnableTLS: true,
	})
	webLabels[docker.LabelService] = "web"
	return &docker.ContainerInfo{
		ID:       id,
		Name:     "pressedge_wordpress_web",
		State:    "running",
		Labels:   webLabels,
		Networks: map[string]string{"pressedge_wordpress_frontend": "10.5.0.100"},
	}
}

func newTestWatcher(src *fakeSource) (*Watcher, *route.Table) {
	table := route.NewTable()
	w := NewWatcher(Config{
		Source:          src,
		Table:           table,
		IngressNetworks: []string{"pressedge_wordpress_frontend"},
	})
	return w, table
}

// =============================================================================
// Sync Tests
// =============================================================================

func TestSync_RegistersLabeledContainers(t *testing.T) {
	src := newFakeSource()
	src.containers["c1"] = webContainer("c1")
	src.containers["c2"] = &docker.ContainerInfo{
		ID: "c2", Name: "pressedge_wordpress_db", State: "running",
		Networks: map[string]string{"pressedge_wordpress_backend": "172.20.0.2"},
	}

	w, table := newTestWatcher(src)
	require.NoError(t, w.Sync())

	// Plain and secure routers for web, nothing for the unlabeled db.
	assert.Equal(t, 2, table.Len())

	target, err := table.Resolve("wordpress.local", "/", true)
	require.NoError(t, err)
	assert.Equal(t, "10.5.0.100", target.Address)
	assert.Equal(t, 80, target.Port)
	assert.Equal(t, "web", target.Service)
}

func TestSync_SkipsContainerOffIngressNetworks(t *testing.T) {
	src := newFakeSource()
	isolated := webContainer("c1")
	isolated.Networks = map[string]string{"some_other_net": "172.99.0.5"}
	src.containers["c1"] = isolated

	w, table := newTestWatcher(src)
	require.NoError(t, w.Sync())

	assert.Zero(t, table.Len())
}

func TestSync_WithdrawsVanishedContainers(t *testing.T) {
	src := newFakeSource()
	src.containers["c1"] = webContainer("c1")

	w, table := newTestWatcher(src)
	require.NoError(t, w.Sync())
	require.Equal(t, 2, table.Len())

	delete(src.containers, "c1")
	require.NoError(t, w.Sync())
	assert.Zero(t, table.Len())
}

// =============================================================================
// Event Tests
// =============================================================================

func TestRun_EventDrivenLifecycle(t *testing.T) {
	src := newFakeSource()
	w, table := newTestWatcher(src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// Container starts after the initial sync.
	src.containers["c1"] = webContainer("c1")
	src.events <- docker.Event{Action: docker.EventActionStart, ContainerID: "c1"}

	require.Eventually(t, func() bool { return table.Len() == 2 },
		2*time.Second, 10*time.Millisecond)

	// Container dies, routes are withdrawn.
	src.events <- docker.Event{Action: docker.EventActionDie, ContainerID: "c1", Name: "web"}

	require.Eventually(t, func() bool { return table.Len() == 0 },
		2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestHandle_MalformedLabelsIgnored(t *testing.T) {
	src := newFakeSource()
	broken := webContainer("c1")
	broken.Labels = map[string]string{
		labels.EnableKey:                "true",
		"traefik.http.routers.web.rule": "Host(`wordpress.local`)",
		// no port label
	}
	src.containers["c1"] = broken

	w, table := newTestWatcher(src)
	require.NoError(t, w.Sync())
	assert.Zero(t, table.Len())
}
