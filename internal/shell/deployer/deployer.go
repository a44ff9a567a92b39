// Package deployer brings edge stacks up and down against a Docker daemon:
// networks and volumes first, then containers in dependency order with
// healthcheck gates, teardown in reverse with named volumes preserved.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pressedge/pressedge/internal/core/stack"
	"github.com/pressedge/pressedge/internal/shell/docker"
	"github.com/pressedge/pressedge/internal/shell/store"
)

// =============================================================================
// Deployer
// =============================================================================

// Config holds deployer configuration.
type Config struct {
	Client docker.Client
	Store  store.Store // nil disables deployment records
	Logger *slog.Logger

	// PollInterval is how often dependency gates are re-checked.
	PollInterval time.Duration
	// GateTimeout bounds the wait for any single service's gates.
	GateTimeout time.Duration
}

// Deployer executes stack topologies against the Docker daemon.
type Deployer struct {
	client       docker.Client
	store        store.Store
	logger       *slog.Logger
	pollInterval time.Duration
	gateTimeout  time.Duration
}

// NewDeployer creates a deployer.
func NewDeployer(cfg Config) *Deployer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.GateTimeout <= 0 {
		cfg.GateTimeout = 2 * time.Minute
	}
	return &Deployer{
		client:       cfg.Client,
		store:        cfg.Store,
		logger:       logger.With("component", "deployer"),
		pollInterval: cfg.PollInterval,
		gateTimeout:  cfg.GateTimeout,
	}
}

// =============================================================================
// Deploy
// =============================================================================

// Deploy validates the stack and brings it up: images, networks, volumes,
// then containers in dependency order. Each service waits for its dependency
// gates before starting. Returns the deployment record.
func (d *Deployer) Deploy(ctx context.Context, s stack.Stack) (*store.DeploymentRecord, error) {
	if errs := stack.Validate(s); len(errs) > 0 {
		return nil, NewDeployError("Deploy", s.Name, "", fmt.Errorf("%w: %v", ErrStackInvalid, errors.Join(errs...)))
	}

	rendered, err := stack.Render(s)
	if err != nil {
		return nil, NewDeployError("Deploy", s.Name, "", err)
	}

	rec := &store.DeploymentRecord{
		ID:        uuid.New().String(),
		StackName: s.Name,
		Hostname:  s.Hostname,
		Status:    store.DeploymentStatusPending,
		Spec:      rendered,
	}
	d.recordCreate(ctx, rec)

	d.logger.Info("deploying stack",
		"stack", s.Name,
		"hostname", s.Hostname,
		"services", len(s.Services),
		"deployment_id", rec.ID,
	)

	if err := d.bringUp(ctx, s); err != nil {
		rec.Status = store.DeploymentStatusFailed
		rec.Error = err.Error()
		d.recordUpdate(ctx, rec)
		return rec, err
	}

	now := time.Now()
	rec.Status = store.DeploymentStatusRunning
	rec.StartedAt = &now
	d.recordUpdate(ctx, rec)

	d.logger.Info("stack deployed", "stack", s.Name, "deployment_id", rec.ID)
	return rec, nil
}

func (d *Deployer) bringUp(ctx context.Context, s stack.Stack) error {
	if err := d.pullImages(ctx, s); err != nil {
		return err
	}
	if err := d.createNetworks(s); err != nil {
		return err
	}
	if err := d.createVolumes(s); err != nil {
		return err
	}

	for _, svc := range stack.StartOrder(s.Services) {
		if err := d.startService(ctx, s, svc); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployer) pullImages(ctx context.Context, s stack.Stack) error {
	for _, svc := range s.Services {
		exists, err := d.client.ImageExists(svc.Image)
		if err != nil {
			return NewDeployError("PullImages", s.Name, svc.Name, err)
		}
		if exists {
			continue
		}
		d.logger.Info("pulling image", "stack", s.Name, "service", svc.Name, "image", svc.Image)
		if err := d.client.PullImage(svc.Image, docker.PullOptions{}); err != nil {
			return NewDeployError("PullImages", s.Name, svc.Name, err)
		}
	}
	return nil
}

func (d *Deployer) createNetworks(s stack.Stack) error {
	for _, net := range s.Networks {
		spec := docker.NetworkSpec{
			Name:     stack.NetworkName(s.Name, net.Name),
			Driver:   net.Driver,
			Internal: net.Internal,
			Subnet:   net.Subnet,
			Gateway:  net.Gateway,
			Labels:   d.stackLabels(s.Name, ""),
		}
		if _, err := d.client.CreateNetwork(spec); err != nil {
			// Redeploy over a live stack reuses its networks.
			if errors.Is(err, docker.ErrNetworkAlreadyExists) {
				continue
			}
			return NewDeployError("CreateNetworks", s.Name, "", err)
		}
		d.logger.Debug("created network", "stack", s.Name, "network", spec.Name)
	}
	return nil
}

func (d *Deployer) createVolumes(s stack.Stack) error {
	for _, vol := range s.Volumes {
		if vol.External {
			continue
		}
		name := stack.VolumeName(s.Name, vol.Name)
		// CreateVolume is idempotent on the daemon side; existing volumes
		// and their data survive redeploys.
		if _, err := d.client.CreateVolume(docker.VolumeSpec{
			Name:   name,
			Labels: d.stackLabels(s.Name, ""),
		}); err != nil {
			return NewDeployError("CreateVolumes", s.Name, "", err)
		}
		d.logger.Debug("ensured volume", "stack", s.Name, "volume", name)
	}
	return nil
}

func (d *Deployer) startService(ctx context.Context, s stack.Stack, svc stack.Service) error {
	if err := d.waitForGates(ctx, s, svc); err != nil {
		return NewDeployError("StartService", s.Name, svc.Name, err)
	}

	spec, err := d.containerSpec(s, svc)
	if err != nil {
		return NewDeployError("StartService", s.Name, svc.Name, err)
	}

	// Replace any leftover container from a previous deployment.
	if old, err := d.client.InspectContainer(spec.Name); err == nil {
		d.logger.Info("replacing existing container", "stack", s.Name, "service", svc.Name)
		timeout := 10 * time.Second
		if old.State == "running" {
			if err := d.client.StopContainer(old.ID, &timeout); err != nil {
				return NewDeployError("StartService", s.Name, svc.Name, err)
			}
		}
		if err := d.client.RemoveContainer(old.ID, docker.RemoveOptions{Force: true}); err != nil {
			return NewDeployError("StartService", s.Name, svc.Name, err)
		}
	}

	id, err := d.client.CreateContainer(spec)
	if err != nil {
		return NewDeployError("StartService", s.Name, svc.Name, err)
	}
	if err := d.client.StartContainer(id); err != nil {
		return NewDeployError("StartService", s.Name, svc.Name, err)
	}

	d.logger.Info("started service", "stack", s.Name, "service", svc.Name, "container", id[:min(12, len(id))])
	return nil
}

// waitForGates polls the dependency containers until every gate of the
// service holds, the timeout elapses, or the context is cancelled.
func (d *Deployer) waitForGates(ctx context.Context, s stack.Stack, svc stack.Service) error {
	if len(svc.DependsOn) == 0 {
		return nil
	}

	deadline := time.Now().Add(d.gateTimeout)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		states, err := d.containerStates(s)
		if err != nil {
			return err
		}
		if stack.ReadyToStart(svc, states) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: waited %s for %v", ErrGateTimeout, d.gateTimeout, dependencyNames(svc))
		}

		d.logger.Debug("waiting for dependency gates", "stack", s.Name, "service", svc.Name)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Deployer) containerSpec(s stack.Stack, svc stack.Service) (docker.ContainerSpec, error) {
	healthCheck, err := convertHealthCheck(svc.HealthCheck)
	if err != nil {
		return docker.ContainerSpec{}, err
	}

	spec := docker.ContainerSpec{
		Name:          stack.ContainerName(s.Name, svc.Name),
		Image:         svc.Image,
		Command:       svc.Command,
		Env:           svc.Environment,
		Labels:        d.stackLabels(s.Name, svc.Name),
		RestartPolicy: docker.RestartPolicy{Name: string(svc.Restart)},
		HealthCheck:   healthCheck,
		Networks:      make(map[string]docker.NetworkAttachment, len(svc.Networks)),
	}

	for key, value := range svc.Labels {
		spec.Labels[key] = value
	}

	for _, p := range svc.Ports {
		spec.Ports = append(spec.Ports, docker.PortBinding{
			ContainerPort: int(p.Target),
			HostPort:      int(p.Published),
			Protocol:      p.Protocol,
		})
	}

	for _, m := range svc.Volumes {
		source := m.Source
		if !m.IsBind() {
			source = stack.VolumeName(s.Name, m.Source)
		}
		spec.Volumes = append(spec.Volumes, docker.VolumeMount{
			Source:   source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	for netName, attachment := range svc.Networks {
		spec.Networks[stack.NetworkName(s.Name, netName)] = docker.NetworkAttachment{
			IPv4Address: attachment.IPv4Address,
			Aliases:     []string{svc.Name},
		}
	}

	return spec, nil
}

// =============================================================================
// Teardown
// =============================================================================

// TeardownOptions controls stack removal.
type TeardownOptions struct {
	// RemoveVolumes also deletes named volumes and their data.
	RemoveVolumes bool
}

// Teardown stops and removes the stack's containers in reverse dependency
// order, then its networks. Named volumes are preserved unless RemoveVolumes
// is set.
func (d *Deployer) Teardown(ctx context.Context, s stack.Stack, opts TeardownOptions) error {
	d.logger.Info("tearing down stack", "stack", s.Name, "remove_volumes", opts.RemoveVolumes)

	timeout := 10 * time.Second
	for _, svc := range stack.StopOrder(s.Services) {
		name := stack.ContainerName(s.Name, svc.Name)
		info, err := d.client.InspectContainer(name)
		if errors.Is(err, docker.ErrContainerNotFound) {
			continue
		}
		if err != nil {
			return NewDeployError("Teardown", s.Name, svc.Name, err)
		}

		if info.State == "running" {
			if err := d.client.StopContainer(info.ID, &timeout); err != nil {
				return NewDeployError("Teardown", s.Name, svc.Name, err)
			}
		}
		if err := d.client.RemoveContainer(info.ID, docker.RemoveOptions{Force: true}); err != nil {
			return NewDeployError("Teardown", s.Name, svc.Name, err)
		}
		d.logger.Debug("removed container", "stack", s.Name, "service", svc.Name)
	}

	for _, net := range s.Networks {
		name := stack.NetworkName(s.Name, net.Name)
		if err := d.client.RemoveNetwork(name); err != nil && !errors.Is(err, docker.ErrNetworkNotFound) {
			return NewDeployError("Teardown", s.Name, "", err)
		}
	}

	if opts.RemoveVolumes {
		for _, vol := range s.Volumes {
			if vol.External {
				continue
			}
			name := stack.VolumeName(s.Name, vol.Name)
			if err := d.client.RemoveVolume(name, true); err != nil && !errors.Is(err, docker.ErrVolumeNotFound) {
				return NewDeployError("Teardown", s.Name, "", err)
			}
		}
	}

	d.markStopped(ctx, s.Name)
	d.logger.Info("stack removed", "stack", s.Name)
	return nil
}

// =============================================================================
// Status
// =============================================================================

// StackStatus is the observed state of a deployed stack.
type StackStatus struct {
	Stack      string                 `json:"stack"`
	Health     stack.HealthStatus     `json:"health"`
	Containers []stack.ContainerState `json:"containers"`
}

// Status inspects the stack's containers and aggregates their health.
// A stack with no containers reports ErrNotDeployed.
func (d *Deployer) Status(ctx context.Context, stackName string) (*StackStatus, error) {
	containers, err := d.client.ListContainers(docker.ListOptions{
		All:     true,
		Filters: map[string]string{"label": docker.LabelStack + "=" + stackName},
	})
	if err != nil {
		return nil, NewDeployError("Status", stackName, "", err)
	}
	if len(containers) == 0 {
		return nil, NewDeployError("Status", stackName, "", ErrNotDeployed)
	}

	states := make([]stack.ContainerState, 0, len(containers))
	for _, c := range containers {
		states = append(states, containerState(c))
	}

	return &StackStatus{
		Stack:      stackName,
		Health:     stack.AggregateHealth(states),
		Containers: states,
	}, nil
}

// Logs streams a service's container logs.
func (d *Deployer) Logs(stackName, serviceName string, opts docker.LogOptions) (io.ReadCloser, error) {
	name := stack.ContainerName(stackName, serviceName)
	rc, err := d.client.ContainerLogs(name, opts)
	if err != nil {
		return nil, NewDeployError("Logs", stackName, serviceName, err)
	}
	return rc, nil
}

// =============================================================================
// Helpers
// =============================================================================

// containerStates maps the stack's current containers to per-service states,
// keyed by service name.
func (d *Deployer) containerStates(s stack.Stack) (map[string]stack.ContainerState, error) {
	containers, err := d.client.ListContainers(docker.ListOptions{
		All:     true,
		Filters: map[string]string{"label": docker.LabelStack + "=" + s.Name},
	})
	if err != nil {
		return nil, err
	}

	states := make(map[string]stack.ContainerState, len(containers))
	for _, c := range containers {
		state := containerState(c)
		if state.Service == "" {
			continue
		}
		states[state.Service] = state
	}
	return states, nil
}

func containerState(c docker.ContainerInfo) stack.ContainerState {
	return stack.ContainerState{
		Service:  c.Labels[docker.LabelService],
		Status:   c.State,
		Health:   c.Health,
		Restarts: c.Restarts,
	}
}

func (d *Deployer) stackLabels(stackName, serviceName string) map[string]string {
	l := map[string]string{
		docker.LabelManaged: "true",
		docker.LabelStack:   stackName,
	}
	if serviceName != "" {
		l[docker.LabelService] = serviceName
	}
	return l
}

func convertHealthCheck(hc *stack.HealthCheck) (*docker.HealthCheck, error) {
	if hc == nil {
		return nil, nil
	}
	out := &docker.HealthCheck{
		Test:    hc.Test,
		Retries: hc.Retries,
	}

	for _, field := range []struct {
		value string
		dst   *time.Duration
	}{
		{hc.Interval, &out.Interval},
		{hc.Timeout, &out.Timeout},
		{hc.StartPeriod, &out.StartPeriod},
	} {
		if field.value == "" {
			continue
		}
		dur, err := time.ParseDuration(field.value)
		if err != nil {
			return nil, fmt.Errorf("invalid healthcheck duration %q: %w", field.value, err)
		}
		*field.dst = dur
	}
	return out, nil
}

func dependencyNames(svc stack.Service) []string {
	names := make([]string, 0, len(svc.DependsOn))
	for dep := range svc.DependsOn {
		names = append(names, dep)
	}
	return names
}

func (d *Deployer) recordCreate(ctx context.Context, rec *store.DeploymentRecord) {
	if d.store == nil {
		return
	}
	if err := d.store.CreateDeployment(ctx, rec); err != nil {
		d.logger.Warn("failed to record deployment", "deployment_id", rec.ID, "error", err)
	}
}

func (d *Deployer) recordUpdate(ctx context.Context, rec *store.DeploymentRecord) {
	if d.store == nil {
		return
	}
	if err := d.store.UpdateDeployment(ctx, rec); err != nil {
		d.logger.Warn("failed to update deployment record", "deployment_id", rec.ID, "error", err)
	}
}

// markStopped closes out any running deployment records for the stack.
func (d *Deployer) markStopped(ctx context.Context, stackName string) {
	if d.store == nil {
		return
	}
	records, err := d.store.ListDeployments(ctx, store.DefaultListOptions())
	if err != nil {
		d.logger.Warn("failed to list deployment records", "stack", stackName, "error", err)
		return
	}
	now := time.Now()
	for i := range records {
		rec := &records[i]
		if rec.StackName != stackName || rec.Status != store.DeploymentStatusRunning {
			continue
		}
		rec.Status = store.DeploymentStatusStopped
		rec.StoppedAt = &now
		if err := d.store.UpdateDeployment(ctx, rec); err != nil {
			d.logger.Warn("failed to update deployment record", "deployment_id", rec.ID, "error", err)
		}
	}
}
