// Package discovery keeps the route table synchronized with the container
// runtime.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pressedge/pressedge/internal/core/labels"
	"github.com/pressedge/pressedge/internal/core/route"
	"github.com/pressedge/pressedge/internal/shell/docker"
	"github.com/pressedge/pressedge/internal/shell/store"
)

// =============================================================================
// Discovery Watcher
// =============================================================================

// ContainerSource is the slice of the container runtime the watcher needs.
type ContainerSource interface {
	ListContainers(opts docker.ListOptions) ([]docker.ContainerInfo, error)
	InspectContainer(containerID string) (*docker.ContainerInfo, error)
	Events(ctx context.Context, filters map[string]string) (<-chan docker.Event, <-chan error)
}

// Config configures the watcher.
type Config struct {
	Source ContainerSource
	Table  *route.Table

	// Networks the ingress itself is attached to. A backend address is only
	// usable if the container shares one of these networks.
	IngressNetworks []string

	// Store receives route change audit events, may be nil.
	Store store.Store

	Logger *slog.Logger

	// ReconnectBackoff is the wait before resubscribing after the event
	// stream drops. Defaults to 5 seconds.
	ReconnectBackoff time.Duration
}

// Watcher populates the route table from container labels: an initial sweep
// of running containers, then lifecycle events. Containers that stop or die
// have their routes withdrawn.
type Watcher struct {
	source    ContainerSource
	table     *route.Table
	networks  []string
	store     store.Store
	logger    *slog.Logger
	reconnect time.Duration
}

// NewWatcher creates a watcher.
func NewWatcher(cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reconnect := cfg.ReconnectBackoff
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	return &Watcher{
		source:    cfg.Source,
		table:     cfg.Table,
		networks:  cfg.IngressNetworks,
		store:     cfg.Store,
		logger:    logger.With("component", "discovery"),
		reconnect: reconnect,
	}
}

// Run syncs existing containers and then follows the event stream until ctx
// is cancelled. A dropped stream is resynced and resubscribed after a
// backoff, so routes never go stale silently.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		if err := w.Sync(); err != nil {
			w.logger.Error("container sync failed", "error", err)
		}

		err := w.follow(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			w.logger.Warn("event stream dropped, reconnecting",
				"backoff", w.reconnect, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.reconnect):
		}
	}
}

// Sync replaces table state with the routes of all currently running
// containers.
func (w *Watcher) Sync() error {
	containers, err := w.source.ListContainers(docker.ListOptions{})
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(containers))
	for _, c := range containers {
		seen[c.ID] = true
		w.register(&c)
	}

	// Withdraw routes of owners that disappeared between runs.
	for _, r := range w.table.Snapshot() {
		if !seen[r.Owner] {
			w.withdraw(r.Owner, "")
		}
	}

	w.logger.Info("container sync complete", "routes", w.table.Len())
	return nil
}

func (w *Watcher) follow(ctx context.Context) error {
	events, errs := w.source.Events(ctx, nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			return err
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.handle(&ev)
		}
	}
}

func (w *Watcher) handle(ev *docker.Event) {
	switch ev.Action {
	case docker.EventActionStart:
		info, err := w.source.InspectContainer(ev.ContainerID)
		if err != nil {
			w.logger.Warn("failed to inspect started container",
				"container", ev.ContainerID, "error", err)
			return
		}
		w.register(info)
	case docker.EventActionDie, docker.EventActionStop, docker.EventActionKill:
		w.withdraw(ev.ContainerID, ev.Name)
	}
}

// register derives routes from a container's labels and publishes them.
// Containers without routing labels are ignored.
func (w *Watcher) register(info *docker.ContainerInfo) {
	specs, err := labels.ParseLabels(info.Labels)
	if err != nil {
		if !errors.Is(err, labels.ErrNotEnabled) {
			w.logger.Warn("ignoring container with malformed routing labels",
				"container", info.Name, "error", err)
		}
		return
	}

	address := w.backendAddress(info)
	if address == "" {
		w.logger.Warn("routed container shares no network with the ingress",
			"container", info.Name)
		return
	}

	service := info.Labels[docker.LabelService]
	if service == "" {
		service = info.Name
	}

	routes := make([]route.Route, 0, len(specs))
	for _, spec := range specs {
		rule, err := route.ParseRule(spec.Rule)
		if err != nil {
			w.logger.Warn("ignoring router with invalid rule",
				"container", info.Name, "router", spec.Name, "error", err)
			continue
		}
		routes = append(routes, route.Route{
			Name: spec.Name,
			Rule: rule,
			Target: route.Target{
				Service:     service,
				ContainerID: info.ID,
				Address:     address,
				Port:        spec.Port,
				TLS:         spec.TLS,
				Resolver:    spec.Resolver,
			},
		})
	}
	if len(routes) == 0 {
		return
	}

	w.table.Upsert(info.ID, routes)
	for _, r := range routes {
		w.logger.Info("route added",
			"rule", r.Rule.String(),
			"service", r.Target.Service,
			"address", r.Target.Address,
			"port", r.Target.Port,
			"tls", r.Target.TLS)
		w.audit(store.RouteEventAdd, &r)
	}
}

// withdraw removes all routes owned by a container.
func (w *Watcher) withdraw(containerID, name string) {
	var removed []route.Route
	for _, r := range w.table.Snapshot() {
		if r.Owner == containerID {
			removed = append(removed, r)
		}
	}
	if len(removed) == 0 {
		return
	}

	w.table.Remove(containerID)
	for _, r := range removed {
		w.logger.Info("route removed",
			"rule", r.Rule.String(),
			"service", r.Target.Service,
			"container", name)
		w.audit(store.RouteEventRemove, &r)
	}
}

// backendAddress picks the container's address on the first network shared
// with the ingress.
func (w *Watcher) backendAddress(info *docker.ContainerInfo) string {
	for _, network := range w.networks {
		if addr, ok := info.Networks[network]; ok && addr != "" {
			return addr
		}
	}
	// Without configured ingress networks any address will do.
	if len(w.networks) == 0 {
		for _, addr := range info.Networks {
			if addr != "" {
				return addr
			}
		}
	}
	return ""
}

func (w *Watcher) audit(action string, r *route.Route) {
	if w.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev := &store.RouteEvent{
		Action:      action,
		Rule:        r.Rule.String(),
		Service:     r.Target.Service,
		ContainerID: r.Owner,
		Address:     r.Target.URL().Host,
	}
	if err := w.store.AppendRouteEvent(ctx, ev); err != nil {
		w.logger.Warn("failed to record route event", "error", err)
	}
}
