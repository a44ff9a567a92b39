package stack

import (
	"errors"
	"net/netip"
	"strings"

	"github.com/pressedge/pressedge/internal/core/labels"
	"github.com/pressedge/pressedge/internal/core/route"
)

// =============================================================================
// Stack Validation
// =============================================================================

// Validate checks every configuration-level invariant of a stack and returns
// all violations found:
//
//   - depends_on targets exist; service_healthy conditions point at services
//     that actually declare a healthcheck
//   - no circular dependencies
//   - routing host rules match the stack hostname exactly
//   - static addresses lie within their network's declared subnet
//   - every declared volume is referenced by at least one service mount
//   - the certificate storage volume has exactly one writer
//   - every routed service shares a network with the ingress
func Validate(s Stack) []error {
	var errs []error

	errs = append(errs, validateDependencies(s)...)
	if err := detectCycles(s.Services); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, validateHostRules(s)...)
	errs = append(errs, validateStaticAddresses(s)...)
	errs = append(errs, validateVolumeReferences(s)...)
	errs = append(errs, validateCertWriters(s)...)
	errs = append(errs, validateReachability(s)...)

	return errs
}

// validateDependencies checks that depends_on targets exist and that healthy
// gates have a healthcheck to wait on.
func validateDependencies(s Stack) []error {
	var errs []error
	for _, svc := range s.Services {
		for dep, cond := range svc.DependsOn {
			target := s.Service(dep)
			if target == nil {
				errs = append(errs, NewValidationError(
					"services."+svc.Name+".depends_on."+dep,
					"unknown service",
					ErrUnknownDependency,
				))
				continue
			}
			if cond == ConditionHealthy && target.HealthCheck == nil {
				errs = append(errs, NewValidationError(
					"services."+svc.Name+".depends_on."+dep,
					"dependency has no healthcheck to gate on",
					ErrUngatedDependency,
				))
			}
		}
	}
	return errs
}

// detectCycles detects circular dependencies with a DFS over depends_on.
func detectCycles(services []Service) error {
	deps := make(map[string][]string)
	for _, svc := range services {
		for dep := range svc.DependsOn {
			deps[svc.Name] = append(deps[svc.Name], dep)
		}
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(node string) bool
	hasCycle = func(node string) bool {
		visited[node] = true
		recStack[node] = true
		for _, dep := range deps[node] {
			if dep == node {
				return true
			}
			if !visited[dep] {
				if hasCycle(dep) {
					return true
				}
			} else if recStack[dep] {
				return true
			}
		}
		recStack[node] = false
		return false
	}

	for _, svc := range services {
		if !visited[svc.Name] && hasCycle(svc.Name) {
			return ErrCircularDependency
		}
	}
	return nil
}

// validateHostRules checks that every routed host rule names the stack
// hostname exactly, so certificates are only requested for the configured
// domain.
func validateHostRules(s Stack) []error {
	if s.Hostname == "" {
		return nil
	}
	var errs []error
	for _, svc := range s.Services {
		specs, err := labels.ParseLabels(svc.Labels)
		if err != nil {
			if !errors.Is(err, labels.ErrNotEnabled) {
				errs = append(errs, NewValidationError("services."+svc.Name+".labels", err.Error(), err))
			}
			continue
		}
		for _, spec := range specs {
			rule, err := route.ParseRule(spec.Rule)
			if err != nil {
				errs = append(errs, NewValidationError(
					"services."+svc.Name+".labels",
					err.Error(),
					err,
				))
				continue
			}
			if !strings.EqualFold(rule.Host, s.Hostname) {
				errs = append(errs, NewValidationError(
					"services."+svc.Name+".labels",
					"router host "+rule.Host+" does not match stack hostname "+s.Hostname,
					ErrHostnameMismatch,
				))
			}
		}
	}
	return errs
}

// validateStaticAddresses checks that static addresses lie inside the
// declared subnet of their network.
func validateStaticAddresses(s Stack) []error {
	var errs []error
	for _, svc := range s.Services {
		for netName, attach := range svc.Networks {
			if attach.IPv4Address == "" {
				continue
			}
			field := "services." + svc.Name + ".networks." + netName

			net := s.Network(netName)
			if net == nil || net.Subnet == "" {
				errs = append(errs, NewValidationError(field,
					"static address on a network without a declared subnet",
					ErrInvalidSubnet,
				))
				continue
			}

			prefix, err := netip.ParsePrefix(net.Subnet)
			if err != nil {
				errs = append(errs, NewValidationError("networks."+netName+".subnet",
					"invalid subnet "+net.Subnet,
					ErrInvalidSubnet,
				))
				continue
			}
			addr, err := netip.ParseAddr(attach.IPv4Address)
			if err != nil || !prefix.Contains(addr) {
				errs = append(errs, NewValidationError(field,
					"address "+attach.IPv4Address+" is outside subnet "+net.Subnet,
					ErrAddressOutOfSubnet,
				))
			}
		}
	}
	return errs
}

// validateVolumeReferences checks declared volumes against service mounts in
// both directions.
func validateVolumeReferences(s Stack) []error {
	var errs []error

	declared := make(map[string]bool, len(s.Volumes))
	for _, vol := range s.Volumes {
		declared[vol.Name] = false
	}

	for _, svc := range s.Services {
		for _, m := range svc.Volumes {
			if m.IsBind() {
				continue
			}
			if _, ok := declared[m.Source]; !ok {
				errs = append(errs, NewValidationError(
					"services."+svc.Name+".volumes",
					"mount references undeclared volume "+m.Source,
					ErrUnknownVolume,
				))
				continue
			}
			declared[m.Source] = true
		}
	}

	for _, vol := range s.Volumes {
		if !declared[vol.Name] {
			errs = append(errs, NewValidationError(
				"volumes."+vol.Name,
				"volume is not referenced by any service",
				ErrOrphanVolume,
			))
		}
	}
	return errs
}

// validateCertWriters enforces the single-writer invariant on the certificate
// storage volume: renewal state corrupts under concurrent writers.
func validateCertWriters(s Stack) []error {
	if s.Service(s.Ingress) == nil {
		return nil
	}

	var writers []string
	for _, svc := range s.Services {
		for _, m := range svc.Volumes {
			if m.Source == VolumeCerts && !m.ReadOnly {
				writers = append(writers, svc.Name)
			}
		}
	}
	if len(writers) == 0 {
		return nil // stack without TLS storage
	}
	if len(writers) == 1 && writers[0] == s.Ingress {
		return nil
	}
	return []error{NewValidationError(
		"volumes."+VolumeCerts,
		"writable by "+strings.Join(writers, ", ")+"; only the ingress may write certificate state",
		ErrCertStoreWriters,
	)}
}

// validateReachability checks that every routed service shares at least one
// network with the ingress, or traffic can never reach it.
func validateReachability(s Stack) []error {
	ingress := s.Service(s.Ingress)
	if ingress == nil {
		if s.Ingress == "" {
			return nil
		}
		return []error{NewValidationError("ingress", "service "+s.Ingress+" not found", ErrNoIngress)}
	}

	var errs []error
	for _, svc := range s.Services {
		if svc.Name == ingress.Name {
			continue
		}
		if _, err := labels.ParseLabels(svc.Labels); err != nil {
			continue // not routed
		}

		shared := false
		for netName := range svc.Networks {
			if _, ok := ingress.Networks[netName]; ok {
				shared = true
				break
			}
		}
		if !shared {
			errs = append(errs, NewValidationError(
				"services."+svc.Name+".networks",
				"no network shared with ingress "+ingress.Name,
				ErrUnreachableBackend,
			))
		}
	}
	return errs
}
