package stack

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/pressedge/pressedge/internal/core/labels"
	"github.com/pressedge/pressedge/internal/core/route"
)

// =============================================================================
// Render - Stack to Compose YAML
// =============================================================================

// Render converts a Stack into Docker Compose YAML. The output round-trips
// through Parse. Pure function - no I/O.
func Render(s Stack) (string, error) {
	project := types.Project{
		Name:     s.Name,
		Services: make(types.Services, len(s.Services)),
		Networks: make(types.Networks, len(s.Networks)),
		Volumes:  make(types.Volumes, len(s.Volumes)),
	}

	for _, svc := range s.Services {
		converted, err := renderService(svc)
		if err != nil {
			return "", err
		}
		project.Services[svc.Name] = converted
	}

	for _, net := range s.Networks {
		nc := types.NetworkConfig{
			Name:     net.Name,
			Driver:   net.Driver,
			Internal: net.Internal,
		}
		if net.Subnet != "" {
			nc.Ipam = types.IPAMConfig{
				Config: []*types.IPAMPool{
					{Subnet: net.Subnet, Gateway: net.Gateway},
				},
			}
		}
		project.Networks[net.Name] = nc
	}

	for _, vol := range s.Volumes {
		project.Volumes[vol.Name] = types.VolumeConfig{
			Name:     vol.Name,
			External: types.External(vol.External),
		}
	}

	out, err := yaml.Marshal(project)
	if err != nil {
		return "", NewParseError("", "failed to marshal compose project", err)
	}
	return string(out), nil
}

func renderService(svc Service) (types.ServiceConfig, error) {
	if svc.Image == "" {
		return types.ServiceConfig{}, NewParseError("services."+svc.Name, "service must have an image", ErrServiceNoImage)
	}

	out := types.ServiceConfig{
		Name:    svc.Name,
		Image:   svc.Image,
		Command: types.ShellCommand(svc.Command),
		Restart: string(svc.Restart),
	}

	if len(svc.Environment) > 0 {
		env := make(types.MappingWithEquals, len(svc.Environment))
		for k, v := range svc.Environment {
			value := v
			env[k] = &value
		}
		out.Environment = env
	}

	if len(svc.Labels) > 0 {
		out.Labels = types.Labels(svc.Labels)
	}

	for _, p := range svc.Ports {
		published := ""
		if p.Published != 0 {
			published = strconv.FormatUint(uint64(p.Published), 10)
		}
		out.Ports = append(out.Ports, types.ServicePortConfig{
			Target:    p.Target,
			Published: published,
			Protocol:  p.Protocol,
		})
	}

	for _, m := range svc.Volumes {
		mountType := types.VolumeTypeVolume
		if m.IsBind() {
			mountType = types.VolumeTypeBind
		}
		out.Volumes = append(out.Volumes, types.ServiceVolumeConfig{
			Type:     mountType,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	if len(svc.Networks) > 0 {
		out.Networks = make(map[string]*types.ServiceNetworkConfig, len(svc.Networks))
		for name, attach := range svc.Networks {
			if attach.IPv4Address != "" {
				out.Networks[name] = &types.ServiceNetworkConfig{Ipv4Address: attach.IPv4Address}
			} else {
				out.Networks[name] = nil
			}
		}
	}

	if len(svc.DependsOn) > 0 {
		out.DependsOn = make(types.DependsOnConfig, len(svc.DependsOn))
		for dep, cond := range svc.DependsOn {
			out.DependsOn[dep] = types.ServiceDependency{
				Condition: string(cond),
				Required:  true,
			}
		}
	}

	if svc.HealthCheck != nil {
		hc := &types.HealthCheckConfig{
			Test: types.HealthCheckTest(svc.HealthCheck.Test),
		}
		if svc.HealthCheck.Retries > 0 {
			retries := uint64(svc.HealthCheck.Retries)
			hc.Retries = &retries
		}
		var err error
		if hc.Interval, err = renderDuration(svc.HealthCheck.Interval); err != nil {
			return out, NewParseError("services."+svc.Name+".healthcheck.interval", err.Error(), err)
		}
		if hc.Timeout, err = renderDuration(svc.HealthCheck.Timeout); err != nil {
			return out, NewParseError("services."+svc.Name+".healthcheck.timeout", err.Error(), err)
		}
		if hc.StartPeriod, err = renderDuration(svc.HealthCheck.StartPeriod); err != nil {
			return out, NewParseError("services."+svc.Name+".healthcheck.start_period", err.Error(), err)
		}
		out.HealthCheck = hc
	}

	return out, nil
}

func renderDuration(s string) (*types.Duration, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, err
	}
	td := types.Duration(d)
	return &td, nil
}

// =============================================================================
// Parse - Compose YAML to Stack
// =============================================================================

// Parse parses Docker Compose YAML into a Stack. Pure function - no I/O.
//
// The stack hostname is recovered from the routing labels and the ingress
// service from the published edge ports (80 and 443).
func Parse(yamlContent string) (*Stack, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadProject(yamlContent)
	if err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	s := &Stack{
		Name:     project.Name,
		Services: make([]Service, 0, len(project.Services)),
		Networks: make([]Network, 0, len(project.Networks)),
		Volumes:  make([]Volume, 0, len(project.Volumes)),
	}

	for name, svc := range project.Services {
		converted, err := parseService(name, svc)
		if err != nil {
			return nil, err
		}
		s.Services = append(s.Services, converted)
	}
	sort.Slice(s.Services, func(i, j int) bool { return s.Services[i].Name < s.Services[j].Name })

	for name, net := range project.Networks {
		parsed := Network{
			Name:     name,
			Driver:   net.Driver,
			Internal: net.Internal,
		}
		for _, pool := range net.Ipam.Config {
			parsed.Subnet = pool.Subnet
			parsed.Gateway = pool.Gateway
			break
		}
		s.Networks = append(s.Networks, parsed)
	}
	sort.Slice(s.Networks, func(i, j int) bool { return s.Networks[i].Name < s.Networks[j].Name })

	for name, vol := range project.Volumes {
		s.Volumes = append(s.Volumes, Volume{Name: name, External: bool(vol.External)})
	}
	sort.Slice(s.Volumes, func(i, j int) bool { return s.Volumes[i].Name < s.Volumes[j].Name })

	s.Ingress = findIngress(s.Services)
	s.Hostname = findHostname(s.Services)

	return s, nil
}

// loadProject loads a compose project using compose-go.
func loadProject(yamlContent string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("pressedge-temp", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "dependency cycle detected") {
			return nil, NewParseError("", "circular dependency detected", ErrCircularDependency)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}

func parseService(name string, svc types.ServiceConfig) (Service, error) {
	out := Service{
		Name:    name,
		Image:   svc.Image,
		Command: []string(svc.Command),
		Restart: RestartPolicy(svc.Restart),
	}

	if out.Image == "" {
		return Service{}, NewParseError("services."+name, "service must have an image", ErrServiceNoImage)
	}

	if len(svc.Environment) > 0 {
		out.Environment = make(map[string]string, len(svc.Environment))
		for k, v := range svc.Environment {
			if v != nil {
				out.Environment[k] = *v
			}
		}
	}

	if len(svc.Labels) > 0 {
		out.Labels = map[string]string(svc.Labels)
	}

	for _, p := range svc.Ports {
		var published uint64
		if p.Published != "" {
			published, _ = strconv.ParseUint(p.Published, 10, 32)
		}
		out.Ports = append(out.Ports, Port{
			Target:    p.Target,
			Published: uint32(published),
			Protocol:  p.Protocol,
		})
	}

	for _, m := range svc.Volumes {
		out.Volumes = append(out.Volumes, VolumeMount{
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	if len(svc.Networks) > 0 {
		out.Networks = make(map[string]ServiceNetwork, len(svc.Networks))
		for netName, attach := range svc.Networks {
			sn := ServiceNetwork{}
			if attach != nil {
				sn.IPv4Address = attach.Ipv4Address
			}
			out.Networks[netName] = sn
		}
	}

	if len(svc.DependsOn) > 0 {
		out.DependsOn = make(map[string]Condition, len(svc.DependsOn))
		for dep, dependency := range svc.DependsOn {
			cond := Condition(dependency.Condition)
			if cond == "" {
				cond = ConditionStarted
			}
			out.DependsOn[dep] = cond
		}
	}

	if svc.HealthCheck != nil && !svc.HealthCheck.Disable {
		hc := &HealthCheck{Test: []string(svc.HealthCheck.Test)}
		if svc.HealthCheck.Retries != nil {
			hc.Retries = int(*svc.HealthCheck.Retries)
		}
		if svc.HealthCheck.Interval != nil {
			hc.Interval = svc.HealthCheck.Interval.String()
		}
		if svc.HealthCheck.Timeout != nil {
			hc.Timeout = svc.HealthCheck.Timeout.String()
		}
		if svc.HealthCheck.StartPeriod != nil {
			hc.StartPeriod = svc.HealthCheck.StartPeriod.String()
		}
		out.HealthCheck = hc
	}

	return out, nil
}

// findIngress picks the service publishing both entrypoint ports.
func findIngress(services []Service) string {
	for _, svc := range services {
		var http, https bool
		for _, p := range svc.Ports {
			switch p.Published {
			case 80:
				http = true
			case 443:
				https = true
			}
		}
		if http && https {
			return svc.Name
		}
	}
	return ""
}

// findHostname recovers the routed hostname from the first routable service.
func findHostname(services []Service) string {
	for _, svc := range services {
		specs, err := labels.ParseLabels(svc.Labels)
		if err != nil {
			continue
		}
		for _, spec := range specs {
			rule, err := route.ParseRule(spec.Rule)
			if err != nil {
				continue
			}
			return rule.Host
		}
	}
	return ""
}
