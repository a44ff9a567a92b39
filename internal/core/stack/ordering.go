package stack

// =============================================================================
// Service Ordering
// =============================================================================

// StartOrder sorts services by their dependencies using Kahn's algorithm, so
// a dependency always starts before its dependents. Healthcheck gating
// (ConditionHealthy) is enforced at execution time by the deployer; this
// function only fixes the order.
//
// If a cycle exists (which Validate catches), remaining services are appended
// as a fallback.
//
// Example:
//
//	// web → app → db becomes [db, app, web]
func StartOrder(services []Service) []Service {
	if len(services) == 0 {
		return services
	}

	serviceMap := make(map[string]Service)
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)

	for _, svc := range services {
		serviceMap[svc.Name] = svc
		inDegree[svc.Name] = len(svc.DependsOn)
		for dep := range svc.DependsOn {
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	// Seed with services that have no dependencies, in declared order for
	// deterministic output.
	var queue []string
	for _, svc := range services {
		if inDegree[svc.Name] == 0 {
			queue = append(queue, svc.Name)
		}
	}

	var result []Service
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if svc, ok := serviceMap[name]; ok {
			result = append(result, svc)
		}

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(result) < len(services) {
		placed := make(map[string]bool, len(result))
		for _, svc := range result {
			placed[svc.Name] = true
		}
		for _, svc := range services {
			if !placed[svc.Name] {
				result = append(result, svc)
			}
		}
	}

	return result
}

// StopOrder is the reverse of StartOrder: dependents stop before their
// dependencies.
func StopOrder(services []Service) []Service {
	ordered := StartOrder(services)
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	return ordered
}
