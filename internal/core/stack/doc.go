// Package stack defines the typed topology of the edge stack: the reverse
// proxy, web server, application runtime, database, cache and auto-update
// agent, plus the networks and volumes wiring them together.
//
// This package is part of the functional core: all functions are pure, with
// no I/O. The imperative shell (internal/shell/deployer) executes a Stack
// against a container runtime; Render and Parse convert between the typed
// form and Docker Compose YAML.
//
// # Usage
//
//	s := stack.DefaultStack(stack.Params{Hostname: "wordpress.local"})
//	if errs := stack.Validate(s); len(errs) > 0 {
//	    // reject
//	}
//	yaml, err := stack.Render(s)
package stack
