// Package main provides the pressedge-stack binary, the operator CLI for
// managing edge stacks.
//
// Usage:
//
//	pressedge-stack <command> [flags]
//
// Commands:
//
//	version    - Show version
//	render     - Render a stack descriptor to compose YAML
//	validate   - Validate a compose descriptor file
//	deploy     - Deploy a stack to the Docker daemon
//	teardown   - Stop and remove a deployed stack
//	status     - Show health of a deployed stack
//	logs       - Stream a service's container logs
package main

import (
	"fmt"
	"os"
	"runtime"
)

// Version information (set by build flags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: pressedge-stack <command> [flags]")
		fmt.Fprintln(os.Stderr, "commands: version, render, validate, deploy, teardown, status, logs")
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	os.Exit(dispatch(cmd, args))
}

// dispatch routes the command to the appropriate handler.
func dispatch(cmd string, args []string) int {
	switch cmd {
	case "version":
		fmt.Printf("pressedge-stack %s (built %s, %s)\n", Version, BuildTime, runtime.Version())
		return 0
	case "render":
		return renderCmd(args)
	case "validate":
		return validateCmd(args)
	case "deploy":
		return deployCmd(args)
	case "teardown":
		return teardownCmd(args)
	case "status":
		return statusCmd(args)
	case "logs":
		return logsCmd(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		return 2
	}
}

// fail prints the error and returns the failure exit code.
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
