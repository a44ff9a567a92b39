package deployer

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrStackInvalid = errors.New("stack failed validation")
	ErrGateTimeout  = errors.New("dependency gate not satisfied in time")
	ErrNotDeployed  = errors.New("stack is not deployed")
)

// DeployError wraps errors with deployment context.
type DeployError struct {
	Op      string // Operation that failed
	Stack   string // Stack name
	Service string // Service name if applicable
	Err     error
}

func (e *DeployError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s stack %s service %s: %v", e.Op, e.Stack, e.Service, e.Err)
	}
	return fmt.Sprintf("%s stack %s: %v", e.Op, e.Stack, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// NewDeployError creates a new DeployError.
func NewDeployError(op, stackName, service string, err error) *DeployError {
	return &DeployError{
		Op:      op,
		Stack:   stackName,
		Service: service,
		Err:     err,
	}
}
