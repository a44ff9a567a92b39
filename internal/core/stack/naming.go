package stack

import "fmt"

// =============================================================================
// Resource Naming
// =============================================================================

// ContainerName generates a container name for a service in a stack.
// Pattern: pressedge_{stack}_{service}
func ContainerName(stackName, serviceName string) string {
	return fmt.Sprintf("pressedge_%s_%s", stackName, serviceName)
}

// NetworkName generates a runtime network name for a stack network.
// Pattern: pressedge_{stack}_{network}
func NetworkName(stackName, networkName string) string {
	return fmt.Sprintf("pressedge_%s_%s", stackName, networkName)
}

// VolumeName generates a runtime volume name for a stack volume.
// Pattern: pressedge_{stack}_{volume}
func VolumeName(stackName, volumeName string) string {
	return fmt.Sprintf("pressedge_%s_%s", stackName, volumeName)
}
