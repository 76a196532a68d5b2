// Package node implements the runtime wrapper around a NodeMetamodel: the
// NodeInstance that dispatches to a type-specific effector, plus the
// ExecutionContext namespacing convention nodes and the workflow executor
// share.
package node

import "fmt"

// InputPath returns the dotted ExecutionContext path a WorkflowNode's
// (nodeID's) input port value lives at.
func InputPath(nodeID, portKey string) string {
	return fmt.Sprintf("%s.in.%s", nodeID, portKey)
}

// OutputPath returns the dotted ExecutionContext path a WorkflowNode's
// (nodeID's) output port value is written to.
func OutputPath(nodeID, portKey string) string {
	return fmt.Sprintf("%s.out.%s", nodeID, portKey)
}
