package node

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/relayforge/relayforge/engine/exectx"
	"github.com/relayforge/relayforge/engine/nodemeta"
)

// Effector dispatches a node's effect given its current metamodel: it
// reads the node's declared input ports from ectx (namespaced under
// InputPath(nodeID, ...)) and writes outputs under OutputPath(nodeID, ...).
// Implementations hold no per-invocation state of their own.
type Effector interface {
	Invoke(ctx context.Context, ectx *exectx.Context, nodeID string, meta *nodemeta.Metamodel) error
}

// Instance is the runtime wrapper around one NodeMetamodel. It holds an
// atomically-swappable reference to its current metamodel so that
// hot-update events never race with an in-flight Invoke, and carries no
// other per-run state — all transient data lives in the ExecutionContext.
type Instance struct {
	meta     atomic.Pointer[nodemeta.Metamodel]
	effector Effector
}

// NewInstance builds an Instance bound to meta and dispatching through eff.
func NewInstance(meta *nodemeta.Metamodel, eff Effector) *Instance {
	inst := &Instance{effector: eff}
	inst.meta.Store(meta)
	return inst
}

// Metamodel returns the instance's current metamodel reference.
func (n *Instance) Metamodel() *nodemeta.Metamodel {
	return n.meta.Load()
}

// UpdateMetamodel atomically replaces the instance's metamodel reference.
// Already-running Invoke calls finish under whatever metamodel they read at
// their own call time; they are not canceled or retried.
func (n *Instance) UpdateMetamodel(meta *nodemeta.Metamodel) {
	n.meta.Store(meta)
}

// Invoke dispatches to the instance's effector using its current
// metamodel, addressing ectx under the given nodeID (the WorkflowNode's
// local DAG id, not the metamodel id — the same metamodel may back node
// instances reused across more than one WorkflowNode).
func (n *Instance) Invoke(ctx context.Context, ectx *exectx.Context, nodeID string) error {
	meta := n.Metamodel()
	if meta == nil {
		return fmt.Errorf("node: instance for %q has no metamodel bound", nodeID)
	}
	return n.effector.Invoke(ctx, ectx, nodeID, meta)
}
