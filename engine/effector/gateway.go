package effector

import (
	"context"

	"github.com/relayforge/relayforge/engine/exectx"
	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
)

// Gateway dispatches FLOW{GATEWAY} nodes: a pure synchronization/routing
// hub that copies each input to its like-keyed output.
type Gateway struct{}

func (Gateway) Invoke(_ context.Context, ectx *exectx.Context, nodeID string, meta *nodemeta.Metamodel) error {
	for _, p := range meta.InputPorts {
		v := ectx.Get(node.InputPath(nodeID, p.Key))
		if err := ectx.Put(node.OutputPath(nodeID, p.Key), v); err != nil {
			return err
		}
	}
	return nil
}
