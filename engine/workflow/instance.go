package workflow

import (
	"fmt"
	"sync"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/node"
)

// Instance is a pre-resolved DAG: for each Node it caches the
// corresponding node.Instance, and for each edge the *effective*
// bindings currently in force — the edge's explicit bindings, overlaid
// with whatever the Port Adapter has since learned.
type Instance struct {
	Metamodel *Metamodel

	mu            sync.RWMutex
	nodeInstances map[string]*node.Instance
	edgeBindings  map[string]map[string]string
}

// NewInstance builds an Instance over meta, with nodeInstances keyed by
// WorkflowNode local id (not metamodel id — one metamodel may back more
// than one WorkflowNode).
func NewInstance(meta *Metamodel, nodeInstances map[string]*node.Instance) *Instance {
	edgeBindings := make(map[string]map[string]string, len(meta.Edges))
	for _, e := range meta.Edges {
		edgeBindings[e.ID] = cloneBindings(e.Bindings)
	}
	return &Instance{
		Metamodel:     meta,
		nodeInstances: nodeInstances,
		edgeBindings:  edgeBindings,
	}
}

func cloneBindings(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// NodeInstance returns the resolved node.Instance for a WorkflowNode's
// local id.
func (i *Instance) NodeInstance(nodeID string) (*node.Instance, bool) {
	inst, ok := i.nodeInstances[nodeID]
	return inst, ok
}

// EffectiveBindings returns a snapshot of the currently effective
// (srcPath -> tgtPath) bindings for an edge.
func (i *Instance) EffectiveBindings(edgeID string) map[string]string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return cloneBindings(i.edgeBindings[edgeID])
}

// LearnBindings merges adapter-proposed bindings onto an edge's effective
// set for the remainder of this instance's lifetime, coalescing: the same
// (src, tgt) pair overwrites any prior entry.
func (i *Instance) LearnBindings(edgeID string, learned map[string]string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	existing, ok := i.edgeBindings[edgeID]
	if !ok {
		return fmt.Errorf("workflow: unknown edge %q", edgeID)
	}
	merged, err := core.OverlayBindings(existing, learned)
	if err != nil {
		return fmt.Errorf("workflow: edge %q: %w", edgeID, err)
	}
	i.edgeBindings[edgeID] = merged
	return nil
}

// EntryNodes returns the nodes with zero incoming edges.
func (i *Instance) EntryNodes() []Node { return i.Metamodel.EntryNodes() }

// ExitNodes returns the nodes with zero outgoing edges.
func (i *Instance) ExitNodes() []Node { return i.Metamodel.ExitNodes() }
