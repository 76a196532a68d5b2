package executor

import (
	"sort"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/workflow"
)

// runState tracks one run's mutable scheduling state: every node's
// lifecycle state and every edge's resolved/active flags. All access goes
// through the scheduler's single goroutine between waves, plus the
// completion callbacks collected while a wave's nodes are in flight, so no
// mutex is needed here — runWave serializes writes itself.
type runState struct {
	nodeState  map[string]core.NodeState
	edgeActive map[string]bool
	// edgeResolved is true once the source side of the edge has completed
	// and its condition has been evaluated against the resulting context.
	edgeResolved map[string]bool
	depth        map[string]int
}

func newRunState(meta *workflow.Metamodel) *runState {
	rs := &runState{
		nodeState:    make(map[string]core.NodeState, len(meta.Nodes)),
		edgeActive:   make(map[string]bool, len(meta.Edges)),
		edgeResolved: make(map[string]bool, len(meta.Edges)),
		depth:        computeDepth(meta),
	}
	for _, n := range meta.Nodes {
		rs.nodeState[n.ID] = core.NodeStatePending
	}
	return rs
}

// computeDepth runs a BFS from the entry nodes so stable ordering
// (depth_from_entry ASC, id lexicographic) is available for any READY set.
func computeDepth(meta *workflow.Metamodel) map[string]int {
	depth := make(map[string]int, len(meta.Nodes))
	queue := make([]string, 0, len(meta.Nodes))
	for _, n := range meta.EntryNodes() {
		depth[n.ID] = 0
		queue = append(queue, n.ID)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range meta.OutgoingEdges(id) {
			if _, seen := depth[e.TargetNodeID]; seen {
				continue
			}
			depth[e.TargetNodeID] = depth[id] + 1
			queue = append(queue, e.TargetNodeID)
		}
	}
	return depth
}

// readyNodes returns every PENDING node whose gating predicate currently
// holds, newly transitioning each to READY (or SKIPPED, for a JOIN node
// whose incoming edges all resolved inactive), ready sorted for
// deterministic dispatch.
func (rs *runState) readyNodes(meta *workflow.Metamodel) (ready, skipped []workflow.Node) {
	for _, n := range meta.Nodes {
		if rs.nodeState[n.ID] != core.NodeStatePending {
			continue
		}
		switch rs.gatingOutcome(meta, n) {
		case gatingReady:
			rs.nodeState[n.ID] = core.NodeStateReady
			ready = append(ready, n)
		case gatingSkip:
			rs.nodeState[n.ID] = core.NodeStateSkipped
			skipped = append(skipped, n)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		di, dj := rs.depth[ready[i].ID], rs.depth[ready[j].ID]
		if di != dj {
			return di < dj
		}
		return ready[i].ID < ready[j].ID
	})
	return ready, skipped
}

type gatingOutcome int

const (
	gatingPending gatingOutcome = iota
	gatingReady
	gatingSkip
)

// gatingOutcome applies the JOIN/MERGE predicate from a node's current
// incoming-edge state.
func (rs *runState) gatingOutcome(meta *workflow.Metamodel, n workflow.Node) gatingOutcome {
	incoming := meta.IncomingEdges(n.ID)
	if len(incoming) == 0 {
		return gatingReady
	}
	switch n.Gating() {
	case core.ExecutionMerge:
		for _, e := range incoming {
			if rs.edgeActive[e.ID] {
				return gatingReady
			}
		}
		return gatingPending
	default: // JOIN
		anyActive := false
		for _, e := range incoming {
			if !rs.edgeResolved[e.ID] {
				return gatingPending
			}
			if rs.edgeActive[e.ID] {
				anyActive = true
			}
		}
		if !anyActive {
			return gatingSkip
		}
		return gatingReady
	}
}
