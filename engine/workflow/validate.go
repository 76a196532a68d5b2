package workflow

import (
	"fmt"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/port"
)

// MetamodelLookup resolves a NodeMetamodelID to its current metamodel.
type MetamodelLookup func(id string) (*nodemeta.Metamodel, bool)

// Validate checks that the edge set induces a DAG, that every
// nodeMetamodelId resolves to an enabled metamodel, that every binding's
// source and target paths exist on their respective port trees, and that
// binding schemas are compatible.
func (m *Metamodel) Validate(lookup MetamodelLookup) error {
	if err := m.validateDanglingEdges(); err != nil {
		return err
	}
	if err := m.validateAcyclic(); err != nil {
		return err
	}
	return m.validateBindings(lookup)
}

func (m *Metamodel) validateDanglingEdges() error {
	ids := make(map[string]struct{}, len(m.Nodes))
	for _, n := range m.Nodes {
		ids[n.ID] = struct{}{}
	}
	for _, e := range m.Edges {
		if _, ok := ids[e.SourceNodeID]; !ok {
			return core.NewError(
				fmt.Errorf("edge %s references unknown source node %q", e.ID, e.SourceNodeID),
				core.CodeDanglingEdge, map[string]any{"edge": e.ID},
			)
		}
		if _, ok := ids[e.TargetNodeID]; !ok {
			return core.NewError(
				fmt.Errorf("edge %s references unknown target node %q", e.ID, e.TargetNodeID),
				core.CodeDanglingEdge, map[string]any{"edge": e.ID},
			)
		}
	}
	return nil
}

// validateAcyclic runs Kahn's algorithm; any node left unvisited once the
// queue drains is part of a cycle.
func (m *Metamodel) validateAcyclic() error {
	indegree := make(map[string]int, len(m.Nodes))
	for _, n := range m.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range m.Edges {
		indegree[e.TargetNodeID]++
	}
	queue := make([]string, 0, len(m.Nodes))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, e := range m.OutgoingEdges(id) {
			indegree[e.TargetNodeID]--
			if indegree[e.TargetNodeID] == 0 {
				queue = append(queue, e.TargetNodeID)
			}
		}
	}
	if visited != len(m.Nodes) {
		return core.NewError(fmt.Errorf("workflow %s contains a cycle", m.ID), core.CodeWorkflowCycle, nil)
	}
	return nil
}

func (m *Metamodel) validateBindings(lookup MetamodelLookup) error {
	metaByNode := make(map[string]*nodemeta.Metamodel, len(m.Nodes))
	for _, n := range m.Nodes {
		meta, ok := lookup(n.NodeMetamodelID)
		if !ok || meta == nil || !meta.Enabled {
			return fmt.Errorf("workflow %s: node %s's metamodel %q does not resolve to an enabled metamodel",
				m.ID, n.ID, n.NodeMetamodelID)
		}
		metaByNode[n.ID] = meta
	}
	for _, e := range m.Edges {
		srcMeta := metaByNode[e.SourceNodeID]
		tgtMeta := metaByNode[e.TargetNodeID]
		for srcPath, tgtPath := range e.Bindings {
			srcSchema, err := pathSchema(srcMeta.OutputPorts, srcPath)
			if err != nil {
				return fmt.Errorf("edge %s: source path %q: %w", e.ID, srcPath, err)
			}
			tgtSchema, err := pathSchema(tgtMeta.InputPorts, tgtPath)
			if err != nil {
				return fmt.Errorf("edge %s: target path %q: %w", e.ID, tgtPath, err)
			}
			if !port.IsCompatible(srcSchema, tgtSchema) {
				return fmt.Errorf("edge %s: %q -> %q is not schema-compatible", e.ID, srcPath, tgtPath)
			}
		}
	}
	return nil
}

// pathSchema resolves a dotted path against a port set: the first segment
// selects the port by key, remaining segments descend its schema.
func pathSchema(ports []*port.Port, path string) (*port.Schema, error) {
	return port.ResolveByPath(ports, path)
}
