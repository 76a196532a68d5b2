// Package workflow implements the WorkflowMetamodel (the design-time DAG
// specification) and the WorkflowInstance (its pre-resolved runtime form).
package workflow

import (
	"time"

	"github.com/relayforge/relayforge/engine/core"
)

// Node binds a local DAG id to a NodeMetamodel and the gating rule its
// incoming edges must satisfy before it fires.
type Node struct {
	ID              string             `json:"id"              yaml:"id"              validate:"required"`
	NodeMetamodelID string             `json:"nodeMetamodelId" yaml:"nodeMetamodelId" validate:"required"`
	ExecutionType   core.ExecutionType `json:"executionType"   yaml:"executionType"`
}

// Gating returns the node's execution type, defaulting to JOIN.
func (n Node) Gating() core.ExecutionType {
	if n.ExecutionType == "" {
		return core.ExecutionJoin
	}
	return n.ExecutionType
}

// Edge connects two Nodes, carrying the dotted-path bindings applied when
// the source completes and an optional gating condition.
type Edge struct {
	ID           string            `json:"id"           yaml:"id"           validate:"required"`
	SourceNodeID string            `json:"sourceNodeId"  yaml:"sourceNodeId"  validate:"required"`
	TargetNodeID string            `json:"targetNodeId"  yaml:"targetNodeId"  validate:"required"`
	Bindings     map[string]string `json:"bindings"      yaml:"bindings"`
	Condition    *Condition        `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// HandledIntent records one intent this workflow is a candidate for,
// along with the router's score and the last time it was actually chosen.
type HandledIntent struct {
	IntentID     string     `json:"intentId"     yaml:"intentId"`
	Score        float64    `json:"score"        yaml:"score"`
	LastExecuted *time.Time `json:"lastExecuted,omitempty" yaml:"lastExecuted,omitempty"`
}

// Metamodel is the design-time DAG specification: the ordered node and
// edge sets, which intents this workflow answers, and free-form metadata.
type Metamodel struct {
	ID             core.ID         `json:"id"      yaml:"id"`
	Version        string          `json:"version" yaml:"version"`
	Enabled        bool            `json:"enabled" yaml:"enabled"`
	Nodes          []Node          `json:"nodes"   yaml:"nodes"`
	Edges          []Edge          `json:"edges"   yaml:"edges"`
	HandledIntents []HandledIntent `json:"handledIntents,omitempty" yaml:"handledIntents,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"        yaml:"metadata,omitempty"`
}

// NodeByID returns the Node with the given local id, or false.
func (m *Metamodel) NodeByID(id string) (Node, bool) {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// IncomingEdges returns every edge whose TargetNodeID is nodeID.
func (m *Metamodel) IncomingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range m.Edges {
		if e.TargetNodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// OutgoingEdges returns every edge whose SourceNodeID is nodeID.
func (m *Metamodel) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range m.Edges {
		if e.SourceNodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EntryNodes returns the nodes with zero incoming edges.
func (m *Metamodel) EntryNodes() []Node {
	incoming := make(map[string]bool, len(m.Nodes))
	for _, e := range m.Edges {
		incoming[e.TargetNodeID] = true
	}
	var out []Node
	for _, n := range m.Nodes {
		if !incoming[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

// ExitNodes returns the nodes with zero outgoing edges.
func (m *Metamodel) ExitNodes() []Node {
	outgoing := make(map[string]bool, len(m.Nodes))
	for _, e := range m.Edges {
		outgoing[e.SourceNodeID] = true
	}
	var out []Node
	for _, n := range m.Nodes {
		if !outgoing[n.ID] {
			out = append(out, n)
		}
	}
	return out
}
