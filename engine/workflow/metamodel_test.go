package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relayforge/relayforge/engine/workflow"
)

func linearMeta() *workflow.Metamodel {
	return &workflow.Metamodel{
		ID: "wf1",
		Nodes: []workflow.Node{
			{ID: "a", NodeMetamodelID: "m1"},
			{ID: "b", NodeMetamodelID: "m2"},
			{ID: "c", NodeMetamodelID: "m3"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", SourceNodeID: "a", TargetNodeID: "b"},
			{ID: "e2", SourceNodeID: "b", TargetNodeID: "c"},
		},
	}
}

func Test_Metamodel_EntryExitNodes(t *testing.T) {
	t.Run("Should find the single entry and exit node of a linear chain", func(t *testing.T) {
		m := linearMeta()
		entries := m.EntryNodes()
		exits := m.ExitNodes()
		assert.Len(t, entries, 1)
		assert.Equal(t, "a", entries[0].ID)
		assert.Len(t, exits, 1)
		assert.Equal(t, "c", exits[0].ID)
	})
}

func Test_Node_Gating(t *testing.T) {
	t.Run("Should default to JOIN", func(t *testing.T) {
		n := workflow.Node{ID: "a"}
		assert.Equal(t, "JOIN", n.Gating().String())
	})
}

func Test_Metamodel_IncomingOutgoingEdges(t *testing.T) {
	t.Run("Should find edges by endpoint", func(t *testing.T) {
		m := linearMeta()
		assert.Len(t, m.IncomingEdges("b"), 1)
		assert.Len(t, m.OutgoingEdges("b"), 1)
		assert.Empty(t, m.IncomingEdges("a"))
		assert.Empty(t, m.OutgoingEdges("c"))
	})
}
