package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/engine/catalog/memory"
	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/intent"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/workflow"
)

func sampleNode(familyID, version string, isLatest bool) *nodemeta.Metamodel {
	return &nodemeta.Metamodel{
		FamilyID:      familyID,
		VersionString: version,
		IsLatest:      isLatest,
		Enabled:       true,
		Name:          "gw-" + version,
		Variant:       nodemeta.GatewayVariant{},
	}
}

func Test_Store_Intents(t *testing.T) {
	ctx := context.Background()

	t.Run("Should round-trip a put intent through get and list", func(t *testing.T) {
		s := memory.New()
		m := &intent.Metamodel{Name: "BOOK_FLIGHT", Embedding: []float32{1, 0, 0}}
		require.NoError(t, s.PutIntent(ctx, m))
		require.False(t, m.ID.IsZero())

		got, ok, err := s.GetIntent(ctx, m.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "BOOK_FLIGHT", got.Name)

		all, err := s.ListIntents(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("Should reject a non-UPPER_SNAKE_CASE intent name", func(t *testing.T) {
		s := memory.New()
		err := s.PutIntent(ctx, &intent.Metamodel{Name: "book_flight"})
		require.Error(t, err)
		var coreErr *core.Error
		require.ErrorAs(t, err, &coreErr)
		assert.Equal(t, core.CodeValidation, coreErr.Code)
	})

	t.Run("Should rank SearchIntentsByVector by cosine similarity", func(t *testing.T) {
		s := memory.New()
		require.NoError(t, s.PutIntent(ctx, &intent.Metamodel{Name: "BOOK_FLIGHT", Embedding: []float32{1, 0}}))
		require.NoError(t, s.PutIntent(ctx, &intent.Metamodel{Name: "ORDER_PIZZA", Embedding: []float32{0, 1}}))

		matches, err := s.SearchIntentsByVector(ctx, []float32{0.9, 0.1}, 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)

		top, _, err := s.GetIntent(ctx, core.ID(matches[0].ID))
		require.NoError(t, err)
		assert.Equal(t, "BOOK_FLIGHT", top.Name)
	})
}

func Test_Store_Nodes(t *testing.T) {
	ctx := context.Background()

	t.Run("Should demote the previous latest when a new latest is put", func(t *testing.T) {
		s := memory.New()
		v1 := sampleNode("gateway", "1.0.0", true)
		require.NoError(t, s.PutNode(ctx, v1))
		v2 := sampleNode("gateway", "1.1.0", true)
		require.NoError(t, s.PutNode(ctx, v2))

		latest, ok, err := s.LatestByFamilyID(ctx, "gateway")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "1.1.0", latest.VersionString)

		refetched, _, err := s.GetNode(ctx, v1.ID)
		require.NoError(t, err)
		assert.False(t, refetched.IsLatest)
	})

	t.Run("Should order a family by version descending", func(t *testing.T) {
		s := memory.New()
		require.NoError(t, s.PutNode(ctx, sampleNode("gateway", "1.2.0", false)))
		require.NoError(t, s.PutNode(ctx, sampleNode("gateway", "2.0.0", true)))
		require.NoError(t, s.PutNode(ctx, sampleNode("gateway", "1.10.0", false)))

		all, err := s.AllByFamilyOrderByVersionDesc(ctx, "gateway")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "2.0.0", all[0].VersionString)
		assert.Equal(t, "1.10.0", all[1].VersionString)
		assert.Equal(t, "1.2.0", all[2].VersionString)
	})

	t.Run("Should text-search nodes by name and tags", func(t *testing.T) {
		s := memory.New()
		n := sampleNode("gateway", "1.0.0", true)
		n.Tags = []string{"routing", "passthrough"}
		require.NoError(t, s.PutNode(ctx, n))

		matches, err := s.SearchNodes(ctx, "passthrough", nil, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, n.ID.String(), matches[0].ID)
	})
}

func Test_Store_Workflows(t *testing.T) {
	ctx := context.Background()

	t.Run("Should list workflows for an intent sorted by score descending", func(t *testing.T) {
		s := memory.New()
		low := &workflow.Metamodel{
			Enabled:        true,
			HandledIntents: []workflow.HandledIntent{{IntentID: "intent-1", Score: 0.2}},
		}
		high := &workflow.Metamodel{
			Enabled:        true,
			HandledIntents: []workflow.HandledIntent{{IntentID: "intent-1", Score: 0.9}},
		}
		require.NoError(t, s.PutWorkflow(ctx, low))
		require.NoError(t, s.PutWorkflow(ctx, high))

		out, err := s.WorkflowsForIntent(ctx, core.ID("intent-1"))
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, high.ID, out[0].ID)
	})

	t.Run("Should merge learned bindings into the named edge", func(t *testing.T) {
		s := memory.New()
		wf := &workflow.Metamodel{
			Edges: []workflow.Edge{{ID: "e1", Bindings: map[string]string{"a.x": "b.y"}}},
		}
		require.NoError(t, s.PutWorkflow(ctx, wf))

		require.NoError(t, s.SaveEdgeBindings(ctx, wf.ID, "e1", map[string]string{"a.z": "b.w"}))

		got, _, err := s.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a.x": "b.y", "a.z": "b.w"}, got.Edges[0].Bindings)
	})

	t.Run("Should error saving bindings against an unknown edge", func(t *testing.T) {
		s := memory.New()
		wf := &workflow.Metamodel{Edges: []workflow.Edge{{ID: "e1"}}}
		require.NoError(t, s.PutWorkflow(ctx, wf))

		err := s.SaveEdgeBindings(ctx, wf.ID, "ghost", map[string]string{"a.z": "b.w"})
		require.Error(t, err)
	})
}
