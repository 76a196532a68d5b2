// Package catalog defines the persistence abstraction over intents, node
// metamodels, and workflow metamodels: CRUD, family/version queries, and
// hybrid search. catalog/memory and catalog/postgres satisfy the same
// interface so the rest of the engine is storage-agnostic.
package catalog

import (
	"context"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/intent"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/retrieval"
	"github.com/relayforge/relayforge/engine/workflow"
)

// Catalog is the storage contract backing the intent detector, router,
// port adapter persistence, and catalog-facing tooling.
type Catalog interface {
	GetIntent(ctx context.Context, id core.ID) (*intent.Metamodel, bool, error)
	ListIntents(ctx context.Context) ([]*intent.Metamodel, error)
	PutIntent(ctx context.Context, m *intent.Metamodel) error
	SearchIntentsByVector(ctx context.Context, vector []float32, limit int) ([]retrieval.Match, error)

	GetNode(ctx context.Context, id core.ID) (*nodemeta.Metamodel, bool, error)
	ListNodes(ctx context.Context) ([]*nodemeta.Metamodel, error)
	PutNode(ctx context.Context, m *nodemeta.Metamodel) error
	LatestByFamilyID(ctx context.Context, familyID string) (*nodemeta.Metamodel, bool, error)
	AllByFamilyOrderByVersionDesc(ctx context.Context, familyID string) ([]*nodemeta.Metamodel, error)
	SearchNodes(ctx context.Context, query string, vector []float32, limit int) ([]retrieval.Match, error)

	GetWorkflow(ctx context.Context, id core.ID) (*workflow.Metamodel, bool, error)
	ListWorkflows(ctx context.Context) ([]*workflow.Metamodel, error)
	PutWorkflow(ctx context.Context, m *workflow.Metamodel) error
	WorkflowsForIntent(ctx context.Context, intentID core.ID) ([]*workflow.Metamodel, error)
	SaveEdgeBindings(ctx context.Context, workflowID core.ID, edgeID string, bindings map[string]string) error
}
