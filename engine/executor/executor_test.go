package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/exectx"
	"github.com/relayforge/relayforge/engine/executor"
	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/port"
	"github.com/relayforge/relayforge/engine/workflow"
)

// noopEffector does nothing; its node's outputs are whatever was already
// written to ectx by something else (a binding, a default), if anything.
type noopEffector struct{}

func (noopEffector) Invoke(context.Context, *exectx.Context, string, *nodemeta.Metamodel) error {
	return nil
}

// writingEffector writes a fixed set of output values on every invocation.
type writingEffector struct {
	outputs map[string]any
}

func (e writingEffector) Invoke(_ context.Context, ectx *exectx.Context, nodeID string, _ *nodemeta.Metamodel) error {
	for k, v := range e.outputs {
		if err := ectx.Put(node.OutputPath(nodeID, k), v); err != nil {
			return err
		}
	}
	return nil
}

// erroringEffector always fails with a fixed error.
type erroringEffector struct {
	err error
}

func (e erroringEffector) Invoke(context.Context, *exectx.Context, string, *nodemeta.Metamodel) error {
	return e.err
}

// sleepyEffector blocks until ctx is done or a fixed duration elapses,
// whichever comes first, returning ctx.Err() in the former case.
type sleepyEffector struct {
	sleep time.Duration
}

func (e sleepyEffector) Invoke(ctx context.Context, _ *exectx.Context, _ string, _ *nodemeta.Metamodel) error {
	select {
	case <-time.After(e.sleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func gatewayMeta() *nodemeta.Metamodel {
	return &nodemeta.Metamodel{Variant: nodemeta.GatewayVariant{}}
}

func requiredStringInput(key string) *port.Port {
	schema := port.NewString().Required().MustBuild()
	return port.NewPort(key, schema, port.StandardRolePassthrough)
}

func Test_Scheduler_LinearJoinChain(t *testing.T) {
	t.Run("Should run every node of a linear JOIN chain to completion", func(t *testing.T) {
		meta := &workflow.Metamodel{
			ID: "wf1",
			Nodes: []workflow.Node{
				{ID: "a", NodeMetamodelID: "m"},
				{ID: "b", NodeMetamodelID: "m"},
				{ID: "c", NodeMetamodelID: "m"},
			},
			Edges: []workflow.Edge{
				{ID: "e1", SourceNodeID: "a", TargetNodeID: "b"},
				{ID: "e2", SourceNodeID: "b", TargetNodeID: "c"},
			},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(gatewayMeta(), noopEffector{}),
			"b": node.NewInstance(gatewayMeta(), noopEffector{}),
			"c": node.NewInstance(gatewayMeta(), noopEffector{}),
		}
		inst := workflow.NewInstance(meta, instances)
		sched := executor.New(nil)

		report, err := sched.Run(context.Background(), inst, exectx.New())

		require.NoError(t, err)
		assert.Len(t, report.Nodes, 3)
		for _, nr := range report.Nodes {
			assert.True(t, nr.Success, "node %s should succeed", nr.NodeID)
		}
		assert.Equal(t, 3, report.Aggregate.TotalNodes)
		assert.Equal(t, 3, report.Aggregate.Successful)
		assert.Len(t, report.Edges, 2)
	})
}

func Test_Scheduler_JoinSkipsWhenAllIncomingInactive(t *testing.T) {
	t.Run("Should mark a JOIN node SKIPPED when every incoming edge resolves inactive", func(t *testing.T) {
		falseCond := &workflow.Condition{
			Combinator: workflow.CombinatorAnd,
			Expressions: []workflow.Expression{
				{Port: node.OutputPath("a", "ok"), Operation: workflow.OpIsTrue},
			},
		}
		meta := &workflow.Metamodel{
			ID: "wf1",
			Nodes: []workflow.Node{
				{ID: "a", NodeMetamodelID: "m"},
				{ID: "b", NodeMetamodelID: "m"},
			},
			Edges: []workflow.Edge{
				{ID: "e1", SourceNodeID: "a", TargetNodeID: "b", Condition: falseCond},
			},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(gatewayMeta(), writingEffector{outputs: map[string]any{"ok": false}}),
			"b": node.NewInstance(gatewayMeta(), noopEffector{}),
		}
		inst := workflow.NewInstance(meta, instances)
		sched := executor.New(nil)

		report, err := sched.Run(context.Background(), inst, exectx.New())

		require.NoError(t, err)
		var bReport *executor.NodeReport
		for i := range report.Nodes {
			if report.Nodes[i].NodeID == "b" {
				bReport = &report.Nodes[i]
			}
		}
		require.NotNil(t, bReport)
		assert.True(t, bReport.Skipped)
		assert.Equal(t, 1, report.Aggregate.Skipped)
	})
}

func Test_Scheduler_MergeFiresOnFirstActivePredecessor(t *testing.T) {
	t.Run("Should fire a MERGE node as soon as one incoming edge resolves active", func(t *testing.T) {
		meta := &workflow.Metamodel{
			ID: "wf1",
			Nodes: []workflow.Node{
				{ID: "a", NodeMetamodelID: "m"},
				{ID: "d", NodeMetamodelID: "m"},
				{ID: "b", NodeMetamodelID: "m"},
				{ID: "c", NodeMetamodelID: "m", ExecutionType: core.ExecutionMerge},
			},
			Edges: []workflow.Edge{
				{ID: "e1", SourceNodeID: "a", TargetNodeID: "c"},
				{ID: "e2", SourceNodeID: "a", TargetNodeID: "d"},
				{ID: "e3", SourceNodeID: "d", TargetNodeID: "b"},
				{ID: "e4", SourceNodeID: "b", TargetNodeID: "c"},
			},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(gatewayMeta(), noopEffector{}),
			"d": node.NewInstance(gatewayMeta(), noopEffector{}),
			"b": node.NewInstance(gatewayMeta(), noopEffector{}),
			"c": node.NewInstance(gatewayMeta(), noopEffector{}),
		}
		inst := workflow.NewInstance(meta, instances)
		sched := executor.New(nil)

		report, err := sched.Run(context.Background(), inst, exectx.New())

		require.NoError(t, err)
		for _, nr := range report.Nodes {
			assert.Truef(t, nr.Success || nr.Skipped, "node %s should not fail", nr.NodeID)
		}
		assert.Equal(t, 4, report.Aggregate.TotalNodes)
	})
}

func Test_Scheduler_PortAdapterFillsMissingBindings(t *testing.T) {
	t.Run("Should invoke the configured PortAdapter and persist learned bindings", func(t *testing.T) {
		sourceMeta := gatewayMeta()
		sourceMeta.OutputPorts = []*port.Port{
			port.NewPort("greeting", port.NewString().MustBuild(), port.StandardRolePassthrough),
		}
		targetMeta := gatewayMeta()
		targetMeta.InputPorts = []*port.Port{requiredStringInput("text")}

		meta := &workflow.Metamodel{
			ID: "wf1",
			Nodes: []workflow.Node{
				{ID: "a", NodeMetamodelID: "m1"},
				{ID: "c", NodeMetamodelID: "m2"},
			},
			Edges: []workflow.Edge{
				{ID: "e1", SourceNodeID: "a", TargetNodeID: "c"},
			},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(sourceMeta, writingEffector{outputs: map[string]any{"greeting": "hello"}}),
			"c": node.NewInstance(targetMeta, noopEffector{}),
		}
		inst := workflow.NewInstance(meta, instances)
		adapter := &fakeAdapter{
			result: executor.AdaptResult{Bindings: map[string]string{"a.greeting": "text"}},
		}
		sched := executor.New(&executor.Options{Adapter: adapter})

		report, err := sched.Run(context.Background(), inst, exectx.New())

		require.NoError(t, err)
		require.Len(t, report.Adaptations, 1)
		assert.True(t, report.Adaptations[0].Success)
		assert.Equal(t, []string{"text"}, report.Adaptations[0].MissingInputs)
		assert.Equal(t, map[string]string{"greeting": "text"}, inst.EffectiveBindings("e1"))
		assert.Equal(t, 1, adapter.calls)
	})
}

func Test_Scheduler_UnsatisfiedInputsWithoutAdapter(t *testing.T) {
	t.Run("Should fail with UNSATISFIED_INPUTS when no adapter is configured", func(t *testing.T) {
		targetMeta := gatewayMeta()
		targetMeta.InputPorts = []*port.Port{requiredStringInput("value")}

		meta := &workflow.Metamodel{
			ID:    "wf1",
			Nodes: []workflow.Node{{ID: "c", NodeMetamodelID: "m"}},
		}
		instances := map[string]*node.Instance{
			"c": node.NewInstance(targetMeta, noopEffector{}),
		}
		inst := workflow.NewInstance(meta, instances)
		sched := executor.New(nil)

		_, err := sched.Run(context.Background(), inst, exectx.New())

		require.Error(t, err)
		var coreErr *core.Error
		require.True(t, errors.As(err, &coreErr))
		assert.Equal(t, core.CodeUnsatisfiedInputs, coreErr.Code)
	})
}

func Test_Scheduler_UnsatisfiedInputsWhenAdaptationIncomplete(t *testing.T) {
	t.Run("Should fail with UNSATISFIED_INPUTS when the adapter leaves required inputs uncovered", func(t *testing.T) {
		targetMeta := gatewayMeta()
		targetMeta.InputPorts = []*port.Port{requiredStringInput("value")}

		meta := &workflow.Metamodel{
			ID:    "wf1",
			Nodes: []workflow.Node{{ID: "c", NodeMetamodelID: "m"}},
		}
		instances := map[string]*node.Instance{
			"c": node.NewInstance(targetMeta, noopEffector{}),
		}
		inst := workflow.NewInstance(meta, instances)
		adapter := &fakeAdapter{result: executor.AdaptResult{}}
		sched := executor.New(&executor.Options{Adapter: adapter})

		report, err := sched.Run(context.Background(), inst, exectx.New())

		require.Error(t, err)
		var coreErr *core.Error
		require.True(t, errors.As(err, &coreErr))
		assert.Equal(t, core.CodeUnsatisfiedInputs, coreErr.Code)
		require.Len(t, report.Adaptations, 1)
		assert.True(t, report.Adaptations[0].Success)
	})
}

func Test_Scheduler_EffectorTimeout(t *testing.T) {
	t.Run("Should fail with EFFECTOR_TIMEOUT when a node outruns its kind's timeout", func(t *testing.T) {
		slowMeta := &nodemeta.Metamodel{Variant: nodemeta.VectorDBVariant{
			URI: "x", DatabaseName: "x", CollectionName: "x", IndexName: "x", VectorField: "x", Limit: 1,
		}}
		meta := &workflow.Metamodel{
			ID:    "wf1",
			Nodes: []workflow.Node{{ID: "v", NodeMetamodelID: "m"}},
		}
		instances := map[string]*node.Instance{
			"v": node.NewInstance(slowMeta, sleepyEffector{sleep: 50 * time.Millisecond}),
		}
		inst := workflow.NewInstance(meta, instances)
		sched := executor.New(&executor.Options{
			Timeouts: map[nodemeta.Kind]time.Duration{nodemeta.KindToolVectorDB: 5 * time.Millisecond},
		})

		_, err := sched.Run(context.Background(), inst, exectx.New())

		require.Error(t, err)
		var coreErr *core.Error
		require.True(t, errors.As(err, &coreErr))
		assert.Equal(t, core.CodeEffectorTimeout, coreErr.Code)
	})
}

func Test_Scheduler_ReportAggregateMetrics(t *testing.T) {
	t.Run("Should compute fastest/slowest/median/average over non-skipped node durations", func(t *testing.T) {
		meta := &workflow.Metamodel{
			ID: "wf1",
			Nodes: []workflow.Node{
				{ID: "a", NodeMetamodelID: "m"},
				{ID: "b", NodeMetamodelID: "m"},
			},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(gatewayMeta(), noopEffector{}),
			"b": node.NewInstance(gatewayMeta(), noopEffector{}),
		}
		inst := workflow.NewInstance(meta, instances)
		sched := executor.New(nil)

		report, err := sched.Run(context.Background(), inst, exectx.New())

		require.NoError(t, err)
		assert.Equal(t, 2, report.Aggregate.TotalNodes)
		assert.Equal(t, 2, report.Aggregate.Successful)
		assert.GreaterOrEqual(t, report.Aggregate.SlowestNodeMs, report.Aggregate.FastestNodeMs)
		assert.GreaterOrEqual(t, report.Aggregate.AverageNodeMs, 0.0)
	})
}

func Test_Scheduler_EffectorPermanentError(t *testing.T) {
	t.Run("Should abort the run and surface a failing effector's error", func(t *testing.T) {
		meta := &workflow.Metamodel{
			ID:    "wf1",
			Nodes: []workflow.Node{{ID: "a", NodeMetamodelID: "m"}},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(gatewayMeta(), erroringEffector{err: errors.New("boom")}),
		}
		inst := workflow.NewInstance(meta, instances)
		sched := executor.New(nil)

		report, err := sched.Run(context.Background(), inst, exectx.New())

		require.Error(t, err)
		require.Len(t, report.Nodes, 1)
		assert.False(t, report.Nodes[0].Success)
		assert.Contains(t, report.Nodes[0].Error, "boom")
	})
}

type fakeAdapter struct {
	result executor.AdaptResult
	err    error
	calls  int
}

func (f *fakeAdapter) Adapt(context.Context, executor.AdaptRequest) (executor.AdaptResult, error) {
	f.calls++
	return f.result, f.err
}

// usageEffector reports fixed token counts through the context recorder,
// the way the LLM node effector does.
type usageEffector struct {
	prompt, completion int
}

func (e usageEffector) Invoke(ctx context.Context, _ *exectx.Context, _ string, _ *nodemeta.Metamodel) error {
	if u := node.UsageFromContext(ctx); u != nil {
		u.Add(e.prompt, e.completion)
	}
	return nil
}

func Test_Scheduler_TokenUsageInNodeReport(t *testing.T) {
	t.Run("Should surface effector-recorded token counts on the node's report", func(t *testing.T) {
		meta := &workflow.Metamodel{
			ID:    "wf1",
			Nodes: []workflow.Node{{ID: "a", NodeMetamodelID: "m"}},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(gatewayMeta(), usageEffector{prompt: 120, completion: 34}),
		}
		inst := workflow.NewInstance(meta, instances)
		sched := executor.New(nil)

		report, err := sched.Run(context.Background(), inst, exectx.New())

		require.NoError(t, err)
		require.Len(t, report.Nodes, 1)
		require.NotNil(t, report.Nodes[0].TokenUsage)
		assert.Equal(t, 120, report.Nodes[0].TokenUsage.PromptTokens)
		assert.Equal(t, 34, report.Nodes[0].TokenUsage.CompletionTokens)
	})

	t.Run("Should leave TokenUsage nil on nodes that record nothing", func(t *testing.T) {
		meta := &workflow.Metamodel{
			ID:    "wf1",
			Nodes: []workflow.Node{{ID: "a", NodeMetamodelID: "m"}},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(gatewayMeta(), noopEffector{}),
		}
		inst := workflow.NewInstance(meta, instances)

		report, err := executor.New(nil).Run(context.Background(), inst, exectx.New())

		require.NoError(t, err)
		require.Len(t, report.Nodes, 1)
		assert.Nil(t, report.Nodes[0].TokenUsage)
	})
}

func Test_Scheduler_OnNodeReportHook(t *testing.T) {
	t.Run("Should invoke the hook once per executed node with its kind", func(t *testing.T) {
		meta := &workflow.Metamodel{
			ID: "wf1",
			Nodes: []workflow.Node{
				{ID: "a", NodeMetamodelID: "m"},
				{ID: "b", NodeMetamodelID: "m"},
			},
			Edges: []workflow.Edge{
				{ID: "e1", SourceNodeID: "a", TargetNodeID: "b"},
			},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(gatewayMeta(), noopEffector{}),
			"b": node.NewInstance(gatewayMeta(), noopEffector{}),
		}
		inst := workflow.NewInstance(meta, instances)

		var seen []string
		sched := executor.New(&executor.Options{
			OnNodeReport: func(kind nodemeta.Kind, nr executor.NodeReport) {
				seen = append(seen, nr.NodeID+"/"+string(kind))
			},
		})

		_, err := sched.Run(context.Background(), inst, exectx.New())

		require.NoError(t, err)
		assert.Equal(t, []string{
			"a/" + string(nodemeta.KindFlowGateway),
			"b/" + string(nodemeta.KindFlowGateway),
		}, seen)
	})
}

// countingEffector fails every invocation with a fixed error, counting
// attempts.
type countingEffector struct {
	err      error
	attempts int
}

func (e *countingEffector) Invoke(context.Context, *exectx.Context, string, *nodemeta.Metamodel) error {
	e.attempts++
	return e.err
}

func llmMeta() *nodemeta.Metamodel {
	return &nodemeta.Metamodel{Variant: nodemeta.LLMVariant{Provider: "openai", ModelName: "gpt-4o-mini"}}
}

func Test_Scheduler_NonFatalNodeFailure(t *testing.T) {
	t.Run("Should record a non-fatal failure and keep the run alive", func(t *testing.T) {
		flaky := gatewayMeta()
		flaky.NonFatal = true
		meta := &workflow.Metamodel{
			ID: "wf1",
			Nodes: []workflow.Node{
				{ID: "a", NodeMetamodelID: "m-flaky"},
				{ID: "b", NodeMetamodelID: "m"},
				{ID: "c", NodeMetamodelID: "m"},
			},
			Edges: []workflow.Edge{
				{ID: "e1", SourceNodeID: "a", TargetNodeID: "b"},
			},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(flaky, erroringEffector{err: errors.New("boom")}),
			"b": node.NewInstance(gatewayMeta(), noopEffector{}),
			"c": node.NewInstance(gatewayMeta(), noopEffector{}),
		}
		inst := workflow.NewInstance(meta, instances)

		report, err := executor.New(nil).Run(context.Background(), inst, exectx.New())

		require.NoError(t, err)
		byNode := map[string]executor.NodeReport{}
		for _, nr := range report.Nodes {
			byNode[nr.NodeID] = nr
		}
		assert.False(t, byNode["a"].Success)
		assert.Contains(t, byNode["a"].Error, "boom")
		assert.True(t, byNode["b"].Skipped, "downstream JOIN of a failed non-fatal node should be SKIPPED")
		assert.True(t, byNode["c"].Success)
		assert.Equal(t, 1, report.Aggregate.Failed)
		assert.Equal(t, 1, report.Aggregate.Skipped)
		assert.Equal(t, 1, report.Aggregate.Successful)
	})

	t.Run("Should still abort on a fatal node's failure", func(t *testing.T) {
		meta := &workflow.Metamodel{
			ID:    "wf1",
			Nodes: []workflow.Node{{ID: "a", NodeMetamodelID: "m"}},
		}
		instances := map[string]*node.Instance{
			"a": node.NewInstance(gatewayMeta(), erroringEffector{err: errors.New("boom")}),
		}
		inst := workflow.NewInstance(meta, instances)

		_, err := executor.New(nil).Run(context.Background(), inst, exectx.New())

		require.Error(t, err)
	})
}

func Test_InvokeWithRetry_Gate(t *testing.T) {
	t.Run("Should retry a transient LLM failure up to three attempts total", func(t *testing.T) {
		eff := &countingEffector{err: core.NewError(errors.New("rate limited"), core.CodeEffectorTransient, nil)}
		meta := &workflow.Metamodel{
			ID:    "wf1",
			Nodes: []workflow.Node{{ID: "a", NodeMetamodelID: "m"}},
		}
		inst := workflow.NewInstance(meta, map[string]*node.Instance{"a": node.NewInstance(llmMeta(), eff)})

		_, err := executor.New(nil).Run(context.Background(), inst, exectx.New())

		require.Error(t, err)
		assert.Equal(t, 3, eff.attempts)
	})

	t.Run("Should not retry a permanent LLM failure", func(t *testing.T) {
		eff := &countingEffector{err: core.NewError(errors.New("invalid api key"), core.CodeEffectorPermanent, nil)}
		meta := &workflow.Metamodel{
			ID:    "wf1",
			Nodes: []workflow.Node{{ID: "a", NodeMetamodelID: "m"}},
		}
		inst := workflow.NewInstance(meta, map[string]*node.Instance{"a": node.NewInstance(llmMeta(), eff)})

		_, err := executor.New(nil).Run(context.Background(), inst, exectx.New())

		require.Error(t, err)
		assert.Equal(t, 1, eff.attempts)
		assert.Equal(t, core.CodeEffectorPermanent, core.ErrorCode(err))
	})

	t.Run("Should not retry non-retryable kinds even on transient errors", func(t *testing.T) {
		eff := &countingEffector{err: core.NewError(errors.New("blip"), core.CodeEffectorTransient, nil)}
		meta := &workflow.Metamodel{
			ID:    "wf1",
			Nodes: []workflow.Node{{ID: "a", NodeMetamodelID: "m"}},
		}
		inst := workflow.NewInstance(meta, map[string]*node.Instance{"a": node.NewInstance(gatewayMeta(), eff)})

		_, err := executor.New(nil).Run(context.Background(), inst, exectx.New())

		require.Error(t, err)
		assert.Equal(t, 1, eff.attempts)
	})
}
