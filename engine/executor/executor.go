// Package executor runs a resolved workflow.Instance to completion: it
// schedules nodes in an order consistent with the DAG and each node's
// JOIN/MERGE gating rule, applies edge bindings and conditions between
// node completions, invokes the Port Adapter when a target node's
// required inputs are left unsatisfied, and returns a Report.
package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/exectx"
	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/port"
	"github.com/relayforge/relayforge/engine/workflow"
	"github.com/relayforge/relayforge/pkg/logger"
)

// Options configures a Scheduler. A nil Options, or zero-valued fields,
// fall back to the spec's defaults.
type Options struct {
	// MaxConcurrency bounds the worker pool. Zero means
	// min(16, number of nodes in the workflow), computed fresh per Run.
	MaxConcurrency int
	// Timeouts overrides DefaultTimeouts per node kind.
	Timeouts map[nodemeta.Kind]time.Duration
	// Adapter resolves missing required input bindings. Nil is valid: a
	// node that hits the missing-bindings path with no Adapter configured
	// fails immediately with UNSATISFIED_INPUTS.
	Adapter PortAdapter
	// OnNodeReport, when non-nil, is called once per node report as the
	// scheduler folds results back in, before Run returns. Called on the
	// scheduler goroutine; implementations must not block.
	OnNodeReport func(kind nodemeta.Kind, nr NodeReport)
}

const defaultMaxConcurrency = 16

// Scheduler runs one workflow.Instance per Run call. Stateless between
// runs: all per-run bookkeeping lives in the runState and Report it builds
// during that call.
type Scheduler struct {
	opts Options
}

// New builds a Scheduler. A nil opts uses every documented default.
func New(opts *Options) *Scheduler {
	if opts == nil {
		opts = &Options{}
	}
	return &Scheduler{opts: *opts}
}

// Run executes every runnable node of inst exactly once, against ectx, and
// returns the resulting observability Report. A node FAILED error aborts
// the remaining run and is returned alongside the partial Report.
func (s *Scheduler) Run(ctx context.Context, inst *workflow.Instance, ectx *exectx.Context) (*Report, error) {
	meta := inst.Metamodel
	rs := newRunState(meta)
	report := &Report{}
	log := logger.FromContext(ctx).With("component", "executor")

	maxConcurrency := s.opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
		if len(meta.Nodes) < maxConcurrency {
			maxConcurrency = len(meta.Nodes)
		}
		if maxConcurrency <= 0 {
			maxConcurrency = 1
		}
	}
	sem := semaphore.NewWeighted(int64(maxConcurrency))

	for {
		runnable, skipped := rs.readyNodes(meta)
		for _, n := range skipped {
			nr := NodeReport{NodeID: n.ID, Skipped: true}
			report.Nodes = append(report.Nodes, nr)
			if s.opts.OnNodeReport != nil {
				if ni, ok := inst.NodeInstance(n.ID); ok {
					s.opts.OnNodeReport(ni.Metamodel().Kind(), nr)
				}
			}
		}
		if len(runnable) == 0 {
			if len(skipped) > 0 {
				continue // a SKIPPED node may unblock downstream JOIN gating
			}
			// Nothing runnable and nothing newly skipped: either the run is
			// complete, or (validate should have caught this) the DAG is
			// stuck on pending nodes no path can ever unblock.
			break
		}
		if err := s.runWave(ctx, inst, ectx, runnable, rs, report, sem, log); err != nil {
			report.finalizeAggregate()
			return report, err
		}
	}
	report.finalizeAggregate()
	return report, nil
}

// runWave runs one batch of simultaneously-READY nodes. Binding resolution
// (the missing-bindings loop, and edge-binding application once a node
// completes) always happens on this method's own goroutine, never inside
// a per-node worker: the ExecutionContext's single shared map is not safe
// for concurrent writes, so only the effector invocation itself — which
// touches nothing but that one node's own output namespace — is allowed to
// run in parallel.
func (s *Scheduler) runWave(
	ctx context.Context,
	inst *workflow.Instance,
	ectx *exectx.Context,
	runnable []workflow.Node,
	rs *runState,
	report *Report,
	sem *semaphore.Weighted,
	log logger.Logger,
) error {
	type prepared struct {
		node       workflow.Node
		nodeInst   *node.Instance
		adaptation *AdaptationReport
		failErr    error
	}
	preps := make([]prepared, len(runnable))
	for i, n := range runnable {
		rs.nodeState[n.ID] = core.NodeStateRunning
		nodeInst, ok := inst.NodeInstance(n.ID)
		if !ok {
			preps[i] = prepared{node: n, failErr: core.NewError(
				fmt.Errorf("executor: no node instance resolved for %q", n.ID),
				core.CodeValidation, map[string]any{"node": n.ID},
			)}
			continue
		}
		adaptation, err := s.satisfyRequiredInputs(ctx, inst, ectx, n, nodeInst.Metamodel(), log)
		preps[i] = prepared{node: n, nodeInst: nodeInst, adaptation: adaptation, failErr: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]NodeReport, len(runnable))
	invokeErrs := make([]error, len(runnable))
	for i, p := range preps {
		if p.failErr != nil {
			results[i] = NodeReport{NodeID: p.node.ID, Error: p.failErr.Error()}
			continue
		}
		i, p := i, p
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			results[i], invokeErrs[i] = s.invokeNode(gctx, ectx, p.node, p.nodeInst, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range preps {
		report.Nodes = append(report.Nodes, results[i])
		if s.opts.OnNodeReport != nil && p.nodeInst != nil {
			s.opts.OnNodeReport(p.nodeInst.Metamodel().Kind(), results[i])
		}
		if p.adaptation != nil {
			report.Adaptations = append(report.Adaptations, *p.adaptation)
		}
		failure := p.failErr
		if failure == nil && !results[i].Success {
			failure = invokeErrs[i]
		}
		if failure != nil {
			rs.nodeState[p.node.ID] = core.NodeStateFailed
			if p.nodeInst != nil && p.nodeInst.Metamodel().NonFatal {
				// The metamodel declares this node non-fatal: record the
				// failure, decline its outgoing edges so downstream gating
				// resolves (JOIN targets with no other active edge are
				// SKIPPED), and keep the run alive.
				log.Warn("non-fatal node failed, continuing", "node", p.node.ID, "error", failure)
				s.declineOutgoingEdges(inst, p.node, rs, report)
				continue
			}
			return failure
		}
		rs.nodeState[p.node.ID] = core.NodeStateCompleted
		s.resolveOutgoingEdges(inst, ectx, p.node, rs, report)
	}
	return nil
}

// declineOutgoingEdges resolves every edge leaving a failed non-fatal node
// as inactive: the source produced no outputs, so no binding can apply and
// no condition can hold.
func (s *Scheduler) declineOutgoingEdges(
	inst *workflow.Instance,
	n workflow.Node,
	rs *runState,
	report *Report,
) {
	for _, e := range inst.Metamodel.OutgoingEdges(n.ID) {
		rs.edgeResolved[e.ID] = true
		rs.edgeActive[e.ID] = false
		report.Edges = append(report.Edges, EdgeReport{EdgeID: e.ID, ConditionOutcome: false})
	}
}

// invokeNode dispatches one node's effector under its kind's timeout and
// retry policy, recording the before/after context diff over its output
// namespace. Safe to run concurrently with other nodes' invokeNode calls:
// it reads and writes only nodeID's own namespace.
func (s *Scheduler) invokeNode(
	ctx context.Context,
	ectx *exectx.Context,
	n workflow.Node,
	nodeInst *node.Instance,
	log logger.Logger,
) (NodeReport, error) {
	nr := NodeReport{NodeID: n.ID, StartedAt: time.Now()}
	meta := nodeInst.Metamodel()
	before := snapshotNamespace(ectx, node.OutputPath(n.ID, ""))
	kind := meta.Kind()
	timeout := timeoutFor(kind, s.opts.Timeouts)
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	usage := &node.Usage{}
	runCtx = node.ContextWithUsage(runCtx, usage)

	err := invokeWithRetry(runCtx, kind, func(c context.Context) error {
		return nodeInst.Invoke(c, ectx, n.ID)
	})
	nr.EndedAt = time.Now()
	if usage.Total() > 0 {
		nr.TokenUsage = &TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
		}
	}
	nr.Duration = nr.EndedAt.Sub(nr.StartedAt)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			err = core.NewError(err, core.CodeEffectorTimeout, map[string]any{"node": n.ID})
		}
		nr.Error = err.Error()
		log.Error("node failed", "node", n.ID, "kind", string(kind), "error", err)
		return nr, err
	}
	nr.Success = true
	after := snapshotNamespace(ectx, node.OutputPath(n.ID, ""))
	nr.ContextDiff = diffNamespace(before, after)
	log.Info("node completed", "node", n.ID, "kind", string(kind), "duration_ms", nr.Duration.Milliseconds())
	return nr, nil
}

// satisfyRequiredInputs runs the missing-bindings loop for one target node:
// it checks every required input port, and when one or more are
// unsatisfied, invokes the configured PortAdapter with the candidate
// source nodes feeding this target.
func (s *Scheduler) satisfyRequiredInputs(
	ctx context.Context,
	inst *workflow.Instance,
	ectx *exectx.Context,
	n workflow.Node,
	meta *nodemeta.Metamodel,
	log logger.Logger,
) (*AdaptationReport, error) {
	get := func(key string) any { return ectx.Get(node.InputPath(n.ID, key)) }
	put := func(key string, v any) error { return ectx.Put(node.InputPath(n.ID, key), v) }
	missing := missingRequiredInputs(meta.InputPorts, get, put)
	if len(missing) == 0 {
		return nil, nil
	}
	if s.opts.Adapter == nil {
		return nil, core.NewError(
			fmt.Errorf("node %s: required inputs unsatisfied and no port adapter configured", n.ID),
			core.CodeUnsatisfiedInputs, map[string]any{"node": n.ID, "missing": portKeys(missing)},
		)
	}

	req := AdaptRequest{TargetNodeID: n.ID, MissingInputs: missing}
	for _, e := range inst.Metamodel.IncomingEdges(n.ID) {
		srcInst, ok := inst.NodeInstance(e.SourceNodeID)
		if !ok {
			continue
		}
		req.Sources = append(req.Sources, SourcePorts{
			NodeID: e.SourceNodeID,
			Ports:  srcInst.Metamodel().OutputPorts,
		})
	}

	result, err := s.opts.Adapter.Adapt(ctx, req)
	success := err == nil
	log.Info("port adapter invoked", "node", n.ID, "missing", len(missing), "success", success)
	adaptation := &AdaptationReport{
		NodeID:           n.ID,
		MissingInputs:    portKeys(missing),
		ProposedBindings: result.Bindings,
		Success:          success,
	}
	if err != nil {
		return adaptation, err
	}

	for srcPath, tgtPath := range result.Bindings {
		sourceNodeID, sourcePortPath, ok := splitSourceKey(srcPath)
		if !ok {
			continue
		}
		edge := findEdge(inst.Metamodel, sourceNodeID, n.ID)
		if edge == nil {
			continue
		}
		if err := inst.LearnBindings(edge.ID, map[string]string{sourcePortPath: tgtPath}); err != nil {
			return adaptation, err
		}
		val := ectx.Get(node.OutputPath(sourceNodeID, sourcePortPath))
		if err := ectx.Put(node.InputPath(n.ID, tgtPath), val); err != nil {
			return adaptation, err
		}
	}

	stillMissing := missingRequiredInputs(meta.InputPorts, get, put)
	if len(stillMissing) > 0 {
		return adaptation, core.NewError(
			fmt.Errorf("node %s: required inputs unsatisfied after adaptation", n.ID),
			core.CodeUnsatisfiedInputs, map[string]any{"node": n.ID, "missing": portKeys(stillMissing)},
		)
	}
	return adaptation, nil
}

// resolveOutgoingEdges applies bindings and evaluates the condition for
// every edge leaving a just-completed node, marking each edge resolved
// (and active/inactive) so downstream gating can proceed.
func (s *Scheduler) resolveOutgoingEdges(
	inst *workflow.Instance,
	ectx *exectx.Context,
	n workflow.Node,
	rs *runState,
	report *Report,
) {
	for _, e := range inst.Metamodel.OutgoingEdges(n.ID) {
		active := e.Condition.Evaluate(ectx.Get)
		bindings := inst.EffectiveBindings(e.ID)
		if active {
			for srcPath, tgtPath := range bindings {
				val := ectx.Get(node.OutputPath(e.SourceNodeID, srcPath))
				_ = ectx.Put(node.InputPath(e.TargetNodeID, tgtPath), val)
			}
		}
		rs.edgeResolved[e.ID] = true
		rs.edgeActive[e.ID] = active
		report.Edges = append(report.Edges, EdgeReport{
			EdgeID:           e.ID,
			ConditionOutcome: active,
			AppliedBindings:  bindings,
		})
	}
}

func portKeys(ports []*port.Port) []string {
	keys := make([]string, len(ports))
	for i, p := range ports {
		keys[i] = p.Key
	}
	return keys
}

func findEdge(meta *workflow.Metamodel, sourceID, targetID string) *workflow.Edge {
	for i := range meta.Edges {
		if meta.Edges[i].SourceNodeID == sourceID && meta.Edges[i].TargetNodeID == targetID {
			return &meta.Edges[i]
		}
	}
	return nil
}

// splitSourceKey splits a Port Adapter binding key "<sourceNodeId>.<path>"
// into its node id and remaining dotted path.
func splitSourceKey(key string) (nodeID, path string, ok bool) {
	for i, r := range key {
		if r == '.' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

func snapshotNamespace(ectx *exectx.Context, prefix string) map[string]any {
	v := ectx.Get(prefix)
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}

func diffNamespace(before, after map[string]any) ContextDiff {
	diff := ContextDiff{
		Added:    map[string]ValueChange{},
		Modified: map[string]ValueChange{},
		Removed:  map[string]ValueChange{},
	}
	for k, av := range after {
		bv, existed := before[k]
		if !existed {
			diff.Added[k] = ValueChange{After: av}
			continue
		}
		if !valueEqual(bv, av) {
			diff.Modified[k] = ValueChange{Before: bv, After: av}
		}
	}
	for k, bv := range before {
		if _, stillThere := after[k]; !stillThere {
			diff.Removed[k] = ValueChange{Before: bv}
		}
	}
	return diff
}

func valueEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
