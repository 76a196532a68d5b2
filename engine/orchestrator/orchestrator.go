// Package orchestrator wires the detector, router, input mapper, and
// workflow executor into one end-to-end request handler: detect the
// intent, route to a candidate workflow, hydrate its entry nodes, execute
// the DAG, then reflect whatever the Port Adapter and the detector
// learned back into the catalog.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/relayforge/relayforge/engine/catalog"
	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/detector"
	"github.com/relayforge/relayforge/engine/effector"
	"github.com/relayforge/relayforge/engine/exectx"
	"github.com/relayforge/relayforge/engine/executor"
	"github.com/relayforge/relayforge/engine/inputmapper"
	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/registry"
	"github.com/relayforge/relayforge/engine/router"
	"github.com/relayforge/relayforge/engine/workflow"
)

// Options configures an Orchestrator's tunables. Zero values fall back to
// each collaborator's own documented defaults.
type Options struct {
	Temperature   float64
	RNG           *rand.Rand
	SchedulerOpts *executor.Options
	// Nodes, when non-nil, is the process-wide Instances Registry: node
	// instances become singletons per metamodel id, reused across runs
	// instead of rebuilt per request.
	Nodes *registry.Registry[*node.Instance]
	// Updates, when non-nil, subscribes each registered instance for hot
	// metamodel replacement. Only consulted together with Nodes.
	Updates *node.UpdateBus
}

// Orchestrator is re-entrant and stateless: all per-request state lives in
// the ExecutionContext and Report a single Handle call builds.
type Orchestrator struct {
	Catalog  catalog.Catalog
	Detector *detector.Detector
	Router   *router.Router
	Mapper   *inputmapper.Mapper
	Factory  *effector.Factory
	opts     Options
}

// New builds an Orchestrator over its collaborators.
func New(
	cat catalog.Catalog,
	det *detector.Detector,
	rtr *router.Router,
	mapper *inputmapper.Mapper,
	factory *effector.Factory,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		Catalog: cat, Detector: det, Router: rtr, Mapper: mapper, Factory: factory, opts: opts,
	}
}

// Result is what Handle returns to its caller: the terminal values emitted
// by the run's exit nodes, plus the full observability report.
type Result struct {
	Intent     string
	WorkflowID core.ID
	ExitValues map[string]any
	Report     *executor.Report
}

// Handle runs the full detect -> route -> map -> execute -> reflect
// pipeline for one request. Intermediate failures short-circuit: a
// detector, router, or mapper failure returns before anything is executed
// or persisted.
func (o *Orchestrator) Handle(ctx context.Context, requestText string) (*Result, error) {
	detected, err := o.Detector.Detect(ctx, requestText)
	if err != nil {
		return nil, err
	}

	temperature := o.opts.Temperature
	meta, err := o.Router.Route(ctx, detected.Intent.ID, temperature, o.opts.RNG)
	if err != nil {
		return nil, err
	}

	inst, err := o.resolveInstance(ctx, meta)
	if err != nil {
		return nil, err
	}

	ectx := exectx.New()
	entryNodes, err := o.entryNodesOf(ctx, meta)
	if err != nil {
		return nil, err
	}
	if err := o.Mapper.Map(ctx, ectx, augmentedRequestText(requestText, detected.UserVariables), entryNodes); err != nil {
		return nil, err
	}

	sched := executor.New(o.opts.SchedulerOpts)
	report, runErr := sched.Run(ctx, inst, ectx)
	if runErr != nil {
		return &Result{Intent: detected.Intent.Name, WorkflowID: meta.ID, Report: report}, runErr
	}

	if err := o.reflect(ctx, meta, inst, detected); err != nil {
		return nil, err
	}

	return &Result{
		Intent:     detected.Intent.Name,
		WorkflowID: meta.ID,
		ExitValues: exitValues(inst, ectx),
		Report:     report,
	}, nil
}

// reflect persists whatever the run learned: edge bindings the Port
// Adapter proposed (detected by diffing each edge's effective bindings
// against the metamodel's originally declared ones) and this workflow's
// updated handled-intent bookkeeping. Intent persistence for a brand new
// intent already happened inside Detect itself.
func (o *Orchestrator) reflect(ctx context.Context, meta *workflow.Metamodel, inst *workflow.Instance, detected *detector.Result) error {
	for i := range meta.Edges {
		e := &meta.Edges[i]
		effective := inst.EffectiveBindings(e.ID)
		if bindingsEqual(e.Bindings, effective) {
			continue
		}
		if err := o.Catalog.SaveEdgeBindings(ctx, meta.ID, e.ID, effective); err != nil {
			return fmt.Errorf("orchestrator: failed to persist learned bindings for edge %s: %w", e.ID, err)
		}
		// Keep the in-memory metamodel in step so the PutWorkflow below
		// (handled-intent bookkeeping) does not clobber what was just saved.
		e.Bindings = effective
	}

	now := time.Now()
	updated := false
	for i := range meta.HandledIntents {
		if meta.HandledIntents[i].IntentID == detected.Intent.ID.String() {
			meta.HandledIntents[i].LastExecuted = &now
			updated = true
		}
	}
	if !updated {
		meta.HandledIntents = append(meta.HandledIntents, workflow.HandledIntent{
			IntentID: detected.Intent.ID.String(), LastExecuted: &now,
		})
	}
	if err := o.Catalog.PutWorkflow(ctx, meta); err != nil {
		return fmt.Errorf("orchestrator: failed to persist handled-intent bookkeeping: %w", err)
	}
	return nil
}

func bindingsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// resolveInstance builds a workflow.Instance from meta by resolving each
// WorkflowNode's NodeMetamodelID through the catalog and dispatching to
// the kind-appropriate effector via Factory.
func (o *Orchestrator) resolveInstance(ctx context.Context, meta *workflow.Metamodel) (*workflow.Instance, error) {
	nodeInstances := make(map[string]*node.Instance, len(meta.Nodes))
	for _, n := range meta.Nodes {
		nm, ok, err := o.Catalog.GetNode(ctx, core.ID(n.NodeMetamodelID))
		if err != nil {
			return nil, err
		}
		if !ok || nm == nil || !nm.Enabled {
			return nil, core.NewError(
				fmt.Errorf("orchestrator: node %s's metamodel %q does not resolve to an enabled metamodel", n.ID, n.NodeMetamodelID),
				core.CodeValidation, map[string]any{"node": n.ID},
			)
		}
		inst, err := o.instanceFor(nm)
		if err != nil {
			return nil, err
		}
		nodeInstances[n.ID] = inst
	}
	return workflow.NewInstance(meta, nodeInstances), nil
}

// instanceFor returns the node instance backing a metamodel: a fresh one
// per request absent a registry, otherwise the process-wide singleton for
// that metamodel id, registered (and subscribed for hot updates) on first
// use.
func (o *Orchestrator) instanceFor(nm *nodemeta.Metamodel) (*node.Instance, error) {
	if o.opts.Nodes == nil {
		eff, err := o.Factory.For(nm.Kind())
		if err != nil {
			return nil, err
		}
		return node.NewInstance(nm, eff), nil
	}
	id := nm.ID.String()
	if inst, ok := o.opts.Nodes.Get(id); ok {
		return inst, nil
	}
	eff, err := o.Factory.For(nm.Kind())
	if err != nil {
		return nil, err
	}
	inst := node.NewInstance(nm, eff)
	if err := o.opts.Nodes.Register(id, inst); err != nil {
		// Lost a register race: the winner's instance is the singleton.
		if existing, ok := o.opts.Nodes.Get(id); ok {
			return existing, nil
		}
		return nil, err
	}
	if o.opts.Updates != nil {
		o.opts.Updates.Subscribe(id, inst)
	}
	return inst, nil
}

// entryNodesOf resolves meta's zero-incoming-edge nodes to their
// metamodels, for the Input Mapper's required-ports prompt.
func (o *Orchestrator) entryNodesOf(ctx context.Context, meta *workflow.Metamodel) ([]inputmapper.EntryNode, error) {
	entries := meta.EntryNodes()
	out := make([]inputmapper.EntryNode, 0, len(entries))
	for _, n := range entries {
		nm, ok, err := o.Catalog.GetNode(ctx, core.ID(n.NodeMetamodelID))
		if err != nil {
			return nil, err
		}
		if !ok || nm == nil {
			return nil, fmt.Errorf("orchestrator: entry node %s's metamodel %q not found", n.ID, n.NodeMetamodelID)
		}
		out = append(out, inputmapper.EntryNode{NodeID: n.ID, Meta: nm})
	}
	return out, nil
}

// augmentedRequestText appends the detector's already-extracted user
// variables to the raw request text, sorted by name for determinism, so
// the Input Mapper doesn't have to re-derive entities the detector has
// already pulled out of the same text.
func augmentedRequestText(text string, userVariables map[string]string) string {
	if len(userVariables) == 0 {
		return text
	}
	names := make([]string, 0, len(userVariables))
	for name := range userVariables {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\nKnown variables: ")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", name, userVariables[name])
	}
	return b.String()
}

// exitValues collects every output-port value of meta's zero-outgoing-edge
// nodes from ectx, keyed "<nodeId>.<portKey>".
func exitValues(inst *workflow.Instance, ectx *exectx.Context) map[string]any {
	out := map[string]any{}
	for _, n := range inst.ExitNodes() {
		nodeInst, ok := inst.NodeInstance(n.ID)
		if !ok {
			continue
		}
		for _, p := range nodeInst.Metamodel().OutputPorts {
			key := n.ID + "." + p.Key
			if v := ectx.Get(node.OutputPath(n.ID, p.Key)); v != nil {
				out[key] = v
			}
		}
	}
	return out
}
