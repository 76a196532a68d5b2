package executor

import (
	"context"

	"github.com/relayforge/relayforge/engine/port"
)

// SourcePorts is one candidate source node's declared output ports, keyed
// by the node's local DAG id so the adapter's proposed bindings can be
// addressed "<sourceNodeId>.<sourcePortPath>".
type SourcePorts struct {
	NodeID string
	Ports  []*port.Port
}

// AdaptRequest describes one missing-bindings episode: a target node with
// unsatisfied required input ports, and the source nodes feeding it whose
// outputs are available to bind from.
type AdaptRequest struct {
	TargetNodeID  string
	MissingInputs []*port.Port
	Sources       []SourcePorts
}

// AdaptResult is the Port Adapter's validated proposal: bindings keyed
// "<sourceNodeId>.<sourcePortPath>" -> "<targetPortPath>".
type AdaptResult struct {
	Bindings map[string]string
}

// PortAdapter fills gaps a workflow's declared edge bindings left open.
// Declared here (rather than imported from the adapter package) so this
// package has no compile-time dependency on the LLM-backed implementation;
// the orchestrator wires the concrete adapter in at construction time.
type PortAdapter interface {
	Adapt(ctx context.Context, req AdaptRequest) (AdaptResult, error)
}

// missingRequiredInputs returns the target's required input ports whose
// context value is still absent or invalid, applying each port's default
// value in place first when one is declared.
func missingRequiredInputs(ports []*port.Port, get func(string) any, put func(string, any) error) []*port.Port {
	var missing []*port.Port
	for _, p := range ports {
		path := p.Key
		if get(path) == nil && p.HasDefault {
			_ = put(path, p.DefaultValue)
		}
		if !p.Schema.Required() {
			continue
		}
		if !port.IsValidValue(get(path), p.Schema) {
			missing = append(missing, p)
		}
	}
	return missing
}
