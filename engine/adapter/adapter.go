// Package adapter implements the LLM-backed Port Adapter: given a target
// node's unsatisfied required input ports and the candidate source nodes
// feeding it, it prompts a chat client for a dotted-path binding proposal,
// validates the response structurally, and retries once with a
// self-critique prompt before giving up.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/effector"
	"github.com/relayforge/relayforge/engine/executor"
	"github.com/relayforge/relayforge/engine/port"
)

const maxAttempts = 2

const systemMessage = "You are a workflow port-binding assistant. Given a target node's " +
	"unsatisfied required input ports and one or more source nodes' available output ports, " +
	"propose dotted-path bindings that satisfy every required target input. Respond with a " +
	"single JSON object of the exact shape " +
	`{"bindings": {"<sourceNodeId>.<sourcePortPath>": "<targetPortPath>"}} and nothing else.`

// Adapter implements executor.PortAdapter over a chat completion client.
type Adapter struct {
	Client   effector.ChatClient
	Provider string
	Model    string
}

// New builds an Adapter dispatching through client under the given
// provider/model pair.
func New(client effector.ChatClient, provider, model string) *Adapter {
	return &Adapter{Client: client, Provider: provider, Model: model}
}

type bindingsResponse struct {
	Bindings map[string]string `json:"bindings"`
}

// Adapt proposes bindings covering req.MissingInputs. It retries once,
// with a prompt quoting the prior attempt and the reason it was rejected,
// before failing with CodeAdaptationFailed.
func (a *Adapter) Adapt(ctx context.Context, req executor.AdaptRequest) (executor.AdaptResult, error) {
	var bindings map[string]string
	var lastErr error
	prompt := buildPrompt(req)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var err error
		bindings, err = a.propose(ctx, prompt)
		if err == nil {
			if err = validate(req, bindings); err == nil {
				return executor.AdaptResult{Bindings: bindings}, nil
			}
		}
		lastErr = err
		prompt = buildCritique(req, bindings, err)
	}

	return executor.AdaptResult{}, core.NewError(
		fmt.Errorf("port adapter: could not bind required inputs for node %s: %w", req.TargetNodeID, lastErr),
		core.CodeAdaptationFailed,
		map[string]any{"node": req.TargetNodeID},
	)
}

func (a *Adapter) propose(ctx context.Context, userMessage string) (map[string]string, error) {
	resp, err := a.Client.Chat(ctx, effector.ChatRequest{
		Provider:      a.Provider,
		Model:         a.Model,
		SystemMessage: systemMessage,
		UserMessage:   userMessage,
		Temperature:   0,
		ResponseFormatHint: bindingsResponse{
			Bindings: map[string]string{"<sourceNodeId>.<sourcePortPath>": "<targetPortPath>"},
		},
	})
	if err != nil {
		return nil, err
	}
	var decoded bindingsResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Text)), &decoded); err != nil {
		return nil, fmt.Errorf("port adapter: failed to parse bindings response: %w", err)
	}
	return decoded.Bindings, nil
}

// validate applies the four checks a proposal must pass: every target path
// resolves against the missing input ports, every source path resolves
// against its declared source node, source and target schemas are
// compatible, and every required target input ends up covered.
func validate(req executor.AdaptRequest, bindings map[string]string) error {
	if len(bindings) == 0 {
		return fmt.Errorf("port adapter: empty bindings proposal")
	}
	sourcesByNode := make(map[string][]*port.Port, len(req.Sources))
	for _, s := range req.Sources {
		sourcesByNode[s.NodeID] = s.Ports
	}
	covered := make(map[string]bool, len(req.MissingInputs))
	for srcKey, tgtPath := range bindings {
		srcNodeID, srcPath, ok := splitNodeKey(srcKey)
		if !ok {
			return fmt.Errorf("port adapter: malformed source key %q", srcKey)
		}
		srcPorts, ok := sourcesByNode[srcNodeID]
		if !ok {
			return fmt.Errorf("port adapter: unknown source node %q", srcNodeID)
		}
		srcSchema, err := port.ResolveByPath(srcPorts, srcPath)
		if err != nil {
			return fmt.Errorf("port adapter: source path %q: %w", srcKey, err)
		}
		tgtSchema, err := port.ResolveByPath(req.MissingInputs, tgtPath)
		if err != nil {
			return fmt.Errorf("port adapter: target path %q: %w", tgtPath, err)
		}
		if !port.IsCompatible(srcSchema, tgtSchema) {
			return fmt.Errorf("port adapter: %q -> %q is not schema-compatible", srcKey, tgtPath)
		}
		covered[tgtPath] = true
	}
	for _, p := range req.MissingInputs {
		if p.Schema.Required() && !covered[p.Key] {
			return fmt.Errorf("port adapter: required input %q left uncovered", p.Key)
		}
	}
	return nil
}

func splitNodeKey(key string) (nodeID, path string, ok bool) {
	for i, r := range key {
		if r == '.' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

func buildPrompt(req executor.AdaptRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target node: %s\n", req.TargetNodeID)
	b.WriteString("Unsatisfied required input ports:\n")
	for _, p := range req.MissingInputs {
		shape, _ := json.Marshal(p.Schema.ToPromptShape())
		fmt.Fprintf(&b, "- %s: %s\n", p.Key, shape)
	}
	b.WriteString("Candidate source nodes:\n")
	for _, s := range req.Sources {
		fmt.Fprintf(&b, "- node %s:\n", s.NodeID)
		for _, p := range s.Ports {
			shape, _ := json.Marshal(p.Schema.ToPromptShape())
			fmt.Fprintf(&b, "  - %s: %s\n", p.Key, shape)
		}
	}
	return b.String()
}

func buildCritique(req executor.AdaptRequest, prior map[string]string, rejectReason error) string {
	priorJSON, _ := json.Marshal(bindingsResponse{Bindings: prior})
	return fmt.Sprintf(
		"%s\nYour previous proposal %s was rejected: %v. Propose a corrected bindings object "+
			"that only references ports that exist and covers every unsatisfied required input.",
		buildPrompt(req), priorJSON, rejectReason,
	)
}
