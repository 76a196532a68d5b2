// Package inputmapper implements the LLM-assisted hydration of a
// workflow's entry nodes from the raw request text: it proposes a flat set
// of dotted-path bindings and only commits them to the ExecutionContext if
// every entry node's required input ports end up satisfied.
package inputmapper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/effector"
	"github.com/relayforge/relayforge/engine/exectx"
	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/port"
)

const systemMessage = "You populate a workflow's entry inputs from a user request. Given the " +
	"request text and the required input ports across one or more entry nodes, respond with a " +
	`single JSON object of the exact shape {"bindings": {"<nodeId>.<portPath>": <scalar>}}. ` +
	"Only primitive scalars (string, number, boolean) are permitted as values; express nested " +
	"objects or array elements as multiple dotted entries rather than a single structured value. " +
	"Omit any input you cannot confidently fill in. Respond with nothing else."

// EntryNode is one entry node's local DAG id and its design-time
// specification, as needed to enumerate required input ports.
type EntryNode struct {
	NodeID string
	Meta   *nodemeta.Metamodel
}

// Mapper implements the Input Mapper over a chat completion client.
type Mapper struct {
	Chat     effector.ChatClient
	Provider string
	Model    string
}

// New builds a Mapper dispatching through chat under the given
// provider/model pair.
func New(chat effector.ChatClient, provider, model string) *Mapper {
	return &Mapper{Chat: chat, Provider: provider, Model: model}
}

type bindingsResponse struct {
	Bindings map[string]json.RawMessage `json:"bindings"`
}

// Map prompts the LLM for bindings covering entryNodes' required input
// ports, then merges them into ectx only if doing so leaves every required
// input satisfied. On failure it returns a *core.Error with
// core.CodeInsufficientInputs (unsatisfied after a well-formed response) or
// core.CodeLLMStructuredParse (malformed response).
func (m *Mapper) Map(ctx context.Context, ectx *exectx.Context, requestText string, entryNodes []EntryNode) error {
	resp, err := m.Chat.Chat(ctx, effector.ChatRequest{
		Provider:      m.Provider,
		Model:         m.Model,
		SystemMessage: systemMessage,
		UserMessage:   buildPrompt(requestText, entryNodes),
		Temperature:   0,
		ResponseFormatHint: bindingsResponse{
			Bindings: map[string]json.RawMessage{"<nodeId>.<portPath>": json.RawMessage(`"value"`)},
		},
	})
	if err != nil {
		return err
	}

	var decoded bindingsResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Text)), &decoded); err != nil {
		return core.NewError(
			fmt.Errorf("input mapper: failed to parse bindings response: %w", err),
			core.CodeLLMStructuredParse,
			nil,
		)
	}

	bindings := scalarsOnly(decoded.Bindings)

	trial, err := ectx.Clone()
	if err != nil {
		return fmt.Errorf("input mapper: failed to clone context: %w", err)
	}
	if err := applyBindings(trial, bindings); err != nil {
		return fmt.Errorf("input mapper: failed to apply proposed bindings: %w", err)
	}

	unsatisfied := unsatisfiedInputs(trial, entryNodes)
	if len(unsatisfied) > 0 {
		return core.NewError(
			fmt.Errorf("input mapper: %d required input(s) remain unsatisfied", len(unsatisfied)),
			core.CodeInsufficientInputs,
			map[string]any{"unsatisfied": unsatisfied},
		)
	}

	return applyBindings(ectx, bindings)
}

// scalarsOnly drops any proposed binding whose value decodes to a JSON
// object or array: only primitive scalars (and null) are ever merged.
func scalarsOnly(raw map[string]json.RawMessage) map[string]any {
	out := make(map[string]any, len(raw))
	for path, rawVal := range raw {
		var v any
		if err := json.Unmarshal(rawVal, &v); err != nil {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			continue
		default:
			out[path] = v
		}
	}
	return out
}

func applyBindings(ectx *exectx.Context, bindings map[string]any) error {
	for path, value := range bindings {
		target := path
		if nodeID, portPath, ok := strings.Cut(path, "."); ok {
			target = node.InputPath(nodeID, portPath)
		}
		if err := ectx.Put(target, value); err != nil {
			return err
		}
	}
	return nil
}

// unsatisfiedInputs returns the "<nodeId>.<portKey>" paths of every
// required input port across entryNodes whose current value in ectx does
// not satisfy its schema.
func unsatisfiedInputs(ectx *exectx.Context, entryNodes []EntryNode) []string {
	var unsatisfied []string
	for _, en := range entryNodes {
		for _, p := range en.Meta.InputPorts {
			if !p.Schema.Required() {
				continue
			}
			path := node.InputPath(en.NodeID, p.Key)
			if !port.IsValidValue(ectx.Get(path), p.Schema) {
				unsatisfied = append(unsatisfied, path)
			}
		}
	}
	return unsatisfied
}

func buildPrompt(requestText string, entryNodes []EntryNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", requestText)
	b.WriteString("Entry nodes and their required input ports:\n")
	for _, en := range entryNodes {
		fmt.Fprintf(&b, "- node %s:\n", en.NodeID)
		for _, p := range en.Meta.InputPorts {
			if !p.Schema.Required() {
				continue
			}
			shape, _ := json.Marshal(p.Schema.ToPromptShape())
			fmt.Fprintf(&b, "  - %s.%s: %s\n", en.NodeID, p.Key, shape)
		}
	}
	return b.String()
}
