package effector

import (
	"context"
	"fmt"
	"strings"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/exectx"
	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/port"
)

// LLM dispatches AI{LLM} nodes: renders a system prompt from
// systemPromptTemplate, concatenates USER_PROMPT inputs, optionally steers
// the model toward the single declared output port's JSON shape, and
// parses the response back into that schema.
type LLM struct {
	Client ChatClient
}

func (e *LLM) Invoke(ctx context.Context, ectx *exectx.Context, nodeID string, meta *nodemeta.Metamodel) error {
	variant, ok := meta.Variant.(nodemeta.LLMVariant)
	if !ok {
		return fmt.Errorf("effector: node %s is not an LLM node", nodeID)
	}
	systemVars := map[string]any{}
	var userParts []string
	for _, p := range meta.InputPorts {
		v := ectx.Get(node.InputPath(nodeID, p.Key))
		if v == nil && p.HasDefault {
			v = p.DefaultValue
		}
		role, _ := p.Role.(port.LLMRole)
		switch role {
		case port.LLMRoleSystemPromptVariable:
			systemVars[p.Key] = v
		case port.LLMRoleUserPrompt:
			if v != nil {
				userParts = append(userParts, fmt.Sprint(v))
			}
		}
	}
	systemMessage := renderTemplate(variant.SystemPromptTemplate, systemVars)
	userMessage := strings.Join(userParts, "\n")

	var outPort *port.Port
	if len(meta.OutputPorts) == 1 {
		outPort = meta.OutputPorts[0]
	}
	var formatHint any
	if outPort != nil {
		formatHint = outPort.Schema.ToPromptShape()
	}

	resp, err := e.Client.Chat(ctx, ChatRequest{
		Provider:           variant.Provider,
		Model:              variant.ModelName,
		SystemMessage:      systemMessage,
		UserMessage:        userMessage,
		Temperature:        variant.Parameters.Temperature,
		MaxTokens:          variant.Parameters.MaxTokens,
		ResponseFormatHint: formatHint,
	})
	if err != nil {
		return classifyProviderError(err, map[string]any{"node": nodeID})
	}
	if u := node.UsageFromContext(ctx); u != nil {
		u.Add(resp.PromptTokens, resp.CompletionTokens)
	}
	if outPort == nil {
		return nil
	}
	parsed, err := parseResponseIntoSchema(resp.Text, outPort.Schema)
	if err != nil {
		return core.NewError(err, core.CodeLLMStructuredParse, map[string]any{"node": nodeID, "port": outPort.Key})
	}
	return ectx.Put(node.OutputPath(nodeID, outPort.Key), parsed)
}
