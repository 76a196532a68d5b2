// Package detector implements the intent detector: it embeds the
// incoming request text, retrieves the top-K closest catalog intents by
// cosine similarity, then asks a chat client to either select one of them
// or propose a brand new UPPER_SNAKE_CASE intent, with a confidence score
// and any user-supplied variables it can extract from the text.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relayforge/relayforge/engine/catalog"
	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/effector"
	"github.com/relayforge/relayforge/engine/intent"
)

// DefaultConfidenceThreshold is used when Detector.ConfidenceThreshold is
// left at its zero value.
const DefaultConfidenceThreshold = 0.4

// DefaultTopK is used when Detector.TopK is left at its zero value.
const DefaultTopK = 5

const systemMessage = "You are an intent classification assistant. Given a user's request and a " +
	"list of known candidate intents, either select the single best-matching intent by id, or, " +
	"if none of them fit, propose a new intent name in UPPER_SNAKE_CASE. Always return a " +
	"confidence between 0 and 1, and any concrete variables the user supplied (e.g. a " +
	"destination, a date) as short strings. Respond with a single JSON object of the exact " +
	`shape {"intentId": "<existing id, or empty>", "newIntentName": "<UPPER_SNAKE_CASE, or empty>", ` +
	`"confidence": <0..1>, "userVariables": {"<name>": "<value>"}} and nothing else.`

// Detector resolves free-form request text into a catalog intent.
type Detector struct {
	Catalog             catalog.Catalog
	Embed               effector.EmbedClient
	Chat                effector.ChatClient
	EmbedProvider       string
	EmbedModel          string
	ChatProvider        string
	ChatModel           string
	ConfidenceThreshold float64
	TopK                int
}

// Result is the outcome of a successful Detect call.
type Result struct {
	Intent        *intent.Metamodel
	New           bool
	Confidence    float64
	UserVariables map[string]string
}

type llmResponse struct {
	IntentID      string            `json:"intentId"`
	NewIntentName string            `json:"newIntentName"`
	Confidence    float64           `json:"confidence"`
	UserVariables map[string]string `json:"userVariables"`
}

// Detect classifies text against the catalog's known intents, proposing
// and persisting a new one when nothing fits well enough, and failing with
// CodeNoIntent when even the best candidate falls below the confidence
// threshold.
func (d *Detector) Detect(ctx context.Context, text string) (*Result, error) {
	vector, err := d.Embed.Embed(ctx, d.EmbedProvider, d.EmbedModel, text)
	if err != nil {
		return nil, core.NewError(err, core.CodeEffectorTransient, map[string]any{"stage": "embed"})
	}

	topK := d.TopK
	if topK == 0 {
		topK = DefaultTopK
	}
	matches, err := d.Catalog.SearchIntentsByVector(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	candidates := make([]*intent.Metamodel, 0, len(matches))
	for _, m := range matches {
		got, ok, err := d.Catalog.GetIntent(ctx, core.ID(m.ID))
		if err != nil {
			return nil, err
		}
		if ok {
			candidates = append(candidates, got)
		}
	}

	resp, err := d.Chat.Chat(ctx, effector.ChatRequest{
		Provider:      d.ChatProvider,
		Model:         d.ChatModel,
		SystemMessage: systemMessage,
		UserMessage:   buildPrompt(text, candidates),
		Temperature:   0,
		ResponseFormatHint: llmResponse{
			IntentID: "", NewIntentName: "", Confidence: 0,
			UserVariables: map[string]string{"example": "value"},
		},
	})
	if err != nil {
		return nil, core.NewError(err, core.CodeEffectorTransient, map[string]any{"stage": "classify"})
	}
	var decoded llmResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Text)), &decoded); err != nil {
		return nil, core.NewError(
			fmt.Errorf("intent detector: failed to parse classification response: %w", err),
			core.CodeLLMStructuredParse, nil,
		)
	}

	threshold := d.ConfidenceThreshold
	if threshold == 0 {
		threshold = DefaultConfidenceThreshold
	}
	if decoded.Confidence < threshold {
		return nil, core.NewError(
			fmt.Errorf("intent detector: confidence %.2f is below threshold %.2f", decoded.Confidence, threshold),
			core.CodeNoIntent, map[string]any{"confidence": decoded.Confidence},
		)
	}

	if decoded.IntentID != "" {
		for _, c := range candidates {
			if c.ID.String() == decoded.IntentID {
				return &Result{
					Intent: c, New: false,
					Confidence: decoded.Confidence, UserVariables: decoded.UserVariables,
				}, nil
			}
		}
		return nil, fmt.Errorf("intent detector: classifier selected unknown intent id %q", decoded.IntentID)
	}

	proposed := &intent.Metamodel{
		Name:        strings.ToUpper(strings.TrimSpace(decoded.NewIntentName)),
		AIGenerated: true,
		Embedding:   vector,
	}
	if err := proposed.Validate(); err != nil {
		return nil, core.NewError(err, core.CodeValidation, map[string]any{"name": decoded.NewIntentName})
	}
	if err := d.Catalog.PutIntent(ctx, proposed); err != nil {
		return nil, err
	}
	return &Result{
		Intent: proposed, New: true,
		Confidence: decoded.Confidence, UserVariables: decoded.UserVariables,
	}, nil
}

func buildPrompt(text string, candidates []*intent.Metamodel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n", text)
	if len(candidates) == 0 {
		b.WriteString("Known candidate intents: none.\n")
		return b.String()
	}
	b.WriteString("Known candidate intents:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s name=%s: %s\n", c.ID, c.Name, c.Description)
	}
	return b.String()
}
