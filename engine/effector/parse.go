package effector

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relayforge/relayforge/engine/port"
)

// parseResponseIntoSchema converts an LLM's raw textual answer into a value
// that satisfies schema: primitive schemas coerce the trimmed text directly
// (no JSON envelope expected); OBJECT/ARRAY schemas expect the text to be a
// JSON document and are validated against schema after decoding.
func parseResponseIntoSchema(text string, schema *port.Schema) (any, error) {
	trimmed := strings.TrimSpace(text)
	switch schema.Kind() {
	case port.KindString:
		return trimmed, nil
	case port.KindBoolean:
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, fmt.Errorf("effector: %q is not a boolean: %w", trimmed, err)
		}
		return b, nil
	case port.KindInt:
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("effector: %q is not an integer: %w", trimmed, err)
		}
		return n, nil
	case port.KindFloat:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("effector: %q is not a number: %w", trimmed, err)
		}
		return f, nil
	case port.KindDate:
		if _, err := time.Parse(time.RFC3339, trimmed); err != nil {
			return nil, fmt.Errorf("effector: %q is not an RFC3339 timestamp: %w", trimmed, err)
		}
		return trimmed, nil
	default:
		return parseJSONIntoSchema(trimmed, schema)
	}
}

func parseJSONIntoSchema(text string, schema *port.Schema) (any, error) {
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, fmt.Errorf("effector: failed to parse JSON response: %w", err)
	}
	normalized := normalizeJSON(decoded)
	if !port.IsValidValue(normalized, schema) {
		return nil, fmt.Errorf("effector: parsed response does not satisfy the output schema")
	}
	return normalized, nil
}

// normalizeJSON converts the generic []interface{}/map[string]interface{}
// tree produced by encoding/json into the []any/map[string]any shapes
// port.IsValidValue expects (identical under Go's type system, restated
// here only so the call sites read as the same family of types).
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = normalizeJSON(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = normalizeJSON(sub)
		}
		return out
	default:
		return val
	}
}

// renderTemplate substitutes {{key}} placeholders in tmpl from vars,
// stringifying each value. Unknown placeholders are left untouched.
func renderTemplate(tmpl string, vars map[string]any) string {
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", fmt.Sprint(v))
	}
	return out
}
