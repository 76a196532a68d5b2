package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// StableJSONBytes renders v as canonical JSON: object keys sorted
// recursively, array order preserved. The canonical form is what port
// schemas embed verbatim in LLM prompts and catalog rows, so two
// structurally equal schemas must always render to the same bytes —
// encoding/json alone doesn't promise that for map-backed shapes.
//
// v is expected to be a JSON-shaped tree (maps keyed by string, slices,
// scalars); anything else falls through to encoding/json as-is.
func StableJSONBytes(v any) []byte {
	var b bytes.Buffer
	writeStable(&b, v)
	return b.Bytes()
}

func writeStable(b *bytes.Buffer, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeScalar(b, k)
			b.WriteByte(':')
			writeStable(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeStable(b, e)
		}
		b.WriteByte(']')
	default:
		writeScalar(b, v)
	}
}

func writeScalar(b *bytes.Buffer, v any) {
	encoded, err := json.Marshal(v)
	if err != nil {
		encoded, _ = json.Marshal(fmt.Sprint(v))
	}
	b.Write(encoded)
}
