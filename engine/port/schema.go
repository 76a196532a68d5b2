// Package port implements the structural type system for node inputs and
// outputs: PortSchema compatibility, value validation, and dotted-path
// access, plus the Port value itself and its node-kind-specific roles.
package port

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/relayforge/relayforge/engine/core"
)

// Kind is a PortSchema variant discriminator.
type Kind string

const (
	KindString  Kind = "STRING"
	KindInt     Kind = "INT"
	KindFloat   Kind = "FLOAT"
	KindBoolean Kind = "BOOLEAN"
	KindDate    Kind = "DATE"
	KindArray   Kind = "ARRAY"
	KindObject  Kind = "OBJECT"
)

func (k Kind) isPrimitive() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBoolean, KindDate:
		return true
	default:
		return false
	}
}

// Schema is a recursive structural type describing a port's shape. Values
// are built through Builder and, once built, are immutable.
type Schema struct {
	kind       Kind
	items      *Schema
	properties map[string]*Schema
	required   bool
	hasDefault bool
	defValue   any
}

// Kind returns the schema's variant.
func (s *Schema) Kind() Kind { return s.kind }

// Required reports whether a null value is disallowed for this schema.
func (s *Schema) Required() bool { return s.required }

// Items returns the ARRAY element schema, or nil for non-ARRAY schemas.
func (s *Schema) Items() *Schema { return s.items }

// Properties returns the OBJECT property map (never nil; empty for an open
// object). Callers must not mutate the returned map.
func (s *Schema) Properties() map[string]*Schema { return s.properties }

// DefaultValue returns the schema's default value and whether one was set.
func (s *Schema) DefaultValue() (any, bool) { return s.defValue, s.hasDefault }

// -----------------------------------------------------------------------------
// Builder
// -----------------------------------------------------------------------------

// InvalidSchemaError is returned by Build when a schema's default value
// fails its own validity check.
type InvalidSchemaError struct {
	Reason string
}

func (e *InvalidSchemaError) Error() string { return "invalid schema: " + e.Reason }

// Builder constructs immutable Schema values.
type Builder struct {
	s Schema
}

func newBuilder(kind Kind) *Builder {
	return &Builder{s: Schema{kind: kind}}
}

func NewString() *Builder  { return newBuilder(KindString) }
func NewInt() *Builder     { return newBuilder(KindInt) }
func NewFloat() *Builder   { return newBuilder(KindFloat) }
func NewBoolean() *Builder { return newBuilder(KindBoolean) }
func NewDate() *Builder    { return newBuilder(KindDate) }

// NewArray builds an ARRAY schema. items must be non-nil: ARRAY always
// carries exactly one items schema.
func NewArray(items *Schema) *Builder {
	b := newBuilder(KindArray)
	b.s.items = items
	return b
}

// NewObject builds an OBJECT schema over the given (possibly empty)
// property map. A nil map is normalized to empty (an "open" object that
// accepts any OBJECT value, per IsCompatible/IsValidValue rules).
func NewObject(properties map[string]*Schema) *Builder {
	b := newBuilder(KindObject)
	if properties == nil {
		properties = map[string]*Schema{}
	}
	b.s.properties = properties
	return b
}

// Required marks the schema as required (null is invalid).
func (b *Builder) Required() *Builder {
	b.s.required = true
	return b
}

// WithDefault attaches a default value. Build fails if the value does not
// validate against the schema being built.
func (b *Builder) WithDefault(v any) *Builder {
	b.s.hasDefault = true
	b.s.defValue = v
	return b
}

// Build finalizes the schema, validating any default value against it.
func (b *Builder) Build() (*Schema, error) {
	out := b.s
	if out.kind == KindArray && out.items == nil {
		return nil, &InvalidSchemaError{Reason: "ARRAY schema requires an items schema"}
	}
	if out.kind == KindObject && out.properties == nil {
		out.properties = map[string]*Schema{}
	}
	result := &out
	if out.hasDefault && !IsValidValue(out.defValue, result) {
		return nil, &InvalidSchemaError{Reason: "default value does not satisfy its own schema"}
	}
	return result, nil
}

// MustBuild panics if Build fails. Intended for static/test schema literals.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// -----------------------------------------------------------------------------
// Compatibility
// -----------------------------------------------------------------------------

// IsCompatible reports whether a value produced under src may feed a port
// typed tgt. Reflexive; INT<->FLOAT widen/narrow symmetrically; OBJECT
// width is asymmetric (a narrower source cannot feed a wider target unless
// the target is "open", i.e. declares no properties).
func IsCompatible(src, tgt *Schema) bool {
	if src == nil || tgt == nil {
		return false
	}
	if src.kind == tgt.kind {
		return isCompatibleSameKind(src, tgt)
	}
	if isNumericPair(src.kind, tgt.kind) {
		return true
	}
	return false
}

func isNumericPair(a, b Kind) bool {
	return (a == KindInt && b == KindFloat) || (a == KindFloat && b == KindInt)
}

func isCompatibleSameKind(src, tgt *Schema) bool {
	switch tgt.kind {
	case KindArray:
		return IsCompatible(src.items, tgt.items)
	case KindObject:
		return isObjectCompatible(src, tgt)
	default:
		return true
	}
}

func isObjectCompatible(src, tgt *Schema) bool {
	if len(tgt.properties) == 0 {
		return true // open object target accepts any OBJECT
	}
	for name, tgtProp := range tgt.properties {
		srcProp, ok := src.properties[name]
		if !ok {
			return false
		}
		if !IsCompatible(srcProp, tgtProp) {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Value validation
// -----------------------------------------------------------------------------

// IsValidValue reports whether v satisfies schema. Total: never panics,
// always returns a bool.
func IsValidValue(v any, schema *Schema) bool {
	if schema == nil {
		return false
	}
	if v == nil {
		return !schema.required
	}
	switch schema.kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindInt:
		return isIntValue(v)
	case KindFloat:
		return isFloatValue(v)
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindDate:
		return isDateValue(v)
	case KindArray:
		return isValidArray(v, schema)
	case KindObject:
		return isValidObject(v, schema)
	default:
		return false
	}
}

func isIntValue(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == float64(int64(n))
	case float32:
		return n == float32(int64(n))
	default:
		return false
	}
}

func isFloatValue(v any) bool {
	switch v.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return true
	default:
		return false
	}
}

func isDateValue(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return true
	case string:
		_, err := time.Parse(time.RFC3339, t)
		return err == nil
	default:
		_ = t
		return false
	}
}

func isValidArray(v any, schema *Schema) bool {
	items, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if !IsValidValue(item, schema.items) {
			return false
		}
	}
	return true
}

func isValidObject(v any, schema *Schema) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	// Closed by default: reject keys not declared in properties, unless
	// the schema itself declares no properties (treated as an open bag).
	if len(schema.properties) > 0 {
		for k := range m {
			if _, declared := schema.properties[k]; !declared {
				return false
			}
		}
	}
	for name, propSchema := range schema.properties {
		val, present := m[name]
		if !present {
			if propSchema.required {
				return false
			}
			continue
		}
		if !IsValidValue(val, propSchema) {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Dotted-path descent
// -----------------------------------------------------------------------------

// GetSchemaByPath descends OBJECT properties along a dotted path. "" (and a
// path consisting only of a trailing ".") returns schema itself. An unknown
// segment is an error.
func GetSchemaByPath(schema *Schema, path string) (*Schema, error) {
	path = strings.TrimSuffix(path, ".")
	if path == "" {
		return schema, nil
	}
	segments := strings.Split(path, ".")
	cur := schema
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("empty path segment at position %d in %q", i, path)
		}
		if cur == nil || cur.kind != KindObject {
			return nil, fmt.Errorf("cannot descend into non-object schema at segment %q", seg)
		}
		next, ok := cur.properties[seg]
		if !ok {
			return nil, fmt.Errorf("unknown schema path segment %q", seg)
		}
		cur = next
	}
	return cur, nil
}

// -----------------------------------------------------------------------------
// Stable serialization (used verbatim in LLM prompts and catalog storage)
// -----------------------------------------------------------------------------

// ToJSONShape renders schema into the compact JSON-shape map used both for
// LLM structured-output prompts and catalog persistence. Required/default
// metadata is intentionally omitted for the LLM-facing variant produced by
// ToPromptShape; ToJSONShape is the full, stable form.
func (s *Schema) ToJSONShape() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": string(s.kind)}
	if s.kind == KindArray {
		out["items"] = s.items.ToJSONShape()
	}
	if s.kind == KindObject {
		props := make(map[string]any, len(s.properties))
		for k, v := range s.properties {
			props[k] = v.ToJSONShape()
		}
		out["properties"] = props
	}
	if s.required {
		out["required"] = true
	}
	if s.hasDefault {
		out["default"] = s.defValue
	}
	return out
}

// StableJSON returns the canonical, key-sorted JSON bytes for this schema.
func (s *Schema) StableJSON() []byte {
	return core.StableJSONBytes(s.ToJSONShape())
}

// ToPromptShape renders a minimal "what JSON shape to answer with"
// description for LLM structured-output instructions: primitive types map
// to their bare type name, OBJECT maps to a key->type-shape map with no
// schema metadata, and ARRAY maps to a one-element-shape array.
func (s *Schema) ToPromptShape() any {
	if s == nil {
		return nil
	}
	switch s.kind {
	case KindObject:
		keys := make([]string, 0, len(s.properties))
		for k := range s.properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			out[k] = s.properties[k].ToPromptShape()
		}
		return out
	case KindArray:
		return []any{s.items.ToPromptShape()}
	default:
		return strings.ToLower(string(s.kind))
	}
}

// ParseAtPath is a small helper used by components that need to reason
// about an integer path segment (e.g. array indices inside a dotted path)
// without depending on engine/exectx. It mirrors the convention used
// there: a segment that parses as a non-negative integer addresses a list
// element.
func ParseAtPath(segment string) (int, bool) {
	if segment == "" {
		return 0, false
	}
	n, err := strconv.Atoi(segment)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
