// Package nodemeta holds the design-time specification of a node: the
// NodeMetamodel tagged-sum-type variants (AI{LLM,EMBEDDINGS},
// TOOL{REST,VECTOR_DB}, FLOW{GATEWAY}) and their version-bump policy.
package nodemeta

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/port"
)

var structValidate = validator.New()

// Kind discriminates the top-level NodeMetamodel family.
type Kind string

const (
	KindAILLM        Kind = "AI_LLM"
	KindAIEmbeddings Kind = "AI_EMBEDDINGS"
	KindToolREST     Kind = "TOOL_REST"
	KindToolVectorDB Kind = "TOOL_VECTOR_DB"
	KindFlowGateway  Kind = "FLOW_GATEWAY"
)

// Variant is a tagged sum type over the per-kind fields of a
// NodeMetamodel, replacing the original's polymorphic-deserialization tag.
type Variant interface {
	VariantKind() Kind
}

// LLMVariant is the AI{LLM} node payload.
type LLMVariant struct {
	Provider             string        `json:"provider"               yaml:"provider"               validate:"required"`
	ModelName            string        `json:"modelName"              yaml:"modelName"              validate:"required"`
	SystemPromptTemplate string        `json:"systemPromptTemplate,omitempty" yaml:"systemPromptTemplate,omitempty"`
	Parameters           LLMParameters `json:"parameters,omitempty"   yaml:"parameters,omitempty"`
}

func (LLMVariant) VariantKind() Kind { return KindAILLM }

// LLMParameters carries sampling/limit knobs passed through to the chat
// client on every invocation.
type LLMParameters struct {
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"   yaml:"maxTokens,omitempty"`
}

// EmbeddingsVariant is the AI{EMBEDDINGS} node payload.
type EmbeddingsVariant struct {
	Provider  string `json:"provider"  yaml:"provider"  validate:"required"`
	ModelName string `json:"modelName" yaml:"modelName" validate:"required"`
}

func (EmbeddingsVariant) VariantKind() Kind { return KindAIEmbeddings }

// VectorDBVariant is the TOOL{VECTOR_DB} node payload.
type VectorDBVariant struct {
	URI                 string  `json:"uri"                 yaml:"uri"                 validate:"required"`
	DatabaseName        string  `json:"databaseName"        yaml:"databaseName"        validate:"required"`
	CollectionName      string  `json:"collectionName"      yaml:"collectionName"      validate:"required"`
	IndexName           string  `json:"indexName"           yaml:"indexName"           validate:"required"`
	VectorField         string  `json:"vectorField"         yaml:"vectorField"         validate:"required"`
	Limit               int     `json:"limit"               yaml:"limit"               validate:"required,gt=0"`
	SimilarityThreshold float64 `json:"similarityThreshold" yaml:"similarityThreshold"`
}

func (VectorDBVariant) VariantKind() Kind { return KindToolVectorDB }

// RESTVariant is the TOOL{REST} node payload.
type RESTVariant struct {
	ServiceURI string            `json:"serviceUri" yaml:"serviceUri" validate:"required"`
	Method     string            `json:"method"     yaml:"method"     validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

func (RESTVariant) VariantKind() Kind { return KindToolREST }

// GatewayVariant is the FLOW{GATEWAY} node payload: it carries no fields of
// its own, only ports (pass-through copy of inputs to like-keyed outputs).
type GatewayVariant struct{}

func (GatewayVariant) VariantKind() Kind { return KindFlowGateway }

// QuantitativeDescriptor captures cost/latency/quality SLAs used by the
// router and by operators comparing candidate nodes.
type QuantitativeDescriptor struct {
	CostPerCallUSD float64 `json:"costPerCallUsd,omitempty" yaml:"costPerCallUsd,omitempty"`
	LatencyP95Ms   int     `json:"latencyP95Ms,omitempty"   yaml:"latencyP95Ms,omitempty"`
	QualityScore   float64 `json:"qualityScore,omitempty"   yaml:"qualityScore,omitempty"`
}

// Metamodel is the design-time specification of a node: the catalog's
// record of "what this node is", independent of any running instance.
type Metamodel struct {
	ID                     core.ID                `json:"id"                     yaml:"id"`
	FamilyID               string                 `json:"familyId"               yaml:"familyId"               validate:"required"`
	Version                *Version               `json:"-"                      yaml:"-"`
	VersionString          string                 `json:"version"                yaml:"version"`
	IsLatest               bool                   `json:"isLatest"               yaml:"isLatest"`
	Enabled                bool                   `json:"enabled"                yaml:"enabled"`
	NonFatal               bool                   `json:"nonFatal,omitempty"     yaml:"nonFatal,omitempty"`
	Name                   string                 `json:"name"                   yaml:"name"                   validate:"required"`
	Description            string                 `json:"description,omitempty"  yaml:"description,omitempty"`
	Author                 string                 `json:"author,omitempty"       yaml:"author,omitempty"`
	QualitativeDescriptor  string                 `json:"qualitativeDescriptor,omitempty" yaml:"qualitativeDescriptor,omitempty"`
	QuantitativeDescriptor QuantitativeDescriptor `json:"quantitativeDescriptor,omitempty" yaml:"quantitativeDescriptor,omitempty"`
	Embedding              []float32              `json:"embedding,omitempty"    yaml:"embedding,omitempty"`
	InputPorts             []*port.Port           `json:"inputPorts,omitempty"   yaml:"inputPorts,omitempty"`
	OutputPorts            []*port.Port           `json:"outputPorts,omitempty"  yaml:"outputPorts,omitempty"`
	Tags                   []string               `json:"tags,omitempty"         yaml:"tags,omitempty"`
	Variant                Variant                `json:"variant"                yaml:"variant"                validate:"required"`
}

// Kind returns the metamodel's top-level family.
func (m *Metamodel) Kind() Kind {
	if m.Variant == nil {
		return ""
	}
	return m.Variant.VariantKind()
}

// InputPortByKey returns the declared input port with the given key, or nil.
func (m *Metamodel) InputPortByKey(key string) *port.Port {
	return findPort(m.InputPorts, key)
}

// OutputPortByKey returns the declared output port with the given key, or nil.
func (m *Metamodel) OutputPortByKey(key string) *port.Port {
	return findPort(m.OutputPorts, key)
}

func findPort(ports []*port.Port, key string) *port.Port {
	for _, p := range ports {
		if p.Key == key {
			return p
		}
	}
	return nil
}

// Validate checks structural invariants that don't depend on sibling
// metamodels (family uniqueness of isLatest is enforced by the catalog,
// not here).
func (m *Metamodel) Validate() error {
	if m.Variant == nil {
		return fmt.Errorf("nodemeta: metamodel %s has no variant", m.Name)
	}
	if err := structValidate.Struct(m); err != nil {
		return fmt.Errorf("nodemeta: metamodel %s: %w", m.Name, err)
	}
	if err := validateVariantPorts(m); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(m.InputPorts))
	for _, p := range m.InputPorts {
		if _, dup := seen[p.Key]; dup {
			return fmt.Errorf("nodemeta: duplicate input port key %q on %s", p.Key, m.Name)
		}
		seen[p.Key] = struct{}{}
	}
	seen = make(map[string]struct{}, len(m.OutputPorts))
	for _, p := range m.OutputPorts {
		if _, dup := seen[p.Key]; dup {
			return fmt.Errorf("nodemeta: duplicate output port key %q on %s", p.Key, m.Name)
		}
		seen[p.Key] = struct{}{}
	}
	return nil
}

func validateVariantPorts(m *Metamodel) error {
	switch v := m.Variant.(type) {
	case EmbeddingsVariant:
		if len(m.InputPorts) != 1 || len(m.OutputPorts) != 1 {
			return fmt.Errorf("nodemeta: embeddings node %s must declare exactly one input and one output port", m.Name)
		}
	case VectorDBVariant:
		if len(m.InputPorts) == 0 {
			return fmt.Errorf("nodemeta: vector-db node %s must declare an input_vector port", m.Name)
		}
		_ = v
	}
	return nil
}
