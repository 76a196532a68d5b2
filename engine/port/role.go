package port

import "fmt"

// Role is a node-kind-specific tag disambiguating how a Port participates
// in its effector. It is a tagged sum type: each node kind defines its own
// concrete Role type, all satisfying this interface.
type Role interface {
	RoleKind() string
	String() string
}

// LLMRole tags ports on an AI{LLM} node.
type LLMRole string

const (
	LLMRoleUserPrompt           LLMRole = "user_prompt"
	LLMRoleSystemPromptVariable LLMRole = "system_prompt_variable"
	LLMRoleResponse             LLMRole = "response"
)

func (r LLMRole) RoleKind() string { return "llm" }
func (r LLMRole) String() string   { return string(r) }

// EmbeddingsRole tags ports on an AI{EMBEDDINGS} node.
type EmbeddingsRole string

const (
	EmbeddingsRoleInputText    EmbeddingsRole = "input_text"
	EmbeddingsRoleOutputVector EmbeddingsRole = "output_vector"
)

func (r EmbeddingsRole) RoleKind() string { return "embeddings" }
func (r EmbeddingsRole) String() string   { return string(r) }

// VectorDBRole tags ports on a TOOL{VECTOR_DB} node.
type VectorDBRole string

const (
	VectorDBRoleInputVector VectorDBRole = "input_vector"
	VectorDBRoleResults     VectorDBRole = "results"
	VectorDBRoleFirstResult VectorDBRole = "first_result"
)

func (r VectorDBRole) RoleKind() string { return "vector_db" }
func (r VectorDBRole) String() string   { return string(r) }

// RESTRole tags ports on a TOOL{REST} node.
type RESTRole string

const (
	RESTRoleRequestBodyField     RESTRole = "request_body_field"
	RESTRoleRequestHeader        RESTRole = "request_header"
	RESTRoleRequestPathVariable  RESTRole = "request_path_variable"
	RESTRoleRequestQueryVariable RESTRole = "request_query_variable"
	RESTRoleResponseBodyField    RESTRole = "response_body_field"
	RESTRoleResponseStatus       RESTRole = "response_status"
)

func (r RESTRole) RoleKind() string { return "rest" }
func (r RESTRole) String() string   { return string(r) }

// StandardRole tags plain pass-through ports, used by FLOW{GATEWAY} nodes.
type StandardRole string

const StandardRolePassthrough StandardRole = "passthrough"

func (r StandardRole) RoleKind() string { return "standard" }
func (r StandardRole) String() string   { return string(r) }

// Port is a named, typed endpoint on a node.
type Port struct {
	Key          string
	Schema       *Schema
	Role         Role
	DefaultValue any
	HasDefault   bool
}

// NewPort builds a Port with no default value. Neither NewPort nor
// WithDefault validates a default value against Schema.
func NewPort(key string, schema *Schema, role Role) *Port {
	return &Port{Key: key, Schema: schema, Role: role}
}

// WithDefault attaches a default value to the port.
func (p *Port) WithDefault(v any) *Port {
	p.DefaultValue = v
	p.HasDefault = true
	return p
}

// ResolveByPath resolves a dotted path against a port set: the first
// segment selects the port by key, remaining segments descend its schema
// via GetSchemaByPath. Shared by edge-binding validation and the Port
// Adapter's proposal validation, both of which address ports the same way.
func ResolveByPath(ports []*Port, path string) (*Schema, error) {
	head, rest, _ := cutFirstSegment(path)
	for _, p := range ports {
		if p.Key == head {
			if rest == "" {
				return p.Schema, nil
			}
			return GetSchemaByPath(p.Schema, rest)
		}
	}
	return nil, fmt.Errorf("no port named %q", head)
}

func cutFirstSegment(path string) (head, rest string, found bool) {
	for i, r := range path {
		if r == '.' {
			return path[:i], path[i+1:], true
		}
	}
	return path, "", false
}
