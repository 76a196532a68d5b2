// Package intent holds the design-time IntentMetamodel: the catalog's
// record of one recognizable user goal, created either by a human catalog
// entry or by the intent detector proposing a new one at runtime.
package intent

import (
	"fmt"
	"regexp"

	"github.com/relayforge/relayforge/engine/core"
)

var namePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Metamodel is one intent the engine can recognize and route on.
type Metamodel struct {
	ID          core.ID   `json:"id"          yaml:"id"`
	Name        string    `json:"name"        yaml:"name"        validate:"required"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	AIGenerated bool      `json:"aiGenerated" yaml:"aiGenerated"`
	Embedding   []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty"`
}

// Validate checks that Name is UPPER_SNAKE_CASE, the convention both
// human-entered and AI-proposed intents must follow.
func (m *Metamodel) Validate() error {
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("intent: name %q is not UPPER_SNAKE_CASE", m.Name)
	}
	return nil
}
