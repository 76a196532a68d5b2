package nodemeta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/port"
)

func llmMetamodel(t *testing.T) *nodemeta.Metamodel {
	t.Helper()
	return &nodemeta.Metamodel{
		FamilyID: "summarizer",
		Name:     "Summarizer",
		Enabled:  true,
		Variant: nodemeta.LLMVariant{
			Provider:             "openai",
			ModelName:            "gpt-4o",
			SystemPromptTemplate: "Summarize {{topic}}",
		},
		InputPorts: []*port.Port{
			port.NewPort("prompt", port.NewString().Required().MustBuild(), port.LLMRoleUserPrompt),
		},
		OutputPorts: []*port.Port{
			port.NewPort("summary", port.NewString().MustBuild(), port.LLMRoleResponse),
		},
	}
}

func Test_Metamodel_Kind(t *testing.T) {
	t.Run("Should derive Kind from the variant", func(t *testing.T) {
		m := llmMetamodel(t)
		assert.Equal(t, nodemeta.KindAILLM, m.Kind())
	})
	t.Run("Should return empty Kind with no variant", func(t *testing.T) {
		m := &nodemeta.Metamodel{}
		assert.Equal(t, nodemeta.Kind(""), m.Kind())
	})
}

func Test_Metamodel_PortLookup(t *testing.T) {
	t.Run("Should find declared ports by key", func(t *testing.T) {
		m := llmMetamodel(t)
		assert.NotNil(t, m.InputPortByKey("prompt"))
		assert.Nil(t, m.InputPortByKey("missing"))
		assert.NotNil(t, m.OutputPortByKey("summary"))
	})
}

func Test_Metamodel_Validate(t *testing.T) {
	t.Run("Should pass for a well-formed LLM metamodel", func(t *testing.T) {
		require.NoError(t, llmMetamodel(t).Validate())
	})
	t.Run("Should reject a metamodel with no variant", func(t *testing.T) {
		m := &nodemeta.Metamodel{Name: "x"}
		require.Error(t, m.Validate())
	})
	t.Run("Should reject duplicate input port keys", func(t *testing.T) {
		m := llmMetamodel(t)
		m.InputPorts = append(m.InputPorts, port.NewPort("prompt", port.NewString().MustBuild(), port.LLMRoleUserPrompt))
		require.Error(t, m.Validate())
	})
	t.Run("Should require exactly one input and output port for embeddings", func(t *testing.T) {
		m := &nodemeta.Metamodel{
			FamilyID: "embedder",
			Name:     "Embedder",
			Variant:  nodemeta.EmbeddingsVariant{Provider: "openai", ModelName: "text-embedding-3-small"},
		}
		require.Error(t, m.Validate())
		m.InputPorts = []*port.Port{port.NewPort("text", port.NewString().MustBuild(), port.EmbeddingsRoleInputText)}
		m.OutputPorts = []*port.Port{port.NewPort("vector", port.NewArray(port.NewFloat().MustBuild()).MustBuild(), port.EmbeddingsRoleOutputVector)}
		require.NoError(t, m.Validate())
	})
}
