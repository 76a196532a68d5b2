package adapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/engine/adapter"
	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/effector"
	"github.com/relayforge/relayforge/engine/executor"
	"github.com/relayforge/relayforge/engine/port"
)

// sequencedChatClient returns one scripted response per call, in order.
type sequencedChatClient struct {
	responses []effector.ChatResponse
	calls     int
}

func (c *sequencedChatClient) Chat(context.Context, effector.ChatRequest) (effector.ChatResponse, error) {
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func sampleRequest() executor.AdaptRequest {
	return executor.AdaptRequest{
		TargetNodeID: "c",
		MissingInputs: []*port.Port{
			port.NewPort("text", port.NewString().Required().MustBuild(), port.StandardRolePassthrough),
		},
		Sources: []executor.SourcePorts{
			{
				NodeID: "a",
				Ports: []*port.Port{
					port.NewPort("greeting", port.NewString().MustBuild(), port.StandardRolePassthrough),
				},
			},
		},
	}
}

func Test_Adapter_Adapt(t *testing.T) {
	t.Run("Should return a valid first-attempt proposal", func(t *testing.T) {
		client := &sequencedChatClient{responses: []effector.ChatResponse{
			{Text: `{"bindings": {"a.greeting": "text"}}`},
		}}
		a := adapter.New(client, "openai", "gpt-4o")

		result, err := a.Adapt(context.Background(), sampleRequest())

		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a.greeting": "text"}, result.Bindings)
		assert.Equal(t, 1, client.calls)
	})

	t.Run("Should retry once with a critique prompt after an invalid first proposal", func(t *testing.T) {
		client := &sequencedChatClient{responses: []effector.ChatResponse{
			{Text: `{"bindings": {"ghost.greeting": "text"}}`},
			{Text: `{"bindings": {"a.greeting": "text"}}`},
		}}
		a := adapter.New(client, "openai", "gpt-4o")

		result, err := a.Adapt(context.Background(), sampleRequest())

		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a.greeting": "text"}, result.Bindings)
		assert.Equal(t, 2, client.calls)
	})

	t.Run("Should fail with ADAPTATION_FAILED after a second invalid proposal", func(t *testing.T) {
		client := &sequencedChatClient{responses: []effector.ChatResponse{
			{Text: `{"bindings": {"ghost.greeting": "text"}}`},
			{Text: `{"bindings": {}}`},
		}}
		a := adapter.New(client, "openai", "gpt-4o")

		_, err := a.Adapt(context.Background(), sampleRequest())

		require.Error(t, err)
		var coreErr *core.Error
		require.True(t, errors.As(err, &coreErr))
		assert.Equal(t, core.CodeAdaptationFailed, coreErr.Code)
		assert.Equal(t, 2, client.calls)
	})

	t.Run("Should reject a proposal that leaves a required input uncovered", func(t *testing.T) {
		client := &sequencedChatClient{responses: []effector.ChatResponse{
			{Text: `{"bindings": {}}`},
			{Text: `{"bindings": {}}`},
		}}
		a := adapter.New(client, "openai", "gpt-4o")

		_, err := a.Adapt(context.Background(), sampleRequest())

		require.Error(t, err)
		var coreErr *core.Error
		require.True(t, errors.As(err, &coreErr))
		assert.Equal(t, core.CodeAdaptationFailed, coreErr.Code)
	})

	t.Run("Should reject a proposal whose source and target schemas are incompatible", func(t *testing.T) {
		req := sampleRequest()
		req.Sources[0].Ports = []*port.Port{
			port.NewPort("count", port.NewInt().MustBuild(), port.StandardRolePassthrough),
		}
		client := &sequencedChatClient{responses: []effector.ChatResponse{
			{Text: `{"bindings": {"a.count": "text"}}`},
			{Text: `{"bindings": {"a.count": "text"}}`},
		}}
		a := adapter.New(client, "openai", "gpt-4o")

		_, err := a.Adapt(context.Background(), req)

		require.Error(t, err)
	})
}
