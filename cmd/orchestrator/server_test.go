package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/engine/catalog/memory"
	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/detector"
	"github.com/relayforge/relayforge/engine/effector"
	"github.com/relayforge/relayforge/engine/inputmapper"
	"github.com/relayforge/relayforge/engine/intent"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/orchestrator"
	"github.com/relayforge/relayforge/engine/port"
	"github.com/relayforge/relayforge/engine/router"
	"github.com/relayforge/relayforge/engine/workflow"
	"github.com/relayforge/relayforge/pkg/config"
	"github.com/relayforge/relayforge/pkg/metrics"
)

type scriptedChatClient struct {
	responses []string
	calls     int
}

func (c *scriptedChatClient) Chat(context.Context, effector.ChatRequest) (effector.ChatResponse, error) {
	resp := c.responses[c.calls]
	c.calls++
	return effector.ChatResponse{Text: resp}, nil
}

type fakeEmbedClient struct{}

func (fakeEmbedClient) Embed(context.Context, string, string, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

// newTestServer assembles a server over an in-memory catalog seeded with
// one ECHO_TEXT intent handled by a single-gateway workflow, and a chat
// client scripted to classify then map.
func newTestServer(t *testing.T, chatResponses []string) *server {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.PutIntent(ctx, &intent.Metamodel{Name: "ECHO_TEXT", Embedding: []float32{1, 0}}))
	seeded, err := store.ListIntents(ctx)
	require.NoError(t, err)
	intentID := seeded[0].ID

	gatewayMeta := &nodemeta.Metamodel{
		FamilyID: "gw-family",
		Name:     "passthrough-gateway",
		Enabled:  true,
		Variant:  nodemeta.GatewayVariant{},
		InputPorts: []*port.Port{
			port.NewPort("text", port.NewString().Required().MustBuild(), port.StandardRolePassthrough),
		},
		OutputPorts: []*port.Port{
			port.NewPort("text", port.NewString().MustBuild(), port.StandardRolePassthrough),
		},
	}
	require.NoError(t, store.PutNode(ctx, gatewayMeta))
	require.NoError(t, store.PutWorkflow(ctx, &workflow.Metamodel{
		Enabled: true,
		Nodes: []workflow.Node{
			{ID: "n1", NodeMetamodelID: gatewayMeta.ID.String(), ExecutionType: core.ExecutionJoin},
		},
		HandledIntents: []workflow.HandledIntent{{IntentID: intentID.String(), Score: 1}},
	}))

	responses := make([]string, len(chatResponses))
	for i, r := range chatResponses {
		responses[i] = strings.ReplaceAll(r, "{{intentId}}", intentID.String())
	}
	chat := &scriptedChatClient{responses: responses}
	det := &detector.Detector{Catalog: store, Embed: fakeEmbedClient{}, Chat: chat}
	orch := orchestrator.New(
		store, det, router.New(store),
		inputmapper.New(chat, "openai", "gpt-4o"),
		effector.NewFactory(effector.Providers{}),
		orchestrator.Options{Temperature: 0},
	)

	cfg := &config.Config{
		Server:        config.ServerConfig{Port: 0, Env: "development"},
		Observability: config.ObservabilityConfig{EnabledByDefault: true},
	}
	registry := prometheus.NewRegistry()
	return newServer(cfg, orch, metrics.NewRecorder(registry), registry)
}

func Test_Server_Orchestrate(t *testing.T) {
	t.Run("Should return exit values and a report for a handled request", func(t *testing.T) {
		srv := newTestServer(t, []string{
			`{"intentId": "{{intentId}}", "confidence": 0.9, "userVariables": {}}`,
			`{"bindings": {"n1.text": "hello"}}`,
		})
		r := srv.buildRouter(context.Background())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/orchestrate", strings.NewReader(`{"request": "please echo hello"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp orchestrateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ObservationID)
		assert.Equal(t, "ECHO_TEXT", resp.Intent)
		assert.Equal(t, "hello", resp.Output["n1.text"])
		require.NotNil(t, resp.Report)
		assert.Equal(t, 1, resp.Report.Aggregate.TotalNodes)
	})

	t.Run("Should map NO_INTENT to 422 with the structured error envelope", func(t *testing.T) {
		srv := newTestServer(t, []string{
			`{"intentId": "", "confidence": 0.05, "userVariables": {}}`,
		})
		r := srv.buildRouter(context.Background())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/orchestrate", strings.NewReader(`{"request": "oajadfjaoifj"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, core.CodeNoIntent, resp.Code)
		assert.NotEmpty(t, resp.ObservationID)
	})

	t.Run("Should reject a body without a request field", func(t *testing.T) {
		srv := newTestServer(t, nil)
		r := srv.buildRouter(context.Background())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/orchestrate", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, core.CodeValidation, resp.Code)
	})

	t.Run("Should serve health and metrics endpoints", func(t *testing.T) {
		srv := newTestServer(t, nil)
		r := srv.buildRouter(context.Background())

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_EffectorTimeouts(t *testing.T) {
	t.Run("Should parse configured overrides and skip empty ones", func(t *testing.T) {
		timeouts, err := effectorTimeouts(config.ExecutorConfig{
			LLMTimeout:      "2 minutes",
			VectorDBTimeout: "5s",
		})

		require.NoError(t, err)
		assert.Equal(t, 2*time.Minute, timeouts[nodemeta.KindAILLM])
		assert.Equal(t, 5*time.Second, timeouts[nodemeta.KindToolVectorDB])
		assert.NotContains(t, timeouts, nodemeta.KindToolREST)
	})

	t.Run("Should return nil when nothing is configured", func(t *testing.T) {
		timeouts, err := effectorTimeouts(config.ExecutorConfig{})
		require.NoError(t, err)
		assert.Nil(t, timeouts)
	})

	t.Run("Should fail startup on an unparsable duration", func(t *testing.T) {
		_, err := effectorTimeouts(config.ExecutorConfig{RESTTimeout: "whenever"})
		require.Error(t, err)
	})
}
