// Command orchestrator runs the engine behind a minimal HTTP surface:
// POST /v1/orchestrate over an in-memory catalog, plus /healthz and
// /metrics. It exists so the engine is runnable end to end; it is not a
// designed API — auth, tenancy, and catalog CRUD stay out of scope.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relayforge/relayforge/engine/adapter"
	"github.com/relayforge/relayforge/engine/catalog/memory"
	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/detector"
	"github.com/relayforge/relayforge/engine/effector"
	"github.com/relayforge/relayforge/engine/executor"
	"github.com/relayforge/relayforge/engine/infra/embedclient"
	"github.com/relayforge/relayforge/engine/infra/httpclient"
	"github.com/relayforge/relayforge/engine/infra/llmclient"
	"github.com/relayforge/relayforge/engine/infra/vectorstore"
	"github.com/relayforge/relayforge/engine/inputmapper"
	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/orchestrator"
	"github.com/relayforge/relayforge/engine/registry"
	"github.com/relayforge/relayforge/engine/router"
	"github.com/relayforge/relayforge/pkg/config"
	"github.com/relayforge/relayforge/pkg/logger"
	"github.com/relayforge/relayforge/pkg/metrics"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	manager := config.NewManager(nil)
	cfg, err := manager.Load(ctx, config.NewDotEnvProvider(".env"), config.NewEnvProvider())
	if err != nil {
		return err
	}

	logCfg := logger.DefaultConfig()
	log := logger.NewLogger(logCfg)
	ctx = logger.ContextWithLogger(ctx, log)

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promRegistry)

	chat := llmclient.New(llmclient.Options{
		Providers: map[llmclient.ProviderName]llmclient.ProviderConfig{
			llmclient.ProviderName(cfg.LLM.Provider): {APIKey: cfg.LLM.APIKey},
		},
	})
	embed := embedclient.New(embedclient.Options{
		Providers: map[embedclient.ProviderName]embedclient.ProviderConfig{
			embedclient.ProviderName(cfg.Embeddings.Provider): {APIKey: cfg.Embeddings.APIKey},
		},
	})
	vectors := vectorstore.NewRedis()
	defer func() {
		if err := vectors.Close(); err != nil {
			log.Warn("failed to close vector store clients", "error", err)
		}
	}()

	factory := effector.NewFactory(effector.Providers{
		Chat:    chat,
		Embed:   embed,
		Vectors: vectors,
		HTTP:    httpclient.New(nil),
	})

	timeouts, err := effectorTimeouts(cfg.Executor)
	if err != nil {
		return err
	}

	cat := memory.New()
	det := &detector.Detector{
		Catalog:             cat,
		Embed:               embed,
		Chat:                chat,
		EmbedProvider:       cfg.Embeddings.Provider,
		EmbedModel:          cfg.Embeddings.Model,
		ChatProvider:        cfg.LLM.Provider,
		ChatModel:           cfg.LLM.Model,
		ConfidenceThreshold: cfg.Router.ConfidenceThreshold,
	}

	orch := orchestrator.New(
		cat,
		det,
		router.New(cat),
		inputmapper.New(chat, cfg.LLM.Provider, cfg.LLM.Model),
		factory,
		orchestrator.Options{
			Temperature: cfg.Router.Temperature,
			Nodes:       registry.New[*node.Instance](),
			Updates:     node.NewUpdateBus(),
			SchedulerOpts: &executor.Options{
				Adapter:      adapter.New(chat, cfg.LLM.Provider, cfg.LLM.Model),
				OnNodeReport: recorder.NodeObserver(),
				Timeouts:     timeouts,
			},
		},
	)

	srv := newServer(cfg, orch, recorder, promRegistry)
	return srv.run(ctx)
}

// effectorTimeouts parses the configured per-kind timeout overrides; an
// empty setting keeps the scheduler default for that kind.
func effectorTimeouts(cfg config.ExecutorConfig) (map[nodemeta.Kind]time.Duration, error) {
	settings := map[nodemeta.Kind]string{
		nodemeta.KindAILLM:        cfg.LLMTimeout,
		nodemeta.KindToolREST:     cfg.RESTTimeout,
		nodemeta.KindToolVectorDB: cfg.VectorDBTimeout,
	}
	timeouts := map[nodemeta.Kind]time.Duration{}
	for kind, raw := range settings {
		if raw == "" {
			continue
		}
		d, err := core.ParseHumanDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("config: %s timeout %q: %w", kind, raw, err)
		}
		timeouts[kind] = d
	}
	if len(timeouts) == 0 {
		return nil, nil
	}
	return timeouts, nil
}
