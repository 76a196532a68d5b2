package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/executor"
	"github.com/relayforge/relayforge/engine/orchestrator"
	"github.com/relayforge/relayforge/pkg/config"
	"github.com/relayforge/relayforge/pkg/logger"
)

const shutdownGrace = 10 * time.Second

// reportSink receives every finished run's report for aggregation;
// metrics.Recorder satisfies it.
type reportSink interface {
	ObserveReport(report *executor.Report, failed bool)
}

type server struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	recorder reportSink
	registry *prometheus.Registry
}

func newServer(cfg *config.Config, orch *orchestrator.Orchestrator, recorder reportSink, registry *prometheus.Registry) *server {
	return &server{cfg: cfg, orch: orch, recorder: recorder, registry: registry}
}

type orchestrateRequest struct {
	Request       string `json:"request" binding:"required"`
	Observability *bool  `json:"observability"`
}

type orchestrateResponse struct {
	ObservationID string           `json:"observationId"`
	Intent        string           `json:"intent,omitempty"`
	WorkflowID    string           `json:"workflowId,omitempty"`
	Output        map[string]any   `json:"output"`
	Report        *executor.Report `json:"report,omitempty"`
}

type errorResponse struct {
	Code          string           `json:"code"`
	Message       string           `json:"message"`
	ObservationID string           `json:"observationId"`
	Report        *executor.Report `json:"report,omitempty"`
}

func (s *server) buildRouter(ctx context.Context) *gin.Engine {
	if s.cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.POST("/v1/orchestrate", func(c *gin.Context) {
		s.handleOrchestrate(ctx, c)
	})
	return r
}

func (s *server) handleOrchestrate(baseCtx context.Context, c *gin.Context) {
	observationID := uuid.NewString()
	log := logger.FromContext(baseCtx).With("observation_id", observationID)

	var req orchestrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:          core.CodeValidation,
			Message:       err.Error(),
			ObservationID: observationID,
		})
		return
	}
	observability := s.cfg.Observability.EnabledByDefault
	if req.Observability != nil {
		observability = *req.Observability
	}

	ctx := logger.ContextWithLogger(c.Request.Context(), log)
	result, err := s.orch.Handle(ctx, req.Request)
	if err != nil {
		var report *executor.Report
		if result != nil {
			report = result.Report
		}
		s.recorder.ObserveReport(report, true)
		message := err.Error()
		code := core.ErrorCode(err)
		if code == "" {
			code = core.CodeEffectorPermanent
		}
		log.Error("orchestration failed", "code", code, "error", message)
		resp := errorResponse{Code: code, Message: message, ObservationID: observationID}
		if observability {
			resp.Report = report
		}
		c.JSON(statusFor(code), resp)
		return
	}

	s.recorder.ObserveReport(result.Report, false)
	log.Info("orchestration completed", "intent", result.Intent, "workflow", result.WorkflowID.String())
	resp := orchestrateResponse{
		ObservationID: observationID,
		Intent:        result.Intent,
		WorkflowID:    result.WorkflowID.String(),
		Output:        result.ExitValues,
	}
	if observability {
		resp.Report = result.Report
	}
	c.JSON(http.StatusOK, resp)
}

// statusFor maps the engine's error taxonomy onto HTTP statuses: caller
// problems map to 4xx, effector timeouts to 504, other effector failures
// to 502, everything else to 500.
func statusFor(code string) int {
	switch code {
	case core.CodeValidation:
		return http.StatusBadRequest
	case core.CodeNoIntent, core.CodeInsufficientInputs, core.CodeNoWorkflowForIntent:
		return http.StatusUnprocessableEntity
	case core.CodeEffectorTimeout:
		return http.StatusGatewayTimeout
	case core.CodeEffectorTransient, core.CodeEffectorPermanent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: s.buildRouter(ctx),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "addr", srv.Addr, "env", s.cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		log.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
