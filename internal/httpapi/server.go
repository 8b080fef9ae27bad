// Package httpapi implements the HTTP service surface: the three routes
// the workflow API exposes, kept intentionally thin (no auth, no
// multi-tenant routing). Lifecycle (start, graceful shutdown on
// SIGINT/SIGTERM) follows a signal-driven shutdown.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/forgeai/forge/internal/agentrt"
	"github.com/forgeai/forge/internal/config"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/lineage"
	"github.com/forgeai/forge/internal/orchestrator"
	"github.com/forgeai/forge/internal/store"
	"github.com/forgeai/forge/pkg/logger"
)

// WorkflowResponse is the shape every workflow-facing route returns
// (POST /api/v1/workflow and GET /api/v1/workflow/{id}).
type WorkflowResponse struct {
	WorkflowID  string `json:"workflow_id"`
	Status      string `json:"status"`
	StoragePath string `json:"storage_path"`
	Error       string `json:"error,omitempty"`
}

// HealthResponse is GET /health's body.
type HealthResponse struct {
	Status          string `json:"status"`
	WorkflowsTracked int   `json:"workflows_tracked"`
	TeamsAvailable  int    `json:"teams_available"`
}

// Server wires the Orchestrator, Workflow Store, Lineage Recorder, and
// server-default configuration behind the three HTTP routes.
type Server struct {
	Orchestrator   *orchestrator.Orchestrator
	Runtime        *agentrt.Runtime
	Recorder       *lineage.Recorder
	Store          *store.Store
	ServerDefaults configtree.Node
	StorageRoot    string
	Logger         *slog.Logger

	httpServer *http.Server
}

func New(orch *orchestrator.Orchestrator, runtime *agentrt.Runtime, recorder *lineage.Recorder, st *store.Store, serverDefaults configtree.Node, storageRoot string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Orchestrator:   orch,
		Runtime:        runtime,
		Recorder:       recorder,
		Store:          st,
		ServerDefaults: serverDefaults,
		StorageRoot:    storageRoot,
		Logger:         logger,
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Post("/api/v1/workflow", s.handleSubmit)
	r.Get("/api/v1/workflow/{workflow_id}", s.handleGet)
	r.Get("/health", s.handleHealth)
	return r
}

// Start runs the HTTP server until ctx is canceled (typically by a SIGINT/
// SIGTERM signal), then shuts it down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router()}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("httpapi: listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		s.Logger.Info("httpapi: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

type submitRequest struct {
	ProjectPath  string       `json:"project_path"`
	Intent       config.Intent `json:"intent"`
	SystemConfig interface{}  `json:"system_config,omitempty"`
	AppConfig    interface{}  `json:"app_config,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, WorkflowResponse{Status: "error", Error: "malformed request body"})
		return
	}

	wo := config.WorkOrder{
		ProjectPath: req.ProjectPath,
		Intent:      req.Intent,
		SystemConfig: yamlOrEmpty(req.SystemConfig),
		AppConfig:    yamlOrEmpty(req.AppConfig),
	}

	effective, rc, graph, err := s.Orchestrator.InitializeWorkflow(s.ServerDefaults, wo)
	if err != nil {
		writeJSON(w, http.StatusOK, WorkflowResponse{Status: "error", Error: err.Error()})
		return
	}

	storagePath := fmt.Sprintf("%s/%s_%s", s.StorageRoot, time.Now().Format("060102_1504"), rc.WorkflowRunID)
	record := &store.WorkflowRecord{
		WorkflowID:  rc.WorkflowRunID,
		Status:      "pending",
		StoragePath: storagePath,
		StartedAt:   time.Now(),
	}
	if err := s.Store.Put(record); err != nil {
		writeJSON(w, http.StatusInternalServerError, WorkflowResponse{Status: "error", Error: "failed to persist workflow record"})
		return
	}

	// The workflow outlives this request/response cycle, so it must not
	// inherit r.Context(): net/http cancels that the instant this handler
	// returns, which happens right after the goroutine is spawned.
	ctx := logger.WithWorkflowID(context.Background(), rc.WorkflowRunID)
	go s.runWorkflow(ctx, effective, rc, graph, record)

	writeJSON(w, http.StatusOK, WorkflowResponse{WorkflowID: rc.WorkflowRunID, Status: "pending", StoragePath: storagePath})
}

func (s *Server) runWorkflow(ctx context.Context, effective configtree.Node, rc agentrt.Context, graph *config.TeamGraph, record *store.WorkflowRecord) {
	if err := s.Orchestrator.Acquire(ctx); err != nil {
		s.Logger.WarnContext(ctx, "httpapi: workflow could not acquire concurrency slot", "workflow_id", rc.WorkflowRunID, "err", err)
		_ = s.Store.SetStatus(rc.WorkflowRunID, "error", "workflow concurrency limit exceeded")
		return
	}
	defer s.Orchestrator.Release()

	result := s.Orchestrator.ExecuteWorkflow(ctx, s.Recorder, effective, rc, graph, s.Runtime)
	if err := s.Store.SetStatus(rc.WorkflowRunID, result.Status, result.Error); err != nil {
		s.Logger.WarnContext(ctx, "httpapi: failed to persist terminal workflow status", "workflow_id", rc.WorkflowRunID, "err", err)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflow_id")
	record, ok := s.Store.Get(workflowID)
	if !ok {
		writeJSON(w, http.StatusNotFound, WorkflowResponse{Error: "unknown workflow_id"})
		return
	}
	writeJSON(w, http.StatusOK, WorkflowResponse{
		WorkflowID:  record.WorkflowID,
		Status:      record.Status,
		StoragePath: record.StoragePath,
		Error:       record.Error,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	teamsAvailable := 0
	if graph, err := config.LoadTeamGraph(s.ServerDefaults); err == nil {
		teamsAvailable = len(graph.Teams)
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "healthy",
		WorkflowsTracked: s.Store.Tracked(),
		TeamsAvailable:   teamsAvailable,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// yamlOrEmpty re-serializes a decoded JSON overlay back to text so it can
// flow through config.LoadYAMLString: JSON is a syntactic subset of YAML, so
// this is a lossless bridge from the wire shape to the Config Store's
// overlay-loading path.
func yamlOrEmpty(v interface{}) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
