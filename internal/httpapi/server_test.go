package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeai/forge/internal/agentrt"
	"github.com/forgeai/forge/internal/collab"
	"github.com/forgeai/forge/internal/config"
	"github.com/forgeai/forge/internal/lineage"
	"github.com/forgeai/forge/internal/llm"
	"github.com/forgeai/forge/internal/orchestrator"
	"github.com/forgeai/forge/internal/ratelimit"
	"github.com/forgeai/forge/internal/store"
)

type scriptedProvider struct{ content string }

func (p *scriptedProvider) Name() string { return "mock" }

func (p *scriptedProvider) Complete(ctx context.Context, model, system string, messages []llm.Message, params llm.Params) (llm.Response, error) {
	return llm.Response{Content: p.content, FinishReason: llm.FinishStop}, nil
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	projDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "a.py"), []byte("print(1)"), 0o644))

	reg := llm.NewRegistry()
	reg.Register("mock", &scriptedProvider{content: `{"changes":[{"file_path":"a.py","type":"modify","content":"import logging\nprint(1)"}]}`})
	adapter := llm.NewAdapter(reg, ratelimit.NewLimiter())

	registry := agentrt.NewRegistry()
	registry.Register(agentrt.NewDiscoveryAgent())
	registry.Register(agentrt.NewSolutionDesignerAgent())
	registry.Register(agentrt.NewCoderAgent())
	registry.Register(agentrt.NewFallbackCoderAgent())

	recorder := lineage.NewRecorder(t.TempDir(), nil, slog.Default())
	deps := agentrt.Deps{
		Adapter: adapter,
		Scanner: collab.NewFilesystemScanner(),
		Merger:  collab.NewTextMerger(),
		Writer:  collab.NewFilesystemAssetWriter(filepath.Join(projDir, "backups")),
	}
	runtime := agentrt.NewRuntime(registry, recorder, deps)
	orch := orchestrator.New(registry, deps, 4, slog.Default())

	wfStore, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { wfStore.Close() })

	serverDefaults, err := config.LoadYAMLString(`
llm_config:
  agents:
    discovery:
      input_paths: ["*.py"]
    solution_designer:
      model: mock-model
      prompt_template: "intent: {intent}"
    coder: {}
    fallback_coder: {}
orchestration:
  entry_team: discovery
  fallback_team: fallback
  max_teams: 10
teams:
  discovery:
    tasks:
      - task_name: scan
        agent_kind: discovery
    routing:
      default: solution
  solution:
    tasks:
      - task_name: design
        agent_kind: solution_designer
    routing:
      rules:
        - condition: any_failure
          next_team: fallback
        - condition: all_success
          next_team: coder
  coder:
    tasks:
      - task_name: apply
        agent_kind: coder
    routing:
      default: ""
  fallback:
    tasks:
      - task_name: apply
        agent_kind: fallback_coder
    routing:
      default: ""
`)
	require.NoError(t, err)

	srv := New(orch, runtime, recorder, wfStore, serverDefaults, t.TempDir(), slog.Default())
	return srv, projDir
}

func TestHandleSubmitAndPollUntilSuccess(t *testing.T) {
	srv, projDir := newTestServer(t)
	router := srv.router()

	body, _ := json.Marshal(map[string]interface{}{
		"project_path": projDir,
		"intent":       map[string]string{"description": "add logging"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflow", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var submitResp WorkflowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitResp))
	require.NotEmpty(t, submitResp.WorkflowID)
	assert.Equal(t, "pending", submitResp.Status)

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/workflow/"+submitResp.WorkflowID, nil)
		router.ServeHTTP(rec, req)
		var got WorkflowResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		return got.Status == "success"
	}, 2*time.Second, 10*time.Millisecond, "workflow should reach success")
}

func TestHandleSubmitRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.router()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflow", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetUnknownWorkflowIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflow/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealthReportsTeamsAvailable(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 4, health.TeamsAvailable)
}
