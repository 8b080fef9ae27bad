package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeai/forge/internal/agentrt"
	"github.com/forgeai/forge/internal/collab"
	"github.com/forgeai/forge/internal/config"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/lineage"
	"github.com/forgeai/forge/internal/llm"
	"github.com/forgeai/forge/internal/ratelimit"
)

type scriptedProvider struct {
	responses []llm.Response
	errs      []error
	calls     int
}

func (p *scriptedProvider) Name() string { return "mock" }

func (p *scriptedProvider) Complete(ctx context.Context, model, system string, messages []llm.Message, params llm.Params) (llm.Response, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return llm.Response{}, p.errs[i]
	}
	return p.responses[i], nil
}

func newOrchestratorForTest(t *testing.T, solutionContent string) (*Orchestrator, *agentrt.Runtime, *lineage.Recorder, string) {
	t.Helper()
	projDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "a.py"), []byte("print(1)"), 0o644))

	reg := llm.NewRegistry()
	// One reply per attempt the design task's max_retries: 1 allows.
	reg.Register("mock", &scriptedProvider{
		responses: []llm.Response{
			{Content: solutionContent, FinishReason: llm.FinishStop},
			{Content: solutionContent, FinishReason: llm.FinishStop},
		},
	})
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
	orch := New(registry, deps, 4, slog.Default())
	return orch, runtime, recorder, projDir
}

func happyPathConfig(projectPath string) configtree.Node {
	yamlDoc := `
llm_config:
  default_provider: mock
  providers:
    mock:
      default_temperature: 0.2
  agents:
    discovery:
      input_paths: ["*.py"]
    solution_designer:
      model: mock-model
      prompt_template: "intent: {intent}"
      temperature: 0
      max_tokens: 500
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
        max_retries: 1
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
`
	n, err := config.LoadYAMLString(yamlDoc)
	if err != nil {
		panic(err)
	}
	return n
}

func TestHappyPathThreeStages(t *testing.T) {
	orch, runtime, recorder, projDir := newOrchestratorForTest(t, `{"changes":[{"file_path":"a.py","type":"modify","content":"import logging\nprint(1)"}]}`)

	wo := config.WorkOrder{ProjectPath: projDir, Intent: config.Intent{Description: "Add logging"}}
	effective, rc, graph, err := orch.InitializeWorkflow(happyPathConfig(projDir), wo)
	require.NoError(t, err)

	result := orch.ExecuteWorkflow(context.Background(), recorder, effective, rc, graph, runtime)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, []string{"discovery", "solution", "coder"}, result.ExecutionPath)
	require.True(t, result.TeamResults["coder"].Success)
	require.Len(t, result.TeamResults["coder"].Data.CoderChanges, 1)
	assert.True(t, result.TeamResults["coder"].Data.CoderChanges[0].Success)
}

func TestSolutionFailureRoutesToFallback(t *testing.T) {
	orch, runtime, recorder, projDir := newOrchestratorForTest(t, "this is prose, not json")

	wo := config.WorkOrder{ProjectPath: projDir, Intent: config.Intent{Description: "Add logging"}}
	effective, rc, graph, err := orch.InitializeWorkflow(happyPathConfig(projDir), wo)
	require.NoError(t, err)

	result := orch.ExecuteWorkflow(context.Background(), recorder, effective, rc, graph, runtime)
	assert.Equal(t, []string{"discovery", "solution", "fallback"}, result.ExecutionPath)
	assert.False(t, result.TeamResults["solution"].Success)
}

func TestSolutionTeamRetryAppendsOncePerAttempt(t *testing.T) {
	yamlDoc := `
llm_config:
  default_provider: mock
  providers:
    mock:
      default_temperature: 0.2
  agents:
    discovery:
      input_paths: ["*.py"]
    solution_designer:
      model: mock-model
      prompt_template: "intent: {intent}"
      temperature: 0
      max_tokens: 500
    coder: {}
    fallback_coder: {}
orchestration:
  entry_team: discovery
  fallback_team: fallback
  max_teams: 10
  error_handling:
    retry_teams: true
    max_retries: 1
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
`
	projDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "a.py"), []byte("print(1)"), 0o644))

	reg := llm.NewRegistry()
	reg.Register("mock", &staticProseProvider{})
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
	orch := New(registry, deps, 4, slog.Default())

	effective, err := config.LoadYAMLString(yamlDoc)
	require.NoError(t, err)
	graph, err := config.LoadTeamGraph(effective)
	require.NoError(t, err)
	rc := agentrt.NewContext("wf-team-retry", projDir, "x", nil)

	result := orch.ExecuteWorkflow(context.Background(), recorder, effective, rc, graph, runtime)
	assert.Equal(t, []string{"discovery", "solution", "solution", "fallback"}, result.ExecutionPath,
		"team-level retry must record one execution_path entry per attempt")
	assert.False(t, result.TeamResults["solution"].Success)
}

// staticProseProvider always returns non-JSON prose, regardless of how many
// times it's called, so team-level retries keep failing the same way.
type staticProseProvider struct{}

func (p *staticProseProvider) Name() string { return "mock" }

func (p *staticProseProvider) Complete(ctx context.Context, model, system string, messages []llm.Message, params llm.Params) (llm.Response, error) {
	return llm.Response{Content: "this is prose, not json", FinishReason: llm.FinishStop}, nil
}

func TestWorkflowPausesForApprovalWhenGateEnabled(t *testing.T) {
	orch, runtime, recorder, projDir := newOrchestratorForTest(t, `{"changes":[{"file_path":"a.py","type":"modify","content":"import logging\nprint(1)"}]}`)

	effective := happyPathConfig(projDir).
		With("orchestration.approval_gate_enabled", configtree.Scalar(true)).
		With("teams.coder.tasks", configtree.List([]configtree.Node{
			configtree.NewMap().
				With("task_name", configtree.Scalar("apply")).
				With("agent_kind", configtree.Scalar("coder")).
				With("requires_approval", configtree.Scalar(true)),
		}))

	wo := config.WorkOrder{ProjectPath: projDir, Intent: config.Intent{Description: "Add logging"}}
	effective, rc, graph, err := orch.InitializeWorkflow(effective, wo)
	require.NoError(t, err)

	result := orch.ExecuteWorkflow(context.Background(), recorder, effective, rc, graph, runtime)
	assert.Equal(t, "pending_approval", result.Status)
	assert.Equal(t, []string{"discovery", "solution", "coder"}, result.ExecutionPath)
	assert.True(t, result.TeamResults["coder"].Pending)
	assert.Equal(t, "apply", result.TeamResults["coder"].PendingTask)
}

func TestTeamCapTerminatesWithError(t *testing.T) {
	reg := llm.NewRegistry()
	adapter := llm.NewAdapter(reg, ratelimit.NewLimiter())
	registry := agentrt.NewRegistry()
	registry.Register(agentrt.NewDiscoveryAgent())

	recorder := lineage.NewRecorder(t.TempDir(), nil, slog.Default())
	deps := agentrt.Deps{Adapter: adapter, Scanner: collab.NewFilesystemScanner()}
	runtime := agentrt.NewRuntime(registry, recorder, deps)
	orch := New(registry, deps, 4, slog.Default())

	yamlDoc := `
llm_config:
  agents:
    discovery: {}
orchestration:
  entry_team: a
  max_teams: 3
teams:
  a:
    tasks:
      - task_name: scan
        agent_kind: discovery
    routing:
      default: b
  b:
    tasks:
      - task_name: scan
        agent_kind: discovery
    routing:
      default: a
`
	effective, err := config.LoadYAMLString(yamlDoc)
	require.NoError(t, err)

	projDir := t.TempDir()
	graph, err := config.LoadTeamGraph(effective)
	require.NoError(t, err)
	rc := agentrt.NewContext("wf-cap", projDir, "x", nil)

	result := orch.ExecuteWorkflow(context.Background(), recorder, effective, rc, graph, runtime)
	assert.Equal(t, "error", result.Status)
	assert.Len(t, result.ExecutionPath, 3)
	assert.Contains(t, result.Error, "team-cap exceeded")
}
