package team

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeai/forge/internal/agentrt"
	"github.com/forgeai/forge/internal/collab"
	"github.com/forgeai/forge/internal/config"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/lineage"
	"github.com/forgeai/forge/internal/llm"
)

func TestRouteAllSuccessAndAnyFailure(t *testing.T) {
	tm := NewTeam(nil, slog.Default())
	def := &config.TeamDef{
		TeamID: "t1",
		Routing: config.Routing{
			Rules: []config.RoutingRule{
				{Condition: "any_failure", NextTeam: "fallback"},
				{Condition: "all_success", NextTeam: "next"},
			},
			Default: "",
		},
	}

	next := tm.route(def, Result{Success: true})
	assert.Equal(t, "next", next)

	next = tm.route(def, Result{Success: false})
	assert.Equal(t, "fallback", next)
}

func TestRouteDottedPathCondition(t *testing.T) {
	tm := NewTeam(nil, slog.Default())
	def := &config.TeamDef{
		TeamID: "t1",
		Routing: config.Routing{
			Rules: []config.RoutingRule{
				{Condition: "data.changes.length > 0", NextTeam: "coder"},
			},
			Default: "end",
		},
	}

	withChanges := Result{Success: true, Data: agentrt.Data{Changes: []agentrt.FileChange{{FilePath: "a.py", Type: agentrt.ChangeCreate, Content: "x"}}}}
	assert.Equal(t, "coder", tm.route(def, withChanges))

	withoutChanges := Result{Success: true}
	assert.Equal(t, "end", tm.route(def, withoutChanges))
}

func TestExecuteRunsTaskAndRoutes(t *testing.T) {
	lineageDir := t.TempDir()
	projDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "a.py"), []byte("x = 1"), 0o644))

	registry := agentrt.NewRegistry()
	registry.Register(agentrt.NewDiscoveryAgent())
	recorder := lineage.NewRecorder(lineageDir, nil, slog.Default())
	runtime := agentrt.NewRuntime(registry, recorder, agentrt.Deps{
		Scanner:          collab.NewFilesystemScanner(),
		RecordSkillEvent: func(context.Context, string, llm.Metrics, error) {},
	})

	tm := NewTeam(runtime, slog.Default())
	tm.sleep = func(context.Context, time.Duration) error { return nil }

	def := &config.TeamDef{
		TeamID: "discovery",
		Tasks: []config.TaskSpec{
			{TaskName: "scan", AgentKind: "discovery", MaxRetries: 1},
		},
		Routing: config.Routing{Default: "next"},
	}

	effective := configtree.NewMap().With("llm_config.agents.discovery", configtree.NewMap())
	rc := agentrt.NewContext("wf1", projDir, "discover", nil)

	result, _, err := tm.Execute(context.Background(), rc, effective, def)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "next", result.NextTeam)
}

func TestExecuteRequiresApprovalHasNoEffectWithoutGate(t *testing.T) {
	projDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "a.py"), []byte("x = 1"), 0o644))

	registry := agentrt.NewRegistry()
	registry.Register(agentrt.NewDiscoveryAgent())
	recorder := lineage.NewRecorder(t.TempDir(), nil, slog.Default())
	runtime := agentrt.NewRuntime(registry, recorder, agentrt.Deps{
		Scanner:          collab.NewFilesystemScanner(),
		RecordSkillEvent: func(context.Context, string, llm.Metrics, error) {},
	})

	tm := NewTeam(runtime, slog.Default())
	def := &config.TeamDef{
		TeamID: "discovery",
		Tasks: []config.TaskSpec{
			{TaskName: "scan", AgentKind: "discovery", RequiresApproval: true},
		},
		Routing: config.Routing{Default: "next"},
	}

	effective := configtree.NewMap().With("llm_config.agents.discovery", configtree.NewMap())
	rc := agentrt.NewContext("wf1", projDir, "discover", nil)

	result, _, err := tm.Execute(context.Background(), rc, effective, def)
	require.NoError(t, err)
	assert.False(t, result.Pending, "automated execution is the default; requires_approval alone must not pause")
	assert.Equal(t, "next", result.NextTeam)
}

func TestExecutePausesForApprovalWhenGateEnabled(t *testing.T) {
	projDir := t.TempDir()

	registry := agentrt.NewRegistry()
	registry.Register(agentrt.NewDiscoveryAgent())
	recorder := lineage.NewRecorder(t.TempDir(), nil, slog.Default())
	runtime := agentrt.NewRuntime(registry, recorder, agentrt.Deps{
		Scanner:          collab.NewFilesystemScanner(),
		RecordSkillEvent: func(context.Context, string, llm.Metrics, error) {},
	})

	tm := NewTeam(runtime, slog.Default())
	def := &config.TeamDef{
		TeamID: "discovery",
		Tasks: []config.TaskSpec{
			{TaskName: "scan", AgentKind: "discovery", RequiresApproval: true},
		},
		Routing: config.Routing{Default: "next"},
	}

	effective := configtree.NewMap().
		With("llm_config.agents.discovery", configtree.NewMap()).
		With("orchestration.approval_gate_enabled", configtree.Scalar(true))
	rc := agentrt.NewContext("wf1", projDir, "discover", nil)

	result, gotRC, err := tm.Execute(context.Background(), rc, effective, def)
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.Equal(t, "scan", result.PendingTask)
	assert.Empty(t, result.NextTeam, "a pending team has not routed anywhere yet")
	assert.Equal(t, rc, gotRC, "paused before the task ran, so the context is untouched")
}
