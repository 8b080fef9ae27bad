// Package orchestrator drives one workflow's team graph end to end:
// initialization (merge overlays, preflight checks), the team-by-team
// driver loop with fallback and team-cap handling, and concurrency gating
// across workflows.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/forgeai/forge/internal/agentrt"
	"github.com/forgeai/forge/internal/config"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/ferr"
	"github.com/forgeai/forge/internal/lineage"
	"github.com/forgeai/forge/internal/team"
)

// WorkflowResult is the Orchestrator's terminal output for one workflow run.
type WorkflowResult struct {
	WorkflowID    string
	Status        string // pending | pending_approval | success | error
	ExecutionPath []string
	TeamResults   map[string]team.Result
	Error         string
}

// Orchestrator is process-wide state: the agent registry, the shared agent
// dependencies, and a bounded gate on concurrently in-flight workflows. Alongside the rate
// limiter (owned by the LLM Adapter) and the Workflow Store, this is the only
// process-wide mutable state; everything else is constructed per workflow.
type Orchestrator struct {
	Registry *agentrt.Registry
	Deps     agentrt.Deps
	Logger   *slog.Logger

	sem   *semaphore.Weighted
	group singleflight.Group
}

func New(registry *agentrt.Registry, deps agentrt.Deps, maxConcurrentWorkflows int64, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrentWorkflows <= 0 {
		maxConcurrentWorkflows = 10
	}
	return &Orchestrator{
		Registry: registry,
		Deps:     deps,
		Logger:   logger,
		sem:      semaphore.NewWeighted(maxConcurrentWorkflows),
	}
}

// InitializeWorkflow merges the precedence chain, assigns a workflow_run_id,
// loads the team graph, and preflights entry_team/agent_kind/provider-secret
// resolvability.
func (o *Orchestrator) InitializeWorkflow(serverDefaults configtree.Node, wo config.WorkOrder) (configtree.Node, agentrt.Context, *config.TeamGraph, error) {
	if err := wo.Validate(); err != nil {
		return configtree.Absent, agentrt.Context{}, nil, ferr.New(ferr.KindInput, "orchestrator", "InitializeWorkflow", err.Error(), nil)
	}

	systemOverlay := configtree.Absent
	if wo.SystemConfig != "" {
		n, err := config.LoadYAMLString(wo.SystemConfig)
		if err != nil {
			return configtree.Absent, agentrt.Context{}, nil, err
		}
		systemOverlay = n
	}
	appOverlay := configtree.Absent
	if wo.AppConfig != "" {
		n, err := config.LoadYAMLString(wo.AppConfig)
		if err != nil {
			return configtree.Absent, agentrt.Context{}, nil, err
		}
		appOverlay = n
	}

	effective := configtree.MergeAll(serverDefaults, systemOverlay, appOverlay)

	graph, err := config.LoadTeamGraph(effective)
	if err != nil {
		return configtree.Absent, agentrt.Context{}, nil, err
	}

	if err := o.preflight(effective, graph); err != nil {
		return configtree.Absent, agentrt.Context{}, nil, err
	}

	workflowRunID := "wf_" + uuid.NewString()
	rc := agentrt.NewContext(workflowRunID, wo.ProjectPath, wo.Intent.Description, wo.Intent.TargetFiles)

	return effective, rc, graph, nil
}

func (o *Orchestrator) preflight(effective configtree.Node, graph *config.TeamGraph) error {
	seenKinds := map[string]bool{}
	for _, def := range graph.Teams {
		for _, task := range def.Tasks {
			if seenKinds[task.AgentKind] {
				continue
			}
			seenKinds[task.AgentKind] = true
			if !o.Registry.IsRegistered(task.AgentKind) {
				return ferr.New(ferr.KindConfig, "orchestrator", "preflight",
					fmt.Sprintf("team %q references unregistered agent_kind %q", def.TeamID, task.AgentKind), nil)
			}
		}
	}

	for _, provider := range effective.Get("llm_config.providers").Fields() {
		envVar := effective.Get("llm_config.providers." + provider + ".api_key_env").String()
		if envVar == "" {
			continue
		}
		if _, ok := os.LookupEnv(envVar); !ok {
			return ferr.New(ferr.KindConfig, "orchestrator", "preflight",
				fmt.Sprintf("provider %q requires environment variable %q, which is not set", provider, envVar), nil)
		}
	}
	return nil
}

// ExecuteWorkflow runs the team-by-team driver loop starting at
// graph.EntryTeam: team-level retry when configured, fallback routing on
// terminal failure, and a hard stop at max_teams.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, recorder *lineage.Recorder, effective configtree.Node, rc agentrt.Context, graph *config.TeamGraph, runtime *agentrt.Runtime) WorkflowResult {
	recorder.CreateWorkflowContext(rc.WorkflowRunID)

	maxTeams := config.MaxTeams(effective)
	retryTeams := config.RetryTeams(effective)
	teamMaxRetries := config.TeamMaxRetries(effective)

	result := WorkflowResult{
		WorkflowID:  rc.WorkflowRunID,
		TeamResults: map[string]team.Result{},
	}

	teamRunner := team.NewTeam(runtime, o.Logger)
	currentTeamID := graph.EntryTeam

	for len(result.ExecutionPath) < maxTeams {
		def, ok := graph.Teams[currentTeamID]
		if !ok {
			result.Status = "error"
			result.Error = fmt.Sprintf("team %q is not defined", currentTeamID)
			return result
		}

		var teamResult team.Result
		var err error
		for attempt := 0; ; attempt++ {
			result.ExecutionPath = append(result.ExecutionPath, currentTeamID)
			teamResult, rc, err = teamRunner.Execute(ctx, rc, effective, def)
			if err != nil {
				result.Status = "error"
				result.Error = err.Error()
				return result
			}
			if teamResult.Success || !retryTeams || attempt >= teamMaxRetries {
				break
			}
			o.Logger.WarnContext(ctx, "orchestrator: retrying failed team", "team", currentTeamID, "attempt", attempt+1)
		}

		result.TeamResults[currentTeamID] = teamResult
		if teamResult.Pending {
			result.Status = "pending_approval"
			return result
		}
		if !teamResult.Success && result.Error == "" {
			result.Error = firstFailingTaskError(teamResult)
		}

		if teamResult.NextTeam == "" {
			if teamResult.Success {
				result.Status = "success"
			} else {
				result.Status = "error"
			}
			return result
		}
		currentTeamID = teamResult.NextTeam
	}

	result.Status = "error"
	result.Error = fmt.Sprintf("workflow exceeded team-cap exceeded (max_teams=%d)", maxTeams)
	return result
}

func firstFailingTaskError(result team.Result) string {
	for _, task := range result.Tasks {
		if !task.Success {
			return task.Error
		}
	}
	return ""
}

// Acquire gates concurrently in-flight workflows; callers must call Release
// when the workflow ends, even on error.
func (o *Orchestrator) Acquire(ctx context.Context) error {
	return o.sem.Acquire(ctx, 1)
}

func (o *Orchestrator) Release() {
	o.sem.Release(1)
}

// Lookup collapses concurrent GET lookups for the same workflow id still
// being initialized into a single call to fn.
func (o *Orchestrator) Lookup(workflowID string, fn func() (interface{}, error)) (interface{}, error) {
	v, err, _ := o.group.Do(workflowID, fn)
	return v, err
}
