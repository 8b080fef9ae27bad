package team

import (
	"context"
	"log/slog"
	"time"

	"github.com/forgeai/forge/internal/agentrt"
	"github.com/forgeai/forge/internal/config"
	"github.com/forgeai/forge/internal/configtree"
)

// Result is the Team's aggregate outcome.
type Result struct {
	Success     bool
	Pending     bool   // true when execution paused at a requires_approval task
	PendingTask string // the task name that triggered the pause, set only when Pending
	Data        agentrt.Data
	NextTeam    string // "" ends the workflow
	Tasks       []agentrt.Result
}

// Team runs one TeamDef's task list sequentially against the Agent Runtime,
// then evaluates its routing table.
type Team struct {
	Runtime *agentrt.Runtime
	Logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
}

func NewTeam(runtime *agentrt.Runtime, logger *slog.Logger) *Team {
	if logger == nil {
		logger = slog.Default()
	}
	return &Team{Runtime: runtime, Logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs def's tasks in declared order, merging task k's output into
// context.InputData before task k+1 runs, retrying each failed task up to
// MaxRetries, then evaluates def.Routing against the aggregated results. If a
// task has requires_approval set and the service has an approval gate
// enabled, Execute stops before running that task and returns a pending
// Result instead of a routed one; automated execution is the default, so
// without a gate enabled requires_approval has no effect.
func (t *Team) Execute(ctx context.Context, rc agentrt.Context, effective configtree.Node, def *config.TeamDef) (Result, agentrt.Context, error) {
	result := Result{Success: true}
	gateEnabled := config.ApprovalGateEnabled(effective)

	for _, task := range def.Tasks {
		if task.RequiresApproval && gateEnabled {
			t.Logger.InfoContext(ctx, "team: pausing for approval", "team", def.TeamID, "task", task.TaskName)
			result.Pending = true
			result.PendingTask = task.TaskName
			return result, rc, nil
		}

		taskView := effective
		if task.Overlay.IsMap() {
			taskView = configtree.Merge(effective, task.Overlay)
		}

		var agentResult agentrt.Result
		var err error
		attempts := task.MaxRetries + 1

		for attempt := 0; attempt < attempts; attempt++ {
			agentResult, rc, err = t.Runtime.Process(ctx, rc, taskView, task.AgentKind)
			if err != nil {
				return Result{}, rc, err
			}
			if agentResult.Success {
				break
			}
			if attempt < attempts-1 {
				t.Logger.WarnContext(ctx, "team: task failed, retrying", "team", def.TeamID, "task", task.TaskName, "attempt", attempt+1)
				if err := t.sleep(ctx, time.Duration(task.RetryDelaySeconds)*time.Second); err != nil {
					return Result{}, rc, err
				}
			}
		}

		result.Tasks = append(result.Tasks, agentResult)
		if !agentResult.Success {
			result.Success = false
		}
		result.Data = agentResult.Data
	}

	result.NextTeam = t.route(def, result)
	return result, rc, nil
}

func (t *Team) route(def *config.TeamDef, result Result) string {
	evalCtx := evalContext{
		AllSuccess: result.Success,
		AnyFailure: !result.Success,
		Data:       configtree.FromInterface(map[string]interface{}{"data": dataToMap(result.Data)}),
	}

	for _, rule := range def.Routing.Rules {
		if evaluateCondition(rule.Condition, evalCtx, t.Logger) {
			return rule.NextTeam
		}
	}
	return def.Routing.Default
}

func dataToMap(d agentrt.Data) map[string]interface{} {
	out := map[string]interface{}{}
	if d.Files != nil {
		out["files"] = d.Files
	}
	if d.Changes != nil {
		changes := make([]interface{}, len(d.Changes))
		for i, c := range d.Changes {
			changes[i] = map[string]interface{}{
				"file_path":   c.FilePath,
				"type":        string(c.Type),
				"description": c.Description,
			}
		}
		out["changes"] = changes
	}
	if d.CoderChanges != nil {
		coderChanges := make([]interface{}, len(d.CoderChanges))
		for i, c := range d.CoderChanges {
			coderChanges[i] = map[string]interface{}{
				"file":    c.File,
				"success": c.Success,
			}
		}
		out["coder_changes"] = coderChanges
	}
	return out
}
