package agentrt

import (
	"context"
	"strconv"
	"time"

	"github.com/forgeai/forge/internal/config"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/lineage"
	"github.com/forgeai/forge/internal/llm"
)

// Runtime ties the config resolution, agent lookup, invocation, and lineage
// recording into the single uniform algorithm every agent_kind goes through:
// only the Agent implementation's Run varies.
type Runtime struct {
	Registry *Registry
	Recorder *lineage.Recorder
	Deps     Deps
	now      func() time.Time
}

func NewRuntime(registry *Registry, recorder *lineage.Recorder, deps Deps) *Runtime {
	return &Runtime{Registry: registry, Recorder: recorder, Deps: deps, now: time.Now}
}

// Process resolves agentKind's configuration view, runs it, and records a
// lineage event regardless of outcome. The returned error is non-nil only
// for conditions that should abort the enclosing task (unknown agent_kind,
// config resolution failure); an agent-level failure instead comes back as
// Result{Success: false, Error: ...} with a nil error.
func (rt *Runtime) Process(ctx context.Context, rc Context, effective configtree.Node, agentKind string) (Result, Context, error) {
	agent, ok := rt.Registry.Get(agentKind)
	if !ok {
		return Result{}, rc, unknownAgentKind(agentKind)
	}

	view, err := config.AgentView(effective, agentKind)
	if err != nil {
		return Result{}, rc, err
	}

	step, eventID, parentID := rt.Recorder.NextEvent(rc.WorkflowRunID)
	deps := rt.Deps
	deps.RecordSkillEvent = rt.skillEventRecorder(rc.WorkflowRunID, eventID)

	started := rt.now()
	data, messages, metrics, runErr := agent.Run(ctx, rc, view, effective, deps)
	finished := rt.now()

	result := Result{Data: data, Messages: messages, Metrics: metrics}
	if runErr != nil {
		result.Success = false
		result.Error = runErr.Error()
	} else {
		result.Success = true
	}

	rt.Recorder.Record(ctx, lineage.Event{
		EventID:        eventID,
		WorkflowRunID:  rc.WorkflowRunID,
		ParentID:       parentID,
		AgentKind:      agentKind,
		Step:           step,
		StartedAt:      started,
		FinishedAt:     finished,
		InputSnapshot:  snapshotData(rc.InputData),
		OutputSnapshot: snapshotData(data),
		Metrics:        metrics,
		Error:          result.Error,
	})

	nextRC := rc.WithSequenceEntry(agentKind, eventID)
	if result.Success {
		nextRC = nextRC.WithInputData(data)
	}

	return result, nextRC, nil
}

// skillEventRecorder returns the Deps.RecordSkillEvent callback parented to
// the agent-level event just allocated, for Coder's per-file Merge calls.
func (rt *Runtime) skillEventRecorder(workflowRunID, parentEventID string) func(context.Context, string, llm.Metrics, error) {
	return func(ctx context.Context, kind string, metrics llm.Metrics, err error) {
		step, eventID, _ := rt.Recorder.NextEvent(workflowRunID)
		now := rt.now()
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		rt.Recorder.Record(ctx, lineage.Event{
			EventID:       eventID,
			WorkflowRunID: workflowRunID,
			ParentID:      parentEventID,
			AgentKind:     kind,
			Step:          step,
			StartedAt:     now,
			FinishedAt:    now,
			Metrics:       metrics,
			Error:         errMsg,
		})
	}
}

func snapshotData(d Data) map[string]string {
	snap := map[string]string{}
	if len(d.Files) > 0 {
		snap["file_count"] = strconv.Itoa(len(d.Files))
	}
	if len(d.Changes) > 0 {
		snap["change_count"] = strconv.Itoa(len(d.Changes))
	}
	if len(d.CoderChanges) > 0 {
		snap["coder_change_count"] = strconv.Itoa(len(d.CoderChanges))
	}
	return snap
}
