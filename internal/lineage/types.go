// Package lineage implements the append-only event log of every agent
// invocation: a file-backed recorder with an optional remote sink, parent
// linkage forming a forest rooted at each workflow, and OpenTelemetry
// tracing/metrics layered on top as a strictly additive mirror of the
// authoritative JSON record.
package lineage

import (
	"time"

	"github.com/forgeai/forge/internal/llm"
)

// Event is one recorded agent (or skill-level, e.g. Merge) invocation.
type Event struct {
	EventID        string            `json:"event_id"`
	WorkflowRunID  string            `json:"workflow_run_id"`
	ParentID       string            `json:"parent_id,omitempty"`
	AgentKind      string            `json:"agent_kind"`
	Step           int               `json:"step"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	InputSnapshot  map[string]string `json:"input_snapshot"`
	OutputSnapshot map[string]string `json:"output_snapshot"`
	Metrics        llm.Metrics       `json:"metrics"`
	Error          string            `json:"error,omitempty"`
}
