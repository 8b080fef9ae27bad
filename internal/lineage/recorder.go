package lineage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Recorder is the Lineage Recorder component: record(event) and
// workflow_events(workflow_run_id), backed by an append-only file sink and
// an optional remote sink. Recording never aborts a workflow; failures are
// logged and, for the remote sink, retried up to a bounded budget before
// being dropped with a warning.
type Recorder struct {
	root   string
	remote RemoteSink

	mu       sync.Mutex
	lastStep map[string]int    // workflow_run_id -> last emitted step
	lastID   map[string]string // workflow_run_id -> last emitted event id (for parent linkage)
	cache    map[string][]Event

	logger *slog.Logger
}

// RemoteSink posts a recorded event to an external endpoint, with the
// caller (Recorder) responsible for bounding retries.
type RemoteSink interface {
	Send(ctx context.Context, event Event) error
}

func NewRecorder(root string, remote RemoteSink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		root:     root,
		remote:   remote,
		lastStep: make(map[string]int),
		lastID:   make(map[string]string),
		cache:    make(map[string][]Event),
		logger:   logger,
	}
}

// CreateWorkflowContext establishes the root parent for a workflow: the
// first NextEvent call for this workflow_run_id will have no ParentID.
func (r *Recorder) CreateWorkflowContext(workflowRunID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastStep[workflowRunID] = 0
	r.lastID[workflowRunID] = ""
}

// NextEvent allocates the (step, event_id, parent_id) triple for the next
// event in a workflow: step is monotonic, parent_id is the last-emitted
// sibling or empty for the workflow root.
func (r *Recorder) NextEvent(workflowRunID string) (step int, eventID, parentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastStep[workflowRunID]++
	step = r.lastStep[workflowRunID]
	parentID = r.lastID[workflowRunID]
	eventID = uuid.NewString()
	r.lastID[workflowRunID] = eventID
	return step, eventID, parentID
}

// Record appends an event to the file backend, optionally forwards it to
// the remote sink with bounded retries, and mirrors it as an OpenTelemetry
// span. It never returns an error to the caller: lineage failures must not
// abort a workflow.
func (r *Recorder) Record(ctx context.Context, event Event) {
	r.mu.Lock()
	r.cache[event.WorkflowRunID] = append(r.cache[event.WorkflowRunID], event)
	r.mu.Unlock()

	if err := r.writeFile(event); err != nil {
		r.logger.Warn("lineage: failed to write event file", "workflow_run_id", event.WorkflowRunID, "step", event.Step, "err", err)
	}

	emitSpan(ctx, event)

	if r.remote == nil {
		return
	}
	const remoteRetryBudget = 3
	var lastErr error
	for attempt := 0; attempt < remoteRetryBudget; attempt++ {
		if lastErr = r.remote.Send(ctx, event); lastErr == nil {
			return
		}
	}
	r.logger.Warn("lineage: dropping event after exhausting remote retry budget", "workflow_run_id", event.WorkflowRunID, "step", event.Step, "err", lastErr)
}

func (r *Recorder) writeFile(event Event) error {
	dir := filepath.Join(r.root, event.WorkflowRunID, "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d_%s.json", event.Step, event.AgentKind))
	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WorkflowEvents returns every event recorded for a workflow, in emission
// (step) order. Readers see a consistent snapshot up to the latest flushed
// event; it does not read back from disk, since the in-process cache is
// authoritative for the Recorder's own lifetime.
func (r *Recorder) WorkflowEvents(workflowRunID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.cache[workflowRunID]...)
}
