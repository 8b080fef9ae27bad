package agentrt

// SequenceEntry is one append-only record of an agent invocation within a
// workflow, used to reconstruct the order agents ran in.
type SequenceEntry struct {
	AgentKind   string `json:"agent_kind"`
	ExecutionID string `json:"execution_id"`
	Step        int    `json:"step"`
}

// Context is the open mapping threaded through a workflow. It is never
// mutated in place: every stage derives a new Context from the prior one
// via With* methods, each returning a shallow copy with one field changed.
type Context struct {
	WorkflowRunID string
	ProjectPath   string
	IntentDesc    string
	TargetFiles   []string

	// InputData is the previous stage's output, keyed the same way as
	// Data in types.go (files/raw_output, changes, coder_changes) so each agent
	// kind reads only the fields it expects.
	InputData Data

	AgentSequence []SequenceEntry
	Step          int

	// Extra carries config-overlay-driven or ad hoc values (e.g. a
	// fallback team's forced temperature=0) without widening this struct
	// for every one-off need.
	Extra map[string]string
}

func NewContext(workflowRunID, projectPath, intentDesc string, targetFiles []string) Context {
	return Context{
		WorkflowRunID: workflowRunID,
		ProjectPath:   projectPath,
		IntentDesc:    intentDesc,
		TargetFiles:   targetFiles,
		Step:          0,
		Extra:         map[string]string{},
	}
}

// WithInputData returns a derived Context carrying a new stage's output.
func (c Context) WithInputData(d Data) Context {
	next := c
	next.InputData = d
	return next
}

// WithSequenceEntry returns a derived Context with the append-only agent
// sequence extended and Step advanced.
func (c Context) WithSequenceEntry(agentKind, executionID string) Context {
	next := c
	next.Step = c.Step + 1
	seq := make([]SequenceEntry, len(c.AgentSequence), len(c.AgentSequence)+1)
	copy(seq, c.AgentSequence)
	next.AgentSequence = append(seq, SequenceEntry{AgentKind: agentKind, ExecutionID: executionID, Step: next.Step})
	return next
}

// WithExtra returns a derived Context with one Extra key set, leaving the
// rest of the map untouched from the caller's point of view.
func (c Context) WithExtra(key, value string) Context {
	next := c
	extra := make(map[string]string, len(c.Extra)+1)
	for k, v := range c.Extra {
		extra[k] = v
	}
	extra[key] = value
	next.Extra = extra
	return next
}
