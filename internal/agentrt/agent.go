package agentrt

import (
	"context"

	"github.com/forgeai/forge/internal/collab"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/llm"
)

// Deps bundles the collaborators and core subsystems an Agent
// implementation may need. Not every agent kind uses every field:
// Discovery uses Scanner only, Solution Designer uses Adapter only, Coder
// uses Merger, Writer, and RecordSkillEvent (for its skill-level Merge calls).
type Deps struct {
	Adapter *llm.Adapter
	Scanner collab.Scanner
	Merger  collab.Merger
	Writer  collab.AssetWriter

	// RecordSkillEvent lets Coder record a skill-level lineage event for
	// each Merge sub-call, parented to the Coder's own event.
	RecordSkillEvent func(ctx context.Context, kind string, metrics llm.Metrics, err error)
}

// Agent is a registered agent_kind implementation. Run performs whatever
// that kind does (an LLM call, a scanner shellout, or both) and returns the
// structured Data plus the messages and metrics to fold into the Result and
// lineage event.
type Agent interface {
	Kind() string
	Run(ctx context.Context, rc Context, view configtree.Node, effective configtree.Node, deps Deps) (Data, Messages, llm.Metrics, error)
}

// Registry is the compile-time mapping from agent_kind to implementation
// the design notes call for, replacing the source's dynamic class lookup.
type Registry struct {
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

func (r *Registry) Register(a Agent) {
	r.agents[a.Kind()] = a
}

func (r *Registry) Get(kind string) (Agent, bool) {
	a, ok := r.agents[kind]
	return a, ok
}

func (r *Registry) IsRegistered(kind string) bool {
	_, ok := r.agents[kind]
	return ok
}
