package config

import "github.com/forgeai/forge/internal/configtree"

// Intent describes the refactoring the caller wants performed.
type Intent struct {
	Description  string   `json:"description" yaml:"description" jsonschema:"required"`
	TargetFiles  []string `json:"target_files,omitempty" yaml:"target_files,omitempty"`
}

// Overlays carries the two request-supplied configuration layers, applied
// on top of server defaults in this order: system, then app.
type Overlays struct {
	System string `json:"system_config,omitempty" yaml:"system_config,omitempty"`
	App    string `json:"app_config,omitempty" yaml:"app_config,omitempty"`
}

// WorkOrder is the client-submitted request that starts a workflow.
type WorkOrder struct {
	ProjectPath string `json:"project_path" yaml:"project_path" jsonschema:"required"`
	Intent      Intent `json:"intent" yaml:"intent" jsonschema:"required"`
	SystemConfig string `json:"system_config,omitempty" yaml:"system_config,omitempty"`
	AppConfig    string `json:"app_config,omitempty" yaml:"app_config,omitempty"`
}

// Validate checks the structural requirements a WorkOrder must satisfy
// before a workflow can be initialized.
func (w *WorkOrder) Validate() error {
	if w.ProjectPath == "" {
		return fieldError("project_path is required")
	}
	if w.Intent.Description == "" {
		return fieldError("intent.description is required")
	}
	return nil
}

func fieldError(msg string) error { return &validationError{msg} }

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

// RoutingRule is one entry of a team's routing table, evaluated in order.
type RoutingRule struct {
	Condition   string `json:"condition" yaml:"condition"`
	NextTeam    string `json:"next_team" yaml:"next_team"` // "" means workflow end
}

// Routing is a team's routing policy: an ordered rule list plus a default.
type Routing struct {
	Rules   []RoutingRule `json:"rules" yaml:"rules"`
	Default string        `json:"default" yaml:"default"` // "" means workflow end
}

// TaskSpec is one agent invocation within a team.
type TaskSpec struct {
	TaskName          string            `json:"task_name" yaml:"task_name"`
	AgentKind         string            `json:"agent_kind" yaml:"agent_kind"`
	RequiresApproval  bool              `json:"requires_approval" yaml:"requires_approval"`
	MaxRetries        int               `json:"max_retries" yaml:"max_retries"`
	RetryDelaySeconds int               `json:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	Overlay           configtree.Node   `json:"-" yaml:"-"`
}

// TeamDef is a team definition resolved from config; immutable per workflow.
type TeamDef struct {
	TeamID      string     `json:"team_id" yaml:"team_id"`
	DisplayName string     `json:"display_name" yaml:"display_name"`
	Tasks       []TaskSpec `json:"tasks" yaml:"tasks"`
	Routing     Routing    `json:"routing" yaml:"routing"`
}

// TeamGraph is the full set of team definitions loaded from config, plus the
// designated entry and fallback team ids.
type TeamGraph struct {
	Teams      map[string]*TeamDef
	EntryTeam  string
	Fallback   string // "" if no fallback declared
}
