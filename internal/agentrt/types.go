// Package agentrt implements the Agent Runtime: given a Context, resolve
// the agent's configuration view, format a request from context+templates
// (or, for Discovery, shell out to the scanner collaborator), call the LLM
// Adapter, parse the structured reply, emit a lineage event, and return a
// standardized AgentResult. Only the request formatter and response parser
// differ across agent kinds; the surrounding algorithm is uniform.
package agentrt

import "github.com/forgeai/forge/internal/llm"

// ChangeType is the kind of modification a FileChange declares.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
)

// FileChange is a declarative record of a modification to a single file,
// produced by Solution Design and consumed by Coder.
type FileChange struct {
	FilePath    string     `json:"file_path"`
	Type        ChangeType `json:"type"`
	Description string     `json:"description,omitempty"`
	Content     string     `json:"content,omitempty"`
	Diff        string     `json:"diff,omitempty"`
}

// Validate enforces the FileChange invariant: create/modify must carry at
// least one of content or diff.
func (c FileChange) Validate() error {
	if (c.Type == ChangeCreate || c.Type == ChangeModify) && c.Content == "" && c.Diff == "" {
		return errInvalidFileChange(c.FilePath)
	}
	return nil
}

// CoderChangeResult is one entry of Coder's per-file outcome.
type CoderChangeResult struct {
	File       string `json:"file"`
	Success    bool   `json:"success"`
	BackupPath string `json:"backup_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Messages preserves the system/user/assistant turns an agent actually sent
// and received, for lineage snapshots and debugging.
type Messages struct {
	System    string `json:"system"`
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Data is a closed union of the three agent kinds' structured output
// shapes; each agent kind populates only its own group of fields below.
type Data struct {
	// Discovery
	Files     map[string]string `json:"files,omitempty"`
	RawOutput string            `json:"raw_output,omitempty"`

	// Solution Designer
	Changes []FileChange `json:"changes,omitempty"`

	// Coder
	CoderChanges []CoderChangeResult `json:"coder_changes,omitempty"`
}

// Result is the Agent Runtime's standardized return value.
//
// Invariant: Success == false implies Error is non-empty; Success == true
// implies Data is well-formed per agent kind.
type Result struct {
	Success  bool        `json:"success"`
	Data     Data        `json:"data"`
	Error    string      `json:"error,omitempty"`
	Messages Messages    `json:"messages"`
	Metrics  llm.Metrics `json:"metrics"`
}
