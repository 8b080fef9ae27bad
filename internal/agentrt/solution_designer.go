package agentrt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/ferr"
	"github.com/forgeai/forge/internal/llm"
)

// SolutionDesignerAgent formats discovered files and the stated intent into
// a prompt, asks the LLM for a JSON document describing the needed file
// changes, and validates every entry before handing them to Coder.
type SolutionDesignerAgent struct{}

func NewSolutionDesignerAgent() *SolutionDesignerAgent { return &SolutionDesignerAgent{} }

func (a *SolutionDesignerAgent) Kind() string { return "solution_designer" }

func (a *SolutionDesignerAgent) Run(ctx context.Context, rc Context, view configtree.Node, effective configtree.Node, deps Deps) (Data, Messages, llm.Metrics, error) {
	cfg, err := resolveLLMCallConfig(effective, view, a.Kind())
	if err != nil {
		return Data{}, Messages{}, llm.Metrics{}, err
	}

	discoveryOutput := renderFiles(rc.InputData.Files)
	user, err := FormatTemplate(cfg.PromptTemplate, map[string]string{
		"discovery_data": discoveryOutput,
		"intent":         rc.IntentDesc,
		"target_files":   strings.Join(rc.TargetFiles, ", "),
	})
	if err != nil {
		return Data{}, Messages{}, llm.Metrics{}, err
	}

	messages := []llm.Message{{Role: llm.RoleUser, Content: user}}
	result, err := deps.Adapter.Complete(ctx, cfg.Provider, cfg.Model, cfg.SystemPrompt, messages, cfg.Params, cfg.Continuation)
	if err != nil {
		return Data{}, Messages{System: cfg.SystemPrompt, User: user}, llm.Metrics{}, err
	}

	msgs := Messages{System: cfg.SystemPrompt, User: user, Assistant: result.Content}

	changes, parseErr := parseChanges(result.Content)
	if parseErr != nil {
		return Data{RawOutput: result.Content}, msgs, result.Metrics, parseErr
	}

	return Data{Changes: changes}, msgs, result.Metrics, nil
}

func renderFiles(files map[string]string) string {
	var b strings.Builder
	for path, content := range files {
		fmt.Fprintf(&b, "=== %s ===\n%s\n", path, content)
	}
	return b.String()
}

type changesDocument struct {
	Changes []FileChange `json:"changes"`
}

// parseChanges extracts and validates the {changes: [FileChange]} document a
// Solution Designer reply is expected to contain. Any failure to extract,
// unmarshal, or validate every entry is a parse_error; the raw reply is
// preserved in Data.RawOutput by the caller for lineage/debugging.
func parseChanges(raw string) ([]FileChange, error) {
	candidate := ExtractJSON(raw)

	var doc changesDocument
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return nil, ferr.New(ferr.KindParse, "solution_designer", "parseChanges", "reply is not a valid {changes: [...]} document", err)
	}
	if len(doc.Changes) == 0 {
		return nil, ferr.New(ferr.KindParse, "solution_designer", "parseChanges", "reply declares no changes", nil)
	}
	for _, c := range doc.Changes {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Changes, nil
}
