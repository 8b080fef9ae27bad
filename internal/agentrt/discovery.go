package agentrt

import (
	"context"

	"github.com/forgeai/forge/internal/collab"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/ferr"
	"github.com/forgeai/forge/internal/llm"
)

// DiscoveryAgent is not an LLM call: it shells out to the project-scanner
// collaborator and parses its textual manifest into {path -> content}.
type DiscoveryAgent struct{}

func NewDiscoveryAgent() *DiscoveryAgent { return &DiscoveryAgent{} }

func (a *DiscoveryAgent) Kind() string { return "discovery" }

func (a *DiscoveryAgent) Run(ctx context.Context, rc Context, view configtree.Node, effective configtree.Node, deps Deps) (Data, Messages, llm.Metrics, error) {
	if rc.ProjectPath == "" {
		return Data{}, Messages{}, llm.Metrics{}, ferr.New(ferr.KindInput, "discovery", "Run", "context is missing project_path", nil)
	}

	var inputPaths, exclusions []string
	for _, n := range view.Get("input_paths").Items() {
		inputPaths = append(inputPaths, n.String())
	}
	for _, n := range view.Get("exclusions").Items() {
		exclusions = append(exclusions, n.String())
	}

	manifest, err := deps.Scanner.Scan(ctx, collab.ScanRequest{
		ProjectPath: rc.ProjectPath,
		InputPaths:  inputPaths,
		Exclusions:  exclusions,
	})
	if err != nil {
		return Data{}, Messages{}, llm.Metrics{}, ferr.New(ferr.KindIO, "discovery", "Run", "project scan failed", err)
	}

	files := collab.ParseManifest(manifest)
	return Data{Files: files, RawOutput: manifest}, Messages{}, llm.Metrics{}, nil
}
