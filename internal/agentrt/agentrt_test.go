package agentrt

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeai/forge/internal/collab"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/lineage"
	"github.com/forgeai/forge/internal/llm"
	"github.com/forgeai/forge/internal/ratelimit"
)

type scriptedProvider struct {
	content string
}

func (p *scriptedProvider) Name() string { return "mock" }

func (p *scriptedProvider) Complete(ctx context.Context, model, system string, messages []llm.Message, params llm.Params) (llm.Response, error) {
	return llm.Response{Content: p.content, FinishReason: llm.FinishStop}, nil
}

func newTestAdapter(content string) *llm.Adapter {
	reg := llm.NewRegistry()
	reg.Register("mock", &scriptedProvider{content: content})
	return llm.NewAdapter(reg, ratelimit.NewLimiter())
}

func viewFor(provider, model, promptTemplate string) configtree.Node {
	return configtree.NewMap().
		With("provider", configtree.Scalar(provider)).
		With("model", configtree.Scalar(model)).
		With("prompt_template", configtree.Scalar(promptTemplate))
}

// effectiveForAgent builds the top-level tree resolveLLMCallConfig's
// config.ResolveParam calls walk: llm_config.agents.<agentKind>.<param>.
func effectiveForAgent(agentKind, provider, model, promptTemplate string) configtree.Node {
	return configtree.NewMap().With("llm_config", configtree.NewMap().With("agents",
		configtree.NewMap().With(agentKind, configtree.NewMap().
			With("provider", configtree.Scalar(provider)).
			With("model", configtree.Scalar(model)).
			With("prompt_template", configtree.Scalar(promptTemplate)))))
}

func TestSolutionDesignerParsesValidChanges(t *testing.T) {
	agent := NewSolutionDesignerAgent()
	deps := Deps{Adapter: newTestAdapter(`{"changes":[{"file_path":"a.py","type":"modify","content":"x = 1"}]}`)}
	rc := NewContext("wf1", "/proj", "rename vars", nil)
	view := viewFor("mock", "m1", "intent: {intent}")
	effective := effectiveForAgent(agent.Kind(), "mock", "m1", "intent: {intent}")

	data, msgs, _, err := agent.Run(context.Background(), rc, view, effective, deps)
	require.NoError(t, err)
	require.Len(t, data.Changes, 1)
	assert.Equal(t, "a.py", data.Changes[0].FilePath)
	assert.Equal(t, "intent: rename vars", msgs.User)
}

func TestSolutionDesignerMalformedReplyIsParseError(t *testing.T) {
	agent := NewSolutionDesignerAgent()
	deps := Deps{Adapter: newTestAdapter("not json at all")}
	rc := NewContext("wf1", "/proj", "rename vars", nil)
	view := viewFor("mock", "m1", "intent: {intent}")
	effective := effectiveForAgent(agent.Kind(), "mock", "m1", "intent: {intent}")

	data, _, _, err := agent.Run(context.Background(), rc, view, effective, deps)
	require.Error(t, err)
	assert.Equal(t, "not json at all", data.RawOutput)
}

func TestCoderAppliesCreateAndDeleteChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.py"), []byte("old"), 0o644))

	agent := NewCoderAgent()
	deps := Deps{
		Merger:           collab.NewTextMerger(),
		Writer:           collab.NewFilesystemAssetWriter(filepath.Join(dir, "backups")),
		RecordSkillEvent: func(ctx context.Context, kind string, metrics llm.Metrics, err error) {},
	}
	rc := NewContext("wf1", dir, "apply", nil).WithInputData(Data{
		Changes: []FileChange{
			{FilePath: "new.py", Type: ChangeCreate, Content: "print(1)"},
			{FilePath: "old.py", Type: ChangeDelete},
		},
	})

	data, _, _, err := agent.Run(context.Background(), rc, configtree.NewMap(), configtree.NewMap(), deps)
	require.NoError(t, err)
	require.Len(t, data.CoderChanges, 2)
	for _, r := range data.CoderChanges {
		assert.True(t, r.Success, r.Error)
	}

	content, err := os.ReadFile(filepath.Join(dir, "new.py"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(content))

	_, err = os.Stat(filepath.Join(dir, "old.py"))
	assert.True(t, os.IsNotExist(err))
}

func TestRuntimeProcessRecordsLineageAndAdvancesContext(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry()
	registry.Register(NewDiscoveryAgent())
	recorder := lineage.NewRecorder(dir, nil, slog.Default())

	rt := NewRuntime(registry, recorder, Deps{
		Scanner: collab.NewFilesystemScanner(),
		RecordSkillEvent: func(context.Context, string, llm.Metrics, error) {},
	})

	projDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "a.py"), []byte("x = 1"), 0o644))

	effective := configtree.NewMap().With("llm_config.agents.discovery", configtree.NewMap().
		With("input_paths", configtree.List([]configtree.Node{configtree.Scalar("*.py")})))

	rc := NewContext("wf-runtime-1", projDir, "discover", nil)
	result, nextRC, err := rt.Process(context.Background(), rc, effective, "discovery")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "x = 1", result.Data.Files["a.py"])
	assert.Len(t, nextRC.AgentSequence, 1)

	events := recorder.WorkflowEvents("wf-runtime-1")
	require.Len(t, events, 1)
	assert.Equal(t, "discovery", events[0].AgentKind)
	assert.Empty(t, events[0].ParentID)
}

func TestRuntimeProcessUnknownAgentKind(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry()
	recorder := lineage.NewRecorder(dir, nil, slog.Default())
	rt := NewRuntime(registry, recorder, Deps{})

	rc := NewContext("wf2", "/proj", "x", nil)
	_, _, err := rt.Process(context.Background(), rc, configtree.NewMap(), "nonexistent")
	require.Error(t, err)
}
