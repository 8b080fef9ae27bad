package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeai/forge/internal/configtree"
)

func TestLoadYAMLStringExpandsEnv(t *testing.T) {
	os.Setenv("FORGE_TEST_MODEL", "gpt-5")
	defer os.Unsetenv("FORGE_TEST_MODEL")

	n, err := LoadYAMLString(`
llm_config:
  agents:
    coder:
      model: ${FORGE_TEST_MODEL}
      fallback: ${FORGE_TEST_MISSING:-claude}
`)
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", n.Get("llm_config.agents.coder.model").String())
	assert.Equal(t, "claude", n.Get("llm_config.agents.coder.fallback").String())
}

func TestAgentViewMergesProviderDefaults(t *testing.T) {
	n, err := LoadYAMLString(`
llm_config:
  providers:
    anthropic:
      default_temperature: 0.2
      host: api.anthropic.com
  agents:
    coder:
      provider: anthropic
      model: claude-opus
`)
	require.NoError(t, err)

	view, err := AgentView(n, "coder")
	require.NoError(t, err)
	assert.Equal(t, "claude-opus", view.Get("model").String())
	assert.Equal(t, "api.anthropic.com", view.Get("host").String())
}

func TestAgentViewUnknownProviderIsConfigError(t *testing.T) {
	n, err := LoadYAMLString(`
llm_config:
  agents:
    coder:
      provider: nonexistent
`)
	require.NoError(t, err)
	_, err = AgentView(n, "coder")
	assert.Error(t, err)
}

func TestResolveParamPrecedence(t *testing.T) {
	n, err := LoadYAMLString(`
llm_config:
  default_temperature: 0.7
  providers:
    anthropic:
      default_temperature: 0.3
  agents:
    coder:
      provider: anthropic
`)
	require.NoError(t, err)

	v, err := ResolveParam(n, "coder", "temperature", configtree.Absent)
	require.NoError(t, err)
	f, _ := v.Float()
	assert.Equal(t, 0.7, f)
}

func TestResolveParamMissingIsConfigError(t *testing.T) {
	n, err := LoadYAMLString(`llm_config: {}`)
	require.NoError(t, err)
	_, err = ResolveParam(n, "coder", "temperature", configtree.Absent)
	assert.Error(t, err)
}

func TestLoadTeamGraph(t *testing.T) {
	n, err := LoadYAMLString(`
orchestration:
  entry_team: discovery
  fallback_team: fallback
  max_teams: 10
teams:
  discovery:
    tasks:
      - agent_kind: discovery
    routing:
      default: solution
  solution:
    tasks:
      - agent_kind: solution_designer
    routing:
      rules:
        - condition: any_failure
          next_team: fallback
      default: coder
  coder:
    tasks:
      - agent_kind: coder
    routing:
      default: ""
  fallback:
    tasks:
      - agent_kind: fallback_coder
    routing:
      default: ""
`)
	require.NoError(t, err)

	graph, err := LoadTeamGraph(n)
	require.NoError(t, err)
	assert.Equal(t, "discovery", graph.EntryTeam)
	assert.Equal(t, "fallback", graph.Fallback)
	assert.Len(t, graph.Teams, 4)
	assert.Equal(t, "coder", graph.Teams["solution"].Routing.Default)
}

func TestYAMLRoundTrip(t *testing.T) {
	n, err := LoadYAMLString(`
a: 1
b:
  c: "x"
  d: [1, 2, 3]
`)
	require.NoError(t, err)

	out, err := ToYAML(n)
	require.NoError(t, err)

	n2, err := LoadYAMLString(string(out))
	require.NoError(t, err)
	assert.True(t, configtree.Equal(n, n2))
}
