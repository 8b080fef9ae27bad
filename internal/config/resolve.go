package config

import (
	"fmt"

	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/ferr"
)

// AgentView returns the subtree at llm_config.agents.<agentKind> overlaid
// onto the provider defaults at llm_config.providers.<provider>, so the
// agent runtime sees one flat view regardless of how the setting was
// ultimately supplied.
func AgentView(effective configtree.Node, agentKind string) (configtree.Node, error) {
	agentNode := effective.Get("llm_config.agents." + agentKind)
	if agentNode.IsAbsent() {
		return configtree.Absent, ferr.New(ferr.KindConfig, "config", "AgentView",
			fmt.Sprintf("unknown agent kind %q", agentKind), nil)
	}

	provider := agentNode.Get("provider").String()
	if provider == "" {
		provider = effective.Get("llm_config.default_provider").String()
	}
	if provider == "" {
		return agentNode, nil
	}

	providerDefaults := effective.Get("llm_config.providers." + provider)
	if providerDefaults.IsAbsent() {
		return configtree.Absent, ferr.New(ferr.KindConfig, "config", "AgentView",
			fmt.Sprintf("agent %q references unknown provider %q", agentKind, provider), nil)
	}
	if !providerDefaults.IsMap() && !providerDefaults.IsAbsent() {
		return configtree.Absent, ferr.New(ferr.KindConfig, "config", "AgentView",
			fmt.Sprintf("llm_config.providers.%s must be a map", provider), nil)
	}

	view := configtree.Merge(providerDefaults, agentNode)
	// The merged view must carry the resolved provider name even when it was
	// implied by llm_config.default_provider rather than set on the agent
	// itself, since callers resolve the provider/model pair from this view
	// alone.
	return view.With("provider", configtree.Scalar(provider)), nil
}

// ResolveParam resolves a single scalar agent parameter in the precedence
// precedence order:
//  1. per-agent override (llm_config.agents.<kind>.<param>)
//  2. llm_config.default_<param>
//  3. llm_config.providers.<provider>.default_<param>
//  4. compiledDefault
//
// Returns an error only when no value is found anywhere and compiledDefault
// is also Absent — a missing required parameter is a config_error surfaced
// at workflow start.
func ResolveParam(effective configtree.Node, agentKind, param string, compiledDefault configtree.Node) (configtree.Node, error) {
	agentNode := effective.Get("llm_config.agents." + agentKind)
	if v := agentNode.Get(param); !v.IsAbsent() {
		return v, nil
	}
	if v := effective.Get("llm_config.default_" + param); !v.IsAbsent() {
		return v, nil
	}
	provider := agentNode.Get("provider").String()
	if provider == "" {
		provider = effective.Get("llm_config.default_provider").String()
	}
	if provider != "" {
		if v := effective.Get("llm_config.providers." + provider + ".default_" + param); !v.IsAbsent() {
			return v, nil
		}
	}
	if !compiledDefault.IsAbsent() {
		return compiledDefault, nil
	}
	return configtree.Absent, ferr.New(ferr.KindConfig, "config", "ResolveParam",
		fmt.Sprintf("no value for required parameter %q on agent %q", param, agentKind), nil)
}
