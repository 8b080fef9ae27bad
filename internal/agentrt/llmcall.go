package agentrt

import (
	"github.com/forgeai/forge/internal/config"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/ferr"
	"github.com/forgeai/forge/internal/llm"
)

// llmCallConfig is the subset of an agent's resolved view needed to issue
// one LLM Adapter call.
type llmCallConfig struct {
	Provider       string
	Model          string
	SystemPrompt   string
	PromptTemplate string
	Params         llm.Params
	Continuation   llm.ContinuationPolicy
}

// resolveLLMCallConfig resolves provider, model, temperature, and prompt
// template through config.ResolveParam's four-step precedence chain
// (per-agent override, llm_config.default_*, provider default_*, compiled
// default), and reads the remaining fields off the already-merged agent
// view, since those have no service- or provider-level default tier.
func resolveLLMCallConfig(effective configtree.Node, view configtree.Node, agentKind string) (llmCallConfig, error) {
	providerNode, err := config.ResolveParam(effective, agentKind, "provider", configtree.Absent)
	if err != nil {
		return llmCallConfig{}, ferr.New(ferr.KindConfig, agentKind, "resolveLLMCallConfig", "resolve provider", err)
	}
	modelNode, err := config.ResolveParam(effective, agentKind, "model", configtree.Absent)
	if err != nil {
		return llmCallConfig{}, ferr.New(ferr.KindConfig, agentKind, "resolveLLMCallConfig", "resolve model", err)
	}
	provider := providerNode.String()
	model := modelNode.String()
	if provider == "" || model == "" {
		return llmCallConfig{}, ferr.New(ferr.KindConfig, agentKind, "resolveLLMCallConfig", "provider and model are required", nil)
	}

	temperatureNode, err := config.ResolveParam(effective, agentKind, "temperature", configtree.Scalar(0.7))
	if err != nil {
		return llmCallConfig{}, ferr.New(ferr.KindConfig, agentKind, "resolveLLMCallConfig", "resolve temperature", err)
	}
	temperature, _ := temperatureNode.Float()

	promptTemplateNode, err := config.ResolveParam(effective, agentKind, "prompt_template", configtree.Absent)
	if err != nil {
		return llmCallConfig{}, ferr.New(ferr.KindConfig, agentKind, "resolveLLMCallConfig", "resolve prompt_template", err)
	}
	promptTemplate := promptTemplateNode.String()
	if promptTemplate == "" {
		return llmCallConfig{}, ferr.New(ferr.KindConfig, agentKind, "resolveLLMCallConfig", "prompt_template is required", nil)
	}

	maxTokens, ok := view.Get("max_tokens").Int()
	if !ok {
		maxTokens = 4096
	}
	thinkingBudget, _ := view.Get("extended_thinking_budget").Int()

	cont := llm.DefaultContinuationPolicy()
	continuationView := view.Get("continuation")
	if continuationView.IsMap() {
		if err := configtree.Decode(continuationView, &cont); err != nil {
			return llmCallConfig{}, ferr.New(ferr.KindConfig, agentKind, "resolveLLMCallConfig", "decode continuation policy", err)
		}
	}

	return llmCallConfig{
		Provider:       provider,
		Model:          model,
		SystemPrompt:   view.Get("system_prompt").String(),
		PromptTemplate: promptTemplate,
		Params: llm.Params{
			Temperature:            temperature,
			MaxTokens:              maxTokens,
			ExtendedThinkingBudget: thinkingBudget,
		},
		Continuation: cont,
	}, nil
}
