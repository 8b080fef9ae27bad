package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// AnthropicProvider talks to the Messages API directly over net/http; there
// is no official Go SDK wired in, matching how the rest of this provider
// family is built.
type AnthropicProvider struct {
	apiKey     string
	host       string
	httpClient *http.Client
}

func NewAnthropicProvider(apiKey, host string) *AnthropicProvider {
	if host == "" {
		host = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		apiKey:     apiKey,
		host:       host,
		httpClient: &http.Client{},
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	System      string              `json:"system,omitempty"`
	Messages    []anthropicMessage  `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
	Thinking    *anthropicThinking  `json:"thinking,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
	Error      *anthropicError         `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, model, system string, messages []Message, params Params) (Response, error) {
	req := anthropicRequest{
		Model:       model,
		System:      system,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}
	if params.ExtendedThinkingBudget > 0 {
		req.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: params.ExtendedThinkingBudget}
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, &ProviderError{Class: ClassPermanent, Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, &ProviderError{Class: ClassPermanent, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, &ProviderError{Class: ClassTransient, Message: fmt.Sprintf("transport error: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &ProviderError{Class: ClassTransient, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, classifyAnthropicStatus(resp, raw)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, &ProviderError{Class: ClassPermanent, Message: fmt.Sprintf("decode response: %v", err)}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return Response{
		Content:      text,
		FinishReason: mapAnthropicStopReason(parsed.StopReason),
		Usage: Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
		},
	}, nil
}

func mapAnthropicStopReason(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	default:
		return FinishStop
	}
}

// classifyAnthropicStatus turns an HTTP error response into the retry
// classification the Adapter's backoff loop keys off of:
// 408/429/500/502/503/529 are transient, everything else (auth, bad request, content policy) is
// permanent.
func classifyAnthropicStatus(resp *http.Response, body []byte) *ProviderError {
	var parsed anthropicResponse
	_ = json.Unmarshal(body, &parsed)
	msg := resp.Status
	if parsed.Error != nil {
		msg = parsed.Error.Message
	}

	retryAfter := 0
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			retryAfter = secs
		}
	}

	class := ClassPermanent
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		class = ClassTransient
	}
	if resp.StatusCode == http.StatusRequestTimeout {
		class = ClassTransient
	}

	return &ProviderError{
		Class:      class,
		StatusCode: resp.StatusCode,
		RetryAfter: retryAfter,
		Message:    msg,
	}
}
