package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OpenAIProvider talks to the Chat Completions API directly over net/http.
type OpenAIProvider struct {
	apiKey     string
	host       string
	httpClient *http.Client
}

func NewOpenAIProvider(apiKey, host string) *OpenAIProvider {
	if host == "" {
		host = "https://api.openai.com"
	}
	return &OpenAIProvider{apiKey: apiKey, host: host, httpClient: &http.Client{}}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, model, system string, messages []Message, params Params) (Response, error) {
	req := openAIRequest{
		Model:       model,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}
	if system != "" {
		req.Messages = append(req.Messages, openAIMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, &ProviderError{Class: ClassPermanent, Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, &ProviderError{Class: ClassPermanent, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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
		var parsed openAIResponse
		_ = json.Unmarshal(raw, &parsed)
		msg := resp.Status
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		class := ClassPermanent
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusRequestTimeout:
			class = ClassTransient
		}
		return Response{}, &ProviderError{Class: class, StatusCode: resp.StatusCode, Message: msg}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, &ProviderError{Class: ClassPermanent, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return Response{}, &ProviderError{Class: ClassPermanent, Message: "no choices in response"}
	}

	return Response{
		Content:      parsed.Choices[0].Message.Content,
		FinishReason: mapOpenAIFinishReason(parsed.Choices[0].FinishReason),
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

func mapOpenAIFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishStop
	}
}
