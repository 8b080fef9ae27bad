package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkoukk/tiktoken-go"
)

// OllamaProvider talks to a local Ollama server's chat endpoint. Ollama
// does not report token usage, so prompt/completion tokens are estimated
// with tiktoken-go rather than left at zero.
type OllamaProvider struct {
	host       string
	httpClient *http.Client
	enc        *tiktoken.Tiktoken
}

func NewOllamaProvider(host string) *OllamaProvider {
	if host == "" {
		host = "http://localhost:11434"
	}
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &OllamaProvider{host: host, httpClient: &http.Client{}, enc: enc}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaResponse struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
}

func (p *OllamaProvider) Complete(ctx context.Context, model, system string, messages []Message, params Params) (Response, error) {
	req := ollamaRequest{
		Model:  model,
		Stream: false,
		Options: ollamaOptions{
			Temperature: params.Temperature,
			NumPredict:  params.MaxTokens,
		},
	}
	if system != "" {
		req.Messages = append(req.Messages, ollamaMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, &ProviderError{Class: ClassPermanent, Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Response{}, &ProviderError{Class: ClassPermanent, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
		class := ClassPermanent
		if resp.StatusCode >= 500 {
			class = ClassTransient
		}
		return Response{}, &ProviderError{Class: class, StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, &ProviderError{Class: ClassPermanent, Message: fmt.Sprintf("decode response: %v", err)}
	}

	promptText := system
	for _, m := range messages {
		promptText += m.Content
	}

	return Response{
		Content:      parsed.Message.Content,
		FinishReason: mapOllamaDoneReason(parsed.DoneReason),
		Usage: Usage{
			PromptTokens:     p.estimateTokens(promptText),
			CompletionTokens: p.estimateTokens(parsed.Message.Content),
		},
	}, nil
}

func (p *OllamaProvider) estimateTokens(text string) int {
	if p.enc == nil {
		return len(text) / 4
	}
	return len(p.enc.Encode(text, nil, nil))
}

func mapOllamaDoneReason(reason string) FinishReason {
	switch reason {
	case "length":
		return FinishLength
	case "", "stop":
		return FinishStop
	default:
		return FinishStop
	}
}
