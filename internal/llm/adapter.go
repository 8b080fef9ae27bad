package llm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/forgeai/forge/internal/ratelimit"
)

// ContinuationPolicy configures continuation stitching for a single agent
// call, resolved from the agent's configuration view.
type ContinuationPolicy struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxAttempts int  `mapstructure:"max_attempts"` // default 5
	TokenBuffer int  `mapstructure:"token_buffer"` // default 1000; reserved headroom subtracted from MaxTokens on retry
}

func DefaultContinuationPolicy() ContinuationPolicy {
	return ContinuationPolicy{Enabled: true, MaxAttempts: 5, TokenBuffer: 1000}
}

// RetryPolicy configures the Adapter's backoff loop for transient errors.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Result is what the Adapter hands back to the Agent Runtime: the final
// (possibly stitched) content, the terminal finish reason, and metrics
// aggregated across every retry/continuation hop.
type Result struct {
	Content      string
	FinishReason FinishReason
	Metrics      Metrics
}

// Adapter is the LLM Adapter component: provider-agnostic completion with
// continuation stitching, retry/backoff, and token accounting. Safe for
// concurrent use by multiple agents; it keeps no cross-call state besides
// the shared provider registry and rate limiter.
type Adapter struct {
	registry *Registry
	limiter  *ratelimit.Limiter
	retry    RetryPolicy
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

func NewAdapter(registry *Registry, limiter *ratelimit.Limiter) *Adapter {
	return &Adapter{
		registry: registry,
		limiter:  limiter,
		retry:    DefaultRetryPolicy(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Complete implements complete(provider, model, system, messages, params),
// with continuation stitching layered over a retrying single-hop call.
func (a *Adapter) Complete(ctx context.Context, providerName, model, system string, messages []Message, params Params, cont ContinuationPolicy) (Result, error) {
	provider, err := a.registry.Get(providerName)
	if err != nil {
		return Result{}, err
	}

	start := a.now()
	conversation := append([]Message(nil), messages...)

	var stitched string
	var metrics Metrics
	finish := FinishStop

	maxAttempts := cont.MaxAttempts
	if !cont.Enabled {
		maxAttempts = 0
	}

	for hop := 0; ; hop++ {
		resp, err := a.completeWithBackoff(ctx, provider, model, system, conversation, params)
		if err != nil {
			return Result{}, err
		}

		stitched += resp.Content
		metrics.PromptTokens += resp.Usage.PromptTokens
		metrics.CompletionTokens += resp.Usage.CompletionTokens
		finish = resp.FinishReason

		if resp.FinishReason != FinishLength {
			break
		}
		if hop >= maxAttempts {
			metrics.Truncated = true
			break
		}

		// Extend the conversation with the partial assistant message and a
		// terminal continuation request; the stitched message is still
		// emitted to the caller only once, as a single concatenated result.
		conversation = append(conversation,
			Message{Role: RoleAssistant, Content: resp.Content},
			Message{Role: RoleUser, Content: "Continue exactly from where you left off, maintaining the output format."},
		)
		if cont.TokenBuffer > 0 && params.MaxTokens > cont.TokenBuffer {
			params.MaxTokens -= cont.TokenBuffer
		}
		metrics.Continuations++
	}

	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens
	metrics.DurationMS = a.now().Sub(start).Milliseconds()

	return Result{Content: stitched, FinishReason: finish, Metrics: metrics}, nil
}

// completeWithBackoff retries a single provider call on transient errors
// with delay = min(maxDelay, initialDelay * 2^attempt) plus jitter, honoring
// a provider-supplied Retry-After when present.
func (a *Adapter) completeWithBackoff(ctx context.Context, provider Provider, model, system string, messages []Message, params Params) (Response, error) {
	estimate := estimateRequestTokens(system, messages)

	var lastErr error
	for attempt := 0; attempt <= a.retry.MaxRetries; attempt++ {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx, provider.Name(), int64(estimate)); err != nil {
				return Response{}, err
			}
		}

		resp, err := provider.Complete(ctx, model, system, messages, params)
		if err == nil {
			return resp, nil
		}

		var perr *ProviderError
		if !errors.As(err, &perr) || perr.Class != ClassTransient {
			return Response{}, err
		}
		lastErr = err

		if attempt == a.retry.MaxRetries {
			break
		}

		delay := a.backoffDelay(attempt)
		if perr.RetryAfter > 0 {
			delay = time.Duration(perr.RetryAfter) * time.Second
		}
		if err := a.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

func (a *Adapter) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(float64(a.retry.InitialDelay) * math.Pow(2, float64(attempt)))
	if delay > a.retry.MaxDelay {
		delay = a.retry.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 4 + 1))
	return delay + jitter
}

func estimateRequestTokens(system string, messages []Message) int {
	total := len(system) / 4
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total
}
