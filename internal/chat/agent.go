// Package chat runs the tool-calling conversation loop against the Gemini
// model. The agent hands the model the retrieval tools, lets it decide
// whether to search, and returns the final synthesized answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/lectern-ai/lectern/internal/log"
)

// ErrUpstreamUnavailable indicates the model API kept failing after all
// retries. Callers should map it to a 502-class response.
var ErrUpstreamUnavailable = errors.New("chat: model API unavailable")

// DefaultMaxTurns bounds the generate loop: one turn for tool requests, one
// for synthesizing the answer from tool results.
const DefaultMaxTurns = 2

// fallbackAnswer is returned when the model produces no text output.
const fallbackAnswer = "I wasn't able to produce an answer for that question. Please try rephrasing it."

const systemPrompt = `You are an AI assistant specialized in course materials and educational content.

Tool usage:
- Use search_course_content for questions about specific course content or detailed educational materials.
- Use get_course_outline for questions about a course's structure, its lessons, or its links.
- Use at most one search per question and synthesize the results into your answer.
- If a search returns no results, say so clearly instead of guessing.

Responses:
- Answer general knowledge questions directly without searching.
- Be brief, concise and focused. Do not mention the search process or the tools.
- Provide examples only when they aid understanding.`

// generateFunc matches genkit.Generate and is swapped out in tests.
type generateFunc func(ctx context.Context, g *genkit.Genkit, opts ...ai.GenerateOption) (*ai.ModelResponse, error)

// Config assembles an Agent.
type Config struct {
	Genkit      *genkit.Genkit
	ModelName   string       // e.g. "googleai/gemini-2.5-flash"
	Tools       []ai.ToolRef // retrieval tools available to the model
	MaxTurns    int          // 0 means DefaultMaxTurns
	Retry       RetryConfig  // zero value means DefaultRetryConfig
	RateLimiter *rate.Limiter
	Logger      *slog.Logger
}

// Agent executes queries through the model with tool access.
type Agent struct {
	g           *genkit.Genkit
	modelName   string
	tools       []ai.ToolRef
	maxTurns    int
	retryConfig RetryConfig
	rateLimiter *rate.Limiter
	logger      *slog.Logger
	generate    generateFunc
}

// New creates an Agent from cfg, filling in defaults for unset fields.
func New(cfg Config) *Agent {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialInterval == 0 {
		retry = DefaultRetryConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Agent{
		g:           cfg.Genkit,
		modelName:   cfg.ModelName,
		tools:       cfg.Tools,
		maxTurns:    maxTurns,
		retryConfig: retry,
		rateLimiter: cfg.RateLimiter,
		logger:      logger,
		generate:    genkit.Generate,
	}
}

// Execute answers query, giving the model the conversation transcript as
// context and the retrieval tools to call. It returns the model's final text.
func (a *Agent) Execute(ctx context.Context, transcript, query string) (string, error) {
	sys := systemPrompt
	if transcript != "" {
		sys += "\n\nPrevious conversation:\n" + transcript
	}

	opts := []ai.GenerateOption{
		ai.WithSystem(sys),
		ai.WithPrompt(query),
		ai.WithTools(a.tools...),
		ai.WithMaxTurns(a.maxTurns),
	}
	if a.modelName != "" {
		opts = append(opts, ai.WithModelName(a.modelName))
	}

	start := time.Now()
	resp, err := a.executeWithRetry(ctx, opts)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if text == "" {
		a.logger.Warn("model returned empty response", "query_length", len(query))
		return fallbackAnswer, nil
	}

	a.logger.Debug("query answered",
		"query_length", len(query),
		"answer_length", len(text),
		"elapsed", time.Since(start))
	return text, nil
}

// executeWithRetry calls generate with exponential backoff on transient
// errors. Each attempt waits on the rate limiter first so retries cannot
// burst past the configured request rate.
func (a *Agent) executeWithRetry(ctx context.Context, opts []ai.GenerateOption) (*ai.ModelResponse, error) {
	var lastErr error
	delay := a.retryConfig.InitialInterval

	for attempt := 0; attempt <= a.retryConfig.MaxRetries; attempt++ {
		if a.rateLimiter != nil {
			if err := a.rateLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := a.generate(ctx, a.g, opts...)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == a.retryConfig.MaxRetries {
			break
		}

		a.logger.Debug("retrying model call",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, a.retryConfig.MaxInterval)
		}
	}

	return nil, fmt.Errorf("%w: %d attempts failed: %v",
		ErrUpstreamUnavailable, a.retryConfig.MaxRetries+1, lastErr)
}
