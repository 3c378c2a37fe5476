package codunot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
)

// PromptKind distinguishes request shapes that share a channel mode.
type PromptKind string

const (
	KindGeneral   PromptKind = "general"
	KindRoast     PromptKind = "roast"
	KindImage     PromptKind = "image"
	KindChessChat PromptKind = "chess-chat"
)

// ErrProviderExhausted is returned once all retry attempts fail.
var ErrProviderExhausted = errors.New("provider retries exhausted")

const (
	retryBackoffStart = time.Second
	retryBackoffCap   = 8 * time.Second
)

// fallbackVariants are short in-character strings sent when the
// provider gives up. Stack traces never reach the chat platform.
var fallbackVariants = []string{
	"bruh my brain crashed 💀 try again?",
	"uhh i blanked out, say that again?",
	"my wifi brain moment 😵 one more time?",
	"error 404: thoughts not found. retry?",
}

// providerClient is the slice of the go-openai client the router uses,
// extracted for testing.
type providerClient interface {
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

type routeEntry struct {
	model       string
	temperature float32
}

// ProviderRouter dispatches prompts to the configured OpenAI-compatible
// provider. It owns the mode → (model, temperature) table, bounded
// retries with exponential backoff, and the fallback variant set.
type ProviderRouter struct {
	client  providerClient
	config  *ProviderConfig
	logger  *slog.Logger
	mu      sync.Mutex
	rng     *rand.Rand
	backoff func(time.Duration)
}

// NewProviderRouter builds a router around the shared HTTP client. The
// rand source is injected so tests can seed fallback selection.
func NewProviderRouter(
	config *ProviderConfig,
	httpClient *http.Client,
	rng *rand.Rand,
) *ProviderRouter {
	clientCfg := openai.DefaultConfig(config.Token)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	r := &ProviderRouter{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  config,
		rng:     rng,
		backoff: time.Sleep,
	}
	r.logger = newLogger("provider", config.LogLevel)
	return r
}

// route returns the model and temperature for a mode/kind pair, per the
// provider contract table.
func (r *ProviderRouter) route(mode Mode, kind PromptKind) routeEntry {
	switch kind {
	case KindImage:
		return routeEntry{model: r.config.VisionModel, temperature: 0.7}
	case KindChessChat:
		return routeEntry{model: r.config.TextModel, temperature: 0.6}
	case KindRoast:
		return routeEntry{model: r.config.TextModel, temperature: 1.3}
	}
	if mode == ModeRoast {
		return routeEntry{model: r.config.TextModel, temperature: 1.3}
	}
	return routeEntry{model: r.config.TextModel, temperature: 0.7}
}

// Fallback returns one of the fixed in-character failure strings.
func (r *ProviderRouter) Fallback() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fallbackVariants[r.rng.Intn(len(fallbackVariants))]
}

// maskKey scrubs the API key from strings destined for logs.
func (r *ProviderRouter) maskKey(s string) string {
	if r.config.Token == "" {
		return s
	}
	return strings.ReplaceAll(s, r.config.Token, "[redacted]")
}

// permanentStatus reports provider responses that must not be retried.
func permanentStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// Complete sends a text prompt and returns the stripped reply. Transient
// failures (429/500/503, transport errors) are retried with exponential
// backoff; permanent ones (400/401/403) abort immediately.
func (r *ProviderRouter) Complete(
	ctx context.Context,
	prompt string,
	mode Mode,
	kind PromptKind,
) (string, error) {
	entry := r.route(mode, kind)
	req := openai.ChatCompletionRequest{
		Model: entry.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: entry.temperature,
		MaxTokens:   r.config.MaxTokens,
	}
	return r.dispatch(ctx, req)
}

// CompleteVision sends a text+image prompt to the vision model. Image
// bytes are inlined as a base64 data URL per the provider contract.
func (r *ProviderRouter) CompleteVision(
	ctx context.Context,
	prompt string,
	image []byte,
	mimeType string,
) (string, error) {
	entry := r.route(ModeFunny, KindImage)
	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURL := fmt.Sprintf(
		"data:%s;base64,%s",
		mimeType,
		base64.StdEncoding.EncodeToString(image),
	)
	req := openai.ChatCompletionRequest{
		Model: entry.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: dataURL,
						},
					},
				},
			},
		},
		Temperature: entry.temperature,
		MaxTokens:   r.config.MaxTokens,
	}
	return r.dispatch(ctx, req)
}

func (r *ProviderRouter) dispatch(
	ctx context.Context,
	req openai.ChatCompletionRequest,
) (string, error) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = r.logger
	}
	logger = logger.With("model", req.Model)

	maxAttempts := r.config.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = DefaultProviderMaxRetries
	}

	delay := retryBackoffStart
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.config.RequestTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.config.RequestTimeout)
		}
		resp, err := r.client.CreateChatCompletion(attemptCtx, req)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if len(resp.Choices) == 0 {
				lastErr = errors.New("provider returned no choices")
			} else {
				reply := strings.TrimSpace(resp.Choices[0].Message.Content)
				if reply != "" {
					return reply, nil
				}
				lastErr = errors.New("provider returned empty reply")
			}
		} else {
			lastErr = errors.New(r.maskKey(err.Error()))
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && permanentStatus(apiErr.HTTPStatusCode) {
				logger.Warn(
					"permanent provider error, not retrying",
					"status", apiErr.HTTPStatusCode,
					tint.Err(lastErr),
				)
				return "", lastErr
			}
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < maxAttempts {
			logger.Warn(
				"provider call failed, backing off",
				"attempt", attempt,
				"delay", delay,
				tint.Err(lastErr),
			)
			r.backoff(delay)
			delay *= 2
			if delay > retryBackoffCap {
				delay = retryBackoffCap
			}
		}
	}

	logger.Error("provider retries exhausted", tint.Err(lastErr))
	return "", fmt.Errorf("%w: %s", ErrProviderExhausted, lastErr)
}
