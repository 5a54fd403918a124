package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/csvquerygenie/genie/internal/errhandling"
	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Default configuration values for the chat generator
const (
	DefaultEndpoint    = "https://api.groq.com/openai/v1"
	DefaultModel       = "openai/gpt-oss-20b"
	DefaultAPIKeyEnv   = "GROQ_API_KEY"
	DefaultMaxAttempts = 3
	defaultChatTimeout = 30 * time.Second
	maxResponseBytes   = 1 << 20
	maxErrorSnippet    = 500
)

// ChatConfig configures a ChatGenerator. Zero fields take the defaults above.
type ChatConfig struct {
	Endpoint string
	Model    string
	// APIKey takes precedence over the APIKeyEnv variable.
	APIKey    string
	APIKeyEnv string
	Timeout   time.Duration
	// MaxAttempts bounds the correction turns for malformed model output.
	MaxAttempts int
	// Retry governs transport retries within one attempt.
	Retry      *errhandling.RetryConfig
	HTTPClient *http.Client
}

// ChatGenerator asks an OpenAI-compatible chat-completions endpoint for a
// {"filters":[...]} object.
//
// A reply that cannot be decoded is sent back to the model together with a
// correction request, up to MaxAttempts times. Transport failures are retried
// separately according to the retry config.
type ChatGenerator struct {
	url         string
	model       string
	apiKey      string
	maxAttempts int
	retry       errhandling.RetryConfig
	client      *http.Client
}

// NewChatGenerator validates config and builds the generator.
func NewChatGenerator(config ChatConfig) (*ChatGenerator, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(config.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := config.Model
	if model == "" {
		model = DefaultModel
	}
	apiKey := config.APIKey
	if apiKey == "" {
		env := config.APIKeyEnv
		if env == "" {
			env = DefaultAPIKeyEnv
		}
		apiKey = os.Getenv(env)
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	retry := errhandling.DefaultRetryConfig()
	if config.Retry != nil {
		if err := config.Retry.Validate(); err != nil {
			return nil, fmt.Errorf("invalid retry config: %w", err)
		}
		retry = *config.Retry
	}
	client := config.HTTPClient
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultChatTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	g := &ChatGenerator{
		url:         endpoint + "/chat/completions",
		model:       model,
		apiKey:      apiKey,
		maxAttempts: maxAttempts,
		retry:       retry,
		client:      client,
	}
	logger.Debug("chat generator created",
		slog.String("endpoint", g.url),
		slog.String("model", model),
		slog.Int("max_attempts", maxAttempts),
	)
	return g, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for conditions.
func (g *ChatGenerator) Generate(ctx context.Context, query string, headers []string) ([]tabular.FilterCondition, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt(headers)},
		{Role: "user", Content: query},
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		content, err := g.complete(ctx, messages)
		if err != nil {
			classified := errhandling.ClassifyError(err)
			return nil, &UpstreamError{
				Code:       ErrCodeUpstreamFailed,
				Message:    fmt.Sprintf("filter generation request failed: %v", err),
				StatusCode: classified.StatusCode,
				Attempts:   attempt,
				Err:        err,
			}
		}

		conditions, err := decodeFilters(content)
		if err == nil {
			logger.Debug("filters generated",
				slog.Int("attempt", attempt),
				slog.Int("condition_count", len(conditions)),
			)
			return conditions, nil
		}

		lastErr = err
		logger.Warn("model response rejected",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		messages = append(messages,
			chatMessage{Role: "assistant", Content: content},
			chatMessage{Role: "user", Content: correctionPrompt},
		)
	}

	return nil, &UpstreamError{
		Code:     ErrCodeInvalidResponse,
		Message:  InvalidResponseMessage,
		Attempts: g.maxAttempts,
		Err:      lastErr,
	}
}

// complete performs one chat-completions call, retrying transient failures,
// and returns the first choice's content.
func (g *ChatGenerator) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          g.model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	executor := errhandling.NewRetryExecutor(g.retry).OnRetry(func(attempt int, err error, next time.Duration) {
		logger.Warn("retrying chat completion",
			slog.String("endpoint", g.url),
			slog.Int("attempt", attempt+1),
			slog.Duration("next_delay", next),
			slog.String("error", err.Error()),
		)
	})
	result, err := executor.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.post(ctx, body)
	})
	if err != nil {
		return "", err
	}
	content, _ := result.(string)
	return content, nil
}

func (g *ChatGenerator) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", errhandling.Permanent(fmt.Errorf("creating chat request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", errhandling.ClassifyNetworkError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body",
				slog.String("endpoint", g.url),
				slog.String("error", closeErr.Error()),
			)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", errhandling.ClassifyNetworkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > maxErrorSnippet {
			snippet = snippet[:maxErrorSnippet] + "..."
		}
		return "", errhandling.ClassifyHTTPResponse(resp, snippet)
	}

	logger.Debug("chat completion received",
		slog.String("endpoint", g.url),
		slog.Int("status_code", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", errhandling.NewValidationError(resp.StatusCode, "decoding chat response", err)
	}
	if len(decoded.Choices) == 0 {
		return "", nil
	}
	return decoded.Choices[0].Message.Content, nil
}

var (
	errEmptyResponse = errors.New("model returned an empty response")
	errNotAList      = errors.New("the 'filters' key does not contain a list")
)

// decodeFilters parses a model reply of the form {"filters":[...]}. A missing
// filters key yields no conditions.
func decodeFilters(content string) ([]tabular.FilterCondition, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errEmptyResponse
	}

	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var envelope map[string]interface{}
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid JSON: trailing data after object")
	}
	if envelope == nil {
		return nil, errors.New("expected a JSON object")
	}

	raw, ok := envelope["filters"]
	if !ok || raw == nil {
		return []tabular.FilterCondition{}, nil
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return nil, errNotAList
	}
	return normalizeFilters(entries), nil
}

var _ Generator = (*ChatGenerator)(nil)
