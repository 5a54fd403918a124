package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/csvquerygenie/genie/internal/errhandling"
	"github.com/csvquerygenie/genie/internal/logger"
)

// Default configuration values
const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "CSV-Query-Genie/1.0"
	maxBodySnippet   = 500
)

// ErrMissingURL is returned when an HTTP input has no URL.
var ErrMissingURL = errors.New("url is required for http input")

// HTTPConfig configures an HTTPInput.
type HTTPConfig struct {
	URL      string
	Timeout  time.Duration
	Headers  map[string]string
	MaxBytes int64
	// Retry defaults to errhandling.DefaultRetryConfig when nil.
	Retry *errhandling.RetryConfig
}

// HTTPInput downloads delimited text with a GET request.
type HTTPInput struct {
	url      string
	headers  map[string]string
	maxBytes int64
	retry    errhandling.RetryConfig
	client   *http.Client
}

// NewHTTPInput creates an HTTP input module.
func NewHTTPInput(config HTTPConfig) (*HTTPInput, error) {
	if config.URL == "" {
		return nil, ErrMissingURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBytes := config.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	retry := errhandling.DefaultRetryConfig()
	if config.Retry != nil {
		if err := config.Retry.Validate(); err != nil {
			return nil, fmt.Errorf("invalid retry config: %w", err)
		}
		retry = *config.Retry
	}
	headers := make(map[string]string, len(config.Headers))
	for k, v := range config.Headers {
		headers[k] = v
	}

	h := &HTTPInput{
		url:      config.URL,
		headers:  headers,
		maxBytes: maxBytes,
		retry:    retry,
		client:   &http.Client{Timeout: timeout},
	}

	logger.Debug("http input module created",
		slog.String("endpoint", h.url),
		slog.String("timeout", timeout.String()),
	)
	return h, nil
}

// Fetch performs the GET, retrying transient failures.
func (h *HTTPInput) Fetch(ctx context.Context) (string, error) {
	start := time.Now()
	executor := errhandling.NewRetryExecutor(h.retry).OnRetry(func(attempt int, err error, next time.Duration) {
		logger.Warn("retrying http input",
			slog.String("endpoint", h.url),
			slog.Int("attempt", attempt+1),
			slog.Duration("next_delay", next),
			slog.String("error", err.Error()),
		)
	})

	result, err := executor.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return h.doRequest(ctx)
	})
	duration := time.Since(start)
	if err != nil {
		logger.LogError("input fetch failed", logger.ErrorContext{
			Source:     "http",
			Stage:      "fetch",
			Endpoint:   h.url,
			HTTPStatus: errhandling.ClassifyError(err).StatusCode,
			Attempt:    executor.GetRetryInfo().TotalAttempts,
			Duration:   duration,
			Err:        err,
		})
		return "", fmt.Errorf("fetching %s: %w", h.url, err)
	}

	text, _ := result.(string)
	logger.Info("input fetch completed",
		slog.String("module_type", "http"),
		slog.String("endpoint", h.url),
		slog.Int("bytes", len(text)),
		slog.Duration("duration", duration),
	)
	return text, nil
}

func (h *HTTPInput) doRequest(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return "", errhandling.Permanent(fmt.Errorf("creating http request: %w", err))
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/csv, text/plain, */*")
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", errhandling.ClassifyNetworkError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body",
				slog.String("endpoint", h.url),
				slog.String("error", closeErr.Error()),
			)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
		return "", errhandling.ClassifyHTTPResponse(resp, string(snippet))
	}

	text, err := readLimited(resp.Body, h.maxBytes)
	if err != nil {
		if errors.Is(err, ErrInputTooLarge) {
			return "", errhandling.Permanent(err)
		}
		return "", errhandling.ClassifyNetworkError(err)
	}
	return text, nil
}

// Close releases idle connections.
func (h *HTTPInput) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

var _ Module = (*HTTPInput)(nil)
