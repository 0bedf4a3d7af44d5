// Package httpcall implements the service invoker used by service steps.
package httpcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/stepflow/pkg/protocol"
)

const (
	// DefaultTimeout bounds a single call when no timeout is configured.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseBytes caps how much of a response body is read.
	DefaultMaxResponseBytes int64 = 10 << 20
)

var ErrResponseTooLarge = errors.New("response body too large")

// HTTPError is returned for responses with a status code of 400 or above.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Invoker performs one HTTP request per call. Retries belong to the step's
// error handling policy, not to the invoker.
type Invoker struct {
	client          *http.Client
	maxResponseSize int64
	logger          *slog.Logger
}

var _ protocol.ServiceInvoker = (*Invoker)(nil)

// Option configures an Invoker.
type Option func(*Invoker)

// WithClient replaces the underlying HTTP client.
func WithClient(client *http.Client) Option {
	return func(i *Invoker) {
		i.client = client
	}
}

// WithTimeout sets the per-call timeout of the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(i *Invoker) {
		i.client = &http.Client{Timeout: timeout}
	}
}

// WithMaxResponseBytes sets the largest response body the invoker accepts.
func WithMaxResponseBytes(limit int64) Option {
	return func(i *Invoker) {
		i.maxResponseSize = limit
	}
}

// NewInvoker creates an Invoker.
func NewInvoker(logger *slog.Logger, opts ...Option) *Invoker {
	invoker := &Invoker{
		client:          &http.Client{Timeout: DefaultTimeout},
		maxResponseSize: DefaultMaxResponseBytes,
		logger:          logger.With("module", "httpcall"),
	}

	for _, opt := range opts {
		opt(invoker)
	}

	return invoker
}

// Invoke sends the request and returns status_code, headers and body, plus
// json when the body parses as JSON.
func (i *Invoker) Invoke(
	ctx context.Context,
	endpoint, method string,
	headers map[string]string,
	body string,
) (any, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, i.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if int64(len(respBody)) > i.maxResponseSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, i.maxResponseSize)
	}

	i.logger.DebugContext(ctx, "service call finished",
		"method", method,
		"endpoint", endpoint,
		"status_code", resp.StatusCode,
		"duration", time.Since(started))

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	responseHeaders := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		responseHeaders[key] = resp.Header.Get(key)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     responseHeaders,
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
	}

	return result, nil
}
