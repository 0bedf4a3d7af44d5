package httpcall

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoker_JSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"amount": 10}`, string(body))

		w.Header().Set("X-Request-Id", "abc")
		_, _ = w.Write([]byte(`{"approved": true}`))
	}))
	defer server.Close()

	invoker := NewInvoker(log.Discard())

	result, err := invoker.Invoke(context.Background(), server.URL, http.MethodPost,
		map[string]string{"Authorization": "Bearer token"}, `{"amount": 10}`)
	require.NoError(t, err)

	response, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, response["status_code"])
	assert.Equal(t, map[string]any{"approved": true}, response["json"])
	assert.Equal(t, "abc", response["headers"].(map[string]any)["X-Request-Id"])
}

func TestInvoker_PlainTextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))
	defer server.Close()

	result, err := NewInvoker(log.Discard()).Invoke(context.Background(), server.URL, http.MethodGet, nil, "")
	require.NoError(t, err)

	response := result.(map[string]any)
	assert.Equal(t, "pong", response["body"])
	assert.NotContains(t, response, "json")
}

func TestInvoker_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer server.Close()

	_, err := NewInvoker(log.Discard()).Invoke(context.Background(), server.URL, http.MethodGet, nil, "")
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, "down", httpErr.Message)
}

func TestInvoker_ResponseSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer server.Close()

	_, err := NewInvoker(log.Discard(), WithMaxResponseBytes(32)).
		Invoke(context.Background(), server.URL, http.MethodGet, nil, "")
	require.ErrorIs(t, err, ErrResponseTooLarge)

	result, err := NewInvoker(log.Discard(), WithMaxResponseBytes(64)).
		Invoke(context.Background(), server.URL, http.MethodGet, nil, "")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 64), result.(map[string]any)["body"])
}

func TestInvoker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := NewInvoker(log.Discard(), WithTimeout(20*time.Millisecond)).
		Invoke(context.Background(), server.URL, http.MethodGet, nil, "")
	require.Error(t, err)
}

func TestInvoker_InvalidMethod(t *testing.T) {
	_, err := NewInvoker(log.Discard()).Invoke(context.Background(), "http://localhost", "BAD METHOD", nil, "")
	require.Error(t, err)
}
