package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepress/pagepress/internal/config"
	"github.com/pagepress/pagepress/internal/domain"
	"github.com/pagepress/pagepress/internal/observability"
)

func newCompletionClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.CompletionConfig{
		Endpoint:    srv.URL,
		APIKey:      "test-key",
		Model:       "test-model",
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
	}, observability.Nop())
}

func completionBody(content string) []byte {
	b, _ := json.Marshal(completionResponse{Choices: []choice{{Message: message{Role: "assistant", Content: content}}}})
	return b
}

func TestCompleteRetriesOnRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	client := newCompletionClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(completionBody(`{"title":"Cover","description":"Front page."}`))
	})

	start := time.Now()
	content, err := client.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load(), "two 429s then success means three attempts")
	assert.Contains(t, content, "Cover")
	// Two linear backoffs (1ms + 2ms) were waited before success.
	assert.GreaterOrEqual(t, time.Since(start), 3*time.Millisecond)
}

func TestCompleteDoesNotRetryOtherStatuses(t *testing.T) {
	var calls atomic.Int64
	client := newCompletionClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeSummarization))
	assert.Equal(t, int64(1), calls.Load(), "non-429 statuses are not retried")
}

func TestCompleteExhaustedRetriesSurfacesError(t *testing.T) {
	var calls atomic.Int64
	client := newCompletionClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeSummarization))
	assert.Equal(t, int64(3), calls.Load())
}

func TestCompleteMissingAPIKey(t *testing.T) {
	client := NewClient(config.CompletionConfig{Endpoint: "http://example.test"}, observability.Nop())

	_, err := client.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeSummarization))
}

func TestCompleteSendsModelAndPrompt(t *testing.T) {
	client := newCompletionClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "the prompt", req.Messages[0].Content)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write(completionBody("ok"))
	})

	content, err := client.Complete(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
}
