package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pagepress/pagepress/internal/config"
	"github.com/pagepress/pagepress/internal/domain"
	"github.com/pagepress/pagepress/internal/observability"
)

// Client calls the external text-completion service. Rate-limited calls
// (HTTP 429) are retried with linearly increasing backoff; every other
// failure surfaces immediately as a summarization error.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	policy     Policy
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates a completion client. A missing API key is not checked
// here: it fails the individual Complete call, which drops only that
// page's summary.
func NewClient(cfg config.CompletionConfig, logger *observability.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	base := cfg.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 3
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		policy: Policy{
			MaxAttempts: retries,
			Backoff:     LinearBackoff(base),
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent("completion"),
	}
}

// Chat-completions wire format.
type completionRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []choice `json:"choices"`
}

type choice struct {
	Message message `json:"message"`
}

// Complete sends the prompt and returns the raw response text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", domain.SummarizationError("completion API key not set (COMPLETION_API_KEY)", nil)
	}

	body, err := json.Marshal(completionRequest{
		Model:    c.model,
		Messages: []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", domain.SummarizationError("marshal completion request", err)
	}

	var content string
	err = Do(ctx, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return domain.SummarizationError("build completion request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return domain.SummarizationError("send completion request", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn().Msg("completion service rate limited, backing off")
			return Retryable(domain.SummarizationError("completion service rate limited (429)", nil))
		}
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return domain.SummarizationError(
				fmt.Sprintf("completion service returned status %d: %s", resp.StatusCode, string(respBody)), nil)
		}

		var parsed completionResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return domain.SummarizationError("decode completion response", err)
		}
		if len(parsed.Choices) == 0 {
			return domain.SummarizationError("completion response has no choices", nil)
		}
		content = parsed.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}
