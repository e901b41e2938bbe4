// Package llm is the boundary to the text generation service used by chat branches.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/config"
	"github.com/guidepath/guidepath/pkg/metrics"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 1024
	apiVersion       = "2023-06-01"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Response struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client talks to a Messages-style completion API.
type Client struct {
	http      *resty.Client
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage Usage `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", apiVersion).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(250 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		http:      client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
	}
}

// Complete sends one completion request bounded by the configured timeout. An expired timeout is
// reported as upstream_timeout, any non-2xx answer as upstream.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	const op = "LLMComplete"
	if len(req.Messages) == 0 {
		return nil, apperr.Validation(op, "at least one message is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var result messagesResponse
	var failure errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(messagesRequest{
			Model:     c.model,
			MaxTokens: maxTokens,
			System:    req.System,
			Messages:  req.Messages,
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/v1/messages")
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.LLMRequestDuration.WithLabelValues("timeout").Observe(elapsed.Seconds())
			c.logger.Warn("llm request timed out", zap.Duration("timeout", c.timeout))
			return nil, apperr.Wrap(op, apperr.KindUpstreamTimeout, err)
		}
		metrics.LLMRequestDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		return nil, apperr.Wrap(op, apperr.KindUpstream, err)
	}
	if resp.IsError() {
		metrics.LLMRequestDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		msg := failure.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Warn("llm request failed", zap.Int("status", resp.StatusCode()), zap.String("error", msg))
		return nil, apperr.New(op, apperr.KindUpstream, fmt.Sprintf("provider returned %d: %s", resp.StatusCode(), msg)).
			WithDetails(map[string]any{"status": resp.StatusCode()})
	}

	metrics.LLMRequestDuration.WithLabelValues("ok").Observe(elapsed.Seconds())
	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Response{Text: text.String(), Usage: result.Usage}, nil
}
