// Package chat sends a system+user exchange to a named local model.
package chat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"localassist/pkg/llm"
	"localassist/pkg/llm/middleware/metrics"
	"localassist/pkg/llm/middleware/timeout"
	"localassist/pkg/llm/ollama"
	"localassist/pkg/logx"
)

// Completer is what the assistant roles call.
type Completer interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}

// Config configures every model client the factory builds.
type Config struct {
	Host        string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration    // per call; 0 disables
	Recorder    metrics.Recorder // nil records nothing
	HTTPClient  *http.Client     // nil uses http.DefaultClient
}

// ClientFactory builds a raw client for a model. Tests replace it to avoid a live runtime.
type ClientFactory func(model string) llm.LLMClient

// Client builds, caches and calls one middleware-wrapped client per model.
type Client struct {
	cfg     Config
	factory ClientFactory
	logger  *logx.Logger

	mu      sync.Mutex
	clients map[string]llm.LLMClient
}

// NewClient creates a chat client backed by Ollama at cfg.Host.
func NewClient(cfg Config) *Client {
	c := &Client{
		cfg:     cfg,
		logger:  logx.NewLogger("chat"),
		clients: make(map[string]llm.LLMClient),
	}
	c.factory = func(model string) llm.LLMClient {
		return ollama.NewClient(cfg.Host, model, cfg.HTTPClient)
	}
	return c
}

// NewClientWithFactory creates a chat client over an arbitrary raw client factory.
func NewClientWithFactory(cfg Config, factory ClientFactory) *Client {
	c := NewClient(cfg)
	c.factory = factory
	return c
}

// Complete sends system and user to model and returns the reply text.
// An empty reply with a nil error means the model produced nothing.
func (c *Client) Complete(ctx context.Context, model, system, user string) (string, error) {
	client := c.clientFor(model)

	resp, err := client.Complete(ctx, llm.NewCompletionRequest(system, user, c.cfg.Temperature, c.cfg.MaxTokens))
	if err != nil {
		return "", err //nolint:wrapcheck // llmerrors.Error already names the model and cause
	}

	logx.Debug(ctx, "llm", "model=%s stop=%s chars=%d", model, resp.StopReason, len(resp.Content))
	return resp.Content, nil
}

// clientFor returns the cached client for model, building it on first use.
// Chain order: metrics -> timeout -> raw client.
func (c *Client) clientFor(model string) llm.LLMClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[model]; ok {
		return client
	}

	client := llm.Chain(c.factory(model),
		metrics.Middleware(c.cfg.Recorder, nil, c.logger),
		timeout.Middleware(c.cfg.Timeout),
	)
	c.clients[model] = client
	return client
}
