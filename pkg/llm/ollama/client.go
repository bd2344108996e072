// Package ollama provides the Ollama client implementation of llm.LLMClient.
// Ollama is the local runtime that serves the reasoner and verifier models.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/ollama/ollama/api"

	"localassist/pkg/llm"
	"localassist/pkg/llm/llmerrors"
	"localassist/pkg/logx"
)

// DefaultHost is used when the configured host cannot be parsed.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.LLMClient interface.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewClient creates an Ollama client bound to a single model.
// hostURL should be the Ollama server URL (e.g., "http://localhost:11434").
// A nil httpClient uses http.DefaultClient.
func NewClient(hostURL, model string, httpClient *http.Client) *Client {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		logx.Warnf("invalid Ollama host %q, falling back to %s", hostURL, DefaultHost)
		parsedURL, _ = url.Parse(DefaultHost)
		hostURL = DefaultHost
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		client:  api.NewClient(parsedURL, httpClient),
		model:   model,
		hostURL: hostURL,
	}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	options := map[string]any{
		"temperature": in.Temperature,
	}
	if in.MaxTokens > 0 {
		options["num_predict"] = in.MaxTokens
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	if logx.IsDebugEnabledForDomain("llm") {
		last := messages[len(messages)-1].Content
		logx.Debug(ctx, "llm", "ollama chat model=%s host=%s prompt=%s", o.model, o.hostURL, llmerrors.SanitizePrompt(last, 400))
	}

	var (
		response api.ChatResponse
		received bool
	)
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		received = true
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(ctx, err)
	}
	if !received {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBackendUnavailable,
			fmt.Sprintf("Ollama returned no response for model %s", o.model))
	}
	if !response.Done {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBackendUnavailable,
			fmt.Sprintf("Ollama response for model %s is incomplete", o.model))
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
		Usage: llm.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// convertMessagesToOllama converts our message format to Ollama's Message format.
func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	result := make([]api.Message, 0, len(messages))
	for i := range messages {
		result = append(result, api.Message{
			Role:    string(messages[i].Role),
			Content: messages[i].Content,
		})
	}
	return result, nil
}

// getStopReason converts Ollama's done_reason to our stop reason format.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}

	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError converts Ollama errors to our error types.
func classifyError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBackendUnavailable, err, "Ollama request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBackendUnavailable, err, "Ollama request canceled")
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr)
	}

	errStr := err.Error()
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "no such host"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBackendUnavailable, err, fmt.Sprintf("Ollama server not reachable: %v", err))
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, fmt.Sprintf("Ollama model not found: %v", err))
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, fmt.Sprintf("Ollama connection dropped: %v", err))
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, fmt.Sprintf("Ollama API error: %v", err))
	}
}

func classifyStatus(statusErr api.StatusError) error {
	message := statusErr.ErrorMessage
	if message == "" {
		message = statusErr.Status
	}

	var errorType llmerrors.ErrorType
	switch {
	case statusErr.StatusCode == http.StatusNotFound, statusErr.StatusCode == http.StatusBadRequest:
		errorType = llmerrors.ErrorTypeBadPrompt
	case statusErr.StatusCode >= http.StatusInternalServerError:
		errorType = llmerrors.ErrorTypeTransient
	default:
		errorType = llmerrors.ErrorTypeUnknown
	}

	classified := llmerrors.NewErrorWithStatus(errorType, statusErr.StatusCode,
		fmt.Sprintf("Ollama returned status %d: %s", statusErr.StatusCode, message))
	classified.BodyStub = llmerrors.SanitizePrompt(message, 200)
	classified.Err = statusErr
	return classified
}
