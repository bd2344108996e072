package metrics

import (
	"context"
	"errors"
	"time"

	"localassist/pkg/llm"
	"localassist/pkg/llm/llmerrors"
	"localassist/pkg/logx"
	"localassist/pkg/tokens"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers the counts reported by the backend and falls back to tiktoken.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	promptTokens = resp.Usage.PromptTokens
	if promptTokens == 0 {
		var promptText string
		for i := range req.Messages {
			promptText += req.Messages[i].Content + "\n"
		}
		promptTokens = tokens.Count(promptText)
	}

	completionTokens = resp.Usage.CompletionTokens
	if completionTokens == 0 {
		completionTokens = tokens.Count(resp.Content)
	}

	return promptTokens, completionTokens
}

// Middleware returns a middleware function that records metrics for model calls.
// It tracks latency, token usage, success/failure rates, and error types.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				errorType := ""
				if err != nil {
					errorType = getErrorType(err)
				}

				recorder.ObserveRequest(model, promptTokens, completionTokens, err == nil, errorType, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Info("LLM Request: model=%s request=%s tokens=%d+%d=%d status=%s duration=%dms",
						model, logx.RequestIDFrom(ctx), promptTokens, completionTokens, promptTokens+completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// getErrorType classifies errors for metrics labeling.
func getErrorType(err error) string {
	var llmErr *llmerrors.Error
	switch {
	case errors.As(err, &llmErr):
		return llmErr.Type.String()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
