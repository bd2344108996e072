// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"localassist/pkg/llm"
	"localassist/pkg/llm/llmerrors"
)

// Middleware returns a middleware function that wraps an LLM client with per-request timeout logic.
// Each request gets a timeout context to prevent hanging requests. A non-positive duration disables it.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				resp, err := next.Complete(timeoutCtx, req)
				if err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
					return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(
						llmerrors.ErrorTypeBackendUnavailable,
						err,
						fmt.Sprintf("model %s did not answer within %v", next.GetModelName(), duration),
					)
				}
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
