package llm

import (
	"context"
	"errors"
	"testing"
)

type mockLLMClient struct {
	completeFunc     func(context.Context, CompletionRequest) (CompletionResponse, error)
	getModelNameFunc func() string
}

func (m *mockLLMClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return m.completeFunc(ctx, req)
}

func (m *mockLLMClient) GetModelName() string {
	return m.getModelNameFunc()
}

// TestWrapClient tests the WrapClient helper function.
func TestWrapClient(t *testing.T) {
	completeCalled := false
	modelNameCalled := false

	client := WrapClient(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			completeCalled = true
			return CompletionResponse{Content: "wrapped"}, nil
		},
		func() string {
			modelNameCalled = true
			return "wrapped-model"
		},
	)

	resp, err := client.Complete(context.Background(), NewCompletionRequest("sys", "test", 0.7, 0))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !completeCalled {
		t.Error("Complete function was not called")
	}
	if resp.Content != "wrapped" {
		t.Errorf("expected 'wrapped', got %q", resp.Content)
	}

	if got := client.GetModelName(); got != "wrapped-model" {
		t.Errorf("expected 'wrapped-model', got %q", got)
	}
	if !modelNameCalled {
		t.Error("GetModelName function was not called")
	}
}

// TestChainOrder verifies earlier middlewares are outermost.
func TestChainOrder(t *testing.T) {
	var order []string

	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			order = append(order, "base")
			return CompletionResponse{Content: "base"}, nil
		},
		getModelNameFunc: func() string { return "base-model" },
	}

	tag := func(name string) Middleware {
		return func(next LLMClient) LLMClient {
			return WrapClient(
				func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
					order = append(order, name)
					return next.Complete(ctx, req)
				},
				next.GetModelName,
			)
		}
	}

	client := Chain(base, tag("first"), nil, tag("second"))
	if _, err := client.Complete(context.Background(), CompletionRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"first", "second", "base"}
	if len(order) != len(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], order[i])
		}
	}
	if client.GetModelName() != "base-model" {
		t.Errorf("expected model name to pass through, got %q", client.GetModelName())
	}
}

// TestChainErrorPassthrough verifies errors are not swallowed by middleware.
func TestChainErrorPassthrough(t *testing.T) {
	expected := errors.New("backend down")
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{}, expected
		},
		getModelNameFunc: func() string { return "m" },
	}

	passthrough := func(next LLMClient) LLMClient {
		return WrapClient(next.Complete, next.GetModelName)
	}

	_, err := Chain(base, passthrough).Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, expected) {
		t.Errorf("expected %v, got %v", expected, err)
	}
}

func TestNewCompletionRequest(t *testing.T) {
	req := NewCompletionRequest("be precise", "Task: x", 0.2, 512)
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != RoleSystem || req.Messages[0].Content != "be precise" {
		t.Errorf("unexpected system message: %+v", req.Messages[0])
	}
	if req.Messages[1].Role != RoleUser || req.Messages[1].Content != "Task: x" {
		t.Errorf("unexpected user message: %+v", req.Messages[1])
	}
	if req.MaxTokens != 512 || req.Temperature != 0.2 {
		t.Errorf("unexpected options: max=%d temp=%v", req.MaxTokens, req.Temperature)
	}
}
