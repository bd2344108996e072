package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localassist/pkg/correction"
	"localassist/pkg/llm/llmerrors"
	"localassist/pkg/persistence"
	"localassist/pkg/prompts"
)

type fakeRunner struct {
	result  *correction.Result
	err     error
	queries []string
	ctxErr  error
}

func (f *fakeRunner) Run(ctx context.Context, query string) (*correction.Result, error) {
	f.queries = append(f.queries, query)
	f.ctxErr = ctx.Err()
	return f.result, f.err
}

type fakeReviewer struct {
	err   error
	calls []string
}

func (f *fakeReviewer) Review(_ context.Context, candidate string) (string, error) {
	f.calls = append(f.calls, candidate)
	if f.err != nil {
		return "", f.err
	}
	return `{"ok": false, "issues": "ignored"}`, nil
}

type testEnv struct {
	server   *Server
	handler  http.Handler
	store    *persistence.PromptStore
	runner   *fakeRunner
	reviewer *fakeReviewer
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := persistence.InitializeDatabase(filepath.Join(t.TempDir(), "prompts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		store:    persistence.NewPromptStore(db),
		runner:   &fakeRunner{result: &correction.Result{Answer: "42", VerifierCalls: 1, Corrections: 1}},
		reviewer: &fakeReviewer{},
		registry: prometheus.NewRegistry(),
	}
	env.server = NewServer(env.runner, env.reviewer, env.store, Options{
		Mode:        "local",
		CORSOrigins: []string{"http://localhost", "http://localhost:5173/", "http://localhost:8000/"},
		Registry:    env.registry,
	})
	env.handler = env.server.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{Status: "ok", Mode: "local"}, decode[HealthResponse](t, rec))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestPromptAndReason(t *testing.T) {
	for _, path := range []string{"/prompt", "/reason"} {
		t.Run(path, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, path, AskRequest{Query: "What is 6*7?"})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decode[AskResponse](t, rec)
			assert.Equal(t, "42", resp.Answer)
			assert.Equal(t, "local", resp.Mode)
			assert.GreaterOrEqual(t, resp.LatencySeconds, 0.0)
			assert.Equal(t, []string{"What is 6*7?"}, env.runner.queries)
			assert.Empty(t, env.reviewer.calls)
		})
	}
}

func TestPromptRejectsBlankQuery(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []any{AskRequest{Query: ""}, AskRequest{Query: "  \n"}, `{}`} {
		rec := env.do(t, http.MethodPost, "/prompt", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Query cannot be empty", decode[errorResponse](t, rec).Detail)
	}
	assert.Empty(t, env.runner.queries)

	rec := env.do(t, http.MethodPost, "/prompt", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPromptLoopFailure(t *testing.T) {
	env := newTestEnv(t)
	env.runner.result = nil
	env.runner.err = fmt.Errorf("initial answer: %w",
		llmerrors.NewError(llmerrors.ErrorTypeBackendUnavailable, "ollama not reachable"))

	rec := env.do(t, http.MethodPost, "/prompt", AskRequest{Query: "q"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decode[errorResponse](t, rec).Detail
	assert.True(t, strings.HasPrefix(detail, "Agent execution failed: "), detail)
	assert.Contains(t, detail, "ollama not reachable")
}

func TestPromptNoResult(t *testing.T) {
	env := newTestEnv(t)
	env.runner.result = nil

	rec := env.do(t, http.MethodPost, "/prompt", AskRequest{Query: "q"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Agent returned no result", decode[errorResponse](t, rec).Detail)
}

// A cancelled client request does not cancel the loop.
func TestPromptLoopIgnoresClientCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/prompt", strings.NewReader(`{"query":"q"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, env.runner.ctxErr)
}

func TestVerifyRunsVerifierThenFullLoop(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/verify", AskRequest{Query: "Go 1.0 shipped in 2010."})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"Go 1.0 shipped in 2010."}, env.reviewer.calls)
	assert.Equal(t, []string{"Go 1.0 shipped in 2010."}, env.runner.queries)
	assert.Equal(t, "42", decode[AskResponse](t, rec).Answer)
}

func TestVerifyFailureSkipsLoop(t *testing.T) {
	env := newTestEnv(t)
	env.reviewer.err = errors.New("verifier down")

	rec := env.do(t, http.MethodPost, "/verify", AskRequest{Query: "q"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Agent execution failed: verifier down", decode[errorResponse](t, rec).Detail)
	assert.Empty(t, env.runner.queries)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/prompts/3/activate", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSUnknownOrigin(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreatePromptRejectsEmptyTitle(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/prompts", map[string]any{"title": "", "content": "x", "type": "y"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Detail, "title")

	_, total, err := env.store.List(context.Background(), persistence.ListPromptsOpts{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestPromptCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/prompts", map[string]any{
		"title": "Strict", "content": "Be strict.", "type": prompts.RoleVerifierSystem, "tags": "qa,strict", "is_active": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[persistence.Prompt](t, rec)
	assert.Equal(t, 1, created.Version)
	assert.True(t, created.IsActive)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/prompts/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Be strict.", decode[persistence.Prompt](t, rec).Content)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/prompts/%d", created.ID), map[string]any{"content": "Be very strict."})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[persistence.Prompt](t, rec)
	assert.Equal(t, "Be very strict.", updated.Content)
	assert.Equal(t, "Strict", updated.Title)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/prompts/%d", created.ID), map[string]any{"content": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/prompts/active/"+prompts.RoleVerifierSystem, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[persistence.Prompt](t, rec).ID)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/prompts/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fmt.Sprintf("Prompt %d deleted successfully", created.ID), decode[MessageResponse](t, rec).Message)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/prompts/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/prompts/active/"+prompts.RoleVerifierSystem, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromptNotFoundAndBadID(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method string
		path   string
		body   any
		status int
		detail string
	}{
		{http.MethodGet, "/prompts/999", nil, http.StatusNotFound, "Prompt with ID 999 not found"},
		{http.MethodPut, "/prompts/999", map[string]any{"title": "t"}, http.StatusNotFound, "Prompt with ID 999 not found"},
		{http.MethodDelete, "/prompts/999", nil, http.StatusNotFound, "Prompt with ID 999 not found"},
		{http.MethodPatch, "/prompts/999/activate", nil, http.StatusNotFound, "Prompt with ID 999 not found"},
		{http.MethodGet, "/prompts/abc", nil, http.StatusBadRequest, `Invalid prompt ID "abc"`},
		{http.MethodPatch, "/prompts/abc/activate", nil, http.StatusBadRequest, `Invalid prompt ID "abc"`},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.detail, decode[errorResponse](t, rec).Detail)
		})
	}
}

func TestActivatePrompt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.store.Create(ctx, persistence.CreatePromptParams{Title: "A", Content: "a", Type: "reasoner_system", IsActive: true})
	require.NoError(t, err)
	second, err := env.store.Create(ctx, persistence.CreatePromptParams{Title: "B", Content: "b", Type: "reasoner_system"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPatch, fmt.Sprintf("/prompts/%d/activate", second.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[PromptActivateResponse](t, rec)
	assert.Equal(t, PromptActivateResponse{
		ID: second.ID, Title: "B", Type: "reasoner_system", IsActive: true,
		Message: "Prompt 'B' activated for type 'reasoner_system'",
	}, resp)

	got, err := env.store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestListPrompts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := range 5 {
		promptType := "reasoner_system"
		if i%2 == 1 {
			promptType = "verifier_system"
		}
		_, err := env.store.Create(ctx, persistence.CreatePromptParams{
			Title: fmt.Sprintf("p%d", i), Content: "c", Type: promptType, Tags: fmt.Sprintf("tag%d", i),
		})
		require.NoError(t, err)
	}

	rec := env.do(t, http.MethodGet, "/prompts?prompt_type=reasoner_system&page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[PromptListResponse](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Prompts, 2)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.PageSize)

	rec = env.do(t, http.MethodGet, "/prompts?prompt_type=all&tags=TAG3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[PromptListResponse](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "p3", page.Prompts[0].Title)

	rec = env.do(t, http.MethodGet, "/prompts?prompt_type=nothing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[PromptListResponse](t, rec)
	assert.Zero(t, page.Total)
	assert.NotNil(t, page.Prompts)

	rec = env.do(t, http.MethodGet, "/prompts?page=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Deleting the only active prompt of a role makes the resolver fall back to the built-in text.
func TestDeleteActivePromptRevertsToDefault(t *testing.T) {
	env := newTestEnv(t)
	resolver := prompts.NewResolver(env.store)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/prompts", map[string]any{
		"title": "Custom", "content": "custom reasoner", "type": prompts.RoleReasonerSystem, "is_active": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[persistence.Prompt](t, rec)
	assert.Equal(t, "custom reasoner", resolver.Resolve(ctx, prompts.RoleReasonerSystem, prompts.DefaultReasonerSystem))

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/prompts/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, prompts.DefaultReasonerSystem, resolver.Resolve(ctx, prompts.RoleReasonerSystem, prompts.DefaultReasonerSystem))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).Code)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{code="200",method="get",route="/health"} 1`)
	assert.Contains(t, body, `http_request_duration_seconds_count{code="200",method="get",route="/health"} 1`)
}

func TestMetricsRecordErrorStatus(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/prompts/999", nil).Code)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{code="404",method="get",route="/prompts/{id}"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEnv(t)
	handler := NewServer(env.runner, env.reviewer, env.store, Options{Mode: "local"}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, listener, time.Second) }()

	url := "http://" + listener.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // readiness poll
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
