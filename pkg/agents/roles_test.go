package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localassist/pkg/llm/llmerrors"
	"localassist/pkg/prompts"
)

type call struct {
	model, system, user string
}

type scriptedChat struct {
	replies []string
	err     error
	calls   []call
}

func (s *scriptedChat) Complete(_ context.Context, model, system, user string) (string, error) {
	s.calls = append(s.calls, call{model, system, user})
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

type staticPrompts map[string]string

func (p staticPrompts) Resolve(_ context.Context, roleType, defaultText string) string {
	if text, ok := p[roleType]; ok {
		return text
	}
	return defaultText
}

func TestReasonerFramesTask(t *testing.T) {
	fake := &scriptedChat{replies: []string{"Go 1.0 shipped in 2012."}}
	r := NewReasoner(fake, staticPrompts{}, "qwen2.5:7b-instruct")

	got, err := r.Answer(context.Background(), "When did Go 1.0 ship?")
	require.NoError(t, err)
	assert.Equal(t, "Go 1.0 shipped in 2012.", got)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "qwen2.5:7b-instruct", fake.calls[0].model)
	assert.Equal(t, prompts.DefaultReasonerSystem, fake.calls[0].system)
	assert.Equal(t, "Task: When did Go 1.0 ship?\nProvide a clear, structured answer.", fake.calls[0].user)
	assert.Equal(t, "qwen2.5:7b-instruct", r.Model())
}

func TestReasonerUsesStoredSystemPrompt(t *testing.T) {
	fake := &scriptedChat{replies: []string{"ok"}}
	r := NewReasoner(fake, staticPrompts{prompts.RoleReasonerSystem: "Be terse."}, "m")

	_, err := r.Answer(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "Be terse.", fake.calls[0].system)
}

// Whitespace-only output becomes the sentinel, not an error.
func TestReasonerBlankOutputIsSentinel(t *testing.T) {
	for _, reply := range []string{"", "   ", "\n\t"} {
		fake := &scriptedChat{replies: []string{reply}}
		got, err := NewReasoner(fake, staticPrompts{}, "m").Answer(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, NoResponse, got)
	}
}

func TestReasonerPropagatesChatFailure(t *testing.T) {
	failure := llmerrors.NewError(llmerrors.ErrorTypeBackendUnavailable, "ollama not reachable")
	_, err := NewReasoner(&scriptedChat{err: failure}, staticPrompts{}, "m").Answer(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure))
}

func TestVerifierReturnsRawText(t *testing.T) {
	raw := "Sure! {\"ok\": false, \"issues\": \"wrong date\"}"
	fake := &scriptedChat{replies: []string{raw}}
	v := NewVerifier(fake, staticPrompts{}, "mistral:7b-instruct")

	got, err := v.Review(context.Background(), "Go 1.0 shipped in 2010.")
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "mistral:7b-instruct", fake.calls[0].model)
	assert.Equal(t, prompts.DefaultVerifierSystem, fake.calls[0].system)
	assert.Contains(t, fake.calls[0].user, "\"\"\"\nGo 1.0 shipped in 2010.\n\"\"\"")
	assert.Contains(t, fake.calls[0].user, "\"ok\": true | false")
}

func TestVerifierPropagatesChatFailure(t *testing.T) {
	failure := errors.New("boom")
	_, err := NewVerifier(&scriptedChat{err: failure}, staticPrompts{}, "m").Review(context.Background(), "a")
	assert.ErrorIs(t, err, failure)
}
