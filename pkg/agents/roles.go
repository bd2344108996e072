// Package agents implements the two model-backed roles: the reasoner that answers
// and the verifier that reviews an answer.
package agents

import (
	"context"
	"fmt"
	"strings"

	"localassist/pkg/chat"
	"localassist/pkg/logx"
	"localassist/pkg/prompts"
)

// NoResponse is returned by the reasoner when the model produced only whitespace.
// It is an answer value, not an error.
const NoResponse = "No response generated"

// PromptSource resolves the system prompt for a role.
type PromptSource interface {
	Resolve(ctx context.Context, roleType, defaultText string) string
}

// Reasoner answers tasks with the reasoner model.
type Reasoner struct {
	chat    chat.Completer
	prompts PromptSource
	model   string
}

// NewReasoner creates a reasoner bound to model.
func NewReasoner(completer chat.Completer, source PromptSource, model string) *Reasoner {
	return &Reasoner{chat: completer, prompts: source, model: model}
}

// Answer asks the model to solve task. Blank output yields NoResponse.
func (r *Reasoner) Answer(ctx context.Context, task string) (string, error) {
	system := r.prompts.Resolve(ctx, prompts.RoleReasonerSystem, prompts.DefaultReasonerSystem)
	user := fmt.Sprintf("Task: %s\nProvide a clear, structured answer.", task)

	reply, err := r.chat.Complete(ctx, r.model, system, user)
	if err != nil {
		return "", fmt.Errorf("reasoner (%s): %w", r.model, err)
	}
	if strings.TrimSpace(reply) == "" {
		logx.Debug(ctx, "agents", "reasoner %s returned blank output", r.model)
		return NoResponse, nil
	}
	return reply, nil
}

// Model returns the model the reasoner calls.
func (r *Reasoner) Model() string { return r.model }

// Verifier reviews candidate answers with the verifier model.
type Verifier struct {
	chat    chat.Completer
	prompts PromptSource
	model   string
}

// NewVerifier creates a verifier bound to model.
func NewVerifier(completer chat.Completer, source PromptSource, model string) *Verifier {
	return &Verifier{chat: completer, prompts: source, model: model}
}

// Review asks the model to judge candidate and returns its raw reply, expected to be
// a JSON object of the form {"ok": bool, "issues": string}.
func (v *Verifier) Review(ctx context.Context, candidate string) (string, error) {
	system := v.prompts.Resolve(ctx, prompts.RoleVerifierSystem, prompts.DefaultVerifierSystem)

	reply, err := v.chat.Complete(ctx, v.model, system, ReviewPrompt(candidate))
	if err != nil {
		return "", fmt.Errorf("verifier (%s): %w", v.model, err)
	}
	return reply, nil
}

// Model returns the model the verifier calls.
func (v *Verifier) Model() string { return v.model }

// ReviewPrompt frames candidate for the verifier.
func ReviewPrompt(candidate string) string {
	return "Review the following answer:\n" +
		"\"\"\"\n" + candidate + "\n\"\"\"\n" +
		"Respond with JSON:\n" +
		"{\n" +
		"\"ok\": true | false,\n" +
		"\"issues\": \"short explanation if false\"\n" +
		"}"
}
