// Package correction runs the reasoner → verifier → corrected reasoner loop.
package correction

import (
	"context"
	"fmt"

	"localassist/pkg/agents"
	"localassist/pkg/logx"
	"localassist/pkg/prompts"
)

// State names a step of the loop.
type State string

const (
	StateInitialAnswer State = "INITIAL_ANSWER"
	StateVerifying     State = "VERIFYING"
	StateCorrecting    State = "CORRECTING"
	StateDone          State = "DONE"
)

// DefaultMaxCorrections is the number of verify+correct rounds when no policy is given.
const DefaultMaxCorrections = 1

// Policy bounds the loop.
type Policy struct {
	MaxCorrections     int  // verify+correct rounds; <= 0 means answer without verification
	EarlyExitOnSuccess bool // stop as soon as the verifier returns a valid {"ok": true}
}

// DefaultPolicy runs one fixed correction round regardless of the verdict.
func DefaultPolicy() Policy {
	return Policy{MaxCorrections: DefaultMaxCorrections}
}

// Answerer produces an answer for a task.
type Answerer interface {
	Answer(ctx context.Context, task string) (string, error)
}

// Reviewer reviews a candidate answer and returns its raw verdict text.
type Reviewer interface {
	Review(ctx context.Context, candidate string) (string, error)
}

// Result describes one run of the loop.
type Result struct {
	Answer        string    `json:"answer"`
	Verdicts      []Verdict `json:"verdicts"`
	States        []State   `json:"states"`
	Corrections   int       `json:"corrections"`    // reasoner calls made with a correction prompt
	VerifierCalls int       `json:"verifier_calls"` // verifier calls made
}

// Loop wires the roles together.
type Loop struct {
	reasoner Answerer
	verifier Reviewer
	prompts  agents.PromptSource
	policy   Policy
	logger   *logx.Logger
}

// NewLoop creates a loop. The correction template is resolved from source on every round.
func NewLoop(reasoner Answerer, verifier Reviewer, source agents.PromptSource, policy Policy) *Loop {
	if policy.MaxCorrections < 0 {
		policy.MaxCorrections = 0
	}
	return &Loop{
		reasoner: reasoner,
		verifier: verifier,
		prompts:  source,
		policy:   policy,
		logger:   logx.NewLogger("correction"),
	}
}

// Policy returns the loop's bound and exit rule.
func (l *Loop) Policy() Policy { return l.policy }

// Run answers query, then verifies and corrects up to the policy bound.
// Reasoner and verifier failures abort the run; the NoResponse sentinel does not.
func (l *Loop) Run(ctx context.Context, query string) (*Result, error) {
	result := &Result{}
	l.enter(ctx, result, StateInitialAnswer)

	answer, err := l.reasoner.Answer(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("initial answer: %w", err)
	}
	if answer == agents.NoResponse {
		result.Answer = answer
		l.enter(ctx, result, StateDone, "reasoner produced no response")
		return result, nil
	}

	for round := 1; round <= l.policy.MaxCorrections; round++ {
		l.enter(ctx, result, StateVerifying, fmt.Sprintf("round %d", round))

		raw, err := l.verifier.Review(ctx, answer)
		result.VerifierCalls++
		if err != nil {
			return nil, fmt.Errorf("verification round %d: %w", round, err)
		}

		verdict := ParseVerdict(raw)
		result.Verdicts = append(result.Verdicts, verdict)
		if !verdict.Valid {
			l.logger.Warn("verifier reply is not a valid verdict (%v), using feedback %q", verdict.Errors, verdict.Feedback())
		}

		if l.policy.EarlyExitOnSuccess && verdict.Passed() {
			logx.Debug(ctx, "correction", "verifier accepted answer in round %d", round)
			break
		}

		l.enter(ctx, result, StateCorrecting, verdict.Feedback())
		template := l.prompts.Resolve(ctx, prompts.RoleCorrectionFeedback, prompts.DefaultCorrectionFeedback)
		corrected, err := l.reasoner.Answer(ctx, prompts.FormatCorrection(template, verdict.Feedback(), query))
		result.Corrections++
		if err != nil {
			return nil, fmt.Errorf("correction round %d: %w", round, err)
		}
		if corrected == agents.NoResponse {
			logx.Debug(ctx, "correction", "correction round %d produced no response, keeping previous answer", round)
			break
		}
		answer = corrected
	}

	result.Answer = answer
	l.enter(ctx, result, StateDone)
	return result, nil
}

func (l *Loop) enter(ctx context.Context, result *Result, state State, extra ...string) {
	result.States = append(result.States, state)
	logx.DebugState(ctx, "correction", "enter", string(state), extra...)
}
