package prompts

import (
	"context"
	"errors"
	"strings"

	"localassist/pkg/logx"
	"localassist/pkg/persistence"
)

// ActiveLookup finds the active prompt of a role type.
type ActiveLookup interface {
	ActiveByType(ctx context.Context, promptType string) (*persistence.Prompt, error)
}

// Resolver picks the template a role uses at call time.
// It fails open: storage faults are logged and treated as "no active prompt".
type Resolver struct {
	store  ActiveLookup
	logger *logx.Logger
}

// NewResolver creates a resolver over store. A nil store always yields defaults.
func NewResolver(store ActiveLookup) *Resolver {
	return &Resolver{
		store:  store,
		logger: logx.NewLogger("prompt-resolver"),
	}
}

// Resolve returns the active template content for roleType, or defaultText unchanged.
func (r *Resolver) Resolve(ctx context.Context, roleType, defaultText string) string {
	if p, ok := r.Active(ctx, roleType); ok {
		return p.Content
	}
	return defaultText
}

// Active returns the active prompt record for roleType.
// The second result is false when none is active or the store could not be read.
func (r *Resolver) Active(ctx context.Context, roleType string) (*persistence.Prompt, bool) {
	if r == nil || r.store == nil {
		return nil, false
	}

	p, err := r.store.ActiveByType(ctx, roleType)
	switch {
	case err == nil && p != nil:
		logx.Debug(ctx, "prompts", "using stored prompt %d for %s", p.ID, roleType)
		return p, true
	case err == nil, errors.Is(err, persistence.ErrNotFound):
		logx.Debug(ctx, "prompts", "no active prompt for %s, using default", roleType)
	default:
		r.logger.Warn("prompt lookup for %s failed, using default: %v", roleType, err)
	}
	return nil, false
}

// FormatCorrection fills {feedback} and {user_input} in template.
// Substitution is literal; any other brace text is left untouched.
func FormatCorrection(template, feedback, userInput string) string {
	return strings.NewReplacer(
		PlaceholderFeedback, feedback,
		PlaceholderUserInput, userInput,
	).Replace(template)
}
