// Package prompts resolves the system prompts and templates each assistant role uses.
package prompts

// Role keys under which templates are stored.
const (
	RoleReasonerSystem     = "reasoner_system"
	RoleVerifierSystem     = "verifier_system"
	RoleCorrectionFeedback = "correction_feedback"
)

// Built-in templates used when no stored prompt is active for a role.
const (
	DefaultReasonerSystem = "You are a senior software engineer and technical assistant. " +
		"Be precise, factual, and explicit about uncertainty. " +
		"Do not invent facts or make assumptions."

	DefaultVerifierSystem = "You are a strict fact-checker and reviewer. Your job is to identify:\n" +
		"- Factual errors\n" +
		"- Unsupported claims\n" +
		"- Logical gaps\n" +
		"Respond in JSON only."

	DefaultCorrectionFeedback = "The previous answer had issues: {feedback}\n\n" +
		"Please correct it.\n\n" +
		"Original question:\n{user_input}"
)

// Placeholders recognized in the correction template.
const (
	PlaceholderFeedback  = "{feedback}"
	PlaceholderUserInput = "{user_input}"
)
