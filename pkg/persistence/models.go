package persistence

import (
	"errors"
	"strings"
	"time"
)

// Sentinel errors returned by the prompt store.
var (
	// ErrNotFound is returned when a prompt (or an active prompt for a type) does not exist.
	ErrNotFound = errors.New("prompt not found")
	// ErrValidation is returned when create/update input is malformed.
	ErrValidation = errors.New("invalid prompt")
)

// Field limits.
const (
	MaxTitleLength = 255
	MaxTypeLength  = 100
)

// Pagination limits for List.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// TypeAll is the list filter value meaning "every type".
const TypeAll = "all"

// Prompt is a named, typed, versioned template.
// At most one prompt per Type has IsActive set.
type Prompt struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Tags      string    `json:"tags"`
	ID        int64     `json:"id"`
	Version   int       `json:"version"`
	IsActive  bool      `json:"is_active"`
}

// TagList splits the comma separated tags, dropping blanks.
func (p *Prompt) TagList() []string {
	var out []string
	for _, tag := range strings.Split(p.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// CreatePromptParams holds the fields for a new prompt.
type CreatePromptParams struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Type     string `json:"type"`
	Tags     string `json:"tags"`
	IsActive bool   `json:"is_active"`
}

// UpdatePromptParams holds a partial update. Nil fields are left unchanged.
type UpdatePromptParams struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	Type     *string `json:"type,omitempty"`
	Tags     *string `json:"tags,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ListPromptsOpts filters and paginates List.
type ListPromptsOpts struct {
	Type     string // "" or "all" means no type filter
	Tags     string // case-insensitive substring of the tags column
	Page     int
	PageSize int
}

// Normalize clamps pagination to the supported range.
func (o ListPromptsOpts) Normalize() ListPromptsOpts {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	o.Type = strings.TrimSpace(o.Type)
	if strings.EqualFold(o.Type, TypeAll) {
		o.Type = ""
	}
	o.Tags = strings.TrimSpace(o.Tags)
	return o
}

func (p CreatePromptParams) validate() error {
	if err := validateField("title", p.Title, MaxTitleLength); err != nil {
		return err
	}
	if err := validateField("content", p.Content, 0); err != nil {
		return err
	}
	return ValidateType(p.Type)
}

func (p UpdatePromptParams) validate() error {
	if p.Title != nil {
		if err := validateField("title", *p.Title, MaxTitleLength); err != nil {
			return err
		}
	}
	if p.Content != nil {
		if err := validateField("content", *p.Content, 0); err != nil {
			return err
		}
	}
	if p.Type != nil {
		if err := ValidateType(*p.Type); err != nil {
			return err
		}
	}
	return nil
}

// ValidateType checks a role type for storage. TypeAll is reserved for list filters.
func ValidateType(promptType string) error {
	if err := validateField("type", promptType, MaxTypeLength); err != nil {
		return err
	}
	if strings.EqualFold(strings.TrimSpace(promptType), TypeAll) {
		return &ValidationError{Field: "type", Reason: `"all" is reserved for list filters`}
	}
	return nil
}

// validateField rejects blank values and, when maxLen > 0, values longer than maxLen characters.
func validateField(name, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: name, Reason: "must not be empty"}
	}
	if maxLen > 0 && len([]rune(value)) > maxLen {
		return &ValidationError{Field: name, Reason: "is too long"}
	}
	return nil
}

// ValidationError describes which field failed validation. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Is makes errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
