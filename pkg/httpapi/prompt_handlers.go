package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"localassist/pkg/persistence"
)

// PromptListResponse is one page of GET /prompts.
type PromptListResponse struct {
	Prompts  []persistence.Prompt `json:"prompts"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// PromptActivateResponse is the reply of PATCH /prompts/{id}/activate.
type PromptActivateResponse struct {
	Title    string `json:"title"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	ID       int64  `json:"id"`
	IsActive bool   `json:"is_active"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// handleListPrompts implements GET /prompts?prompt_type&tags&page&page_size.
func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"), 1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid page: "+err.Error())
		return
	}
	pageSize, err := optionalInt(q.Get("page_size"), persistence.DefaultPageSize)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid page_size: "+err.Error())
		return
	}

	opts := persistence.ListPromptsOpts{
		Type:     q.Get("prompt_type"),
		Tags:     q.Get("tags"),
		Page:     page,
		PageSize: pageSize,
	}.Normalize()

	prompts, total, err := s.store.List(r.Context(), opts)
	if err != nil {
		s.logger.Error("Failed to list prompts: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to list prompts: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, PromptListResponse{
		Prompts:  prompts,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.PageSize,
	})
}

// handleGetPrompt implements GET /prompts/{id}.
func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := s.promptID(w, r)
	if !ok {
		return
	}
	prompt, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "get", id)
		return
	}
	s.writeJSON(w, http.StatusOK, prompt)
}

// handleActivePrompt implements GET /prompts/active/{type}.
func (s *Server) handleActivePrompt(w http.ResponseWriter, r *http.Request) {
	promptType := r.PathValue("type")
	prompt, err := s.store.ActiveByType(r.Context(), promptType)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("No active prompt for type '%s'", promptType))
	case err != nil:
		s.logger.Error("Failed to read active prompt for %q: %v", promptType, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to get active prompt: "+err.Error())
	default:
		s.writeJSON(w, http.StatusOK, prompt)
	}
}

// handleCreatePrompt implements POST /prompts.
func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var params persistence.CreatePromptParams
	if err := decodeJSON(r, &params); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	prompt, err := s.store.Create(r.Context(), params)
	if err != nil {
		s.writeStoreError(w, err, "create", 0)
		return
	}
	s.writeJSON(w, http.StatusOK, prompt)
}

// handleUpdatePrompt implements PUT /prompts/{id}. Omitted fields are left unchanged.
func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := s.promptID(w, r)
	if !ok {
		return
	}
	var params persistence.UpdatePromptParams
	if err := decodeJSON(r, &params); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	prompt, err := s.store.Update(r.Context(), id, params)
	if err != nil {
		s.writeStoreError(w, err, "update", id)
		return
	}
	s.writeJSON(w, http.StatusOK, prompt)
}

// handleDeletePrompt implements DELETE /prompts/{id}.
func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := s.promptID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeStoreError(w, err, "delete", id)
		return
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Prompt %d deleted successfully", id)})
}

// handleActivatePrompt implements PATCH /prompts/{id}/activate.
func (s *Server) handleActivatePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := s.promptID(w, r)
	if !ok {
		return
	}
	prompt, err := s.store.Activate(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "activate", id)
		return
	}
	s.writeJSON(w, http.StatusOK, PromptActivateResponse{
		ID:       prompt.ID,
		Title:    prompt.Title,
		Type:     prompt.Type,
		IsActive: prompt.IsActive,
		Message:  fmt.Sprintf("Prompt '%s' activated for type '%s'", prompt.Title, prompt.Type),
	})
}

func (s *Server) promptID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid prompt ID %q", raw))
		return 0, false
	}
	return id, true
}

// writeStoreError maps store failures: missing rows are 404, everything else on a
// read is 500 and on a write 400.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, action string, id int64) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("Prompt with ID %d not found", id))
	case errors.Is(err, persistence.ErrValidation):
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to %s prompt: %v", action, err))
	case action == "get":
		s.logger.Error("Failed to get prompt %d: %v", id, err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get prompt: %v", err))
	default:
		s.logger.Error("Failed to %s prompt %d: %v", action, id, err)
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to %s prompt: %v", action, err))
	}
}

func optionalInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	return v, nil
}
