package httpapi

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"localassist/pkg/logx"
)

// AskRequest is the body of /prompt, /reason and /verify.
type AskRequest struct {
	Query string `json:"query"`
}

// AskResponse is the reply of /prompt, /reason and /verify.
type AskResponse struct {
	Answer         string  `json:"answer"`
	Mode           string  `json:"mode"`
	LatencySeconds float64 `json:"latency_seconds"`
}

// HealthResponse is the reply of /health.
type HealthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Mode: s.mode})
}

// handlePrompt implements POST /prompt and its alias POST /reason.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query, ok := s.readQuery(w, r)
	if !ok {
		return
	}
	s.runLoop(w, r, query, start)
}

// handleVerify implements POST /verify. The verifier is called on the query, but a successful
// verdict is discarded and the full loop answers the query instead; only a verifier failure
// changes the reply.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query, ok := s.readQuery(w, r)
	if !ok {
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if _, err := s.verifier.Review(ctx, query); err != nil {
		s.logger.Error("[%s] verifier call failed: %v", logx.RequestIDFrom(ctx), err)
		s.writeError(w, http.StatusInternalServerError, "Agent execution failed: "+err.Error())
		return
	}
	logx.Debug(ctx, "httpapi", "verifier verdict discarded, running full loop")

	s.runLoop(w, r, query, start)
}

func (s *Server) readQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req AskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return "", false
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "Query cannot be empty")
		return "", false
	}
	return req.Query, true
}

// runLoop answers query. A started loop is not cancelled when the client goes away.
func (s *Server) runLoop(w http.ResponseWriter, r *http.Request, query string, start time.Time) {
	ctx := context.WithoutCancel(r.Context())
	requestID := logx.RequestIDFrom(ctx)

	result, err := s.loop.Run(ctx, query)
	if err != nil {
		s.logger.Error("[%s] correction loop failed: %v", requestID, err)
		s.writeError(w, http.StatusInternalServerError, "Agent execution failed: "+err.Error())
		return
	}
	if result == nil {
		s.writeError(w, http.StatusInternalServerError, "Agent returned no result")
		return
	}

	latency := roundSeconds(time.Since(start))
	s.logger.Info("[%s] answered in %.2fs (%d verifier calls, %d corrections)",
		requestID, latency, result.VerifierCalls, result.Corrections)
	s.writeJSON(w, http.StatusOK, AskResponse{
		Answer:         result.Answer,
		Mode:           s.mode,
		LatencySeconds: latency,
	})
}

// roundSeconds rounds d to hundredths of a second.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
