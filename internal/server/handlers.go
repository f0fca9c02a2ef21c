package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/copilot"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/entitlement"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/llm"
	csotel "github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/otel"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/quota"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/requestctx"
)

type errorEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{OK: false, Error: message, Code: code})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleAI(w http.ResponseWriter, r *http.Request) {
	var req copilot.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON: "+err.Error())
		return
	}
	req.UserID = requestctx.UserID(r.Context())

	resp, err := s.service.Handle(r.Context(), &req)
	if err != nil {
		status, code, message := mapError(err)
		if status == http.StatusInternalServerError {
			// full detail stays server-side; the client gets the envelope only
			log.Error().Err(err).
				Str("correlation_id", requestctx.CorrelationID(r.Context())).
				Func(csotel.LogTraceFields(r.Context())).
				Str("user_id", req.UserID).
				Str("task", string(req.Task)).
				Msg("copilot request failed")
		} else {
			log.Warn().
				Str("correlation_id", requestctx.CorrelationID(r.Context())).
				Str("user_id", req.UserID).
				Str("code", code).
				Msg("copilot request rejected")
		}
		writeError(w, status, code, message)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// mapError maps pipeline errors to HTTP status, machine-readable code, and
// a client-safe message. Anything unrecognized collapses to a generic 500.
func mapError(err error) (status int, code, message string) {
	var vErr *copilot.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, "INVALID_REQUEST", vErr.Error()
	case errors.Is(err, entitlement.ErrOrgAmbiguous):
		return http.StatusBadRequest, "ORG_AMBIGUOUS", "Multiple organizations; specify orgId"
	case errors.Is(err, entitlement.ErrNotEntitled):
		return http.StatusPaymentRequired, "NOT_ENTITLED", "Plan does not include the copilot"
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusPaymentRequired, "QUOTA_EXCEEDED", "Monthly token quota exceeded"
	case errors.Is(err, entitlement.ErrAIDisabled):
		return http.StatusForbidden, "AI_DISABLED", "AI features are disabled by your organization"
	case errors.Is(err, entitlement.ErrModeBlocked):
		return http.StatusForbidden, "MODE_BLOCKED", "Requested mode is blocked by organization policy"
	case errors.Is(err, llm.ErrNotConfigured):
		return http.StatusServiceUnavailable, "AI_NOT_CONFIGURED", "AI backend is not configured"
	case errors.Is(err, llm.ErrInvalidResponse):
		return http.StatusInternalServerError, "AI_INVALID_RESPONSE", "The model returned an unusable response"
	default:
		return http.StatusInternalServerError, "INTERNAL", "Internal error"
	}
}
