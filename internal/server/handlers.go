package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/me/emailflow/pkg/model"
)

type healthResponse struct {
	Status    string `json:"status"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Emails    int    `json:"emails"`
	Responses int    `json:"responses"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	s.mu.Lock()
	n := len(s.received)
	s.mu.Unlock()
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Emails:    len(s.emails),
		Responses: n,
	})
}

// handleListEmails mirrors the remote contract: a bare JSON array.
func (s *Server) handleListEmails(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.authorized(r.URL.Query().Get("api_key")) {
		respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
			Code: model.ErrCodeUnauthorized, Message: "invalid or missing api_key",
		})
		return
	}
	emails := s.emails
	if emails == nil {
		emails = []model.EmailPayload{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(emails)
}

func (s *Server) handleListResponses(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.Received())
}

func (s *Server) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var p model.ResponsePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrCodeValidation, Message: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}
	if !s.authorized(p.APIKey) {
		respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
			Code: model.ErrCodeUnauthorized, Message: "invalid or missing api_key",
		})
		return
	}
	email, ok := s.byID[p.EmailID]
	if !ok || p.ResponseBody == "" {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrCodeValidation, Message: fmt.Sprintf("unknown email %q or empty response_body", p.EmailID),
		})
		return
	}

	if s.config.Latency > 0 {
		select {
		case <-time.After(s.config.Latency):
		case <-r.Context().Done():
			return
		}
	}

	if s.failIDs[p.EmailID] {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrCodeInternal, Message: "injected failure",
		})
		return
	}

	s.mu.Lock()
	if s.answered[p.EmailID] {
		s.mu.Unlock()
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code: model.ErrCodeValidation, Message: fmt.Sprintf("email %q already answered", p.EmailID),
		})
		return
	}
	early := false
	for _, dep := range email.Dependencies {
		if !s.answered[dep] {
			early = true
		}
	}
	s.answered[p.EmailID] = true
	s.received = append(s.received, Received{
		ResponsePayload: p,
		RequestID:       reqID,
		ReceivedAt:      time.Now().UTC(),
		Early:           early,
	})
	s.mu.Unlock()

	if early {
		s.logger.Warn("reply arrived before its dependencies", "email_id", p.EmailID)
	}
	respondCreated(w, reqID, map[string]string{"email_id": p.EmailID})
}

func (s *Server) authorized(key string) bool {
	if key == "" {
		return false
	}
	return s.config.APIKey == "" || key == s.config.APIKey
}
