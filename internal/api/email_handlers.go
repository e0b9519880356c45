package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

const defaultListLimit = 10

// ProcessEmail handles POST /api/v1/email/process
func (h *Handler) ProcessEmail(w http.ResponseWriter, r *http.Request) {
	var req models.ProcessEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	h.log.Info("processing email", "browser_session_id", req.SessionID, "email_id", req.EmailID)

	done := h.monitor.Track("email")
	processed, err := h.mail.Process(r.Context(), req.SessionID, req.EmailID)
	done(err)
	if err != nil {
		h.log.Error("error processing email", "error", err)
		http.Error(w, "Error processing email: "+err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, processed)
}

// SubmitDraft handles POST /api/v1/email/draft
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	var req models.DraftSubmission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	done := h.monitor.Track("email")
	result, err := h.mail.Submit(r.Context(), req)
	done(err)
	if err != nil {
		h.log.Error("error submitting email draft", "email_id", req.EmailID, "error", err)
		http.Error(w, "Error submitting email draft: "+err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": models.ResultSuccess,
		"result": result,
	})
}

// ListEmails handles GET /api/v1/email/list?session_id=&limit=
func (h *Handler) ListEmails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	done := h.monitor.Track("email")
	emails, err := h.mail.List(r.Context(), sessionID, limit)
	done(err)
	if err != nil {
		http.Error(w, "Error listing emails: "+err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, emails)
}
