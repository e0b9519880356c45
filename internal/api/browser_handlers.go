package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/crm-voice-assistant/internal/browser"
	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// ManageBrowserSession handles POST /api/v1/browser/session
func (h *Handler) ManageBrowserSession(w http.ResponseWriter, r *http.Request) {
	var req models.BrowserSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.log.Info("browser session action", "action", req.Action, "browser_session_id", req.SessionID)

	if req.Action != models.BrowserActionStart && req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	handle := req.SessionID
	done := h.monitor.Track("browser")

	var err error
	switch req.Action {
	case models.BrowserActionStart:
		handle, err = h.browser.Authenticate(ctx, h.creds)
	case models.BrowserActionNavigate:
		if req.URL == "" {
			err = h.browser.NavigateToInbox(ctx, handle)
		} else {
			err = h.browser.Navigate(ctx, handle, req.URL)
		}
	case models.BrowserActionEnd:
		err = h.browser.End(ctx, handle)
	default:
		http.Error(w, fmt.Sprintf("Unknown action: %s", req.Action), http.StatusBadRequest)
		return
	}
	done(err)

	if err != nil {
		h.browserError(w, handle, fmt.Sprintf("Error in browser session: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, models.BrowserResponse{
		SessionID: handle,
		Status:    models.ResultSuccess,
		Content:   fmt.Sprintf("Browser action %s completed", req.Action),
	})
}

// Login handles POST /api/v1/browser/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	done := h.monitor.Track("browser")
	handle, err := h.browser.Authenticate(r.Context(), models.Credentials{
		Username:       req.Username,
		Password:       req.Password,
		SecurityAnswer: req.SecurityAnswer,
	})
	done(err)
	if err != nil {
		h.browserError(w, "", fmt.Sprintf("Error logging into CRM: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, models.BrowserResponse{
		SessionID: handle,
		Status:    models.ResultSuccess,
		Content:   "Login successful",
	})
}

// NavigateInbox handles POST /api/v1/browser/navigate/inbox?session_id=
func (h *Handler) NavigateInbox(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("session_id")
	if handle == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	done := h.monitor.Track("browser")
	err := h.browser.NavigateToInbox(r.Context(), handle)
	done(err)
	if err != nil {
		h.browserError(w, handle, fmt.Sprintf("Error navigating to inbox: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, models.BrowserResponse{
		SessionID: handle,
		Status:    models.ResultSuccess,
		Content:   "Navigated to inbox",
	})
}

// GetBrowserSession handles GET /api/v1/browser/session/{id}
func (h *Handler) GetBrowserSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	status, err := h.browser.Status(r.Context(), id)
	if err != nil {
		h.browserError(w, id, err.Error(), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"status":     status,
	})
}

// GetProfile handles GET /api/v1/browser/profiles/{account}
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		http.Error(w, "Profile storage is not configured", http.StatusNotFound)
		return
	}

	p, err := h.profiles.Get(mux.Vars(r)["account"])
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// DeleteProfile handles DELETE /api/v1/browser/profiles/{account}
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		http.Error(w, "Profile storage is not configured", http.StatusNotFound)
		return
	}

	if err := h.profiles.Delete(mux.Vars(r)["account"]); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) browserError(w http.ResponseWriter, handle, message string, err error) {
	h.log.Error("browser action failed", "browser_session_id", handle, "error", err)

	code := http.StatusInternalServerError
	if errors.Is(err, browser.ErrUnknownSession) {
		code = http.StatusNotFound
	}
	writeJSON(w, code, models.BrowserResponse{
		SessionID: handle,
		Status:    models.ResultError,
		Error:     message,
	})
}
