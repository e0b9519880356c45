package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/crm-voice-assistant/internal/browser"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/mail"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/monitor"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/profile"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/stream"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/voice"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/workflow"
	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Browser is the browser surface exposed over HTTP
type Browser interface {
	workflow.BrowserDriver
	Navigate(ctx context.Context, handle, url string) error
	Status(ctx context.Context, handle string) (string, error)
}

// ProfileStore exposes saved browser profiles
type ProfileStore interface {
	Get(account string) (*models.BrowserProfile, error)
	Delete(account string) error
}

// Deps are the collaborators the HTTP handlers call into
type Deps struct {
	Controller  *workflow.Controller
	Mail        *mail.Service
	Browser     Browser
	Profiles    ProfileStore
	Credentials models.Credentials
	Recognizer  voice.Recognizer
	Activator   *voice.Activator
	Monitor     *monitor.Monitor
	Hub         *stream.Hub
	Logger      *slog.Logger
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	controller *workflow.Controller
	mail       *mail.Service
	browser    Browser
	profiles   ProfileStore
	creds      models.Credentials
	recognizer voice.Recognizer
	activator  *voice.Activator
	monitor    *monitor.Monitor
	hub        *stream.Hub
	log        *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Monitor == nil {
		deps.Monitor = monitor.New(deps.Logger, monitor.DefaultServices...)
	}
	return &Handler{
		controller: deps.Controller,
		mail:       deps.Mail,
		browser:    deps.Browser,
		profiles:   deps.Profiles,
		creds:      deps.Credentials,
		recognizer: deps.Recognizer,
		activator:  deps.Activator,
		monitor:    deps.Monitor,
		hub:        deps.Hub,
		log:        deps.Logger.With("component", "api"),
	}
}

// ProcessCommand handles POST /api/v1/workflow/command
func (h *Handler) ProcessCommand(w http.ResponseWriter, r *http.Request) {
	var req models.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}

	result, err := h.controller.ProcessCommand(r.Context(), req.Command, req.SessionID)
	if err != nil {
		writeJSON(w, statusFor(err), result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CreateSession handles POST /api/v1/workflow/session
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.controller.CreateSession(r.Context()))
}

// EndSession handles DELETE /api/v1/workflow/session/{id}
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := h.controller.EndSession(r.Context(), id)
	if err != nil {
		writeJSON(w, statusFor(err), result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetSession handles GET /api/v1/workflow/session/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, err := h.controller.GetSession(id)
	if err != nil {
		http.Error(w, "Session "+id+" not found", statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// ListSessions handles GET /api/v1/workflow/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.GetAllSessions())
}

// StreamEvents handles GET /api/v1/workflow/events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string)
	status := "healthy"
	for _, s := range h.monitor.Snapshot() {
		state := "healthy"
		if s.SuccessRate != nil && *s.SuccessRate < 50 {
			state = "degraded"
			status = "degraded"
		}
		services[s.Service] = state
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"version":  Version,
		"services": services,
	})
}

// Metrics handles GET /api/v1/metrics
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"system":   h.monitor.System(),
		"services": h.monitor.Snapshot(),
	})
}

// ServiceMetrics handles GET /api/v1/metrics/{service}
func (h *Handler) ServiceMetrics(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["service"]

	m, ok := h.monitor.Service(name)
	if !ok {
		http.Error(w, "Service "+name+" not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// statusFor maps package sentinels to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrSessionNotFound),
		errors.Is(err, mail.ErrEmailNotFound),
		errors.Is(err, mail.ErrNoUnread),
		errors.Is(err, browser.ErrUnknownSession),
		errors.Is(err, profile.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, mail.ErrEmptyDraft):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
