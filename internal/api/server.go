package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/crm-voice-assistant/internal/ratelimit"
)

// RouteConfig holds the cross-cutting settings of the router
type RouteConfig struct {
	Limiter         *ratelimit.Limiter
	RequestsPerHour int
	CORSOrigins     []string
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(cfg RouteConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Command-style endpoints are rate limited per client
	limited := api.PathPrefix("").Subrouter()
	if cfg.Limiter != nil {
		limited.Use(RateLimitMiddleware(cfg.Limiter, cfg.RequestsPerHour))
	}

	limited.HandleFunc("/workflow/command", h.ProcessCommand).Methods("POST")
	limited.HandleFunc("/voice/command", h.VoiceCommand).Methods("POST")
	limited.HandleFunc("/voice/listen", h.Listen).Methods("POST")
	limited.HandleFunc("/email/process", h.ProcessEmail).Methods("POST")
	limited.HandleFunc("/email/draft", h.SubmitDraft).Methods("POST")
	limited.HandleFunc("/browser/session", h.ManageBrowserSession).Methods("POST")
	limited.HandleFunc("/browser/login", h.Login).Methods("POST")

	// Workflow
	api.HandleFunc("/workflow/session", h.CreateSession).Methods("POST")
	api.HandleFunc("/workflow/session/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/workflow/session/{id}", h.EndSession).Methods("DELETE")
	api.HandleFunc("/workflow/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/workflow/events", h.StreamEvents).Methods("GET")

	// Voice
	api.HandleFunc("/voice/wake-word", h.DetectWakeWord).Methods("POST")
	api.HandleFunc("/voice/event", h.VoiceEvent).Methods("POST")
	api.HandleFunc("/voice/status", h.VoiceStatus).Methods("GET")
	api.HandleFunc("/voice/commands", h.NextCommand).Methods("GET")

	// Email
	api.HandleFunc("/email/list", h.ListEmails).Methods("GET")

	// Browser
	api.HandleFunc("/browser/navigate/inbox", h.NavigateInbox).Methods("POST")
	api.HandleFunc("/browser/session/{id}", h.GetBrowserSession).Methods("GET")
	api.HandleFunc("/browser/profiles/{account}", h.GetProfile).Methods("GET")
	api.HandleFunc("/browser/profiles/{account}", h.DeleteProfile).Methods("DELETE")

	// Monitoring
	api.HandleFunc("/metrics", h.Metrics).Methods("GET")
	api.HandleFunc("/metrics/{service}", h.ServiceMetrics).Methods("GET")

	// CORS wraps the router so preflights reach it without a matching route
	return loggingMiddleware(h.log)(corsMiddleware(cfg.CORSOrigins)(r))
}
