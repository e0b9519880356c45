package models

// Browser session actions
const (
	BrowserActionStart    = "start"
	BrowserActionNavigate = "navigate"
	BrowserActionEnd      = "end"
)

// BrowserSessionRequest is the payload for managing a browser session
type BrowserSessionRequest struct {
	Action    string `json:"action"`
	URL       string `json:"url,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// BrowserResponse is the outcome of a browser action
type BrowserResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LoginRequest carries CRM credentials for an explicit login
type LoginRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	SecurityAnswer string `json:"security_answer,omitempty"`
}
