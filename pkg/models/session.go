package models

import "time"

// WorkflowState represents the step a workflow session is currently performing
type WorkflowState string

const (
	StateIdle               WorkflowState = "idle"
	StateListening          WorkflowState = "listening"
	StateProcessingCommand  WorkflowState = "processing_command"
	StateAuthenticating     WorkflowState = "authenticating"
	StateNavigating         WorkflowState = "navigating"
	StateReadingEmail       WorkflowState = "reading_email"
	StateGeneratingResponse WorkflowState = "generating_response"
	StateReviewing          WorkflowState = "reviewing"
	StateSubmitting         WorkflowState = "submitting"
	StateError              WorkflowState = "error"
)

// WorkflowEvent is an immutable record appended whenever a session changes state
type WorkflowEvent struct {
	SessionID string         `json:"session_id"`
	State     WorkflowState  `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// SessionInfo is a read-only projection of a workflow session
type SessionInfo struct {
	SessionID        string         `json:"session_id"`
	BrowserSessionID string         `json:"browser_session_id,omitempty"`
	CurrentState     WorkflowState  `json:"current_state"`
	CurrentEmailID   string         `json:"current_email_id,omitempty"`
	HasDraft         bool           `json:"has_draft"`
	StartTime        time.Time      `json:"start_time"`
	Events           int            `json:"events"`
	LastEvent        *WorkflowEvent `json:"last_event,omitempty"`
}

// Result statuses returned by workflow operations
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultCreated = "created"
	ResultEnded   = "ended"
)

// Result is the structured outcome of every workflow operation
type Result struct {
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	Email         *Email `json:"email,omitempty"`
	DraftResponse string `json:"draft_response,omitempty"`
}

// OK reports whether the result is not an error
func (r Result) OK() bool {
	return r.Status != ResultError
}

// CommandRequest is the payload for submitting a text command
type CommandRequest struct {
	Command   string `json:"command"`
	SessionID string `json:"session_id,omitempty"`
}

// Credentials are used to sign in to the CRM
type Credentials struct {
	Username       string `json:"username"`
	Password       string `json:"-"`
	SecurityAnswer string `json:"-"`
}
