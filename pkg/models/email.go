package models

import "time"

// Email is a single inbox item
type Email struct {
	EmailID     string    `json:"email_id"`
	Subject     string    `json:"subject"`
	Sender      string    `json:"sender"`
	Recipient   string    `json:"recipient"`
	Date        time.Time `json:"date"`
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments,omitempty"`
	Read        bool      `json:"read"`
}

// EmailSummary is the inbox listing view of an email
type EmailSummary struct {
	EmailID string    `json:"email_id"`
	Subject string    `json:"subject"`
	Sender  string    `json:"sender"`
	Date    time.Time `json:"date"`
	Read    bool      `json:"read"`
}

// ProcessedEmail is an email together with a suggested reply
type ProcessedEmail struct {
	Email             Email   `json:"email"`
	SuggestedResponse string  `json:"suggested_response"`
	Intent            string  `json:"intent"`
	Confidence        float64 `json:"confidence"`
}

// ProcessEmailRequest is the payload for processing an email
type ProcessEmailRequest struct {
	SessionID string `json:"session_id"`
	EmailID   string `json:"email_id,omitempty"`
}

// DraftSubmission is the payload for submitting a reply
type DraftSubmission struct {
	EmailID      string `json:"email_id"`
	SessionID    string `json:"session_id"`
	ResponseText string `json:"response_text"`
	Send         bool   `json:"send"`
}

// SubmitResult is the outcome of a draft submission
type SubmitResult struct {
	EmailID   string    `json:"email_id"`
	Status    string    `json:"status"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}
