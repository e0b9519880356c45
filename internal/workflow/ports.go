package workflow

import (
	"context"
	"time"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// BrowserDriver drives the remote CRM web UI.
type BrowserDriver interface {
	// Authenticate signs in and returns a handle for the new browser session.
	Authenticate(ctx context.Context, creds models.Credentials) (string, error)
	NavigateToInbox(ctx context.Context, handle string) error
	// End releases the browser session. Callers treat it as best effort.
	End(ctx context.Context, handle string) error
}

// MailAgent reads inbox items, drafts replies and submits them.
type MailAgent interface {
	// Process loads an email and drafts a reply. An empty emailID selects
	// the first unread item.
	Process(ctx context.Context, browserSession, emailID string) (*models.ProcessedEmail, error)
	Submit(ctx context.Context, draft models.DraftSubmission) (*models.SubmitResult, error)
}

// Listener observes every event appended to any session.
type Listener interface {
	HandleEvent(ctx context.Context, event models.WorkflowEvent) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event models.WorkflowEvent) error

func (f ListenerFunc) HandleEvent(ctx context.Context, event models.WorkflowEvent) error {
	return f(ctx, event)
}

// Recorder receives timing for every collaborator call and command.
type Recorder interface {
	Record(service string, success bool, elapsed time.Duration, err error)
}
