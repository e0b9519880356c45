package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// run holds the session's command slot for the whole dispatch so commands on
// one session never interleave.
func (c *Controller) run(ctx context.Context, s *Session, command string) models.Result {
	if err := s.cmd.Acquire(ctx, 1); err != nil {
		return errorResult(s.ID, fmt.Sprintf("Session busy: %v", err))
	}
	defer s.cmd.Release(1)

	if s.isEnded() {
		return errorResult(s.ID, "Session not found")
	}

	start := time.Now()
	res := c.processCommand(ctx, s, command)
	if c.recorder != nil {
		var err error
		if !res.OK() {
			err = errors.New(res.Message)
		}
		c.recorder.Record("workflow", res.OK(), time.Since(start), err)
	}
	return res
}

func (c *Controller) processCommand(ctx context.Context, s *Session, command string) models.Result {
	c.log.Info("processing command", "session_id", s.ID, "command", command)

	c.emit(ctx, s, models.StateProcessingCommand,
		map[string]any{"command": command},
		fmt.Sprintf("Processing command: %s", command),
	)

	switch intent := Classify(command); intent {
	case IntentLogin:
		return c.handleLogin(ctx, s)
	case IntentInbox:
		return c.handleInbox(ctx, s)
	case IntentReadEmail:
		return c.handleReadEmail(ctx, s)
	case IntentGenerateResponse:
		return c.handleGenerateResponse(ctx, s)
	case IntentSend:
		return c.handleSubmitResponse(ctx, s, true)
	case IntentSaveDraft:
		return c.handleSubmitResponse(ctx, s, false)
	default:
		c.log.Warn("unknown command", "session_id", s.ID, "command", command)
		return c.fail(ctx, s, fmt.Sprintf("Unknown command: %s", command), "Unknown command")
	}
}

// fail moves the session into the error state and builds the error result
func (c *Controller) fail(ctx context.Context, s *Session, eventMessage, resultMessage string) models.Result {
	c.emit(ctx, s, models.StateError, nil, eventMessage)
	return errorResult(s.ID, resultMessage)
}

func (c *Controller) handleLogin(ctx context.Context, s *Session) models.Result {
	log := c.log.With("session_id", s.ID)
	log.Info("handling login command")

	c.emit(ctx, s, models.StateAuthenticating, nil, "Authenticating to Slate CRM")

	var handle string
	err := c.call("browser", func() error {
		h, err := c.browser.Authenticate(ctx, c.creds)
		if err != nil {
			return err
		}
		if h == "" {
			return errors.New("browser returned an empty session handle")
		}
		handle = h
		return nil
	})
	if err != nil {
		log.Error("error during authentication", "error", err)
		return c.fail(ctx, s, fmt.Sprintf("Authentication failed: %v", err), "Authentication failed")
	}

	previous := s.BrowserSessionID()
	s.setBrowserSessionID(handle)
	if previous != "" && previous != handle {
		log.Info("replacing browser session", "browser_session_id", previous)
		c.endBrowser(ctx, log, previous)
	}
	c.emit(ctx, s, models.StateListening, nil, "Authentication successful, listening for next command")

	return models.Result{Status: models.ResultSuccess, Message: "Authentication successful", SessionID: s.ID}
}

func (c *Controller) handleInbox(ctx context.Context, s *Session) models.Result {
	log := c.log.With("session_id", s.ID)
	log.Info("handling inbox command")

	handle := s.BrowserSessionID()
	if handle == "" {
		log.Warn("cannot navigate to inbox: not authenticated")
		return c.fail(ctx, s, "Cannot navigate to inbox: Not authenticated", "Not authenticated")
	}

	c.emit(ctx, s, models.StateNavigating, nil, "Navigating to inbox")

	err := c.call("browser", func() error {
		return c.browser.NavigateToInbox(ctx, handle)
	})
	if err != nil {
		log.Error("error during navigation", "error", err)
		return c.fail(ctx, s, fmt.Sprintf("Navigation failed: %v", err), "Navigation failed")
	}

	c.emit(ctx, s, models.StateListening, nil, "Navigation successful, listening for next command")

	return models.Result{Status: models.ResultSuccess, Message: "Navigation successful", SessionID: s.ID}
}

func (c *Controller) handleReadEmail(ctx context.Context, s *Session) models.Result {
	log := c.log.With("session_id", s.ID)
	log.Info("handling read email command")

	handle := s.BrowserSessionID()
	if handle == "" {
		log.Warn("cannot read email: not authenticated")
		return c.fail(ctx, s, "Cannot read email: Not authenticated", "Not authenticated")
	}

	c.emit(ctx, s, models.StateReadingEmail, nil, "Reading email")

	processed, err := c.processEmail(ctx, handle, "")
	if err != nil {
		log.Error("error reading email", "error", err)
		return c.fail(ctx, s, fmt.Sprintf("Error reading email: %v", err), err.Error())
	}

	email := processed.Email
	s.setCurrentEmailID(email.EmailID)
	c.emit(ctx, s, models.StateListening,
		map[string]any{"email": email},
		fmt.Sprintf("Email read: %s", email.Subject),
	)

	return models.Result{
		Status:    models.ResultSuccess,
		Message:   "Email read successfully",
		SessionID: s.ID,
		Email:     &email,
	}
}

func (c *Controller) handleGenerateResponse(ctx context.Context, s *Session) models.Result {
	log := c.log.With("session_id", s.ID)
	log.Info("handling generate response command")

	emailID := s.CurrentEmailID()
	if emailID == "" {
		log.Warn("cannot generate response: no email selected")
		return c.fail(ctx, s, "Cannot generate response: No email selected", "No email selected")
	}

	c.emit(ctx, s, models.StateGeneratingResponse, nil, "Generating email response")

	processed, err := c.processEmail(ctx, s.BrowserSessionID(), emailID)
	if err != nil {
		log.Error("error generating response", "error", err)
		return c.fail(ctx, s, fmt.Sprintf("Error generating response: %v", err), err.Error())
	}

	draft := processed.SuggestedResponse
	s.setDraftResponse(draft)
	c.emit(ctx, s, models.StateReviewing,
		map[string]any{"draft_response": draft},
		"Response generated, ready for review",
	)

	return models.Result{
		Status:        models.ResultSuccess,
		Message:       "Response generated",
		SessionID:     s.ID,
		DraftResponse: draft,
	}
}

func (c *Controller) handleSubmitResponse(ctx context.Context, s *Session, send bool) models.Result {
	log := c.log.With("session_id", s.ID, "send", send)
	log.Info("handling submit response command")

	emailID := s.CurrentEmailID()
	if emailID == "" {
		log.Warn("cannot submit response: no email selected")
		return c.fail(ctx, s, "Cannot submit response: No email selected", "No email selected")
	}

	draft := s.DraftResponse()
	if draft == "" {
		log.Warn("cannot submit response: no draft response created")
		return c.fail(ctx, s, "Cannot submit response: No draft response created", "No draft response created")
	}

	target := "draft"
	action := "saved as draft"
	if send {
		target = "email"
		action = "sent"
	}

	c.emit(ctx, s, models.StateSubmitting, nil, fmt.Sprintf("Submitting response as %s", target))

	err := c.call("email", func() error {
		res, err := c.mail.Submit(ctx, models.DraftSubmission{
			EmailID:      emailID,
			SessionID:    s.BrowserSessionID(),
			ResponseText: draft,
			Send:         send,
		})
		if err != nil {
			return err
		}
		if res != nil && res.Status != "" && res.Status != models.ResultSuccess {
			return fmt.Errorf("submission returned status %q", res.Status)
		}
		return nil
	})
	if err != nil {
		log.Error("error submitting response", "error", err)
		return c.fail(ctx, s, fmt.Sprintf("Error submitting response: %v", err), err.Error())
	}

	s.clearReply()
	message := fmt.Sprintf("Response %s successfully", action)
	c.emit(ctx, s, models.StateListening, nil, message)

	return models.Result{Status: models.ResultSuccess, Message: message, SessionID: s.ID}
}

func (c *Controller) processEmail(ctx context.Context, browserSession, emailID string) (*models.ProcessedEmail, error) {
	var processed *models.ProcessedEmail
	err := c.call("email", func() error {
		p, err := c.mail.Process(ctx, browserSession, emailID)
		if err != nil {
			return err
		}
		if p == nil || p.Email.EmailID == "" {
			return errors.New("mail agent returned no email")
		}
		processed = p
		return nil
	})
	return processed, err
}
