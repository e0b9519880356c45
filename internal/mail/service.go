package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// ErrEmptyDraft is returned when submitting a reply with no text
var ErrEmptyDraft = errors.New("mail: response text is empty")

// Submission is a reply handed to the outbox
type Submission struct {
	models.DraftSubmission
	Result models.SubmitResult
}

// Service reads the inbox, drafts replies and records submissions
type Service struct {
	inbox   *Inbox
	drafter Drafter
	log     *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	outbox []Submission
}

// NewService creates a mail service
func NewService(inbox *Inbox, drafter Drafter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		inbox:   inbox,
		drafter: drafter,
		log:     logger.With("component", "mail"),
		now:     time.Now,
	}
}

// Process loads an email, marks it read and drafts a reply. An empty emailID
// selects the first unread email.
func (s *Service) Process(ctx context.Context, browserSession, emailID string) (*models.ProcessedEmail, error) {
	s.log.Info("processing email", "browser_session_id", browserSession, "email_id", emailID)

	var (
		email models.Email
		err   error
	)
	if emailID == "" {
		email, err = s.inbox.FirstUnread()
	} else {
		email, err = s.inbox.Get(emailID)
	}
	if err != nil {
		return nil, err
	}

	if err := s.inbox.MarkRead(email.EmailID); err != nil {
		return nil, err
	}
	email.Read = true

	draft, err := s.drafter.Draft(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("draft reply for %s: %w", email.EmailID, err)
	}

	return &models.ProcessedEmail{
		Email:             email,
		SuggestedResponse: draft.Reply,
		Intent:            draft.Intent,
		Confidence:        draft.Confidence,
	}, nil
}

// Submit sends a reply or saves it as a draft
func (s *Service) Submit(ctx context.Context, draft models.DraftSubmission) (*models.SubmitResult, error) {
	s.log.Info("submitting draft", "email_id", draft.EmailID, "browser_session_id", draft.SessionID, "send", draft.Send)

	if strings.TrimSpace(draft.ResponseText) == "" {
		return nil, ErrEmptyDraft
	}
	if _, err := s.inbox.Get(draft.EmailID); err != nil {
		return nil, err
	}

	action := "saved as draft"
	if draft.Send {
		action = "sent"
	}

	res := models.SubmitResult{
		EmailID:   draft.EmailID,
		Status:    models.ResultSuccess,
		Action:    action,
		Timestamp: s.now(),
	}

	s.mu.Lock()
	s.outbox = append(s.outbox, Submission{DraftSubmission: draft, Result: res})
	s.mu.Unlock()

	return &res, nil
}

// List returns up to limit inbox summaries
func (s *Service) List(ctx context.Context, browserSession string, limit int) ([]models.EmailSummary, error) {
	s.log.Info("listing emails", "browser_session_id", browserSession, "limit", limit)
	return s.inbox.List(limit), nil
}

// Outbox returns every submission so far
func (s *Service) Outbox() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outbox)
}
