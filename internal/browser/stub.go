package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// ErrUnknownSession is returned for a browser handle the driver does not own
var ErrUnknownSession = errors.New("browser: unknown session")

// Browser handle states reported by Status
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Stub is an in-memory driver that accepts any non-empty login
type Stub struct {
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]string // handle -> current url
}

// NewStub creates a stub browser driver
func NewStub(logger *slog.Logger) *Stub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stub{
		log:      logger.With("component", "browser", "backend", "stub"),
		sessions: make(map[string]string),
	}
}

func (s *Stub) Authenticate(ctx context.Context, creds models.Credentials) (string, error) {
	if creds.Username == "" {
		return "", fmt.Errorf("username is required")
	}

	handle := uuid.NewString()

	s.mu.Lock()
	s.sessions[handle] = "login"
	s.mu.Unlock()

	s.log.Info("logged into CRM", "username", creds.Username, "browser_session_id", handle)
	return handle, nil
}

func (s *Stub) NavigateToInbox(ctx context.Context, handle string) error {
	return s.Navigate(ctx, handle, "inbox")
}

// Navigate records url as the session's current page
func (s *Stub) Navigate(ctx context.Context, handle, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[handle]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, handle)
	}
	s.sessions[handle] = url
	s.log.Info("navigated", "browser_session_id", handle, "url", url)
	return nil
}

func (s *Stub) End(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[handle]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, handle)
	}
	delete(s.sessions, handle)
	return nil
}

// Status reports whether a handle is live
func (s *Stub) Status(ctx context.Context, handle string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[handle]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSession, handle)
	}
	return StatusActive, nil
}
