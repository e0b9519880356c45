package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// ErrSessionNotFound is returned for operations on an unknown session id
var ErrSessionNotFound = errors.New("session not found")

// browserEndTimeout bounds the best-effort browser teardown on session end
const browserEndTimeout = 30 * time.Second

// Config holds optional controller dependencies
type Config struct {
	// Credentials are passed to the browser driver on login
	Credentials models.Credentials
	Logger      *slog.Logger
	Recorder    Recorder
	Now         func() time.Time
}

// Controller owns the session registry and sequences commands into states
type Controller struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	seq      uint64

	listenersMu sync.RWMutex
	listeners   []Listener

	browser  BrowserDriver
	mail     MailAgent
	creds    models.Credentials
	recorder Recorder
	log      *slog.Logger
	now      func() time.Time
}

// NewController creates a workflow controller
func NewController(browser BrowserDriver, mail MailAgent, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Controller{
		sessions: make(map[string]*Session),
		browser:  browser,
		mail:     mail,
		creds:    cfg.Credentials,
		recorder: cfg.Recorder,
		log:      cfg.Logger.With("component", "workflow"),
		now:      cfg.Now,
	}
}

// CreateSession registers a new session in the listening state
func (c *Controller) CreateSession(ctx context.Context) models.Result {
	s := c.createSession(ctx)
	return models.Result{Status: models.ResultCreated, SessionID: s.ID}
}

func (c *Controller) createSession(ctx context.Context) *Session {
	c.mu.Lock()
	c.seq++
	s := newSession(uuid.New().String(), c.seq, c.now())
	// the first event is appended before the session becomes visible
	event := s.addEvent(models.StateListening, nil, "Session created, listening for commands", c.now())
	c.sessions[s.ID] = s
	c.mu.Unlock()

	c.log.Info("created workflow session", "session_id", s.ID)
	c.notify(ctx, event)

	return s
}

// EndSession terminates a session and removes it from the registry. It waits
// for a command already running on the session to finish.
func (c *Controller) EndSession(ctx context.Context, sessionID string) (models.Result, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		c.log.Warn("attempted to end non-existent session", "session_id", sessionID)
		return errorResult(sessionID, "Session not found"), err
	}

	if err := s.cmd.Acquire(ctx, 1); err != nil {
		return errorResult(sessionID, fmt.Sprintf("Session busy: %v", err)), err
	}
	defer s.cmd.Release(1)

	if s.isEnded() {
		return errorResult(sessionID, "Session not found"), ErrSessionNotFound
	}

	log := c.log.With("session_id", s.ID)

	if handle := s.BrowserSessionID(); handle != "" {
		c.endBrowser(ctx, log, handle)
	}

	c.emit(ctx, s, models.StateIdle, nil, "Session ended")
	s.markEnded()

	c.mu.Lock()
	delete(c.sessions, s.ID)
	c.mu.Unlock()

	log.Info("ended workflow session")
	return models.Result{Status: models.ResultEnded, SessionID: s.ID}, nil
}

// GetSession returns a snapshot of one session
func (c *Controller) GetSession(sessionID string) (*models.SessionInfo, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	info := s.Info()
	return &info, nil
}

// GetAllSessions returns snapshots of every registered session, oldest first
func (c *Controller) GetAllSessions() []models.SessionInfo {
	c.mu.RLock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].seq < sessions[j].seq
	})

	infos := make([]models.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// ProcessVoiceCommand dispatches a command to the active session, creating
// one when none exists.
func (c *Controller) ProcessVoiceCommand(ctx context.Context, command string) models.Result {
	s := c.activeSession()
	if s == nil {
		s = c.createSession(ctx)
	}
	return c.run(ctx, s, command)
}

// ProcessCommand dispatches a command to the given session, or to the active
// session when sessionID is empty.
func (c *Controller) ProcessCommand(ctx context.Context, command, sessionID string) (models.Result, error) {
	if sessionID == "" {
		return c.ProcessVoiceCommand(ctx, command), nil
	}

	s, err := c.lookup(sessionID)
	if err != nil {
		return errorResult(sessionID, "Session not found"), err
	}
	return c.run(ctx, s, command), nil
}

// HandleVoiceEvent bridges wake-word activation into the workflow
func (c *Controller) HandleVoiceEvent(ctx context.Context, event models.VoiceEvent) {
	c.log.Info("received voice event", "event", event.Event)

	switch event.Event {
	case models.VoiceEventWakeWord:
		c.createSession(ctx)

	case models.VoiceEventCommand:
		s := c.activeSession()
		if s == nil {
			c.log.Warn("received command but no active session exists", "command", event.Command)
			return
		}
		c.run(ctx, s, event.Command)

	default:
		c.log.Warn("unknown voice event", "event", event.Event)
	}
}

// RegisterEventListener adds a listener invoked for every event of every
// session, in registration order.
func (c *Controller) RegisterEventListener(l Listener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	n := len(c.listeners)
	c.listenersMu.Unlock()

	c.log.Info("registered event listener", "total", n)
}

// Shutdown ends every registered session
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.RLock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			_, err := c.EndSession(gctx, id)
			if errors.Is(err, ErrSessionNotFound) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (c *Controller) lookup(sessionID string) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// activeSession returns the most recently started session that is not idle
func (c *Controller) activeSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var active *Session
	for _, s := range c.sessions {
		if s.State() == models.StateIdle {
			continue
		}
		if active == nil ||
			s.StartTime.After(active.StartTime) ||
			(s.StartTime.Equal(active.StartTime) && s.seq > active.seq) {
			active = s
		}
	}
	return active
}

// emit appends an event to the session and notifies listeners before returning
func (c *Controller) emit(ctx context.Context, s *Session, state models.WorkflowState, data map[string]any, message string) {
	event := s.addEvent(state, data, message, c.now())
	c.notify(ctx, event)
}

func (c *Controller) notify(ctx context.Context, event models.WorkflowEvent) {
	c.listenersMu.RLock()
	listeners := slices.Clone(c.listeners)
	c.listenersMu.RUnlock()

	for i, l := range listeners {
		if err := invokeListener(ctx, l, event); err != nil {
			c.log.Error("error in event listener",
				"listener", i,
				"session_id", event.SessionID,
				"state", event.State,
				"error", err,
			)
		}
	}
}

func invokeListener(ctx context.Context, l Listener, event models.WorkflowEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.HandleEvent(ctx, event)
}

// call runs a collaborator invocation, converting panics into errors and
// recording its outcome.
func (c *Controller) call(service string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s collaborator panic: %v", service, r)
		}
		if c.recorder != nil {
			c.recorder.Record(service, err == nil, time.Since(start), err)
		}
	}()
	return fn()
}

// endBrowser ends a browser handle, logging rather than returning failures
func (c *Controller) endBrowser(ctx context.Context, log *slog.Logger, handle string) {
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), browserEndTimeout)
	defer cancel()

	err := c.call("browser", func() error {
		return c.browser.End(endCtx, handle)
	})
	if err != nil {
		log.Error("error closing browser session", "browser_session_id", handle, "error", err)
	}
}

func errorResult(sessionID, message string) models.Result {
	return models.Result{Status: models.ResultError, Message: message, SessionID: sessionID}
}
