package workflow

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// Session is one tracked conversation between an operator and the assistant.
// Its fields are only mutated by Controller handlers while the session's
// command slot is held.
type Session struct {
	ID        string
	StartTime time.Time

	// seq orders sessions created within the same clock tick
	seq uint64
	// cmd admits one command (or end) at a time
	cmd *semaphore.Weighted

	mu               sync.RWMutex
	browserSessionID string
	currentEmailID   string
	currentState     models.WorkflowState
	draftResponse    string
	events           []models.WorkflowEvent
	ended            bool
}

func newSession(id string, seq uint64, now time.Time) *Session {
	return &Session{
		ID:           id,
		StartTime:    now,
		seq:          seq,
		cmd:          semaphore.NewWeighted(1),
		currentState: models.StateIdle,
	}
}

// addEvent appends an event and moves the session into its state in a
// single critical section.
func (s *Session) addEvent(state models.WorkflowState, data map[string]any, message string, now time.Time) models.WorkflowEvent {
	event := models.WorkflowEvent{
		SessionID: s.ID,
		State:     state,
		Timestamp: now,
		Data:      data,
		Message:   message,
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	s.currentState = state
	s.mu.Unlock()

	return event
}

// State returns the current workflow state
func (s *Session) State() models.WorkflowState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentState
}

// BrowserSessionID returns the linked browser handle, if any
func (s *Session) BrowserSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.browserSessionID
}

// CurrentEmailID returns the email under review, if any
func (s *Session) CurrentEmailID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentEmailID
}

// DraftResponse returns the pending draft, if any
func (s *Session) DraftResponse() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draftResponse
}

func (s *Session) setBrowserSessionID(id string) {
	s.mu.Lock()
	s.browserSessionID = id
	s.mu.Unlock()
}

func (s *Session) setCurrentEmailID(id string) {
	s.mu.Lock()
	s.currentEmailID = id
	s.mu.Unlock()
}

func (s *Session) setDraftResponse(draft string) {
	s.mu.Lock()
	s.draftResponse = draft
	s.mu.Unlock()
}

func (s *Session) clearReply() {
	s.mu.Lock()
	s.currentEmailID = ""
	s.draftResponse = ""
	s.mu.Unlock()
}

func (s *Session) markEnded() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

func (s *Session) isEnded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// Info returns a read-only snapshot of the session
func (s *Session) Info() models.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := models.SessionInfo{
		SessionID:        s.ID,
		BrowserSessionID: s.browserSessionID,
		CurrentState:     s.currentState,
		CurrentEmailID:   s.currentEmailID,
		HasDraft:         s.draftResponse != "",
		StartTime:        s.StartTime,
		Events:           len(s.events),
	}
	if n := len(s.events); n > 0 {
		last := s.events[n-1]
		info.LastEvent = &last
	}
	return info
}
