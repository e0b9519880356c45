package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

type fakeBrowser struct {
	mu sync.Mutex

	authErr   error
	authPanic bool
	navErr    error
	endErr    error

	// when set, Authenticate signals entered and waits for release
	entered chan struct{}
	release chan struct{}

	authCalls int
	navCalls  int
	ended     []string
	next      int
}

func (b *fakeBrowser) Authenticate(ctx context.Context, creds models.Credentials) (string, error) {
	b.mu.Lock()
	b.authCalls++
	b.next++
	n := b.next
	entered, release := b.entered, b.release
	b.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	if b.authPanic {
		panic("driver crashed")
	}
	if b.authErr != nil {
		return "", b.authErr
	}
	return fmt.Sprintf("browser-%d", n), nil
}

func (b *fakeBrowser) NavigateToInbox(ctx context.Context, handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navCalls++
	return b.navErr
}

func (b *fakeBrowser) End(ctx context.Context, handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = append(b.ended, handle)
	return b.endErr
}

func (b *fakeBrowser) calls() (auth, nav int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authCalls, b.navCalls
}

type fakeMail struct {
	mu sync.Mutex

	processErr error
	submitErr  error

	processCalls []string
	submissions  []models.DraftSubmission
}

func (m *fakeMail) Process(ctx context.Context, browserSession, emailID string) (*models.ProcessedEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processCalls = append(m.processCalls, emailID)
	if m.processErr != nil {
		return nil, m.processErr
	}
	if emailID == "" {
		emailID = "email123"
	}
	return &models.ProcessedEmail{
		Email: models.Email{
			EmailID: emailID,
			Subject: "Application Status Inquiry",
			Sender:  "student@example.com",
		},
		SuggestedResponse: "Thank you for your inquiry.",
		Intent:            "status_inquiry",
		Confidence:        0.89,
	}, nil
}

func (m *fakeMail) Submit(ctx context.Context, draft models.DraftSubmission) (*models.SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submissions = append(m.submissions, draft)
	action := "saved as draft"
	if draft.Send {
		action = "sent"
	}
	return &models.SubmitResult{EmailID: draft.EmailID, Status: models.ResultSuccess, Action: action}, nil
}

func (m *fakeMail) processCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processCalls)
}

func (m *fakeMail) submitted() []models.DraftSubmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DraftSubmission(nil), m.submissions...)
}

// eventLog captures every notified event
type eventLog struct {
	mu     sync.Mutex
	events []models.WorkflowEvent
}

func (l *eventLog) HandleEvent(ctx context.Context, event models.WorkflowEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) all() []models.WorkflowEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.WorkflowEvent(nil), l.events...)
}

type record struct {
	service string
	success bool
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []record
}

func (r *fakeRecorder) Record(service string, success bool, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record{service, success})
}

func (r *fakeRecorder) all() []record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]record(nil), r.records...)
}

// tickingClock returns strictly increasing timestamps
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 9, 15, 14, 30, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

var errRejected = errors.New("invalid credentials")
