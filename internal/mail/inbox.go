package mail

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

var (
	// ErrEmailNotFound is returned for an unknown email id
	ErrEmailNotFound = errors.New("mail: email not found")
	// ErrNoUnread is returned when every email has been read
	ErrNoUnread = errors.New("mail: no unread email")
)

// Inbox holds the operator's messages in arrival order
type Inbox struct {
	mu     sync.RWMutex
	order  []string
	emails map[string]*models.Email
}

// NewInbox creates an inbox holding the given emails
func NewInbox(emails ...models.Email) *Inbox {
	in := &Inbox{emails: make(map[string]*models.Email)}
	for _, e := range emails {
		in.Add(e)
	}
	return in
}

// Add appends an email, replacing any email with the same id
func (in *Inbox) Add(e models.Email) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, exists := in.emails[e.EmailID]; !exists {
		in.order = append(in.order, e.EmailID)
	}
	in.emails[e.EmailID] = &e
}

// Get returns an email by id
func (in *Inbox) Get(id string) (models.Email, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	e, ok := in.emails[id]
	if !ok {
		return models.Email{}, fmt.Errorf("%w: %s", ErrEmailNotFound, id)
	}
	return *e, nil
}

// FirstUnread returns the oldest unread email
func (in *Inbox) FirstUnread() (models.Email, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	for _, id := range in.order {
		if e := in.emails[id]; !e.Read {
			return *e, nil
		}
	}
	return models.Email{}, ErrNoUnread
}

// MarkRead flags an email as read
func (in *Inbox) MarkRead(id string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	e, ok := in.emails[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEmailNotFound, id)
	}
	e.Read = true
	return nil
}

// List returns up to limit summaries in arrival order
func (in *Inbox) List(limit int) []models.EmailSummary {
	in.mu.RLock()
	defer in.mu.RUnlock()

	n := len(in.order)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]models.EmailSummary, 0, n)
	for _, id := range in.order[:n] {
		e := in.emails[id]
		out = append(out, models.EmailSummary{
			EmailID: e.EmailID,
			Subject: e.Subject,
			Sender:  e.Sender,
			Date:    e.Date,
			Read:    e.Read,
		})
	}
	return out
}

// SampleEmails returns a small admissions inbox for development
func SampleEmails(now time.Time) []models.Email {
	const recipient = "admissions@illinoistech.edu"
	return []models.Email{
		{
			EmailID:   "email123",
			Subject:   "Application Status Inquiry",
			Sender:    "student@example.com",
			Recipient: recipient,
			Date:      now.Add(-4 * time.Hour),
			Body: "Hello, I submitted my application last week and was wondering about its status. " +
				"Can you please provide an update? Thank you.",
		},
		{
			EmailID:   "email124",
			Subject:   "Question about the application deadline",
			Sender:    "applicant@example.com",
			Recipient: recipient,
			Date:      now.Add(-3 * time.Hour),
			Body:      "Hi, when is the deadline for the spring intake? I want to make sure I apply on time.",
		},
		{
			EmailID:     "email125",
			Subject:     "Transcript upload",
			Sender:      "transfer@example.com",
			Recipient:   recipient,
			Date:        now.Add(-2 * time.Hour),
			Body:        "I have attached my official transcript. Please let me know if any other documents are required.",
			Attachments: []string{"transcript.pdf"},
		},
	}
}
