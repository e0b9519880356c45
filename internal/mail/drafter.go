package mail

import (
	"context"
	"strings"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// Draft is a suggested reply together with the classified intent
type Draft struct {
	Reply      string  `json:"reply"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Drafter writes a reply for an email
type Drafter interface {
	Draft(ctx context.Context, email models.Email) (Draft, error)
}

const (
	IntentStatusInquiry      = "status_inquiry"
	IntentDeadlineQuestion   = "deadline_question"
	IntentDocumentSubmission = "document_submission"
	IntentGeneral            = "general"
)

type template struct {
	intent   string
	keywords []string
	reply    string
}

var templates = []template{
	{
		intent:   IntentStatusInquiry,
		keywords: []string{"status", "update", "decision"},
		reply: "Thank you for your inquiry. I can confirm that we have received your application and it is " +
			"currently being reviewed by our admissions committee. You can expect to hear back from us within " +
			"the next 2-3 weeks. If you have any other questions, please don't hesitate to ask.",
	},
	{
		intent:   IntentDeadlineQuestion,
		keywords: []string{"deadline", "due date", "when is"},
		reply: "Thank you for reaching out. Application deadlines for each term are listed on our admissions " +
			"website, and we recommend submitting your materials at least two weeks before the deadline. " +
			"Please let us know if you need any help with your application.",
	},
	{
		intent:   IntentDocumentSubmission,
		keywords: []string{"attached", "transcript", "document", "upload"},
		reply: "Thank you for sending your documents. We will add them to your application file and contact " +
			"you if anything else is required.",
	},
}

const generalReply = "Thank you for contacting the admissions office. A member of our team will review your " +
	"message and respond shortly."

// TemplateDrafter replies with canned text chosen by keyword intent
type TemplateDrafter struct{}

func (TemplateDrafter) Draft(_ context.Context, email models.Email) (Draft, error) {
	text := strings.ToLower(email.Subject + " " + email.Body)

	for _, t := range templates {
		hits := 0
		for _, kw := range t.keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > 0 {
			confidence := 0.6 + 0.15*float64(hits)
			if confidence > 0.95 {
				confidence = 0.95
			}
			return Draft{Reply: t.reply, Intent: t.intent, Confidence: confidence}, nil
		}
	}

	return Draft{Reply: generalReply, Intent: IntentGeneral, Confidence: 0.5}, nil
}
