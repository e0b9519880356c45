package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

const draftSystemPrompt = `
You draft replies for a university admissions office CRM inbox.
Read the email and answer with ONLY a JSON object, no markdown:

{
  "reply": "<the reply to send, plain text, polite and concise>",
  "intent": "status_inquiry | deadline_question | document_submission | general",
  "confidence": <number between 0 and 1>
}

Never invent application decisions, dates or fees.
`

// OpenAIDrafter drafts replies with a chat completion model
type OpenAIDrafter struct {
	client openai.Client
	model  string
}

// NewOpenAIDrafter creates a drafter using the given client and model
func NewOpenAIDrafter(client openai.Client, model string) *OpenAIDrafter {
	return &OpenAIDrafter{client: client, model: model}
}

func (d *OpenAIDrafter) Draft(ctx context.Context, email models.Email) (Draft, error) {
	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(draftSystemPrompt),
			openai.UserMessage(formatEmail(email)),
		},
		Model: openai.ChatModel(d.model),
	})
	if err != nil {
		return Draft{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Draft{}, fmt.Errorf("no choices in response")
	}

	content := stripFence(resp.Choices[0].Message.Content)
	if content == "" {
		return Draft{}, fmt.Errorf("empty message content")
	}

	var out Draft
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Draft{}, fmt.Errorf("unmarshal draft: %w (raw: %s)", err, content)
	}
	if out.Reply == "" {
		return Draft{}, fmt.Errorf("model returned an empty reply")
	}
	if out.Intent == "" {
		out.Intent = IntentGeneral
	}

	return out, nil
}

func formatEmail(e models.Email) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", e.Sender)
	fmt.Fprintf(&b, "To: %s\n", e.Recipient)
	fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
	if len(e.Attachments) > 0 {
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(e.Attachments, ", "))
	}
	b.WriteString("\n")
	b.WriteString(e.Body)
	return b.String()
}

// stripFence removes a markdown code fence some models wrap JSON in
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
