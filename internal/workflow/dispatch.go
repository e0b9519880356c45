package workflow

import "strings"

// Intent is the action a free-text command maps to
type Intent string

const (
	IntentLogin            Intent = "login"
	IntentInbox            Intent = "inbox"
	IntentReadEmail        Intent = "read_email"
	IntentGenerateResponse Intent = "generate_response"
	IntentSend             Intent = "send"
	IntentSaveDraft        Intent = "save_draft"
	IntentUnknown          Intent = "unknown"
)

type rule struct {
	intent Intent
	match  func(command string) bool
}

// rules are evaluated top to bottom and the first match wins. The order is
// part of the command language: "read my email and send it" is a read
// command because the read rule precedes the send rule.
var rules = []rule{
	{IntentLogin, func(c string) bool {
		return containsAny(c, "login", "log in")
	}},
	{IntentInbox, func(c string) bool {
		return containsAny(c, "inbox", "emails")
	}},
	{IntentReadEmail, func(c string) bool {
		return strings.Contains(c, "read") && containsAny(c, "email", "message")
	}},
	{IntentGenerateResponse, func(c string) bool {
		return containsAny(c, "generate", "respond", "reply")
	}},
	{IntentSend, func(c string) bool {
		return containsAny(c, "submit", "send")
	}},
	{IntentSaveDraft, func(c string) bool {
		return strings.Contains(c, "save") && strings.Contains(c, "draft")
	}},
}

// Classify maps a command to an intent using case-insensitive substring
// matching.
func Classify(command string) Intent {
	c := strings.ToLower(command)
	for _, r := range rules {
		if r.match(c) {
			return r.intent
		}
	}
	return IntentUnknown
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
