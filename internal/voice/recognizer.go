package voice

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// ErrNoSpeech is returned when a frame carries no recognizable speech
var ErrNoSpeech = errors.New("voice: no speech detected")

// Transcript is the text recognized from an audio frame
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognizer turns audio into text and spots the wake word
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte) (Transcript, error)
	DetectWakeWord(ctx context.Context, audio []byte) (models.WakeWordResult, error)
}

// TextRecognizer treats each audio frame as an already transcribed UTF-8
// utterance. It lets typed or externally transcribed text flow through the
// same voice pipeline as captured audio.
type TextRecognizer struct {
	WakeWord string
}

// NewTextRecognizer creates a TextRecognizer for the given wake word
func NewTextRecognizer(wakeWord string) *TextRecognizer {
	return &TextRecognizer{WakeWord: wakeWord}
}

func (r *TextRecognizer) Transcribe(_ context.Context, audio []byte) (Transcript, error) {
	if !utf8.Valid(audio) {
		return Transcript{}, errors.New("voice: frame is not valid UTF-8 text")
	}
	text := strings.TrimSpace(string(audio))
	if text == "" {
		return Transcript{}, ErrNoSpeech
	}
	return Transcript{Text: text, Confidence: 1}, nil
}

func (r *TextRecognizer) DetectWakeWord(ctx context.Context, audio []byte) (models.WakeWordResult, error) {
	t, err := r.Transcribe(ctx, audio)
	if err != nil {
		if errors.Is(err, ErrNoSpeech) {
			return models.WakeWordResult{}, nil
		}
		return models.WakeWordResult{}, err
	}
	if _, ok := splitWakeWord(t.Text, r.WakeWord); ok {
		return models.WakeWordResult{Detected: true, Confidence: t.Confidence}, nil
	}
	return models.WakeWordResult{}, nil
}

// splitWakeWord reports whether text contains the wake word and returns
// whatever follows it, trimmed of punctuation.
func splitWakeWord(text, wakeWord string) (string, bool) {
	if wakeWord == "" {
		return "", false
	}
	_, end := indexFold(text, wakeWord)
	if end < 0 {
		return "", false
	}
	return strings.Trim(text[end:], " \t\r\n,.!?:;"), true
}

// indexFold finds the first case-insensitive match of substr in s and
// returns its byte bounds within s, or -1, -1. The bounds always index s
// itself, even where case mapping changes a rune's encoded length.
func indexFold(s, substr string) (int, int) {
	n := utf8.RuneCountInString(substr)
	for start := range s {
		end, runes := start, 0
		for runes < n && end < len(s) {
			_, size := utf8.DecodeRuneInString(s[end:])
			end += size
			runes++
		}
		if runes < n {
			break
		}
		if strings.EqualFold(s[start:end], substr) {
			return start, end
		}
	}
	return -1, -1
}

// StripWakeWord returns the command spoken after the wake word, or the
// whole utterance when the wake word is absent.
func StripWakeWord(text, wakeWord string) string {
	if rest, ok := splitWakeWord(text, wakeWord); ok {
		return rest
	}
	return strings.TrimSpace(text)
}
