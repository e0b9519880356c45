package models

// Voice event kinds emitted by the wake-word bridge
const (
	VoiceEventWakeWord = "wake_word_detected"
	VoiceEventCommand  = "command_detected"
)

// VoiceEvent is an out-of-band notification from the voice activator
type VoiceEvent struct {
	Event   string `json:"event"`
	Command string `json:"command,omitempty"`
}

// VoiceCommandRequest carries base64 encoded audio
type VoiceCommandRequest struct {
	AudioData  string `json:"audio_data"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// WakeWordResult reports whether the wake word was heard
type WakeWordResult struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
}

// Detection kinds
const (
	DetectionNone     = "none"
	DetectionWakeWord = "wake_word"
	DetectionCommand  = "command"
)

// Detection is the outcome of processing one audio frame
type Detection struct {
	Type       string  `json:"type"`
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence,omitempty"`
	WakeWord   string  `json:"wake_word,omitempty"`
	Command    string  `json:"command,omitempty"`
}

// VoiceStatus describes the voice activator
type VoiceStatus struct {
	Enabled        bool   `json:"enabled"`
	IsListening    bool   `json:"is_listening"`
	WakeWord       string `json:"wake_word"`
	CommandsQueued int    `json:"commands_queued"`
}
