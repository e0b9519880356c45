package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shehryarbajwa/crm-voice-assistant/internal/voice"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/workflow"
	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// CommandResponse is the outcome of a spoken command
type CommandResponse struct {
	Command    string  `json:"command"`
	Confidence float64 `json:"confidence"`
	Action     string  `json:"action"`
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
}

func decodeAudio(r *http.Request) ([]byte, error) {
	var req models.VoiceCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.AudioData == "" {
		return nil, errors.New("audio_data is required")
	}
	audio, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("audio_data is not valid base64: %w", err)
	}
	return audio, nil
}

// VoiceCommand handles POST /api/v1/voice/command
func (h *Handler) VoiceCommand(w http.ResponseWriter, r *http.Request) {
	audio, err := decodeAudio(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	done := h.monitor.Track("voice")
	t, err := h.recognizer.Transcribe(r.Context(), audio)
	done(err)
	if errors.Is(err, voice.ErrNoSpeech) {
		http.Error(w, "No speech detected", http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		h.log.Error("error processing voice command", "error", err)
		http.Error(w, "Error processing voice command: "+err.Error(), http.StatusInternalServerError)
		return
	}

	command := voice.StripWakeWord(t.Text, h.activator.WakeWord())
	if command == "" {
		http.Error(w, "No command heard", http.StatusUnprocessableEntity)
		return
	}

	result := h.controller.ProcessVoiceCommand(r.Context(), command)

	writeJSON(w, http.StatusOK, CommandResponse{
		Command:    command,
		Confidence: t.Confidence,
		Action:     string(workflow.Classify(command)),
		Status:     result.Status,
		Message:    result.Message,
		SessionID:  result.SessionID,
	})
}

// DetectWakeWord handles POST /api/v1/voice/wake-word
func (h *Handler) DetectWakeWord(w http.ResponseWriter, r *http.Request) {
	audio, err := decodeAudio(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	done := h.monitor.Track("voice")
	res, err := h.recognizer.DetectWakeWord(r.Context(), audio)
	done(err)
	if err != nil {
		http.Error(w, "Error detecting wake word: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Listen handles POST /api/v1/voice/listen. While the activator loop is
// running the frame is queued for it and the request returns 202; otherwise
// the frame is processed inline and the detection returned.
func (h *Handler) Listen(w http.ResponseWriter, r *http.Request) {
	audio, err := decodeAudio(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.activator.Status().IsListening {
		if !h.activator.Feed(audio) {
			http.Error(w, "Audio frame buffer full", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	done := h.monitor.Track("voice")
	detection, err := h.activator.ProcessAudio(r.Context(), audio)
	done(err)
	if err != nil {
		http.Error(w, "Error processing audio: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, detection)
}

// VoiceEvent handles POST /api/v1/voice/event
func (h *Handler) VoiceEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.VoiceEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	switch ev.Event {
	case models.VoiceEventWakeWord:
	case models.VoiceEventCommand:
		if strings.TrimSpace(ev.Command) == "" {
			http.Error(w, "command is required", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "Unknown voice event: "+ev.Event, http.StatusBadRequest)
		return
	}

	h.controller.HandleVoiceEvent(r.Context(), ev)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// NextCommand handles GET /api/v1/voice/commands, popping the oldest
// detected command
func (h *Handler) NextCommand(w http.ResponseWriter, r *http.Request) {
	cmd, ok := h.activator.NextCommand()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

// VoiceStatus handles GET /api/v1/voice/status
func (h *Handler) VoiceStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.activator.Status())
}
