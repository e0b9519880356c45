package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// Callback receives wake-word and command events
type Callback func(ctx context.Context, event models.VoiceEvent)

// QueuedCommand is a detected command waiting to be picked up
type QueuedCommand struct {
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures an Activator
type Options struct {
	WakeWord string
	Enabled  bool
	// QueueSize bounds both pending frames and detected commands
	QueueSize int
	Logger    *slog.Logger
	Now       func() time.Time
}

// Activator listens for the wake word and turns the utterance that follows
// it into a command event.
type Activator struct {
	recognizer Recognizer
	callback   Callback
	wakeWord   string
	enabled    bool
	log        *slog.Logger
	now        func() time.Time

	frames   chan []byte
	commands chan QueuedCommand

	mu        sync.Mutex
	listening bool
	armed     bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewActivator creates a voice activator
func NewActivator(recognizer Recognizer, callback Callback, opts Options) *Activator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Activator{
		recognizer: recognizer,
		callback:   callback,
		wakeWord:   opts.WakeWord,
		enabled:    opts.Enabled,
		log:        opts.Logger.With("component", "voice"),
		now:        opts.Now,
		frames:     make(chan []byte, opts.QueueSize),
		commands:   make(chan QueuedCommand, opts.QueueSize),
	}
}

// Start launches the background loop that consumes fed frames
func (a *Activator) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listening {
		a.log.Warn("already listening for voice commands")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.listening = true

	a.log.Info("listening for wake word", "wake_word", a.wakeWord, "enabled", a.enabled)
	go a.loop(ctx, a.done)
}

// Stop ends the background loop and waits for it to exit
func (a *Activator) Stop() {
	a.mu.Lock()
	if !a.listening {
		a.mu.Unlock()
		a.log.Warn("not currently listening")
		return
	}
	a.listening = false
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	cancel()
	<-done
	a.log.Info("stopped voice listening")
}

func (a *Activator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-a.frames:
			if _, err := a.ProcessAudio(ctx, frame); err != nil {
				a.log.Error("error processing audio frame", "error", err)
			}
		}
	}
}

// Feed queues a frame for the background loop. It reports false when the
// frame was dropped.
func (a *Activator) Feed(frame []byte) bool {
	select {
	case a.frames <- frame:
		return true
	default:
		a.log.Warn("audio frame buffer full, dropping frame")
		return false
	}
}

// ProcessAudio recognizes one frame and emits events for what it heard
func (a *Activator) ProcessAudio(ctx context.Context, frame []byte) (models.Detection, error) {
	none := models.Detection{Type: models.DetectionNone}
	if !a.enabled {
		return none, nil
	}

	t, err := a.recognizer.Transcribe(ctx, frame)
	if errors.Is(err, ErrNoSpeech) {
		return none, nil
	}
	if err != nil {
		return none, err
	}

	if rest, ok := splitWakeWord(t.Text, a.wakeWord); ok {
		a.log.Info("wake word detected", "wake_word", a.wakeWord)
		a.setArmed(rest == "")
		a.emit(ctx, models.VoiceEvent{Event: models.VoiceEventWakeWord})

		if rest == "" {
			return models.Detection{
				Type:       models.DetectionWakeWord,
				Detected:   true,
				Confidence: t.Confidence,
				WakeWord:   a.wakeWord,
			}, nil
		}
		return a.command(ctx, rest, t.Confidence), nil
	}

	if a.takeArmed() {
		return a.command(ctx, t.Text, t.Confidence), nil
	}

	return none, nil
}

func (a *Activator) command(ctx context.Context, text string, confidence float64) models.Detection {
	a.log.Info("command detected", "command", text)

	queued := QueuedCommand{Command: text, Timestamp: a.now()}
	select {
	case a.commands <- queued:
	default:
		a.log.Warn("command queue full, dropping oldest entry")
		select {
		case <-a.commands:
		default:
		}
		select {
		case a.commands <- queued:
		default:
		}
	}

	a.emit(ctx, models.VoiceEvent{Event: models.VoiceEventCommand, Command: text})

	return models.Detection{
		Type:       models.DetectionCommand,
		Detected:   true,
		Confidence: confidence,
		Command:    text,
	}
}

func (a *Activator) emit(ctx context.Context, event models.VoiceEvent) {
	if a.callback != nil {
		a.callback(ctx, event)
	}
}

func (a *Activator) setArmed(armed bool) {
	a.mu.Lock()
	a.armed = armed
	a.mu.Unlock()
}

func (a *Activator) takeArmed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	armed := a.armed
	a.armed = false
	return armed
}

// NextCommand pops the oldest detected command, if any
func (a *Activator) NextCommand() (QueuedCommand, bool) {
	select {
	case cmd := <-a.commands:
		return cmd, true
	default:
		return QueuedCommand{}, false
	}
}

// WakeWord returns the configured wake word
func (a *Activator) WakeWord() string {
	return a.wakeWord
}

// Status describes the activator
func (a *Activator) Status() models.VoiceStatus {
	a.mu.Lock()
	listening := a.listening
	a.mu.Unlock()

	return models.VoiceStatus{
		Enabled:        a.enabled,
		IsListening:    listening,
		WakeWord:       a.wakeWord,
		CommandsQueued: len(a.commands),
	}
}
