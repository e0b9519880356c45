package voice_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shehryarbajwa/crm-voice-assistant/internal/voice"
	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

type captured struct {
	mu     sync.Mutex
	events []models.VoiceEvent
}

func (c *captured) callback(_ context.Context, e models.VoiceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captured) all() []models.VoiceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.VoiceEvent(nil), c.events...)
}

func newActivator(t *testing.T, enabled bool, queue int) (*voice.Activator, *captured) {
	t.Helper()
	c := &captured{}
	a := voice.NewActivator(voice.NewTextRecognizer("Hey Claude"), c.callback, voice.Options{
		WakeWord:  "Hey Claude",
		Enabled:   enabled,
		QueueSize: queue,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return a, c
}

func TestProcessAudioWakeWordThenCommand(t *testing.T) {
	ctx := context.Background()
	a, c := newActivator(t, true, 4)

	d, err := a.ProcessAudio(ctx, []byte("hey claude"))
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if d.Type != models.DetectionWakeWord || !d.Detected {
		t.Fatalf("expected wake word detection, got %+v", d)
	}

	d, err = a.ProcessAudio(ctx, []byte("read my email"))
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if d.Type != models.DetectionCommand || d.Command != "read my email" {
		t.Fatalf("expected command detection, got %+v", d)
	}

	want := []models.VoiceEvent{
		{Event: models.VoiceEventWakeWord},
		{Event: models.VoiceEventCommand, Command: "read my email"},
	}
	got := c.all()
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	cmd, ok := a.NextCommand()
	if !ok || cmd.Command != "read my email" {
		t.Fatalf("NextCommand = %+v, %v", cmd, ok)
	}
	if _, ok := a.NextCommand(); ok {
		t.Fatal("expected empty command queue")
	}
}

func TestProcessAudioInlineCommand(t *testing.T) {
	a, c := newActivator(t, true, 4)

	d, err := a.ProcessAudio(context.Background(), []byte("Hey Claude, login to Slate."))
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if d.Command != "login to Slate" {
		t.Fatalf("command = %q", d.Command)
	}
	if n := len(c.all()); n != 2 {
		t.Fatalf("expected wake and command events, got %d", n)
	}
}

func TestProcessAudioIgnoresSpeechWithoutWakeWord(t *testing.T) {
	a, c := newActivator(t, true, 4)

	d, err := a.ProcessAudio(context.Background(), []byte("send it"))
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if d.Detected {
		t.Fatalf("expected nothing detected, got %+v", d)
	}
	if len(c.all()) != 0 {
		t.Fatalf("unexpected events: %+v", c.all())
	}
}

func TestProcessAudioDisabled(t *testing.T) {
	a, c := newActivator(t, false, 4)

	d, err := a.ProcessAudio(context.Background(), []byte("hey claude login"))
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if d.Type != models.DetectionNone {
		t.Fatalf("expected no detection, got %+v", d)
	}
	if len(c.all()) != 0 {
		t.Fatal("disabled activator must not emit events")
	}
}

func TestCommandQueueKeepsNewest(t *testing.T) {
	ctx := context.Background()
	a, _ := newActivator(t, true, 1)

	a.ProcessAudio(ctx, []byte("hey claude login"))
	a.ProcessAudio(ctx, []byte("hey claude open inbox"))

	cmd, ok := a.NextCommand()
	if !ok || cmd.Command != "open inbox" {
		t.Fatalf("NextCommand = %+v, %v", cmd, ok)
	}
}

func TestStartFeedStop(t *testing.T) {
	a, c := newActivator(t, true, 4)

	a.Start(context.Background())
	if !a.Status().IsListening {
		t.Fatal("expected listening after Start")
	}

	if !a.Feed([]byte("hey claude generate a reply")) {
		t.Fatal("Feed dropped frame")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(c.all()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for events, got %+v", c.all())
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.Stop()
	status := a.Status()
	if status.IsListening {
		t.Fatal("expected not listening after Stop")
	}
	if status.CommandsQueued != 1 {
		t.Fatalf("CommandsQueued = %d, want 1", status.CommandsQueued)
	}
}

func TestTextRecognizerDetectWakeWord(t *testing.T) {
	r := voice.NewTextRecognizer("Hey Claude")
	ctx := context.Background()

	res, err := r.DetectWakeWord(ctx, []byte("ok hey CLAUDE"))
	if err != nil || !res.Detected {
		t.Fatalf("DetectWakeWord = %+v, %v", res, err)
	}

	res, err = r.DetectWakeWord(ctx, []byte("   "))
	if err != nil || res.Detected {
		t.Fatalf("DetectWakeWord on silence = %+v, %v", res, err)
	}

	if _, err := r.Transcribe(ctx, []byte{0xff, 0xfe}); err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
}

func TestStripWakeWord(t *testing.T) {
	cases := []struct {
		text, want string
	}{
		{"Hey Claude, read my email.", "read my email"},
		{"hey claude login", "login"},
		{"  submit  ", "submit"},
		{"Hey Claude", ""},
		{strings.Repeat("Ⱥ", 12) + " hey claude login", "login"},
		{strings.Repeat("\u212A", 6) + " hey claude login", "login"},
		{"HEY CLAUDE, send it", "send it"},
		{"héllo there", "héllo there"},
	}
	for _, c := range cases {
		if got := voice.StripWakeWord(c.text, "Hey Claude"); got != c.want {
			t.Errorf("StripWakeWord(%q) = %q, want %q", c.text, got, c.want)
		}
	}

	if got := voice.StripWakeWord("O\u212AAY computer, open inbox", "okay computer"); got != "open inbox" {
		t.Errorf("folded wake word: got %q", got)
	}
}

func TestProcessAudioWithLengthChangingCase(t *testing.T) {
	a, got := newActivator(t, true, 4)

	frame := []byte(strings.Repeat("Ⱥ", 12) + " hey claude login")
	d, err := a.ProcessAudio(context.Background(), frame)
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if d.Type != models.DetectionCommand || d.Command != "login" {
		t.Fatalf("detection = %+v, want command %q", d, "login")
	}
	if events := got.all(); len(events) != 2 || events[1].Command != "login" {
		t.Fatalf("events = %+v", events)
	}
}
