package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/shehryarbajwa/crm-voice-assistant/internal/workflow"
	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

func states(events []models.WorkflowEvent) []models.WorkflowState {
	out := make([]models.WorkflowState, 0, len(events))
	for _, e := range events {
		out = append(out, e.State)
	}
	return out
}

var _ = Describe("Controller", func() {
	var (
		ctx      context.Context
		browser  *fakeBrowser
		mail     *fakeMail
		recorder *fakeRecorder
		events   *eventLog
		ctrl     *workflow.Controller
	)

	expectConsistent := func() {
		for _, info := range ctrl.GetAllSessions() {
			Expect(info.Events).To(BeNumerically(">=", 1))
			Expect(info.LastEvent).NotTo(BeNil())
			Expect(info.LastEvent.State).To(Equal(info.CurrentState))
		}
	}

	newSession := func() string {
		res := ctrl.CreateSession(ctx)
		Expect(res.Status).To(Equal(models.ResultCreated))
		return res.SessionID
	}

	command := func(id, text string) models.Result {
		res, err := ctrl.ProcessCommand(ctx, text, id)
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	sessionInfo := func(id string) *models.SessionInfo {
		info, err := ctrl.GetSession(id)
		Expect(err).NotTo(HaveOccurred())
		return info
	}

	eventsFor := func(id string) []models.WorkflowEvent {
		var out []models.WorkflowEvent
		for _, e := range events.all() {
			if e.SessionID == id {
				out = append(out, e)
			}
		}
		return out
	}

	lastTwo := func(id string) []models.WorkflowState {
		captured := eventsFor(id)
		Expect(len(captured)).To(BeNumerically(">=", 2))
		return states(captured[len(captured)-2:])
	}

	BeforeEach(func() {
		ctx = context.Background()
		browser = &fakeBrowser{}
		mail = &fakeMail{}
		recorder = &fakeRecorder{}
		events = &eventLog{}

		ctrl = workflow.NewController(browser, mail, workflow.Config{
			Credentials: models.Credentials{Username: "operator", Password: "secret"},
			Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
			Recorder:    recorder,
			Now:         tickingClock(),
		})
		ctrl.RegisterEventListener(events)
	})

	AfterEach(func() {
		expectConsistent()
	})

	Describe("CreateSession", func() {
		It("starts in listening with exactly one event", func() {
			id := newSession()

			info := sessionInfo(id)
			Expect(info.CurrentState).To(Equal(models.StateListening))
			Expect(info.Events).To(Equal(1))
			Expect(info.BrowserSessionID).To(BeEmpty())
			Expect(info.CurrentEmailID).To(BeEmpty())
			Expect(info.HasDraft).To(BeFalse())
		})

		It("notifies a listener exactly once with the listening event", func() {
			newSession()

			Expect(events.all()).To(HaveLen(1))
			Expect(events.all()[0].State).To(Equal(models.StateListening))
		})
	})

	Describe("EndSession", func() {
		It("returns an error for an unknown id and leaves the registry unchanged", func() {
			id := newSession()

			res, err := ctrl.EndSession(ctx, "missing")
			Expect(err).To(MatchError(workflow.ErrSessionNotFound))
			Expect(res.Status).To(Equal(models.ResultError))
			Expect(res.Message).To(ContainSubstring("not found"))

			all := ctrl.GetAllSessions()
			Expect(all).To(HaveLen(1))
			Expect(all[0].SessionID).To(Equal(id))
		})

		It("removes the session after appending an idle event", func() {
			id := newSession()

			res, err := ctrl.EndSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(models.ResultEnded))
			Expect(res.SessionID).To(Equal(id))

			Expect(ctrl.GetAllSessions()).To(BeEmpty())
			_, err = ctrl.GetSession(id)
			Expect(err).To(MatchError(workflow.ErrSessionNotFound))

			captured := eventsFor(id)
			Expect(captured[len(captured)-1].State).To(Equal(models.StateIdle))
		})

		It("ends the browser handle and still removes the session when that fails", func() {
			browser.endErr = errors.New("container gone")
			id := newSession()
			Expect(command(id, "login to Slate").Status).To(Equal(models.ResultSuccess))

			_, err := ctrl.EndSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(browser.ended).To(Equal([]string{"browser-1"}))
			Expect(ctrl.GetAllSessions()).To(BeEmpty())
		})

		It("rejects commands routed to an ended session", func() {
			id := newSession()
			_, err := ctrl.EndSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())

			_, err = ctrl.ProcessCommand(ctx, "login", id)
			Expect(err).To(MatchError(workflow.ErrSessionNotFound))
		})
	})

	Describe("GetAllSessions", func() {
		It("lists sessions oldest first", func() {
			first := newSession()
			second := newSession()

			all := ctrl.GetAllSessions()
			Expect(all).To(HaveLen(2))
			Expect(all[0].SessionID).To(Equal(first))
			Expect(all[1].SessionID).To(Equal(second))
		})
	})

	Describe("ProcessVoiceCommand", func() {
		It("creates a session when none is active", func() {
			res := ctrl.ProcessVoiceCommand(ctx, "test command")

			Expect(res.Status).To(Equal(models.ResultError))
			Expect(res.Message).To(Equal("Unknown command"))
			Expect(ctrl.GetAllSessions()).To(HaveLen(1))
			Expect(sessionInfo(res.SessionID).CurrentState).To(Equal(models.StateError))
		})

		It("routes to the most recently started session", func() {
			a := newSession()
			b := newSession()

			res := ctrl.ProcessVoiceCommand(ctx, "login")
			Expect(res.SessionID).To(Equal(b))
			Expect(sessionInfo(b).BrowserSessionID).NotTo(BeEmpty())
			Expect(sessionInfo(a).Events).To(Equal(1))
		})
	})

	Describe("dispatch", func() {
		It("treats read-and-send as a read command", func() {
			id := newSession()
			command(id, "login")

			res := command(id, "read my email and send it")
			Expect(res.Status).To(Equal(models.ResultSuccess))
			Expect(res.Email).NotTo(BeNil())
			Expect(mail.processCount()).To(Equal(1))
			Expect(mail.submitted()).To(BeEmpty())
		})

		It("records processing_command with the command text", func() {
			id := newSession()
			command(id, "do a barrel roll")

			captured := eventsFor(id)
			Expect(states(captured)).To(Equal([]models.WorkflowState{
				models.StateListening,
				models.StateProcessingCommand,
				models.StateError,
			}))
			Expect(captured[1].Data).To(HaveKeyWithValue("command", "do a barrel roll"))
			Expect(captured[2].Message).To(Equal("Unknown command: do a barrel roll"))
		})
	})

	Describe("login", func() {
		It("authenticates and returns to listening", func() {
			id := newSession()

			res := command(id, "login to Slate")
			Expect(res.Status).To(Equal(models.ResultSuccess))
			Expect(res.Message).To(Equal("Authentication successful"))

			info := sessionInfo(id)
			Expect(info.CurrentState).To(Equal(models.StateListening))
			Expect(info.BrowserSessionID).To(Equal("browser-1"))

			captured := eventsFor(id)
			Expect(states(captured[len(captured)-2:])).To(Equal([]models.WorkflowState{
				models.StateAuthenticating,
				models.StateListening,
			}))
		})

		It("moves to error and keeps the handle unset when rejected", func() {
			browser.authErr = errRejected
			id := newSession()

			res := command(id, "log in please")
			Expect(res.Status).To(Equal(models.ResultError))
			Expect(res.Message).To(Equal("Authentication failed"))

			info := sessionInfo(id)
			Expect(info.CurrentState).To(Equal(models.StateError))
			Expect(info.BrowserSessionID).To(BeEmpty())
			Expect(info.LastEvent.Message).To(ContainSubstring("invalid credentials"))
		})

		It("converts a collaborator panic into an error result", func() {
			browser.authPanic = true
			id := newSession()

			res := command(id, "login")
			Expect(res.Status).To(Equal(models.ResultError))
			Expect(sessionInfo(id).CurrentState).To(Equal(models.StateError))
		})

		It("ends the replaced browser handle when logging in again", func() {
			id := newSession()
			command(id, "login")

			Expect(command(id, "login").Status).To(Equal(models.ResultSuccess))
			Expect(sessionInfo(id).BrowserSessionID).To(Equal("browser-2"))
			Expect(browser.ended).To(Equal([]string{"browser-1"}))
		})

		It("keeps the old handle running when a second login fails", func() {
			id := newSession()
			command(id, "login")

			browser.authErr = errRejected
			Expect(command(id, "login").Status).To(Equal(models.ResultError))
			Expect(sessionInfo(id).BrowserSessionID).To(Equal("browser-1"))
			Expect(browser.ended).To(BeEmpty())
		})

		It("keeps the session usable after an error", func() {
			browser.authErr = errRejected
			id := newSession()
			command(id, "login")

			browser.authErr = nil
			Expect(command(id, "login").Status).To(Equal(models.ResultSuccess))
			Expect(sessionInfo(id).CurrentState).To(Equal(models.StateListening))
		})
	})

	Describe("preconditions", func() {
		It("requires authentication before navigating to the inbox", func() {
			id := newSession()

			res := command(id, "open my inbox")
			Expect(res.Status).To(Equal(models.ResultError))
			Expect(res.Message).To(Equal("Not authenticated"))
			_, nav := browser.calls()
			Expect(nav).To(BeZero())
			Expect(sessionInfo(id).CurrentState).To(Equal(models.StateError))
		})

		It("requires authentication before reading", func() {
			id := newSession()

			res := command(id, "read the first email")
			Expect(res.Message).To(Equal("Not authenticated"))
			Expect(mail.processCount()).To(BeZero())
		})

		It("requires a selected email before generating", func() {
			id := newSession()

			res := command(id, "generate response")
			Expect(res.Status).To(Equal(models.ResultError))
			Expect(res.Message).To(Equal("No email selected"))
			Expect(mail.processCount()).To(BeZero())
			auth, nav := browser.calls()
			Expect(auth + nav).To(BeZero())
			Expect(sessionInfo(id).CurrentState).To(Equal(models.StateError))
		})

		It("requires a draft before submitting", func() {
			id := newSession()
			command(id, "login")
			command(id, "read email")

			res := command(id, "submit")
			Expect(res.Message).To(Equal("No draft response created"))
			Expect(mail.submitted()).To(BeEmpty())
		})
	})

	Describe("state transitions", func() {
		var id string

		BeforeEach(func() {
			id = newSession()
			Expect(command(id, "login").Status).To(Equal(models.ResultSuccess))
		})

		It("navigates to the inbox and returns to listening", func() {
			Expect(command(id, "open inbox").Status).To(Equal(models.ResultSuccess))
			Expect(lastTwo(id)).To(Equal([]models.WorkflowState{models.StateNavigating, models.StateListening}))
		})

		It("moves to error when navigation fails and keeps the handle", func() {
			browser.navErr = errors.New("page crashed")

			res := command(id, "open inbox")
			Expect(res.Status).To(Equal(models.ResultError))
			Expect(res.Message).To(Equal("Navigation failed"))
			Expect(lastTwo(id)).To(Equal([]models.WorkflowState{models.StateNavigating, models.StateError}))
			Expect(sessionInfo(id).BrowserSessionID).To(Equal("browser-1"))
		})

		It("reads an email and returns to listening with it attached", func() {
			Expect(command(id, "read email").Status).To(Equal(models.ResultSuccess))
			Expect(lastTwo(id)).To(Equal([]models.WorkflowState{models.StateReadingEmail, models.StateListening}))

			info := sessionInfo(id)
			Expect(info.CurrentEmailID).To(Equal("email123"))
			Expect(info.LastEvent.Data).To(HaveKey("email"))
		})

		It("keeps the current email when a read fails", func() {
			command(id, "read email")
			mail.processErr = errors.New("inbox unavailable")

			res := command(id, "read the next email")
			Expect(res.Status).To(Equal(models.ResultError))
			Expect(res.Message).To(ContainSubstring("inbox unavailable"))
			Expect(lastTwo(id)).To(Equal([]models.WorkflowState{models.StateReadingEmail, models.StateError}))
			Expect(sessionInfo(id).CurrentEmailID).To(Equal("email123"))
		})

		It("generates a draft and moves to reviewing", func() {
			command(id, "read email")

			Expect(command(id, "generate response").Status).To(Equal(models.ResultSuccess))
			Expect(lastTwo(id)).To(Equal([]models.WorkflowState{models.StateGeneratingResponse, models.StateReviewing}))
			Expect(sessionInfo(id).LastEvent.Data).To(HaveKeyWithValue("draft_response", "Thank you for your inquiry."))
		})

		It("keeps the email and draft when generation fails", func() {
			command(id, "read email")
			command(id, "generate response")
			mail.processErr = errors.New("model overloaded")

			res := command(id, "generate response")
			Expect(res.Status).To(Equal(models.ResultError))
			Expect(lastTwo(id)).To(Equal([]models.WorkflowState{models.StateGeneratingResponse, models.StateError}))

			info := sessionInfo(id)
			Expect(info.CurrentEmailID).To(Equal("email123"))
			Expect(info.HasDraft).To(BeTrue())

			mail.processErr = nil
			Expect(command(id, "send").Status).To(Equal(models.ResultSuccess))
			Expect(mail.submitted()).To(HaveLen(1))
			Expect(mail.submitted()[0].ResponseText).To(Equal("Thank you for your inquiry."))
		})

		It("submits and returns to listening", func() {
			command(id, "read email")
			command(id, "generate response")

			Expect(command(id, "send").Status).To(Equal(models.ResultSuccess))
			Expect(lastTwo(id)).To(Equal([]models.WorkflowState{models.StateSubmitting, models.StateListening}))
		})

		It("moves to error when submission fails", func() {
			command(id, "read email")
			command(id, "generate response")
			mail.submitErr = errors.New("smtp unavailable")

			Expect(command(id, "save draft").Status).To(Equal(models.ResultError))
			Expect(lastTwo(id)).To(Equal([]models.WorkflowState{models.StateSubmitting, models.StateError}))
		})
	})

	Describe("full workflow", func() {
		var id string

		BeforeEach(func() {
			id = newSession()
			Expect(command(id, "login").Status).To(Equal(models.ResultSuccess))
			Expect(command(id, "go to inbox").Status).To(Equal(models.ResultSuccess))
			Expect(command(id, "read the next message").Status).To(Equal(models.ResultSuccess))
		})

		It("reviews a generated draft and sends it", func() {
			res := command(id, "generate a reply")
			Expect(res.Status).To(Equal(models.ResultSuccess))
			Expect(res.DraftResponse).To(Equal("Thank you for your inquiry."))

			info := sessionInfo(id)
			Expect(info.CurrentState).To(Equal(models.StateReviewing))
			Expect(info.CurrentEmailID).To(Equal("email123"))
			Expect(info.HasDraft).To(BeTrue())

			res = command(id, "send it")
			Expect(res.Status).To(Equal(models.ResultSuccess))
			Expect(res.Message).To(Equal("Response sent successfully"))

			info = sessionInfo(id)
			Expect(info.CurrentState).To(Equal(models.StateListening))
			Expect(info.CurrentEmailID).To(BeEmpty())
			Expect(info.HasDraft).To(BeFalse())

			Expect(mail.submitted()).To(ConsistOf(models.DraftSubmission{
				EmailID:      "email123",
				SessionID:    "browser-1",
				ResponseText: "Thank you for your inquiry.",
				Send:         true,
			}))
		})

		It("saves a draft without sending", func() {
			command(id, "respond")

			res := command(id, "save as draft")
			Expect(res.Message).To(Equal("Response saved as draft successfully"))
			Expect(mail.submitted()).To(HaveLen(1))
			Expect(mail.submitted()[0].Send).To(BeFalse())
		})

		It("keeps the email and draft when submission fails", func() {
			command(id, "reply")
			mail.submitErr = errors.New("smtp unavailable")

			res := command(id, "submit")
			Expect(res.Status).To(Equal(models.ResultError))

			info := sessionInfo(id)
			Expect(info.CurrentState).To(Equal(models.StateError))
			Expect(info.CurrentEmailID).To(Equal("email123"))
			Expect(info.HasDraft).To(BeTrue())
		})

		It("records collaborator and command metrics", func() {
			Expect(recorder.all()).To(ContainElements(
				record{"browser", true},
				record{"email", true},
				record{"workflow", true},
			))
		})
	})

	Describe("listeners", func() {
		It("isolates failing listeners", func() {
			var after []models.WorkflowEvent
			ctrl.RegisterEventListener(workflow.ListenerFunc(func(context.Context, models.WorkflowEvent) error {
				return errors.New("listener down")
			}))
			ctrl.RegisterEventListener(workflow.ListenerFunc(func(context.Context, models.WorkflowEvent) error {
				panic("listener exploded")
			}))
			ctrl.RegisterEventListener(workflow.ListenerFunc(func(_ context.Context, e models.WorkflowEvent) error {
				after = append(after, e)
				return nil
			}))

			id := newSession()
			Expect(command(id, "login").Status).To(Equal(models.ResultSuccess))
			Expect(states(after)).To(Equal([]models.WorkflowState{
				models.StateListening,
				models.StateProcessingCommand,
				models.StateAuthenticating,
				models.StateListening,
			}))
		})
	})

	Describe("HandleVoiceEvent", func() {
		It("creates a session on wake word", func() {
			ctrl.HandleVoiceEvent(ctx, models.VoiceEvent{Event: models.VoiceEventWakeWord})
			Expect(ctrl.GetAllSessions()).To(HaveLen(1))
		})

		It("ignores commands when no session is active", func() {
			ctrl.HandleVoiceEvent(ctx, models.VoiceEvent{Event: models.VoiceEventCommand, Command: "login"})
			Expect(ctrl.GetAllSessions()).To(BeEmpty())
			auth, _ := browser.calls()
			Expect(auth).To(BeZero())
		})

		It("dispatches commands to the active session", func() {
			id := newSession()
			ctrl.HandleVoiceEvent(ctx, models.VoiceEvent{Event: models.VoiceEventCommand, Command: "login"})
			Expect(sessionInfo(id).BrowserSessionID).To(Equal("browser-1"))
		})
	})

	Describe("concurrency", func() {
		It("serializes commands on the same session", func() {
			browser.entered = make(chan struct{})
			browser.release = make(chan struct{})
			id := newSession()

			done := make(chan models.Result, 1)
			go func() {
				defer GinkgoRecover()
				res, err := ctrl.ProcessCommand(ctx, "login", id)
				Expect(err).NotTo(HaveOccurred())
				done <- res
			}()
			Eventually(browser.entered).Should(Receive())

			waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			res, err := ctrl.ProcessCommand(waitCtx, "read email", id)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(models.ResultError))
			Expect(res.Message).To(ContainSubstring("Session busy"))
			Expect(mail.processCount()).To(BeZero())

			close(browser.release)
			Eventually(done).Should(Receive(HaveField("Status", models.ResultSuccess)))
		})
	})

	Describe("Shutdown", func() {
		It("ends every session", func() {
			newSession()
			id := newSession()
			command(id, "login")

			Expect(ctrl.Shutdown(ctx)).To(Succeed())
			Expect(ctrl.GetAllSessions()).To(BeEmpty())
			Expect(browser.ended).To(Equal([]string{"browser-1"}))
		})
	})
})
