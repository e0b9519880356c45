package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	cli "github.com/spf13/pflag"

	"github.com/shehryarbajwa/crm-voice-assistant/internal/api"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/browser"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/config"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/logging"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/mail"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/monitor"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/profile"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/ratelimit"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/stream"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/voice"
	"github.com/shehryarbajwa/crm-voice-assistant/internal/workflow"
	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	addr := cli.StringP("addr", "a", "", "Listen address (overrides ASSISTANT_ADDR)")
	logLevel := cli.StringP("log", "l", "", "Log level (overrides LOG_LEVEL)")
	cli.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if cli.CommandLine.Changed("addr") {
		cfg.Addr = *addr
	}
	if cli.CommandLine.Changed("log") {
		cfg.LogLevel = *logLevel
	}

	log := logging.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(log)

	log.Info("Starting CRM voice assistant", "browser_backend", cfg.BrowserBackend, "drafter", cfg.MailDrafter)

	creds := models.Credentials{
		Username:       cfg.SlateUsername,
		Password:       cfg.SlatePassword,
		SecurityAnswer: cfg.SlateSecurityAnswer,
	}
	if creds.Username == "" {
		log.Warn("SLATE_USERNAME not set, login commands will fail")
	}

	profiles, err := profile.NewStore(cfg.BrowserProfileDir)
	if err != nil {
		log.Error("Failed to create profile store", "err", err)
		os.Exit(1)
	}

	var (
		drv    api.Browser
		driver *browser.Driver
		pool   *browser.Pool
	)
	switch cfg.BrowserBackend {
	case config.BackendDocker:
		pool, err = browser.NewPool(cfg.BrowserImage, log)
		if err != nil {
			log.Error("Failed to create browser pool", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		log.Info("Ensuring browser image is available", "image", cfg.BrowserImage)
		err = pool.EnsureImage(ctx)
		cancel()
		if err != nil {
			log.Error("Failed to ensure browser image", "err", err)
			os.Exit(1)
		}

		driver = browser.NewDriver(pool, browser.DriverConfig{
			LoginURL: cfg.SlateURL,
			InboxURL: cfg.SlateInboxURL,
			Profiles: profiles,
			Logger:   log,
		})
		drv = driver
	default:
		drv = browser.NewStub(log)
	}

	var drafter mail.Drafter = mail.TemplateDrafter{}
	if cfg.MailDrafter == config.DrafterOpenAI {
		client := openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
		drafter = mail.NewOpenAIDrafter(client, cfg.LLMModel)
	}
	mailSvc := mail.NewService(mail.NewInbox(mail.SampleEmails(time.Now())...), drafter, log)

	mon := monitor.New(log, monitor.DefaultServices...)

	controller := workflow.NewController(drv, mailSvc, workflow.Config{
		Credentials: creds,
		Logger:      log,
		Recorder:    mon,
	})

	hub := stream.NewHub(log, stream.DefaultBufferSize)
	controller.RegisterEventListener(workflow.ListenerFunc(func(ctx context.Context, ev models.WorkflowEvent) error {
		log.Info("Workflow event", "session_id", ev.SessionID, "state", ev.State, "message", ev.Message)
		return nil
	}))
	controller.RegisterEventListener(hub)

	recognizer := voice.NewTextRecognizer(cfg.WakeWord)
	activator := voice.NewActivator(recognizer, controller.HandleVoiceEvent, voice.Options{
		WakeWord: cfg.WakeWord,
		Enabled:  cfg.VoiceEnabled,
		Logger:   log,
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.VoiceEnabled {
		activator.Start(runCtx)
	}
	go mon.Run(runCtx, cfg.MonitorInterval)

	limiter := ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if n := limiter.Prune(time.Hour); n > 0 {
					log.Debug("Pruned idle rate limiters", "count", n)
				}
			}
		}
	}()

	handler := api.NewHandler(api.Deps{
		Controller:  controller,
		Mail:        mailSvc,
		Browser:     drv,
		Profiles:    profiles,
		Credentials: creds,
		Recognizer:  recognizer,
		Activator:   activator,
		Monitor:     mon,
		Hub:         hub,
		Logger:      log,
	})

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: handler.SetupRoutes(api.RouteConfig{
			Limiter:         limiter,
			RequestsPerHour: cfg.RateLimitPerHour,
			CORSOrigins:     cfg.CORSOrigins,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server listening", "addr", cfg.Addr, "wake_word", cfg.WakeWord, "voice_enabled", cfg.VoiceEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", "err", err)
			stop()
		}
	}()

	<-runCtx.Done()
	log.Info("Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "err", err)
	}

	activator.Stop()

	if err := controller.Shutdown(ctx); err != nil {
		log.Error("Failed to end workflow sessions", "err", err)
	}
	hub.Close()

	if driver != nil {
		if err := driver.Close(ctx); err != nil {
			log.Error("Failed to close browser sessions", "err", err)
		}
	}

	log.Info("Server stopped cleanly")
}
