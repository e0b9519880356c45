package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendStub   = "stub"
	BackendDocker = "docker"

	DrafterTemplate = "template"
	DrafterOpenAI   = "openai"
)

type Config struct {
	Addr        string
	LogLevel    string
	CORSOrigins []string

	SlateURL            string
	SlateInboxURL       string
	SlateUsername       string
	SlatePassword       string
	SlateSecurityAnswer string

	WakeWord     string
	VoiceEnabled bool

	BrowserBackend    string
	BrowserImage      string
	BrowserProfileDir string

	MailDrafter  string
	OpenAIAPIKey string
	LLMModel     string

	RateLimitPerHour int
	RateLimitBurst   int
	MonitorInterval  time.Duration
}

// Load reads envFile if present, then the environment
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Addr:        getEnv("ASSISTANT_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		SlateURL:            getEnv("SLATE_URL", "https://slate.example.edu/manage/login"),
		SlateInboxURL:       getEnv("SLATE_INBOX_URL", "https://slate.example.edu/manage/inbox"),
		SlateUsername:       os.Getenv("SLATE_USERNAME"),
		SlatePassword:       os.Getenv("SLATE_PASSWORD"),
		SlateSecurityAnswer: os.Getenv("SLATE_SECURITY_ANSWER"),

		WakeWord: getEnv("WAKE_WORD", "Hey Claude"),

		BrowserBackend:    strings.ToLower(getEnv("BROWSER_BACKEND", BackendStub)),
		BrowserImage:      getEnv("BROWSER_IMAGE", "browserless/chrome:latest"),
		BrowserProfileDir: getEnv("BROWSER_PROFILE_DIR", "./storage/profiles"),

		MailDrafter:  strings.ToLower(getEnv("MAIL_DRAFTER", DrafterTemplate)),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		LLMModel:     getEnv("LLM_MODEL", "gpt-4o"),
	}

	var err error
	if cfg.VoiceEnabled, err = getBool("VOICE_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerHour, err = getInt("RATE_LIMIT_PER_HOUR", 600); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.MonitorInterval, err = getDuration("MONITOR_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	switch c.BrowserBackend {
	case BackendStub, BackendDocker:
	default:
		return fmt.Errorf("BROWSER_BACKEND must be %q or %q, got %q", BackendStub, BackendDocker, c.BrowserBackend)
	}

	switch c.MailDrafter {
	case DrafterTemplate:
	case DrafterOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when MAIL_DRAFTER=openai")
		}
	default:
		return fmt.Errorf("MAIL_DRAFTER must be %q or %q, got %q", DrafterTemplate, DrafterOpenAI, c.MailDrafter)
	}

	if c.RateLimitPerHour <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
