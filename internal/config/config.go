package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// CompletionPolicy decides whether a session may be finished while pages
// are still in flight.
type CompletionPolicy string

const (
	// AllowIncomplete lets the reviewer stop at any time.
	AllowIncomplete CompletionPolicy = "allow-incomplete"
	// RequireTerminal refuses to finish while a handbook page is not confirmed or rejected.
	RequireTerminal CompletionPolicy = "require-terminal"
)

// Config holds the client and reference server settings
type Config struct {
	ServerURL        string
	HTTPTimeout      time.Duration
	PollInterval     time.Duration
	PageWaitAttempts int
	CompletionPolicy CompletionPolicy
	PatientsFile     string
	OCRProvider      string
	OCRModel         string
	OCRTimeout       time.Duration
	MaxUploadBytes   int64
	OCRWorkers       int
}

// Load reads configuration from environment variables
func Load() *Config {
	provider := getEnv("OCR_PROVIDER", "ollama")
	return &Config{
		ServerURL:        getEnv("HANDBOOK_SERVER_URL", "http://localhost:8888"),
		HTTPTimeout:      getEnvAsDuration("HANDBOOK_HTTP_TIMEOUT", 30*time.Second),
		PollInterval:     getEnvAsDuration("HANDBOOK_POLL_INTERVAL", 3*time.Second),
		PageWaitAttempts: getEnvAsInt("HANDBOOK_PAGE_WAIT_ATTEMPTS", 60),
		CompletionPolicy: CompletionPolicy(getEnv("HANDBOOK_COMPLETION_POLICY", string(AllowIncomplete))),
		PatientsFile:     getEnv("HANDBOOK_PATIENTS_FILE", ""),
		OCRProvider:      provider,
		OCRModel:         DefaultModel(provider),
		OCRTimeout:       getEnvAsDuration("OCR_TIMEOUT", 2*time.Minute),
		MaxUploadBytes:   int64(getEnvAsInt("HANDBOOK_MAX_UPLOAD_BYTES", 10*1024*1024)),
		OCRWorkers:       getEnvAsInt("OCR_WORKERS", 2),
	}
}

// DefaultModel returns the model used for a provider when none is given
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return getEnv("OPENAI_MODEL", "gpt-4o")
	case "ollama":
		return getEnv("OLLAMA_MODEL", "mistral-small3.2:24b")
	case "gemini":
		return getEnv("GEMINI_MODEL", "gemini-1.5-flash")
	default:
		return ""
	}
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("HANDBOOK_SERVER_URL is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("HANDBOOK_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.PageWaitAttempts <= 0 {
		return fmt.Errorf("HANDBOOK_PAGE_WAIT_ATTEMPTS must be positive, got %d", c.PageWaitAttempts)
	}
	switch c.CompletionPolicy {
	case AllowIncomplete, RequireTerminal:
	default:
		return fmt.Errorf("HANDBOOK_COMPLETION_POLICY must be %q or %q, got %q", AllowIncomplete, RequireTerminal, c.CompletionPolicy)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
