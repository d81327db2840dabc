package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every recognized runtime option. Values come from the process
// environment (optionally seeded from a .env file); anything unset falls back
// to the defaults in DefaultConfig.
type Config struct {
	// Provider selects the registered LLM provider: "openai", "ollama"
	// or "gemini".
	Provider string
	// OpenAIAPIKey authenticates against the OpenAI-compatible endpoint.
	OpenAIAPIKey string
	// OpenAIBaseURL overrides the provider endpoint (self-hosted gateways).
	OpenAIBaseURL string
	// GeminiAPIKey authenticates the Gemini provider.
	GeminiAPIKey string
	// OllamaBaseURL points the Ollama provider at a non-default daemon.
	OllamaBaseURL string
	// DefaultModel is used whenever a request does not name a model.
	DefaultModel string
	// AllowedModels is the per-request model allow-list. A requested model
	// outside this list silently falls back to DefaultModel. Empty means
	// "only the default".
	AllowedModels []string
	// DBPath is the embedded SQLite database file.
	DBPath string
	// DataDir holds auxiliary persistent state (prompt memory, WhatsApp
	// session).
	DataDir string
	// Addr is the HTTP listen address.
	Addr string
	// TelegramToken enables the Telegram front channel when non-empty.
	TelegramToken string
	// MaxSessions caps the shell session pool.
	MaxSessions int
	// CommandTimeout is the default non-interactive command timeout.
	CommandTimeout time.Duration
	// MaxOutputChars trims tool-visible command output.
	MaxOutputChars int
	// LogLevel sets the minimum slog severity: debug, info, warn, error.
	LogLevel string
}

// DefaultConfig returns a Config initialized with hardcoded safe defaults,
// so the service can always start in a bare environment.
func DefaultConfig() *Config {
	return &Config{
		Provider:       "openai",
		DefaultModel:   "gpt-4.1-mini",
		DBPath:         filepath.Join("data", "shrimp.db"),
		DataDir:        "data",
		Addr:           ":8721",
		MaxSessions:    8,
		CommandTimeout: 30 * time.Second,
		MaxOutputChars: 20_000,
		LogLevel:       "info",
	}
}

// Load builds the effective configuration: .env file (when present), then
// process environment, then defaults. It fails only when a credential the
// selected provider requires is missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	cfg.Provider = getEnv("SHRIMP_LLM_PROVIDER", cfg.Provider)
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.OllamaBaseURL = os.Getenv("OLLAMA_BASE_URL")
	cfg.DefaultModel = getEnv("OPENAI_MODEL", cfg.DefaultModel)
	cfg.DBPath = getEnv("SHRIMP_DB_PATH", cfg.DBPath)
	cfg.DataDir = getEnv("SHRIMP_DATA_DIR", cfg.DataDir)
	cfg.Addr = getEnv("SHRIMP_ADDR", cfg.Addr)
	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MaxSessions = getEnvInt("SHRIMP_MAX_SESSIONS", cfg.MaxSessions)
	cfg.MaxOutputChars = getEnvInt("SHRIMP_MAX_OUTPUT_CHARS", cfg.MaxOutputChars)
	cfg.LogLevel = getEnv("SHRIMP_LOG_LEVEL", cfg.LogLevel)

	if ms := getEnvInt("SHRIMP_COMMAND_TIMEOUT_MS", 0); ms > 0 {
		cfg.CommandTimeout = time.Duration(ms) * time.Millisecond
	}

	if raw := os.Getenv("OPENAI_ALLOWED_MODELS"); raw != "" {
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				cfg.AllowedModels = append(cfg.AllowedModels, m)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the credentials the selected provider needs are present.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
	case "ollama":
		// Local daemon, no credentials.
	default:
		return fmt.Errorf("unknown LLM provider %q", c.Provider)
	}
	return nil
}

// ResolveModel picks the model for a turn: a requested model present in the
// allow-list wins, everything else falls back to the default.
func (c *Config) ResolveModel(requested string) string {
	if requested == "" || requested == c.DefaultModel {
		return c.DefaultModel
	}
	for _, m := range c.AllowedModels {
		if m == requested {
			return requested
		}
	}
	return c.DefaultModel
}

// MemoryPath is the JSON file holding persistent system-prompt memory items.
func (c *Config) MemoryPath() string {
	return filepath.Join(c.DataDir, "system-prompt-memory.json")
}

// WhatsAppSessionPath is the SQLite file whatsmeow uses for device state.
func (c *Config) WhatsAppSessionPath() string {
	return filepath.Join(c.DataDir, "whatsapp-session.db")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
