package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/fablegate/fable/pkg/prompts"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	// Generation backend (OpenAI-compatible API)
	AIBaseURL  string
	AIChatPath string
	AIAPIKey   string
	AIModel    string
	AIStream   bool

	// Narrative settings
	Language    string
	ChoiceCount int
	Rating      string
	CustomModes map[string]prompts.CustomMode

	// Persistence. RedisAddr empty means local-only.
	DataDir   string
	RedisAddr string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		AIBaseURL:   getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIChatPath:  getEnv("AI_CHAT_PATH", "/chat/completions"),
		AIAPIKey:    getEnv("AI_API_KEY", ""),
		AIModel:     getEnv("AI_MODEL", "gpt-4o-mini"),
		AIStream:    parseBool(getEnv("AI_STREAM", "true")),
		Language:    normalizeLanguage(getEnv("STORY_LANGUAGE", "English")),
		ChoiceCount: parseInt(getEnv("STORY_CHOICES", "3"), 3),
		Rating:      getEnv("CONTENT_RATING", "R"),
		CustomModes: parseCustomModes(getEnv("CUSTOM_MODES", "")),
		DataDir:     getEnv("DATA_DIR", "./data"),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// normalizeLanguage accepts either a display name ("English") or a BCP 47
// tag ("en-US"). Tags resolve to their English display name so prompts
// read naturally; anything else passes through as-is.
func normalizeLanguage(value string) string {
	if value == "" {
		return "English"
	}
	if tag, err := language.Parse(value); err == nil {
		if name := display.English.Languages().Name(tag); name != "" {
			return name
		}
	}
	return value
}

// parseCustomModes decodes the CUSTOM_MODES JSON document, a map of
// mode id to {name, description}, e.g.
// {"noir": {"name": "Noir", "description": "Hard-boiled detective fiction."}}.
// Malformed input yields no custom modes rather than a startup failure.
func parseCustomModes(value string) map[string]prompts.CustomMode {
	if value == "" {
		return nil
	}
	var modes map[string]prompts.CustomMode
	if err := json.Unmarshal([]byte(value), &modes); err != nil {
		slog.Warn("Ignoring malformed CUSTOM_MODES", "error", err)
		return nil
	}
	return modes
}

func parseBool(value string) bool {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return b
}

func parseInt(value string, defaultValue int) int {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return defaultValue
	}
	return n
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
